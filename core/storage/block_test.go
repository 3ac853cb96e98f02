/*
   Copyright The hacfs Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package storage

import (
	"testing"

	"github.com/hacfs/hacfs/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockCount(t *testing.T) {
	assert.EqualValues(t, 0, BlockCount(0, 16))
	assert.EqualValues(t, 1, BlockCount(1, 16))
	assert.EqualValues(t, 1, BlockCount(16, 16))
	assert.EqualValues(t, 2, BlockCount(17, 16))
	assert.EqualValues(t, 7, BlockCount(100, 16))
}

func TestNthBlockSize(t *testing.T) {
	assert.Equal(t, 16, NthBlockSize(100, 16, 0))
	assert.Equal(t, 16, NthBlockSize(100, 16, 5))
	assert.Equal(t, 4, NthBlockSize(100, 16, 6))
	assert.Equal(t, 16, NthBlockSize(96, 16, 5))
}

func TestBlockedReads(t *testing.T) {
	data := pattern(100)
	b, err := NewBlocked(Bytes(data), 16)
	require.NoError(t, err)
	require.Equal(t, 16, b.BlockSize())
	require.EqualValues(t, 100, b.Size())

	// Whole blocks.
	p := make([]byte, 32)
	require.NoError(t, b.ReadBlocksAt(p, 2))
	assert.Equal(t, data[32:64], p)

	// Trailing partial block.
	p = make([]byte, 20)
	require.NoError(t, b.ReadBlocksAt(p, 5))
	assert.Equal(t, data[80:100], p)
}

func TestBlockedRejectsMisalignedReads(t *testing.T) {
	b, err := NewBlocked(Bytes(pattern(100)), 16)
	require.NoError(t, err)

	for _, tc := range []struct {
		name  string
		n     int
		index int64
	}{
		{"unaligned length mid source", 10, 0},
		{"negative index", 16, -1},
		{"index past end", 16, 7},
		{"length past end", 48, 5},
		{"empty", 0, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := b.ReadBlocksAt(make([]byte, tc.n), tc.index)
			assert.ErrorIs(t, err, errdefs.ErrOutOfBounds)
		})
	}
}

func TestNewBlockedRejectsBadBlockSize(t *testing.T) {
	_, err := NewBlocked(Bytes(nil), 0)
	assert.ErrorIs(t, err, errdefs.ErrOutOfBounds)
	_, err = NewBlocked(Bytes(nil), -16)
	assert.ErrorIs(t, err, errdefs.ErrOutOfBounds)
}

// TestAlignedStraddlingReads sweeps ranges that start and end at every
// alignment relative to the block grid, including the partial final
// block, and checks each against the flat source.
func TestAlignedStraddlingReads(t *testing.T) {
	data := pattern(100)
	b, err := NewBlocked(Bytes(data), 16)
	require.NoError(t, err)
	r := NewAligned(b)
	require.EqualValues(t, 100, r.Size())

	for off := int64(0); off <= 100; off++ {
		for _, n := range []int{0, 1, 15, 16, 17, 35, int(100 - off)} {
			if off+int64(n) > 100 {
				continue
			}
			got := make([]byte, n)
			_, err := r.ReadAt(got, off)
			require.NoError(t, err, "off=%d n=%d", off, n)
			require.Equal(t, data[off:off+int64(n)], got, "off=%d n=%d", off, n)
		}
	}
}

func TestAlignedOutOfBounds(t *testing.T) {
	b, err := NewBlocked(Bytes(pattern(100)), 16)
	require.NoError(t, err)
	r := NewAligned(b)

	p := []byte{0xEE, 0xEE}
	n, err := r.ReadAt(p, 99)
	assert.ErrorIs(t, err, errdefs.ErrOutOfBounds)
	assert.Zero(t, n)
	assert.Equal(t, []byte{0xEE, 0xEE}, p)
}

// TestAlignedRoundTrip layers block and byte views and checks the stack
// stays consistent when the block size does not divide the source.
func TestAlignedRoundTrip(t *testing.T) {
	data := pattern(1000)
	inner, err := NewBlocked(Bytes(data), 33)
	require.NoError(t, err)
	outer, err := NewBlocked(NewAligned(inner), 64)
	require.NoError(t, err)
	r := NewAligned(outer)

	got, err := ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	got, err = ReadRange(r, 63, 66)
	require.NoError(t, err)
	assert.Equal(t, data[63:129], got)
}
