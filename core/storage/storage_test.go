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
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hacfs/hacfs/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

func TestBytesReadAt(t *testing.T) {
	data := pattern(64)
	r := Bytes(data)
	require.EqualValues(t, 64, r.Size())

	got := make([]byte, 16)
	n, err := r.ReadAt(got, 8)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, data[8:24], got)
}

func TestBytesOutOfBounds(t *testing.T) {
	r := Bytes(pattern(64))
	for _, tc := range []struct {
		name string
		off  int64
		n    int
	}{
		{"negative offset", -1, 4},
		{"past end", 60, 8},
		{"at end", 64, 1},
		{"far past end", 1 << 40, 1},
		{"larger than source", 0, 65},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := bytes.Repeat([]byte{0xAA}, tc.n)
			n, err := r.ReadAt(p, tc.off)
			assert.ErrorIs(t, err, errdefs.ErrOutOfBounds)
			assert.Zero(t, n)
			// A failed read must not hand out partial data.
			assert.Equal(t, bytes.Repeat([]byte{0xAA}, tc.n), p)
		})
	}
}

func TestSection(t *testing.T) {
	data := pattern(128)
	base := Bytes(data)

	s, err := Section(base, 32, 64)
	require.NoError(t, err)
	require.EqualValues(t, 64, s.Size())

	got := make([]byte, 10)
	_, err = s.ReadAt(got, 5)
	require.NoError(t, err)
	assert.Equal(t, data[37:47], got)

	// Reads are clamped to the section, not the base.
	_, err = s.ReadAt(make([]byte, 10), 60)
	assert.ErrorIs(t, err, errdefs.ErrOutOfBounds)
}

func TestSectionConstruction(t *testing.T) {
	base := Bytes(pattern(100))

	for _, tc := range []struct {
		name     string
		off, n   int64
		expected error
	}{
		{"whole", 0, 100, nil},
		{"empty at end", 100, 0, nil},
		{"negative offset", -1, 10, errdefs.ErrOutOfBounds},
		{"negative size", 0, -1, errdefs.ErrOutOfBounds},
		{"past end", 90, 11, errdefs.ErrOutOfBounds},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Section(base, tc.off, tc.n)
			if tc.expected == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.expected)
			}
		})
	}
}

func TestSectionNestingCollapses(t *testing.T) {
	data := pattern(128)
	s1, err := Section(Bytes(data), 16, 96)
	require.NoError(t, err)
	s2, err := Section(s1, 16, 32)
	require.NoError(t, err)

	inner, ok := s2.(*section)
	require.True(t, ok)
	_, isSection := inner.r.(*section)
	assert.False(t, isSection)

	got := make([]byte, 32)
	_, err = s2.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, data[32:64], got)
}

func TestConcat(t *testing.T) {
	data := pattern(90)
	a := Bytes(data[:30])
	b := Bytes(data[30:31])
	c := Bytes(nil)
	d := Bytes(data[31:])

	r := Concat(a, b, c, d)
	require.EqualValues(t, 90, r.Size())

	for _, tc := range []struct {
		off int64
		n   int
	}{
		{0, 90},
		{0, 30},
		{29, 3},
		{30, 1},
		{25, 40},
		{89, 1},
	} {
		got := make([]byte, tc.n)
		_, err := r.ReadAt(got, tc.off)
		require.NoError(t, err)
		assert.Equal(t, data[tc.off:tc.off+int64(tc.n)], got)
	}

	_, err := r.ReadAt(make([]byte, 2), 89)
	assert.ErrorIs(t, err, errdefs.ErrOutOfBounds)
}

func TestFromReaderAt(t *testing.T) {
	data := pattern(40)
	r := FromReaderAt(bytes.NewReader(data), 40)

	got, err := ReadRange(r, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, data[10:30], got)

	_, err = r.ReadAt(make([]byte, 1), 40)
	assert.ErrorIs(t, err, errdefs.ErrOutOfBounds)
}

func TestFromReaderAtLyingSize(t *testing.T) {
	// Declared size exceeds what the underlying reader can serve; the
	// wrapper must fail instead of returning a short read.
	r := FromReaderAt(bytes.NewReader(pattern(10)), 20)
	n, err := r.ReadAt(make([]byte, 15), 0)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.NotErrorIs(t, err, errdefs.ErrOutOfBounds)
}

func TestOpenFile(t *testing.T) {
	data := pattern(256)
	path := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	require.EqualValues(t, 256, f.Size())
	assert.Equal(t, path, f.Name())

	got, err := ReadRange(f, 100, 56)
	require.NoError(t, err)
	assert.Equal(t, data[100:156], got)

	_, err = f.ReadAt(make([]byte, 1), 256)
	assert.ErrorIs(t, err, errdefs.ErrOutOfBounds)
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}

func TestNewReader(t *testing.T) {
	data := pattern(100)
	got, err := io.ReadAll(NewReader(Bytes(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadAll(t *testing.T) {
	data := pattern(50)
	got, err := ReadAll(Bytes(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCheckRange(t *testing.T) {
	assert.NoError(t, CheckRange(10, 0, 10))
	assert.NoError(t, CheckRange(10, 10, 0))
	assert.ErrorIs(t, CheckRange(10, 11, 0), errdefs.ErrOutOfBounds)
	assert.ErrorIs(t, CheckRange(10, 0, 11), errdefs.ErrOutOfBounds)
	assert.ErrorIs(t, CheckRange(10, -1, 1), errdefs.ErrOutOfBounds)
	assert.ErrorIs(t, CheckRange(10, 0, -1), errdefs.ErrOutOfBounds)
}
