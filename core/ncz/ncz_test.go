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

package ncz_test

import (
	"context"
	"testing"

	"github.com/hacfs/hacfs/core/fs"
	"github.com/hacfs/hacfs/core/nca"
	"github.com/hacfs/hacfs/core/ncz"
	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/internal/hactest"
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

// noise is incompressible, forcing raw block storage.
func noise(n int) []byte {
	b := make([]byte, n)
	s := uint32(0x9E3779B9)
	for i := range b {
		s ^= s << 13
		s ^= s >> 17
		s ^= s << 5
		b[i] = byte(s)
	}
	return b
}

func params(files map[string][]byte) hactest.NCAParams {
	return hactest.NCAParams{
		ContentType: byte(nca.ContentControl),
		Sections: []hactest.SectionSpec{
			{RomFS: files, Encrypt: true, Counter: 3},
		},
	}
}

// refData rebuilds the uncompressed form the compressed file must
// reproduce. The builders are deterministic, so this matches byte for
// byte.
func refData(p hactest.NCAParams) []byte {
	p.Plaintext = false
	p.PlaintextBody = true
	return hactest.BuildNCA(p).Data
}

func TestProbe(t *testing.T) {
	p := params(map[string][]byte{"a.bin": pattern(500)})
	assert.True(t, ncz.Probe(storage.Bytes(hactest.BuildNCZ(p, false).Data)))
	assert.True(t, ncz.Probe(storage.Bytes(hactest.BuildNCZ(p, true).Data)))
	assert.False(t, ncz.Probe(storage.Bytes(hactest.BuildNCA(p).Data)))
	assert.False(t, ncz.Probe(storage.Bytes(pattern(100))))
}

func TestSolidRoundTrip(t *testing.T) {
	// Three cache chunks of body force a stream restart below.
	p := params(map[string][]byte{"big.bin": pattern(1200 << 10)})
	ref := refData(p)
	img := hactest.BuildNCZ(p, false)
	require.Less(t, len(img.Data), len(ref), "compression should shrink the file")

	r, err := ncz.Open(context.Background(), storage.Bytes(img.Data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(ref)), r.Size())

	// Reading near the end first, then from the start, seeks backwards
	// through the sequential stream.
	tail, err := storage.ReadRange(r, int64(len(ref))-0x100, 0x100)
	require.NoError(t, err)
	assert.Equal(t, ref[len(ref)-0x100:], tail)

	head, err := storage.ReadRange(r, ncz.HeadersRegion, 0x100)
	require.NoError(t, err)
	assert.Equal(t, ref[ncz.HeadersRegion:ncz.HeadersRegion+0x100], head)

	full, err := storage.ReadRange(r, ncz.HeadersRegion, len(ref)-ncz.HeadersRegion)
	require.NoError(t, err)
	assert.Equal(t, ref[ncz.HeadersRegion:], full)
}

func TestBlockRoundTrip(t *testing.T) {
	// Mixing compressible and incompressible content exercises both
	// compressed frames and raw stored blocks.
	p := params(map[string][]byte{
		"page.html": pattern(60 << 10),
		"video.bin": noise(70 << 10),
	})
	ref := refData(p)
	img := hactest.BuildNCZ(p, true)

	r, err := ncz.Open(context.Background(), storage.Bytes(img.Data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(ref)), r.Size())

	full, err := storage.ReadRange(r, ncz.HeadersRegion, len(ref)-ncz.HeadersRegion)
	require.NoError(t, err)
	assert.Equal(t, ref[ncz.HeadersRegion:], full)

	// Unaligned reads crossing block boundaries.
	for _, off := range []int64{ncz.HeadersRegion, ncz.HeadersRegion + 0x3FFF, int64(len(ref)) - 77} {
		got, err := storage.ReadRange(r, off, 77)
		require.NoError(t, err)
		assert.Equal(t, ref[off:off+77], got)
	}
}

func TestHeaderRegionUnreadable(t *testing.T) {
	p := params(map[string][]byte{"a.bin": pattern(500)})
	r, err := ncz.Open(context.Background(), storage.Bytes(hactest.BuildNCZ(p, false).Data))
	require.NoError(t, err)

	for _, off := range []int64{0, 0x3FFF, ncz.HeadersRegion - 0x100} {
		_, err := storage.ReadRange(r, off, 0x200)
		assert.True(t, errdefs.IsOutOfBounds(err), "offset %#x: got %v", off, err)
	}
	_, err = storage.ReadRange(r, r.Size()-1, 2)
	assert.True(t, errdefs.IsOutOfBounds(err))
}

func TestThroughContainerReader(t *testing.T) {
	content := pattern(50 << 10)
	p := params(map[string][]byte{"control.nacp": content})

	for _, tc := range []struct {
		name  string
		block bool
	}{
		{"solid", false},
		{"block", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			img := hactest.BuildNCZ(p, tc.block)
			n, err := nca.Open(context.Background(), storage.Bytes(img.Data), hactest.Keys())
			require.NoError(t, err)

			fsys, err := n.Sections()[0].OpenFS(context.Background())
			require.NoError(t, err)
			got, err := fs.ReadFile(fsys, "control.nacp")
			require.NoError(t, err)
			assert.Equal(t, content, got)
		})
	}
}

func TestCorruptedStream(t *testing.T) {
	p := params(map[string][]byte{"a.bin": pattern(20 << 10)})
	img := hactest.BuildNCZ(p, false)

	// One section: the compressed stream starts right after its header.
	// Damaging the frame header is caught on the first decode.
	img.Data[0x4050+1] ^= 0x01

	r, err := ncz.Open(context.Background(), storage.Bytes(img.Data))
	require.NoError(t, err)
	_, err = storage.ReadRange(r, ncz.HeadersRegion, 0x1000)
	assert.Error(t, err)
}

func TestMalformedTables(t *testing.T) {
	p := params(map[string][]byte{"a.bin": pattern(40 << 10)})
	blockHeader := int64(0x4050)

	t.Run("bad block version", func(t *testing.T) {
		img := hactest.BuildNCZ(p, true)
		img.Data[blockHeader+8] = 9
		_, err := ncz.Open(context.Background(), storage.Bytes(img.Data))
		assert.True(t, errdefs.IsMalformedRecord(err), "got %v", err)
	})

	t.Run("block sizes drift", func(t *testing.T) {
		img := hactest.BuildNCZ(p, true)
		img.Data[blockHeader+24]++
		_, err := ncz.Open(context.Background(), storage.Bytes(img.Data))
		assert.True(t, errdefs.IsMalformedRecord(err), "got %v", err)
	})

	t.Run("body size disagreement", func(t *testing.T) {
		img := hactest.BuildNCZ(p, true)
		img.Data[blockHeader+16]++
		_, err := ncz.Open(context.Background(), storage.Bytes(img.Data))
		assert.True(t, errdefs.IsMalformedRecord(err), "got %v", err)
	})

	t.Run("truncated section table", func(t *testing.T) {
		img := hactest.BuildNCZ(p, false)
		_, err := ncz.Open(context.Background(), storage.Bytes(img.Data[:0x4000+10]))
		assert.Error(t, err)
	})
}
