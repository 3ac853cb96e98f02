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

package cnmt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/internal/hactest"
	"github.com/hacfs/hacfs/pkg/hos"
)

func cid(b byte) [16]byte {
	var id [16]byte
	id[0] = b
	id[15] = b
	return id
}

// idDigest is the hash BuildCNMT fills in for entries built without one.
func idDigest(b byte) digest.Digest {
	id := cid(b)
	return digest.FromBytes(id[:])
}

func TestParseApplication(t *testing.T) {
	raw := hactest.BuildCNMT(hactest.CNMTParams{
		ID:      0x0100000000010000,
		Version: 0x20000,
		PatchID: 0x0100000000010800,
		Contents: []hactest.CNMTContent{
			{ID: cid(1), Size: 0x5_1234_5678, Type: 1},
			{ID: cid(2), Size: 0x4000, Type: 3},
			{ID: cid(3), Size: 0x200, Type: 5},
			{ID: cid(4), Size: 0x100, Type: 1, IDOffset: 1},
		},
	})

	got, err := Parse(raw)
	require.NoError(t, err)

	want := &CNMT{
		ID:      0x0100000000010000,
		Version: 0x20000,
		Type:    MetaApplication,
		Application: &ApplicationExt{
			PatchID: 0x0100000000010800,
		},
		Contents: []ContentEntry{
			{Hash: idDigest(1), ID: hos.ContentID(cid(1)), Size: 0x5_1234_5678, Type: ContentProgram},
			{Hash: idDigest(2), ID: hos.ContentID(cid(2)), Size: 0x4000, Type: ContentControl},
			{Hash: idDigest(3), ID: hos.ContentID(cid(3)), Size: 0x200, Type: ContentLegalInformation},
			{Hash: idDigest(4), ID: hos.ContentID(cid(4)), Size: 0x100, Type: ContentProgram, IDOffset: 1},
		},
		Metas:  []MetaEntry{},
		Digest: digest.NewDigestFromBytes(digest.SHA256, raw[len(raw)-0x20:]),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected meta record (-want +got):\n%s", diff)
	}

	assert.Equal(t, Key{ID: 0x0100000000010000, Version: 0x20000, Type: MetaApplication}, got.Key())
	assert.Equal(t, "0100000000010000/application/v131072", got.Key().String())

	control := got.Content(ContentControl)
	require.NotNil(t, control)
	assert.Equal(t, hos.ContentID(cid(2)), control.ID)
	assert.Nil(t, got.Content(ContentDeltaFragment))
}

func TestParsePatch(t *testing.T) {
	raw := hactest.BuildCNMT(hactest.CNMTParams{
		ID:            0x0100000000010800,
		Version:       0x30000,
		Type:          0x81,
		ApplicationID: 0x0100000000010000,
		ExtendedData:  make([]byte, 0x68),
		Contents: []hactest.CNMTContent{
			{ID: cid(7), Size: 0x1000, Type: 1},
			{ID: cid(8), Size: 0x800, Type: 6},
		},
	})

	got, err := Parse(raw)
	require.NoError(t, err)

	require.NotNil(t, got.Patch)
	assert.Equal(t, hos.TitleID(0x0100000000010000), got.Patch.ApplicationID)
	assert.Equal(t, uint32(0x68), got.Patch.ExtendedDataSize)
	assert.Len(t, got.Contents, 2)
	assert.Equal(t, ContentDeltaFragment, got.Contents[1].Type)
}

func TestParseAddOnContent(t *testing.T) {
	raw := hactest.BuildCNMT(hactest.CNMTParams{
		ID:                     0x0100000000011001,
		Version:                0x10000,
		Type:                   0x82,
		ApplicationID:          0x0100000000010000,
		ContentAccessibilities: 1,
		DataPatchID:            0x0100000000011800,
		Contents: []hactest.CNMTContent{
			{ID: cid(9), Size: 0x2000, Type: 2},
		},
	})

	got, err := Parse(raw)
	require.NoError(t, err)

	require.NotNil(t, got.AddOnContent)
	assert.Equal(t, hos.TitleID(0x0100000000010000), got.AddOnContent.ApplicationID)
	assert.Equal(t, uint8(1), got.AddOnContent.ContentAccessibilities)
	assert.Equal(t, hos.TitleID(0x0100000000011800), got.AddOnContent.DataPatchID)

	data := got.Content(ContentData)
	require.NotNil(t, data)
	assert.Equal(t, int64(0x2000), data.Size)
}

func TestParseSystemUpdate(t *testing.T) {
	raw := hactest.BuildCNMT(hactest.CNMTParams{
		ID:           0x0100000000000816,
		Version:      0x50000,
		Type:         0x03,
		ExtendedData: make([]byte, 0x10),
		Metas: []hactest.CNMTMeta{
			{ID: 0x0100000000000809, Version: 0x50000, Type: 1},
			{ID: 0x010000000000080A, Version: 0x50000, Type: 2},
		},
	})

	got, err := Parse(raw)
	require.NoError(t, err)

	require.NotNil(t, got.SystemUpdate)
	assert.Equal(t, uint32(0x10), got.SystemUpdate.ExtendedDataSize)
	require.Len(t, got.Metas, 2)
	assert.Equal(t, hos.TitleID(0x0100000000000809), got.Metas[0].ID)
	assert.Equal(t, MetaSystemProgram, got.Metas[0].Type)
	assert.Equal(t, MetaSystemData, got.Metas[1].Type)
}

func TestParseMalformed(t *testing.T) {
	good := hactest.BuildCNMT(hactest.CNMTParams{
		ID:      0x0100000000010000,
		Version: 1,
		PatchID: 0x0100000000010800,
		Contents: []hactest.CNMTContent{
			{ID: cid(1), Size: 0x1000, Type: 1},
		},
	})

	patch := func(off int, v byte) []byte {
		raw := append([]byte(nil), good...)
		raw[off] = v
		return raw
	}

	for name, raw := range map[string][]byte{
		"short":            good[:0x30],
		"unknown type":     patch(0xC, 0x99),
		"truncated":        good[:len(good)-1],
		"trailing junk":    append(append([]byte(nil), good...), 0),
		"huge extension":   patch(0xF, 0xFF),
		"small extension":  patch(0xE, 0x8),
		"bad content type": patch(0x20+0x10+0x36, 7),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw)
			assert.ErrorIs(t, err, errdefs.ErrMalformedRecord)
		})
	}
}
