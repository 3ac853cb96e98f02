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

package catalog

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hacfs/hacfs/core/cnmt"
	"github.com/hacfs/hacfs/core/nca"
	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/internal/hactest"
	"github.com/hacfs/hacfs/pkg/hos"
)

var (
	scanAppID   = hos.TitleID(0x0100aaaa00010000)
	scanPatchID = hos.TitleID(0x0100aaaa00010800)
	scanAddOnID = hos.TitleID(0x0100aaaa00013001)
)

func cid(b byte) hos.ContentID {
	var id hos.ContentID
	id[0] = b
	return id
}

func programNCA(id hos.TitleID) []byte {
	return hactest.BuildNCA(hactest.NCAParams{
		TitleID: uint64(id),
		Sections: []hactest.SectionSpec{
			{PFS: []hactest.PFS0File{{Name: "main", Data: []byte("code")}}, Encrypt: true},
			{RomFS: map[string][]byte{"assets.bin": []byte("assets")}, Encrypt: true, Counter: 1},
		},
	}).Data
}

func controlNCA(id hos.TitleID, displayVersion string, mod func(*hactest.NCAParams)) []byte {
	p := hactest.NCAParams{
		ContentType: 2,
		TitleID:     uint64(id),
		Sections: []hactest.SectionSpec{{
			RomFS: map[string][]byte{
				"control.nacp": hactest.BuildNACP(hactest.NACPParams{
					Titles:         map[int]hactest.NACPTitle{0: {Name: "Example Game", Publisher: "Example Works"}},
					DisplayVersion: displayVersion,
				}),
			},
			Encrypt: true,
		}},
	}
	if mod != nil {
		mod(&p)
	}
	return hactest.BuildNCA(p).Data
}

func metaNCA(id hos.TitleID, c hactest.CNMTParams) []byte {
	return hactest.BuildNCA(hactest.NCAParams{
		ContentType: 1,
		TitleID:     uint64(id),
		Sections: []hactest.SectionSpec{{
			PFS:     []hactest.PFS0File{{Name: fmt.Sprintf("%s.cnmt", id), Data: hactest.BuildCNMT(c)}},
			Encrypt: true,
		}},
	}).Data
}

func TestScanCorrelatesTree(t *testing.T) {
	var (
		idMetaApp   = cid(0x10)
		idProgApp   = cid(0x11)
		idCtrlApp   = cid(0x12)
		idMetaPatch = cid(0x20)
		idProgPatch = cid(0x21)
		idCtrlPatch = cid(0x22)
		idMetaAddOn = cid(0x30)
		idDataAddOn = cid(0x31)
		idMetaLost  = cid(0x40)
	)
	var rights hos.RightsID
	binary.BigEndian.PutUint64(rights[:8], uint64(scanAppID))
	rights[15] = 2

	appMeta := metaNCA(scanAppID, hactest.CNMTParams{
		ID:      uint64(scanAppID),
		Version: 0x10000,
		Contents: []hactest.CNMTContent{
			{ID: idProgApp, Type: 1},
			{ID: idCtrlApp, Type: 3},
		},
	})
	// The application's control is title-key encrypted; its ticket
	// travels in the same tree.
	appCtrl := controlNCA(scanAppID, "1.0.0", func(p *hactest.NCAParams) {
		p.KeyGeneration = 2
		p.RightsID = rights
	})
	patchMeta := metaNCA(scanPatchID, hactest.CNMTParams{
		ID:            uint64(scanPatchID),
		Version:       0x20000,
		Type:          0x81,
		ApplicationID: uint64(scanAppID),
		Contents: []hactest.CNMTContent{
			{ID: idProgPatch, Type: 1},
			{ID: idCtrlPatch, Type: 3},
			// A fragment entry whose file is absent; fragments are not
			// resolved.
			{ID: cid(0xDD), Type: 6},
		},
	})
	addOnMeta := metaNCA(scanAddOnID, hactest.CNMTParams{
		ID:            uint64(scanAddOnID),
		Version:       0x30000,
		Type:          0x82,
		ApplicationID: uint64(scanAppID),
		Contents:      []hactest.CNMTContent{{ID: idDataAddOn, Type: 2}},
	})
	addOnData := hactest.BuildNCA(hactest.NCAParams{
		ContentType: 4,
		TitleID:     uint64(scanAddOnID),
		Sections:    []hactest.SectionSpec{{RomFS: map[string][]byte{"payload.bin": []byte("dlc")}, Encrypt: true}},
	}).Data
	lostMeta := metaNCA(hos.TitleID(0x0100bbbb00010000), hactest.CNMTParams{
		ID:       0x0100bbbb00010000,
		Version:  0x10000,
		Contents: []hactest.CNMTContent{{ID: cid(0x66), Type: 1}},
	})

	fsys := hactest.MapFS{
		idMetaApp.String() + ".cnmt.nca":               appMeta,
		idProgApp.String() + ".nca":                    programNCA(scanAppID),
		idCtrlApp.String() + ".nca":                    appCtrl,
		"tickets/" + rights.String() + ".tik":          hactest.BuildTicket(hactest.TicketParams{KeyGeneration: 2, RightsID: rights}),
		"update/" + idMetaPatch.String() + ".cnmt.nca": patchMeta,
		"update/" + idProgPatch.String() + ".nca":      programNCA(scanPatchID),
		"update/" + idCtrlPatch.String() + ".nca":      controlNCA(scanPatchID, "1.1.0", nil),
		"dlc/" + idMetaAddOn.String() + ".cnmt.nca":    addOnMeta,
		"dlc/" + idDataAddOn.String() + ".nca":         addOnData,
		idMetaLost.String() + ".cnmt.nca":              lostMeta,
		"ffffffffffffffffffffffffffffffff.nca":         bytes.Repeat([]byte{0xAB}, 0x1000),
		"not-an-id.nca":                                []byte("junk"),
		"readme.txt":                                   []byte("notes"),
	}

	ks := hactest.Keys()
	cat, err := Scan(context.Background(), fsys, ks)
	require.NoError(t, err)

	// The ticket key landed in the scan's copy, not in ks.
	_, err = ks.TitleKey(rights)
	assert.ErrorIs(t, err, errdefs.ErrMissingKey)

	assert.Len(t, cat.Records(), 9)

	titles := cat.Titles()
	require.Len(t, titles, 3)
	app, patch, addOn := titles[0], titles[1], titles[2]

	assert.Equal(t, cnmt.Key{ID: scanAppID, Version: 0x10000, Type: cnmt.MetaApplication}, app.Key)
	require.Len(t, app.Programs, 1)
	assert.Equal(t, scanAppID, app.Programs[0].ID)
	assert.Equal(t, idProgApp, app.Programs[0].Program.ID)
	assert.Equal(t, idCtrlApp, app.Programs[0].Control.ID)
	require.NotNil(t, app.Control())
	assert.Equal(t, "Example Game", app.Control().AnyTitle().Name)
	assert.Equal(t, "1.0.0", app.Control().DisplayVersion)

	assert.Equal(t, cnmt.Key{ID: scanPatchID, Version: 0x20000, Type: cnmt.MetaPatch}, patch.Key)
	assert.Len(t, patch.Contents, 2)

	assert.Equal(t, cnmt.Key{ID: scanAddOnID, Version: 0x30000, Type: cnmt.MetaAddOnContent}, addOn.Key)
	assert.Empty(t, addOn.Programs)
	assert.Nil(t, addOn.Control())
	require.Len(t, addOn.Contents, 1)
	assert.Equal(t, nca.ContentData, addOn.Contents[0].Type)

	apps := cat.Applications()
	require.Len(t, apps, 1)
	joined := apps[0]
	assert.Equal(t, scanAppID, joined.Base.Key.ID)
	require.Len(t, joined.Patches, 1)
	require.Len(t, joined.AddOns, 1)
	assert.Equal(t, hos.Version(0x20000), joined.Version())
	// Display data prefers the newest patch control.
	assert.Equal(t, "1.1.0", joined.Control().DisplayVersion)

	ctrl := cat.Record(idCtrlApp)
	require.NotNil(t, ctrl)
	assert.Equal(t, nca.ContentControl, ctrl.Type)
	assert.Equal(t, rights, ctrl.RightsID)
	assert.EqualValues(t, 2, ctrl.KeyGeneration)
	assert.Equal(t, scanAppID, ctrl.TitleID)
	assert.NotNil(t, ctrl.NACP)

	skipped := map[string]error{}
	for _, s := range cat.Skipped() {
		skipped[s.Path] = s.Err
	}
	require.Len(t, skipped, 3)
	assert.ErrorIs(t, skipped["not-an-id.nca"], errdefs.ErrMalformedRecord)
	assert.ErrorIs(t, skipped["ffffffffffffffffffffffffffffffff.nca"], errdefs.ErrMalformedRecord)
	assert.ErrorIs(t, skipped[idMetaLost.String()+".cnmt.nca"], errdefs.ErrNotFound)
}

func TestScanPatchWithoutApplication(t *testing.T) {
	idMeta, idProg, idCtrl := cid(0x51), cid(0x52), cid(0x53)
	fsys := hactest.MapFS{
		idMeta.String() + ".cnmt.nca": metaNCA(scanPatchID, hactest.CNMTParams{
			ID:            uint64(scanPatchID),
			Version:       0x20000,
			Type:          0x81,
			ApplicationID: uint64(scanAppID),
			Contents: []hactest.CNMTContent{
				{ID: idProg, Type: 1},
				{ID: idCtrl, Type: 3},
			},
		}),
		idProg.String() + ".nca": programNCA(scanPatchID),
		idCtrl.String() + ".nca": controlNCA(scanPatchID, "1.1.0", nil),
	}

	cat, err := Scan(context.Background(), fsys, hactest.Keys(), WithConcurrency(1))
	require.NoError(t, err)

	// The patch stands on its own: visible as a title, absent from the
	// joined view.
	require.Len(t, cat.Titles(), 1)
	assert.Equal(t, "1.1.0", cat.Titles()[0].Control().DisplayVersion)
	assert.Empty(t, cat.Applications())
	assert.Empty(t, cat.Skipped())
}

func TestScanRequiresControl(t *testing.T) {
	idMeta, idProg := cid(0x61), cid(0x62)
	fsys := hactest.MapFS{
		idMeta.String() + ".cnmt.nca": metaNCA(scanAppID, hactest.CNMTParams{
			ID:       uint64(scanAppID),
			Version:  0x10000,
			Contents: []hactest.CNMTContent{{ID: idProg, Type: 1}},
		}),
		idProg.String() + ".nca": programNCA(scanAppID),
	}

	cat, err := Scan(context.Background(), fsys, hactest.Keys())
	require.NoError(t, err)
	assert.Empty(t, cat.Titles())
	require.Len(t, cat.Skipped(), 1)
	assert.ErrorIs(t, cat.Skipped()[0].Err, errdefs.ErrMalformedRecord)
}

func TestScanCancelled(t *testing.T) {
	idProg := cid(0x71)
	fsys := hactest.MapFS{
		idProg.String() + ".nca": programNCA(scanAppID),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Scan(ctx, fsys, hactest.Keys())
	assert.ErrorIs(t, err, context.Canceled)
}
