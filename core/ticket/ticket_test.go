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

package ticket_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hacfs/hacfs/core/nca"
	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/core/ticket"
	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/internal/hactest"
	"github.com/hacfs/hacfs/pkg/hos"
)

var testRights = hos.RightsID{0x01, 0x00, 0xAB, 0xCD, 0x01, 0x23, 0x40, 0x00, 0, 0, 0, 0, 0, 0, 0, 0x03}

func TestParseCommon(t *testing.T) {
	raw := hactest.BuildTicket(hactest.TicketParams{
		KeyGeneration: 3,
		LicenseType:   1,
		Properties:    ticket.PropertySharedTitle,
		TicketID:      0x0400000012345678,
		DeviceID:      0xCAFE,
		RightsID:      testRights,
		AccountID:     77,
	})
	// Section records after the fixed body must not confuse the parser.
	raw = append(raw, make([]byte, 0x100)...)

	tik, err := ticket.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, ticket.SignatureRSA2048SHA256, tik.Signature)
	assert.Equal(t, "Root-CA00000003-XS00000020", tik.Issuer)
	assert.Equal(t, uint8(2), tik.FormatVersion)
	assert.Equal(t, ticket.KeyCommon, tik.KeyType)
	assert.Equal(t, ticket.LicenseDemo, tik.License)
	assert.Equal(t, uint8(3), tik.KeyGeneration)
	assert.Equal(t, ticket.PropertySharedTitle, tik.Properties)
	assert.Equal(t, uint64(0x0400000012345678), tik.TicketID)
	assert.Equal(t, uint64(0xCAFE), tik.DeviceID)
	assert.Equal(t, testRights, tik.RightsID)
	assert.Equal(t, uint32(77), tik.AccountID)

	key, err := tik.TitleKey()
	require.NoError(t, err)
	assert.Equal(t, hactest.WrappedTitleKey(3), key)
}

func TestParseSignatureSchemes(t *testing.T) {
	schemes := map[ticket.SignatureType]int{
		ticket.SignatureRSA4096SHA1:   0x200 + 0x3C,
		ticket.SignatureRSA2048SHA1:   0x100 + 0x3C,
		ticket.SignatureECDSASHA1:     0x3C + 0x40,
		ticket.SignatureRSA4096SHA256: 0x200 + 0x3C,
		ticket.SignatureRSA2048SHA256: 0x100 + 0x3C,
		ticket.SignatureECDSASHA256:   0x3C + 0x40,
	}
	for sig, blob := range schemes {
		t.Run(sig.String(), func(t *testing.T) {
			raw := hactest.BuildTicket(hactest.TicketParams{
				SignatureType: uint32(sig),
				RightsID:      testRights,
			})
			assert.Len(t, raw, 4+blob+0x180)

			tik, err := ticket.Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, sig, tik.Signature)
			assert.Equal(t, testRights, tik.RightsID)
		})
	}
}

func TestParsePersonalized(t *testing.T) {
	raw := hactest.BuildTicket(hactest.TicketParams{
		Personalized: true,
		RightsID:     testRights,
	})
	tik, err := ticket.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, ticket.KeyPersonalized, tik.KeyType)

	_, err = tik.TitleKey()
	assert.ErrorIs(t, err, errdefs.ErrNotImplemented)

	err = hactest.Keys().ImportTicket(tik)
	assert.ErrorIs(t, err, errdefs.ErrNotImplemented)
}

func TestImportUnlocksContainer(t *testing.T) {
	img := hactest.BuildNCA(hactest.NCAParams{
		KeyGeneration: 2,
		RightsID:      testRights,
		Sections: []hactest.SectionSpec{
			{PFS: []hactest.PFS0File{{Name: "main", Data: []byte("payload")}}, Encrypt: true},
		},
	})
	raw := hactest.BuildTicket(hactest.TicketParams{
		KeyGeneration: 2,
		RightsID:      testRights,
	})

	ks := hactest.Keys()
	_, err := nca.Open(context.Background(), storage.Bytes(img.Data), ks)
	require.ErrorIs(t, err, errdefs.ErrMissingKey)

	tik, err := ticket.Parse(raw)
	require.NoError(t, err)
	require.NoError(t, ks.ImportTicket(tik))

	n, err := nca.Open(context.Background(), storage.Bytes(img.Data), ks)
	require.NoError(t, err)
	assert.Equal(t, testRights, n.Header().RightsID)
}

func TestParseMalformed(t *testing.T) {
	good := hactest.BuildTicket(hactest.TicketParams{RightsID: testRights})
	// RSA-2048 tickets place the body after a 0x140-byte signature block.
	const body = 4 + 0x100 + 0x3C

	patch := func(off int, v byte) []byte {
		raw := append([]byte(nil), good...)
		raw[off] = v
		return raw
	}

	for name, raw := range map[string][]byte{
		"empty":            nil,
		"short":            good[:3],
		"unknown sig type": patch(2, 0xFF),
		"truncated body":   good[:len(good)-1],
		"bad key type":     patch(body+0x141, 7),
		"bad license":      patch(body+0x144, 9),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ticket.Parse(raw)
			assert.ErrorIs(t, err, errdefs.ErrMalformedRecord)
		})
	}
}
