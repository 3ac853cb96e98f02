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

package hactest

import (
	"encoding/binary"
)

// TicketParams configures BuildTicket. The zero value builds a common
// RSA-2048/SHA-256 ticket for an all-zero rights ID carrying
// WrappedTitleKey(0).
type TicketParams struct {
	// SignatureType is the signature scheme magic; 0 means RSA-2048 with
	// SHA-256.
	SignatureType uint32
	Issuer        string
	Personalized  bool
	KeyGeneration uint8
	LicenseType   uint8
	Properties    uint32
	TicketID      uint64
	DeviceID      uint64
	RightsID      [16]byte
	AccountID     uint32
	// TitleKey overrides the key block head; zero means the wrapped
	// builder title key for KeyGeneration.
	TitleKey [16]byte
}

// BuildTicket assembles a ticket file.
func BuildTicket(p TicketParams) []byte {
	sigType := p.SignatureType
	if sigType == 0 {
		sigType = 0x10004
	}
	var sigSize, padSize int
	switch sigType {
	case 0x10000, 0x10003:
		sigSize, padSize = 0x200, 0x3C
	case 0x10001, 0x10004:
		sigSize, padSize = 0x100, 0x3C
	case 0x10002, 0x10005:
		sigSize, padSize = 0x3C, 0x40
	default:
		panic("hactest: unknown ticket signature type")
	}
	issuer := p.Issuer
	if issuer == "" {
		issuer = "Root-CA00000003-XS00000020"
	}
	if len(issuer) > 0x3F {
		panic("hactest: ticket issuer too long")
	}
	key := p.TitleKey
	if key == ([16]byte{}) {
		key = WrappedTitleKey(p.KeyGeneration)
	}

	le := binary.LittleEndian
	out := make([]byte, 4+sigSize+padSize)
	le.PutUint32(out, sigType)
	for i := 4; i < 4+sigSize; i++ {
		out[i] = byte(0xA5 ^ i)
	}

	body := make([]byte, 0x180)
	copy(body, issuer)
	copy(body[0x40:], key[:])
	if p.Personalized {
		// Personalized blocks hold an RSA-wrapped key; fill the whole
		// block so nothing mistakes it for a common one.
		for i := 0; i < 0x100; i++ {
			body[0x40+i] = byte(0x3C + i)
		}
	}
	body[0x140] = 2 // format version
	if p.Personalized {
		body[0x141] = 1
	}
	body[0x144] = p.LicenseType
	body[0x145] = p.KeyGeneration
	le.PutUint32(body[0x146:], p.Properties)
	le.PutUint64(body[0x150:], p.TicketID)
	le.PutUint64(body[0x158:], p.DeviceID)
	copy(body[0x160:], p.RightsID[:])
	le.PutUint32(body[0x170:], p.AccountID)
	le.PutUint32(body[0x174:], uint32(len(out)+0x180)) // section region total
	le.PutUint32(body[0x178:], uint32(len(out)+0x180)) // section header offset
	return append(out, body...)
}
