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

// Package ticket parses title tickets. A ticket binds a rights ID to its
// title key; dumping tools drop one next to each externally keyed
// container, and importing it makes the container readable.
package ticket

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/hos"
)

// SignatureType identifies the signature scheme a ticket opens with. The
// scheme fixes the size of the signature blob preceding the body.
type SignatureType uint32

const (
	SignatureRSA4096SHA1   SignatureType = 0x10000
	SignatureRSA2048SHA1   SignatureType = 0x10001
	SignatureECDSASHA1     SignatureType = 0x10002
	SignatureRSA4096SHA256 SignatureType = 0x10003
	SignatureRSA2048SHA256 SignatureType = 0x10004
	SignatureECDSASHA256   SignatureType = 0x10005
)

func (t SignatureType) String() string {
	switch t {
	case SignatureRSA4096SHA1:
		return "rsa4096-sha1"
	case SignatureRSA2048SHA1:
		return "rsa2048-sha1"
	case SignatureECDSASHA1:
		return "ecdsa-sha1"
	case SignatureRSA4096SHA256:
		return "rsa4096-sha256"
	case SignatureRSA2048SHA256:
		return "rsa2048-sha256"
	case SignatureECDSASHA256:
		return "ecdsa-sha256"
	}
	return fmt.Sprintf("signaturetype(%#x)", uint32(t))
}

// blobSize returns the signature blob and trailing padding sizes for the
// scheme, or ok=false for an unknown scheme.
func (t SignatureType) blobSize() (sig, pad int, ok bool) {
	switch t {
	case SignatureRSA4096SHA1, SignatureRSA4096SHA256:
		return 0x200, 0x3c, true
	case SignatureRSA2048SHA1, SignatureRSA2048SHA256:
		return 0x100, 0x3c, true
	case SignatureECDSASHA1, SignatureECDSASHA256:
		return 0x3c, 0x40, true
	}
	return 0, 0, false
}

// KeyType tells how the title key block is protected.
type KeyType uint8

const (
	// KeyCommon stores the title key in the clear title kek wrapping.
	KeyCommon KeyType = 0
	// KeyPersonalized wraps the title key to a console's RSA key.
	KeyPersonalized KeyType = 1
)

func (t KeyType) String() string {
	switch t {
	case KeyCommon:
		return "common"
	case KeyPersonalized:
		return "personalized"
	}
	return fmt.Sprintf("keytype(%d)", uint8(t))
}

// LicenseType is the license class a ticket grants.
type LicenseType uint8

const (
	LicensePermanent    LicenseType = 0
	LicenseDemo         LicenseType = 1
	LicenseTrial        LicenseType = 2
	LicenseRental       LicenseType = 3
	LicenseSubscription LicenseType = 4
	LicenseService      LicenseType = 5
)

func (t LicenseType) String() string {
	switch t {
	case LicensePermanent:
		return "permanent"
	case LicenseDemo:
		return "demo"
	case LicenseTrial:
		return "trial"
	case LicenseRental:
		return "rental"
	case LicenseSubscription:
		return "subscription"
	case LicenseService:
		return "service"
	}
	return fmt.Sprintf("licensetype(%d)", uint8(t))
}

// Property flag bits.
const (
	PropertyPreInstall      uint32 = 1 << 0
	PropertySharedTitle     uint32 = 1 << 1
	PropertyAllowAllContent uint32 = 1 << 2
)

// rawBody is the fixed ticket body following the signature blob.
type rawBody struct {
	Issuer        [0x40]byte
	TitleKeyBlock [0x100]byte
	FormatVersion uint8
	KeyType       uint8
	Version       uint16
	LicenseType   uint8
	KeyGeneration uint8
	Properties    uint32
	_             [6]byte
	TicketID      uint64
	DeviceID      uint64
	RightsID      [16]byte
	AccountID     uint32
	SectTotal     uint32
	SectOffset    uint32
	SectCount     uint16
	SectEntrySize uint16
}

// Ticket is a parsed title ticket.
type Ticket struct {
	Signature     SignatureType
	Issuer        string
	FormatVersion uint8
	KeyType       KeyType
	Version       uint16
	License       LicenseType
	KeyGeneration uint8
	Properties    uint32
	TicketID      uint64
	DeviceID      uint64
	RightsID      hos.RightsID
	AccountID     uint32

	titleKeyBlock [0x100]byte
}

// Parse decodes a ticket file. Trailing data beyond the fixed body, such
// as section records, is ignored.
func Parse(data []byte) (*Ticket, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("ticket of %d bytes: %w", len(data), errdefs.ErrMalformedRecord)
	}
	sigType := SignatureType(binary.LittleEndian.Uint32(data))
	sigSize, padSize, ok := sigType.blobSize()
	if !ok {
		return nil, fmt.Errorf("ticket signature type %#x: %w", uint32(sigType), errdefs.ErrMalformedRecord)
	}
	body := 4 + sigSize + padSize
	var raw rawBody
	if len(data) < body+binary.Size(&raw) {
		return nil, fmt.Errorf("ticket of %d bytes truncates the %s body: %w",
			len(data), sigType, errdefs.ErrMalformedRecord)
	}
	if err := binary.Read(bytes.NewReader(data[body:]), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("ticket body: %w", errdefs.ErrMalformedRecord)
	}
	if kt := KeyType(raw.KeyType); kt > KeyPersonalized {
		return nil, fmt.Errorf("ticket title key type %d: %w", raw.KeyType, errdefs.ErrMalformedRecord)
	}
	if lt := LicenseType(raw.LicenseType); lt > LicenseService {
		return nil, fmt.Errorf("ticket license type %d: %w", raw.LicenseType, errdefs.ErrMalformedRecord)
	}
	t := &Ticket{
		Signature:     sigType,
		Issuer:        cstring(raw.Issuer[:]),
		FormatVersion: raw.FormatVersion,
		KeyType:       KeyType(raw.KeyType),
		Version:       raw.Version,
		License:       LicenseType(raw.LicenseType),
		KeyGeneration: raw.KeyGeneration,
		Properties:    raw.Properties,
		TicketID:      raw.TicketID,
		DeviceID:      raw.DeviceID,
		RightsID:      hos.RightsID(raw.RightsID),
		AccountID:     raw.AccountID,
		titleKeyBlock: raw.TitleKeyBlock,
	}
	return t, nil
}

// TitleKey extracts the wrapped title key. For common tickets it is the
// head of the title key block, still encrypted under the title kek.
// Personalized tickets would need the console RSA key to unwrap.
func (t *Ticket) TitleKey() ([16]byte, error) {
	var key [16]byte
	if t.KeyType != KeyCommon {
		return key, fmt.Errorf("%s ticket for %s: %w", t.KeyType, t.RightsID, errdefs.ErrNotImplemented)
	}
	copy(key[:], t.titleKeyBlock[:16])
	return key, nil
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
