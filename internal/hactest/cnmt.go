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
	"crypto/sha256"
	"encoding/binary"
)

// CNMTContent describes one content entry of a built meta record. A zero
// Hash becomes the digest of the ID so entries stay distinct.
type CNMTContent struct {
	Hash       [32]byte
	ID         [16]byte
	Size       uint64
	Attributes uint8
	Type       uint8
	IDOffset   uint8
}

// CNMTMeta describes one referenced meta record.
type CNMTMeta struct {
	ID         uint64
	Version    uint32
	Type       uint8
	Attributes uint8
}

// CNMTParams configures BuildCNMT. The zero Type means an application
// record.
type CNMTParams struct {
	ID                            uint64
	Version                       uint32
	Type                          uint8
	Attributes                    uint8
	StorageID                     uint8
	InstallType                   uint8
	InstallState                  uint8
	RequiredDownloadSystemVersion uint32

	// Extension fields; which apply depends on Type.
	PatchID                    uint64
	ApplicationID              uint64
	RequiredSystemVersion      uint32
	RequiredApplicationVersion uint32
	ContentAccessibilities     uint8
	DataPatchID                uint64
	// ExtendedData is appended after the tables for types that declare
	// extended data.
	ExtendedData []byte

	Contents []CNMTContent
	Metas    []CNMTMeta
}

// BuildCNMT encodes a packaged content meta record.
func BuildCNMT(p CNMTParams) []byte {
	ty := p.Type
	if ty == 0 {
		ty = 0x80
	}
	le := binary.LittleEndian

	var ext []byte
	switch ty {
	case 0x80: // application
		ext = make([]byte, 0x10)
		le.PutUint64(ext, p.PatchID)
		le.PutUint32(ext[0x8:], p.RequiredSystemVersion)
		le.PutUint32(ext[0xC:], p.RequiredApplicationVersion)
	case 0x81: // patch
		ext = make([]byte, 0x18)
		le.PutUint64(ext, p.ApplicationID)
		le.PutUint32(ext[0x8:], p.RequiredSystemVersion)
		le.PutUint32(ext[0xC:], uint32(len(p.ExtendedData)))
	case 0x82: // add-on content
		ext = make([]byte, 0x18)
		le.PutUint64(ext, p.ApplicationID)
		le.PutUint32(ext[0x8:], p.RequiredApplicationVersion)
		ext[0xC] = p.ContentAccessibilities
		le.PutUint64(ext[0x10:], p.DataPatchID)
	case 0x83: // delta
		ext = make([]byte, 0x10)
		le.PutUint64(ext, p.ApplicationID)
		le.PutUint32(ext[0x8:], uint32(len(p.ExtendedData)))
	case 0x03: // system update
		ext = make([]byte, 4)
		le.PutUint32(ext, uint32(len(p.ExtendedData)))
	}

	hdr := make([]byte, 0x20)
	le.PutUint64(hdr, p.ID)
	le.PutUint32(hdr[0x8:], p.Version)
	hdr[0xC] = ty
	le.PutUint16(hdr[0xE:], uint16(len(ext)))
	le.PutUint16(hdr[0x10:], uint16(len(p.Contents)))
	le.PutUint16(hdr[0x12:], uint16(len(p.Metas)))
	hdr[0x14] = p.Attributes
	hdr[0x15] = p.StorageID
	hdr[0x16] = p.InstallType
	hdr[0x17] = p.InstallState
	le.PutUint32(hdr[0x18:], p.RequiredDownloadSystemVersion)

	out := append(hdr, ext...)
	for _, c := range p.Contents {
		e := make([]byte, 0x38)
		hash := c.Hash
		if hash == ([32]byte{}) {
			hash = sha256.Sum256(c.ID[:])
		}
		copy(e, hash[:])
		copy(e[0x20:], c.ID[:])
		le.PutUint32(e[0x30:], uint32(c.Size))
		e[0x34] = byte(c.Size >> 32)
		e[0x35] = c.Attributes
		e[0x36] = c.Type
		e[0x37] = c.IDOffset
		out = append(out, e...)
	}
	for _, m := range p.Metas {
		e := make([]byte, 0x10)
		le.PutUint64(e, m.ID)
		le.PutUint32(e[0x8:], m.Version)
		e[0xC] = m.Type
		e[0xD] = m.Attributes
		out = append(out, e...)
	}
	out = append(out, p.ExtendedData...)

	digest := sha256.Sum256(out)
	return append(out, digest[:]...)
}
