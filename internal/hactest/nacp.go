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

// NACPTitle is one language entry of a built control record.
type NACPTitle struct {
	Name      string
	Publisher string
}

// NACPParams configures BuildNACP.
type NACPParams struct {
	// Titles maps language index (0 = American English) to its entry.
	Titles map[int]NACPTitle

	ISBN                  string
	DisplayVersion        string
	SupportedLanguages    uint32
	PresenceGroupID       uint64
	AddOnContentBaseID    uint64
	SaveDataOwnerID       uint64
	LocalCommunicationIDs []uint64
	ProgramIndex          uint8
}

// BuildNACP encodes a 16 KiB control record.
func BuildNACP(p NACPParams) []byte {
	out := make([]byte, 0x4000)
	le := binary.LittleEndian

	for lang, title := range p.Titles {
		if lang < 0 || lang >= 16 {
			panic("hactest: control title language out of range")
		}
		if len(title.Name) > 0x1FF || len(title.Publisher) > 0xFF {
			panic("hactest: control title entry too long")
		}
		e := out[lang*0x300:]
		copy(e, title.Name)
		copy(e[0x200:], title.Publisher)
	}

	f := out[0x3000:]
	copy(f[:0x24], p.ISBN)
	le.PutUint32(f[0x2C:], p.SupportedLanguages)
	le.PutUint64(f[0x38:], p.PresenceGroupID)
	copy(f[0x60:0x6F], p.DisplayVersion)
	le.PutUint64(f[0x70:], p.AddOnContentBaseID)
	le.PutUint64(f[0x78:], p.SaveDataOwnerID)
	if len(p.LocalCommunicationIDs) > 8 {
		panic("hactest: too many local communication ids")
	}
	for i, id := range p.LocalCommunicationIDs {
		le.PutUint64(f[0xB0+i*8:], id)
	}
	f[0x212] = p.ProgramIndex
	return out
}
