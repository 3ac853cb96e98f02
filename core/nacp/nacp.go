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

// Package nacp parses application control records, the 16 KiB property
// block every control content carries as control.nacp. It holds the
// display name and publisher per language plus launch and save-data
// parameters. Descriptor regions the readers have no use for are kept
// opaque.
package nacp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/hos"
)

// Size is the fixed control record size.
const Size = 0x4000

// Language indexes the title table.
type Language uint8

const (
	LangAmericanEnglish Language = iota
	LangBritishEnglish
	LangJapanese
	LangFrench
	LangGerman
	LangLatinAmericanSpanish
	LangSpanish
	LangItalian
	LangDutch
	LangCanadianFrench
	LangPortuguese
	LangRussian
	LangKorean
	LangTraditionalChinese
	LangSimplifiedChinese
	LangBrazilianPortuguese

	languageCount = 16
)

var languageNames = [languageCount]string{
	"en-US", "en-GB", "ja", "fr", "de", "es-419", "es", "it",
	"nl", "fr-CA", "pt", "ru", "ko", "zh-Hant", "zh-Hans", "pt-BR",
}

func (l Language) String() string {
	if int(l) < len(languageNames) {
		return languageNames[l]
	}
	return fmt.Sprintf("language(%d)", uint8(l))
}

// Title is one language's display entry.
type Title struct {
	Name      string
	Publisher string
}

// IsZero reports whether the entry is absent.
func (t Title) IsZero() bool {
	return t.Name == "" && t.Publisher == ""
}

// NACP is a parsed control record.
type NACP struct {
	Titles             [languageCount]Title
	ISBN               string
	Attributes         uint32
	SupportedLanguages uint32
	ParentalControl    uint32
	PresenceGroupID    uint64
	RatingAges         [32]int8
	DisplayVersion     string
	AddOnContentBaseID hos.TitleID
	SaveDataOwnerID    hos.TitleID

	UserAccountSaveDataSize        int64
	UserAccountSaveDataJournalSize int64
	DeviceSaveDataSize             int64
	DeviceSaveDataJournalSize      int64

	LocalCommunicationIDs [8]uint64
	LogoType              uint8
	LogoHandling          uint8
	SeedForPseudoDeviceID uint64
	ProgramIndex          uint8
}

// AnyTitle returns the first language entry with a name, or nil when the
// record names nothing. Display paths use it when no language preference
// applies.
func (n *NACP) AnyTitle() *Title {
	for i := range n.Titles {
		if n.Titles[i].Name != "" {
			return &n.Titles[i]
		}
	}
	return nil
}

// Title offsets within the record.
const (
	titleLen     = 0x300
	nameLen      = 0x200
	fieldsOffset = 0x3000
)

// Parse decodes a control record. The input must be exactly one record.
func Parse(data []byte) (*NACP, error) {
	if len(data) != Size {
		return nil, fmt.Errorf("control record of %d bytes, expected %#x: %w",
			len(data), Size, errdefs.ErrMalformedRecord)
	}
	le := binary.LittleEndian

	n := &NACP{}
	for i := range n.Titles {
		e := data[i*titleLen:]
		name, err := cstring(e[:nameLen])
		if err != nil {
			return nil, fmt.Errorf("title %s name: %w", Language(i), err)
		}
		publisher, err := cstring(e[nameLen:titleLen])
		if err != nil {
			return nil, fmt.Errorf("title %s publisher: %w", Language(i), err)
		}
		n.Titles[i] = Title{Name: name, Publisher: publisher}
	}

	f := data[fieldsOffset:]
	isbn, err := cstring(f[:0x25])
	if err != nil {
		return nil, fmt.Errorf("isbn: %w", err)
	}
	n.ISBN = isbn
	n.Attributes = le.Uint32(f[0x28:])
	n.SupportedLanguages = le.Uint32(f[0x2C:])
	n.ParentalControl = le.Uint32(f[0x30:])
	n.PresenceGroupID = le.Uint64(f[0x38:])
	for i := range n.RatingAges {
		n.RatingAges[i] = int8(f[0x40+i])
	}
	version, err := cstring(f[0x60:0x70])
	if err != nil {
		return nil, fmt.Errorf("display version: %w", err)
	}
	n.DisplayVersion = version
	n.AddOnContentBaseID = hos.TitleID(le.Uint64(f[0x70:]))
	n.SaveDataOwnerID = hos.TitleID(le.Uint64(f[0x78:]))
	n.UserAccountSaveDataSize = int64(le.Uint64(f[0x80:]))
	n.UserAccountSaveDataJournalSize = int64(le.Uint64(f[0x88:]))
	n.DeviceSaveDataSize = int64(le.Uint64(f[0x90:]))
	n.DeviceSaveDataJournalSize = int64(le.Uint64(f[0x98:]))
	for i := range n.LocalCommunicationIDs {
		n.LocalCommunicationIDs[i] = le.Uint64(f[0xB0+i*8:])
	}
	n.LogoType = f[0xF0]
	n.LogoHandling = f[0xF1]
	n.SeedForPseudoDeviceID = le.Uint64(f[0xF8:])
	n.ProgramIndex = f[0x212]
	return n, nil
}

// cstring decodes a NUL-padded UTF-8 field.
func cstring(b []byte) (string, error) {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("invalid utf-8: %w", errdefs.ErrMalformedRecord)
	}
	return string(b), nil
}
