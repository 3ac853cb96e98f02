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

package nca

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/hos"
)

const (
	// headersLen covers the main header plus the four section filesystem
	// headers, all encrypted together at the front of the file.
	headersLen    = 0xC00
	mainHeaderLen = 0x400
	fsHeaderLen   = 0x200

	// sectorLen is the XTS sector size used for header encryption.
	sectorLen = 0x200

	// mediaUnit is the allocation granularity of the section table.
	mediaUnit = 0x200

	maxSections = 4
)

// rawHeader is the 0x400-byte main header as stored on disk, after
// decryption.
type rawHeader struct {
	FixedKeySig    [0x100]byte
	NpdmSig        [0x100]byte
	Magic          [4]byte
	Distribution   uint8
	ContentType    uint8
	KeyGeneration1 uint8
	KeyAreaIndex   uint8
	Size           uint64
	TitleID        uint64
	ContentIndex   uint32
	SDKVersion     uint32
	KeyGeneration2 uint8
	_              [0xF]byte
	RightsID       [0x10]byte
	Sections       [maxSections]rawSectionEntry
	FsHeaderHashes [maxSections][0x20]byte
	KeyArea        rawKeyArea
}

// rawSectionEntry locates one section in media units. End is exclusive.
type rawSectionEntry struct {
	Start   uint32
	End     uint32
	Enabled uint8
	_       [7]byte
}

type rawKeyArea struct {
	XTS   [0x20]byte
	CTR   [0x10]byte
	CTREx [0x10]byte
	CTRHw [0x10]byte
	_     [0xB0]byte
}

// Header is the parsed main header of a container.
type Header struct {
	Version      uint8
	Distribution DistributionType
	ContentType  ContentType
	KeyAreaIndex uint8
	Size         int64
	TitleID      hos.TitleID
	ContentIndex uint32
	SDKVersion   uint32
	RightsID     hos.RightsID

	keyGeneration  uint8
	sections       [maxSections]rawSectionEntry
	fsHeaderHashes [maxSections][0x20]byte
	keyArea        rawKeyArea
}

// KeyGeneration is the master key generation the container's keys are
// wrapped with.
func (h *Header) KeyGeneration() uint8 {
	return h.keyGeneration
}

// validMagic reports whether b looks like a decrypted container magic.
func validMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:3], []byte("NCA")) && b[3] >= '0' && b[3] <= '3'
}

func parseHeader(data []byte) (*Header, error) {
	if len(data) != mainHeaderLen {
		return nil, fmt.Errorf("main header is %d bytes, need %d: %w", len(data), mainHeaderLen, errdefs.ErrMalformedRecord)
	}
	var raw rawHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("decoding main header: %w", err)
	}
	if !validMagic(raw.Magic[:]) {
		return nil, fmt.Errorf("bad container magic %q: %w", raw.Magic[:], errdefs.ErrMalformedRecord)
	}
	if raw.Distribution > uint8(DistributionGameCard) {
		return nil, fmt.Errorf("unknown distribution type %d: %w", raw.Distribution, errdefs.ErrMalformedRecord)
	}
	if raw.ContentType > uint8(ContentPublicData) {
		return nil, fmt.Errorf("unknown content type %d: %w", raw.ContentType, errdefs.ErrMalformedRecord)
	}
	if raw.KeyAreaIndex > 2 {
		return nil, fmt.Errorf("unknown key area index %d: %w", raw.KeyAreaIndex, errdefs.ErrMalformedRecord)
	}

	h := &Header{
		Version:       raw.Magic[3] - '0',
		Distribution:  DistributionType(raw.Distribution),
		ContentType:   ContentType(raw.ContentType),
		KeyAreaIndex:  raw.KeyAreaIndex,
		Size:          int64(raw.Size),
		TitleID:       hos.TitleID(raw.TitleID),
		ContentIndex:  raw.ContentIndex,
		SDKVersion:    raw.SDKVersion,
		RightsID:      hos.RightsID(raw.RightsID),
		keyGeneration: max(raw.KeyGeneration1, raw.KeyGeneration2),

		sections:       raw.Sections,
		fsHeaderHashes: raw.FsHeaderHashes,
		keyArea:        raw.KeyArea,
	}
	if h.Size < 0 {
		return nil, fmt.Errorf("container size %#x overflows: %w", raw.Size, errdefs.ErrMalformedRecord)
	}
	return h, nil
}
