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
	"math"

	"github.com/hacfs/hacfs/core/storage/integrity"
	"github.com/hacfs/hacfs/errdefs"
)

const fsHeaderVersion = 2

type rawFsHeader struct {
	Version         uint16
	FormatType      uint8
	HashType        uint8
	EncryptionType  uint8
	_               [3]byte
	IntegrityInfo   [0xF8]byte
	PatchInfo       rawPatchInfo
	UpperCounter    uint64
	SparseInfo      rawSparseInfo
	CompressionInfo rawCompressionInfo
	_               [0x60]byte
}

type rawPatchInfo struct {
	RelocationOffset uint64
	RelocationSize   uint64
	RelocationHeader [0x10]byte
	EncryptionOffset uint64
	EncryptionSize   uint64
	EncryptionHeader [0x10]byte
}

type rawSparseInfo struct {
	MetaOffset     uint64
	MetaSize       uint64
	MetaHeader     [0x10]byte
	PhysicalOffset uint64
	Generation     uint16
	_              [6]byte
}

type rawCompressionInfo struct {
	TableOffset uint64
	TableSize   uint64
	TableHeader [0x10]byte
	_           uint64
}

type rawSha256Info struct {
	MasterHash [0x20]byte
	BlockSize  uint32
	LevelCount uint32
	Levels     [6]rawRegion
}

type rawRegion struct {
	Offset uint64
	Size   uint64
}

type rawIvfcInfo struct {
	Magic          [4]byte
	Version        uint32
	MasterHashSize uint32
	LevelCount     uint32
	Levels         [6]rawIvfcLevel
	SaltSource     [0x20]byte
	MasterHash     [0x38]byte
}

type rawIvfcLevel struct {
	Offset        uint64
	Size          uint64
	BlockSizeLog2 uint32
	_             uint32
}

// FsHeader describes one section's payload: its filesystem format, cipher
// scheme, and integrity tree layout.
type FsHeader struct {
	Version      uint16
	Format       FormatType
	Hash         HashType
	Encryption   EncryptionType
	UpperCounter uint64

	// IsPatch is set when the section carries a relocation patch overlay
	// instead of a complete filesystem.
	IsPatch bool
	// IsSparse is set when parts of the payload are absent from the file.
	IsSparse bool
	// IsCompressed is set when the payload is wrapped in a compression
	// table.
	IsCompressed bool

	masterHash []byte
	levels     []integrity.Level
	padTail    bool
}

// Levels returns the integrity tree layout, top level first. It is empty
// when the section carries no hash data.
func (h *FsHeader) Levels() []integrity.Level {
	return h.levels
}

func parseFsHeader(data []byte) (*FsHeader, error) {
	if len(data) != fsHeaderLen {
		return nil, fmt.Errorf("fs header is %d bytes, need %d: %w", len(data), fsHeaderLen, errdefs.ErrMalformedRecord)
	}
	var raw rawFsHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("decoding fs header: %w", err)
	}
	if raw.Version != fsHeaderVersion {
		return nil, fmt.Errorf("fs header version %d, need %d: %w", raw.Version, fsHeaderVersion, errdefs.ErrMalformedRecord)
	}
	if raw.FormatType > uint8(FormatPFS0) {
		return nil, fmt.Errorf("unknown section format %d: %w", raw.FormatType, errdefs.ErrMalformedRecord)
	}
	if raw.HashType > uint8(HashIvfc) {
		return nil, fmt.Errorf("unknown hash type %d: %w", raw.HashType, errdefs.ErrMalformedRecord)
	}
	if raw.EncryptionType > uint8(EncryptionCTREx) {
		return nil, fmt.Errorf("unknown encryption type %d: %w", raw.EncryptionType, errdefs.ErrMalformedRecord)
	}

	h := &FsHeader{
		Version:      raw.Version,
		Format:       FormatType(raw.FormatType),
		Hash:         HashType(raw.HashType),
		Encryption:   EncryptionType(raw.EncryptionType),
		UpperCounter: raw.UpperCounter,

		IsPatch:      raw.PatchInfo.RelocationSize != 0,
		IsSparse:     raw.SparseInfo.Generation != 0,
		IsCompressed: raw.CompressionInfo.TableOffset != 0 && raw.CompressionInfo.TableSize != 0,
	}

	switch h.Hash {
	case HashNone:
	case HashSha256:
		if err := h.parseSha256Info(raw.IntegrityInfo[:]); err != nil {
			return nil, err
		}
	case HashIvfc:
		if err := h.parseIvfcInfo(raw.IntegrityInfo[:]); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("hash type %s: %w", h.Hash, errdefs.ErrNotImplemented)
	}
	return h, nil
}

func (h *FsHeader) parseSha256Info(data []byte) error {
	var raw rawSha256Info
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &raw); err != nil {
		return fmt.Errorf("decoding sha256 integrity info: %w", err)
	}
	if raw.LevelCount != 2 {
		return fmt.Errorf("sha256 integrity info has %d levels, need 2: %w", raw.LevelCount, errdefs.ErrMalformedRecord)
	}
	if raw.BlockSize == 0 {
		return fmt.Errorf("sha256 integrity info has zero block size: %w", errdefs.ErrMalformedRecord)
	}
	hashes, payload := raw.Levels[0], raw.Levels[1]
	if hashes.Size == 0 || hashes.Size > math.MaxInt32 {
		return fmt.Errorf("sha256 hash region size %#x out of range: %w", hashes.Size, errdefs.ErrMalformedRecord)
	}
	h.masterHash = bytes.Clone(raw.MasterHash[:])
	// The hash region is verified as a single block against the master
	// hash; the payload is verified in BlockSize blocks against it. The
	// final partial block of each is hashed at its true length.
	h.levels = []integrity.Level{
		{Offset: int64(hashes.Offset), Size: int64(hashes.Size), BlockSize: int(hashes.Size)},
		{Offset: int64(payload.Offset), Size: int64(payload.Size), BlockSize: int(raw.BlockSize)},
	}
	h.padTail = false
	return h.checkLevels()
}

func (h *FsHeader) parseIvfcInfo(data []byte) error {
	var raw rawIvfcInfo
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &raw); err != nil {
		return fmt.Errorf("decoding ivfc integrity info: %w", err)
	}
	if !bytes.Equal(raw.Magic[:], []byte("IVFC")) {
		return fmt.Errorf("bad ivfc magic %q: %w", raw.Magic[:], errdefs.ErrMalformedRecord)
	}
	if raw.MasterHashSize != integrity.HashSize {
		return fmt.Errorf("ivfc master hash size %d, need %d: %w", raw.MasterHashSize, integrity.HashSize, errdefs.ErrMalformedRecord)
	}
	// The level table includes a top entry covered directly by the master
	// hash, so a table of n entries yields n-1 stored levels.
	if raw.LevelCount < 2 || raw.LevelCount > 7 {
		return fmt.Errorf("ivfc level count %d out of range: %w", raw.LevelCount, errdefs.ErrMalformedRecord)
	}
	used := int(raw.LevelCount) - 1
	h.masterHash = bytes.Clone(raw.MasterHash[:integrity.HashSize])
	h.levels = make([]integrity.Level, 0, used)
	for _, l := range raw.Levels[:used] {
		if l.BlockSizeLog2 < 1 || l.BlockSizeLog2 > 31 {
			return fmt.Errorf("ivfc level block size log2 %d out of range: %w", l.BlockSizeLog2, errdefs.ErrMalformedRecord)
		}
		h.levels = append(h.levels, integrity.Level{
			Offset:    int64(l.Offset),
			Size:      int64(l.Size),
			BlockSize: 1 << l.BlockSizeLog2,
		})
	}
	h.padTail = true
	return h.checkLevels()
}

func (h *FsHeader) checkLevels() error {
	for i, l := range h.levels {
		if l.Offset < 0 || l.Size < 0 {
			return fmt.Errorf("integrity level %d region overflows: %w", i, errdefs.ErrMalformedRecord)
		}
	}
	return nil
}
