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
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/hacfs/hacfs/core/storage/crypt"
)

// SectionSpec describes one section of a synthetic container. Exactly one
// payload field must be set: PFS for a partition image, RomFS for a tree
// image, or Raw for an unhashed blob.
type SectionSpec struct {
	PFS   []PFS0File
	RomFS map[string][]byte
	Raw   []byte

	// Encrypt ciphers the section with AES-CTR under the container key.
	Encrypt bool
	// Counter seeds the upper half of the CTR IV.
	Counter uint64

	// MarkPatch, MarkSparse and MarkCompressed flag the section's fs
	// header with the corresponding unsupported feature.
	MarkPatch      bool
	MarkSparse     bool
	MarkCompressed bool
}

// NCAParams configures BuildNCA. The zero value builds an encrypted
// key-area container of the application class.
type NCAParams struct {
	ContentType   byte
	TitleID       uint64
	KeyGeneration uint8
	KeyAreaIndex  byte
	// RightsID selects title-key crypto when nonzero; pair it with
	// WrappedTitleKey on the key set.
	RightsID [16]byte
	// Plaintext leaves headers and payloads unencrypted.
	Plaintext bool
	// PlaintextBody encrypts headers normally but stores payloads
	// decrypted, the way recompressed dumps do.
	PlaintextBody bool
	// Version is the container format digit; 0 means 3.
	Version byte
	// SizeDelta is added to the size field in the header, desyncing it
	// from the real file size.
	SizeDelta int64

	Sections []SectionSpec
}

// NCARange locates the parts of one built section by absolute file
// offset, so tests can corrupt chosen bytes.
type NCARange struct {
	Start, End int64
	// PayloadStart and PayloadLen bound the integrity data level, or the
	// whole payload when the section is unhashed.
	PayloadStart, PayloadLen int64
	// HashStart and HashLen bound the stored hash level; both are zero
	// for unhashed sections.
	HashStart, HashLen int64
}

// NCAImage is a built container plus its layout.
type NCAImage struct {
	Data     []byte
	Sections []NCARange
}

const (
	ncaMediaUnit  = 0x200
	ncaHeadersLen = 0xC00

	// payloadBlockSize is the integrity block width of built payloads.
	payloadBlockSize = 0x1000
	// treeHashBlockSize is the block width covering the hash level of
	// tree sections. One block holds hashes for 2 MiB of payload.
	treeHashBlockSize = 0x4000
)

// BuildNCA assembles a container image. It panics on specs it cannot
// express; builder limits are generous enough for test payloads.
func BuildNCA(p NCAParams) NCAImage {
	version := p.Version
	if version == 0 {
		version = 3
	}

	type builtSection struct {
		fsHeader []byte
		body     []byte
		start    int64
		rng      NCARange
	}

	var (
		sections []builtSection
		cur      = int64(0x4000)
	)
	for _, spec := range p.Sections {
		fsHeader, body, rng := buildSectionBody(spec)
		rng.Start = cur
		rng.End = cur + int64(len(body))
		rng.PayloadStart += cur
		if rng.HashLen != 0 {
			rng.HashStart += cur
		}
		if spec.Encrypt && !p.Plaintext && !p.PlaintextBody {
			key := SectionKey
			if p.RightsID != ([16]byte{}) {
				key = TitleKey
			}
			ctrCipher(key, spec.Counter, cur, body)
		}
		sections = append(sections, builtSection{fsHeader: fsHeader, body: body, start: cur, rng: rng})
		cur = rng.End
	}
	totalSize := cur

	hdr := make([]byte, 0x400)
	le := binary.LittleEndian
	copy(hdr[0x200:], "NCA")
	hdr[0x203] = '0' + version
	hdr[0x205] = p.ContentType
	if p.KeyGeneration <= 2 {
		hdr[0x206] = p.KeyGeneration
	} else {
		hdr[0x206] = 2
		hdr[0x220] = p.KeyGeneration
	}
	hdr[0x207] = p.KeyAreaIndex
	le.PutUint64(hdr[0x208:], uint64(totalSize+p.SizeDelta))
	le.PutUint64(hdr[0x210:], p.TitleID)
	copy(hdr[0x230:], p.RightsID[:])
	for i, s := range sections {
		e := hdr[0x240+i*0x10:]
		le.PutUint32(e, uint32(s.start/ncaMediaUnit))
		le.PutUint32(e[4:], uint32(s.rng.End/ncaMediaUnit))
		e[8] = 1
	}
	for i, s := range sections {
		sum := sha256.Sum256(s.fsHeader)
		copy(hdr[0x280+i*0x20:], sum[:])
	}
	if p.RightsID == ([16]byte{}) {
		kaek := keyAreaKey(p.KeyAreaIndex, p.KeyGeneration)
		wrapped := make([]byte, 16)
		if err := crypt.EncryptECB(wrapped, SectionKey[:], kaek[:]); err != nil {
			panic(err)
		}
		copy(hdr[0x320:], wrapped)
	}

	out := make([]byte, totalSize)
	copy(out, hdr)
	for i, s := range sections {
		copy(out[0x400+i*0x200:], s.fsHeader)
		copy(out[s.start:], s.body)
	}

	if !p.Plaintext {
		x, err := crypt.NewXTS(HeaderKey)
		if err != nil {
			panic(err)
		}
		encryptSectors := func(buf []byte, first uint64) {
			for i := 0; i < len(buf)/ncaMediaUnit; i++ {
				if err := x.EncryptSector(buf[i*ncaMediaUnit:(i+1)*ncaMediaUnit], first+uint64(i)); err != nil {
					panic(err)
				}
			}
		}
		if version == 3 {
			encryptSectors(out[:ncaHeadersLen], 0)
		} else {
			encryptSectors(out[:0x400], 0)
			for i := 0; i < 4; i++ {
				encryptSectors(out[0x400+i*0x200:0x400+(i+1)*0x200], 0)
			}
		}
	}

	ranges := make([]NCARange, len(sections))
	for i, s := range sections {
		ranges[i] = s.rng
	}
	return NCAImage{Data: out, Sections: ranges}
}

// buildSectionBody lays out one section: hash level first, payload after,
// padded to a media unit multiple. Offsets in the returned range are
// section-relative; BuildNCA rebases them.
func buildSectionBody(spec SectionSpec) (fsHeader, body []byte, rng NCARange) {
	fsHeader = make([]byte, 0x200)
	le := binary.LittleEndian
	le.PutUint16(fsHeader, 2)

	encType := byte(1)
	if spec.Encrypt {
		encType = 3
	}
	fsHeader[4] = encType
	le.PutUint64(fsHeader[0x140:], spec.Counter)
	if spec.MarkPatch {
		le.PutUint64(fsHeader[0x108:], 0x100)
	}
	if spec.MarkSparse {
		le.PutUint16(fsHeader[0x170:], 1)
	}
	if spec.MarkCompressed {
		le.PutUint64(fsHeader[0x178:], 0x10)
		le.PutUint64(fsHeader[0x180:], 0x10)
	}

	switch {
	case spec.Raw != nil:
		fsHeader[2] = 1 // pfs0
		fsHeader[3] = 1 // no hashing
		body = padTo(append([]byte(nil), spec.Raw...), alignUp(int64(len(spec.Raw)), ncaMediaUnit))
		rng.PayloadLen = int64(len(spec.Raw))
		return fsHeader, body, rng

	case spec.PFS != nil:
		data := BuildPFS0(spec.PFS...)
		hashes := HashBlocks(data, payloadBlockSize, false)
		dataOff := alignUp(int64(len(hashes)), 0x20)
		master := sha256.Sum256(hashes)

		fsHeader[2] = 1 // pfs0
		fsHeader[3] = 2 // flat sha256
		info := fsHeader[8:]
		copy(info, master[:])
		le.PutUint32(info[0x20:], payloadBlockSize)
		le.PutUint32(info[0x24:], 2)
		le.PutUint64(info[0x28:], 0)
		le.PutUint64(info[0x30:], uint64(len(hashes)))
		le.PutUint64(info[0x38:], uint64(dataOff))
		le.PutUint64(info[0x40:], uint64(len(data)))

		body = append(padTo(hashes, dataOff), data...)
		body = padTo(body, alignUp(int64(len(body)), ncaMediaUnit))
		rng.PayloadStart = dataOff
		rng.PayloadLen = int64(len(data))
		rng.HashLen = int64(len(hashes))
		return fsHeader, body, rng

	case spec.RomFS != nil:
		data := BuildRomFS(spec.RomFS)
		hashes := HashBlocks(data, payloadBlockSize, true)
		if len(hashes) > treeHashBlockSize {
			panic(fmt.Sprintf("hactest: tree payload of %d bytes too large for a single master block", len(data)))
		}
		dataOff := alignUp(int64(len(hashes)), 0x100)
		master := HashBlocks(hashes, treeHashBlockSize, true)

		fsHeader[2] = 0 // romfs
		fsHeader[3] = 3 // hierarchical
		info := fsHeader[8:]
		copy(info, "IVFC")
		le.PutUint32(info[0x4:], 0x20000)
		le.PutUint32(info[0x8:], 0x20)
		le.PutUint32(info[0xC:], 3)
		le.PutUint64(info[0x10:], 0)
		le.PutUint64(info[0x18:], uint64(len(hashes)))
		le.PutUint32(info[0x20:], 14) // log2(treeHashBlockSize)
		le.PutUint64(info[0x28:], uint64(dataOff))
		le.PutUint64(info[0x30:], uint64(len(data)))
		le.PutUint32(info[0x38:], 12) // log2(payloadBlockSize)
		copy(info[0xC0:], master[:0x20])

		body = append(padTo(hashes, dataOff), data...)
		body = padTo(body, alignUp(int64(len(body)), ncaMediaUnit))
		rng.PayloadStart = dataOff
		rng.PayloadLen = int64(len(data))
		rng.HashLen = int64(len(hashes))
		return fsHeader, body, rng
	}
	panic("hactest: section spec needs PFS, RomFS or Raw")
}

// ctrCipher applies the section stream cipher in place. start is the
// absolute file offset the body will live at.
func ctrCipher(key [16]byte, counter uint64, start int64, body []byte) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}
	var iv [16]byte
	binary.BigEndian.PutUint64(iv[:8], counter)
	binary.BigEndian.PutUint64(iv[8:], uint64(start)/16)
	cipher.NewCTR(block, iv[:]).XORKeyStream(body, body)
}

func keyAreaKey(index byte, generation uint8) [16]byte {
	rev := generation
	if rev > 0 {
		rev--
	}
	base := kaekApplication
	switch index {
	case 1:
		base = kaekOcean
	case 2:
		base = kaekSystem
	}
	return mixed(base, rev)
}

// WrappedTitleKey returns TitleKey wrapped for the given key generation,
// ready for registration against a rights ID.
func WrappedTitleKey(generation uint8) [16]byte {
	rev := generation
	if rev > 0 {
		rev--
	}
	kek := mixed(titleKek, rev)
	var out [16]byte
	if err := crypt.EncryptECB(out[:], TitleKey[:], kek[:]); err != nil {
		panic(err)
	}
	return out
}
