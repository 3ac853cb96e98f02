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

package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/hacfs/hacfs/errdefs"
)

// XTS is the sector-tweaked AES cipher protecting container headers.
// The tweak is the sector number encoded as a big-endian 128-bit value,
// unlike standard XTS where it is little-endian; the per-block tweak
// multiplication is the standard one.
type XTS struct {
	data  cipher.Block
	tweak cipher.Block
}

// NewXTS builds the cipher from a 32-byte key: the data key followed by
// the tweak key.
func NewXTS(key []byte) (*XTS, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("xts key of %d bytes: %w", len(key), errdefs.ErrInvalidKeyLength)
	}
	data, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, err
	}
	tweak, err := aes.NewCipher(key[16:])
	if err != nil {
		return nil, err
	}
	return &XTS{data: data, tweak: tweak}, nil
}

// DecryptSector decrypts buf in place as the numbered sector. len(buf)
// must be a positive multiple of 16.
func (x *XTS) DecryptSector(buf []byte, sector uint64) error {
	return x.process(buf, sector, x.data.Decrypt)
}

// EncryptSector encrypts buf in place as the numbered sector. len(buf)
// must be a positive multiple of 16.
func (x *XTS) EncryptSector(buf []byte, sector uint64) error {
	return x.process(buf, sector, x.data.Encrypt)
}

func (x *XTS) process(buf []byte, sector uint64, crypt func(dst, src []byte)) error {
	if len(buf) == 0 || len(buf)%16 != 0 {
		return fmt.Errorf("xts sector of %d bytes: %w", len(buf), errdefs.ErrOutOfBounds)
	}
	var t [16]byte
	binary.BigEndian.PutUint64(t[8:], sector)
	x.tweak.Encrypt(t[:], t[:])
	for off := 0; off < len(buf); off += 16 {
		b := buf[off : off+16]
		xor16(b, t[:])
		crypt(b, b)
		xor16(b, t[:])
		mulAlpha(&t)
	}
	return nil
}

func xor16(b, t []byte) {
	for i := 0; i < 16; i++ {
		b[i] ^= t[i]
	}
}

// mulAlpha multiplies the tweak by the primitive element of GF(2^128),
// treating it as a little-endian value.
func mulAlpha(t *[16]byte) {
	var carry byte
	for i := 0; i < 16; i++ {
		c := t[i] >> 7
		t[i] = t[i]<<1 | carry
		carry = c
	}
	if carry != 0 {
		t[0] ^= 0x87
	}
}
