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

// Package crypt implements the cipher layers and primitives used by the
// container formats: AES-CTR over block sources, the sector-tweaked XTS
// variant protecting container headers, and raw ECB for unwrapping key
// material.
//
// All keys are AES-128 except the XTS pair, which is two AES-128 keys
// back to back. Constructors validate key widths up front and fail with
// errdefs.ErrInvalidKeyLength.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/errdefs"
)

// CTRBlockSize is the AES-CTR cipher block width. Counter positions
// advance one step per CTRBlockSize bytes.
const CTRBlockSize = 16

type ctrReader struct {
	inner storage.BlockReaderAt
	block cipher.Block
	iv    [16]byte
}

// NewCTR layers AES-CTR decryption over a block source. The iv is the
// counter value of the first byte of inner; the counter for any block is
// derived from the block's absolute position, so reads are stateless and
// may happen in any order. The inner block size must be a multiple of
// CTRBlockSize.
func NewCTR(inner storage.BlockReaderAt, key []byte, iv [16]byte) (storage.BlockReaderAt, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("ctr key of %d bytes: %w", len(key), errdefs.ErrInvalidKeyLength)
	}
	if bs := inner.BlockSize(); bs%CTRBlockSize != 0 {
		return nil, fmt.Errorf("ctr over %d byte blocks: %w", bs, errdefs.ErrOutOfBounds)
	}
	b, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &ctrReader{inner: inner, block: b, iv: iv}, nil
}

func (c *ctrReader) BlockSize() int {
	return c.inner.BlockSize()
}

func (c *ctrReader) Size() int64 {
	return c.inner.Size()
}

func (c *ctrReader) ReadBlocksAt(p []byte, index int64) error {
	if err := c.inner.ReadBlocksAt(p, index); err != nil {
		return err
	}
	iv := AddCounter(c.iv, uint64(index)*uint64(c.inner.BlockSize()/CTRBlockSize))
	cipher.NewCTR(c.block, iv[:]).XORKeyStream(p, p)
	return nil
}

// SectionIV assembles the counter value for an encrypted region: the
// per-section nonce in the upper half and the region's absolute byte
// offset, in cipher blocks, in the lower half. Both halves are
// big-endian.
func SectionIV(nonce uint64, offset int64) [16]byte {
	var iv [16]byte
	binary.BigEndian.PutUint64(iv[0:8], nonce)
	binary.BigEndian.PutUint64(iv[8:16], uint64(offset)/CTRBlockSize)
	return iv
}

// AddCounter advances a counter value by n cipher blocks, carrying
// through the full 128-bit big-endian value.
func AddCounter(iv [16]byte, n uint64) [16]byte {
	lo := binary.BigEndian.Uint64(iv[8:16])
	sum := lo + n
	binary.BigEndian.PutUint64(iv[8:16], sum)
	if sum < lo {
		binary.BigEndian.PutUint64(iv[0:8], binary.BigEndian.Uint64(iv[0:8])+1)
	}
	return iv
}
