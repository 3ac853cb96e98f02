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
	"fmt"

	"github.com/hacfs/hacfs/errdefs"
)

// DecryptECB decrypts src into dst block by block with AES-128. The key
// tables wrap section keys and title keys this way, one independent
// cipher block per 16 bytes.
func DecryptECB(dst, src, key []byte) error {
	b, err := newECB(dst, src, key)
	if err != nil {
		return err
	}
	for off := 0; off < len(src); off += 16 {
		b.Decrypt(dst[off:off+16], src[off:off+16])
	}
	return nil
}

// EncryptECB encrypts src into dst block by block with AES-128.
func EncryptECB(dst, src, key []byte) error {
	b, err := newECB(dst, src, key)
	if err != nil {
		return err
	}
	for off := 0; off < len(src); off += 16 {
		b.Encrypt(dst[off:off+16], src[off:off+16])
	}
	return nil
}

func newECB(dst, src, key []byte) (cipher.Block, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("ecb key of %d bytes: %w", len(key), errdefs.ErrInvalidKeyLength)
	}
	if len(src)%16 != 0 || len(dst) < len(src) {
		return nil, fmt.Errorf("ecb input of %d bytes into %d: %w", len(src), len(dst), errdefs.ErrOutOfBounds)
	}
	return aes.NewCipher(key)
}
