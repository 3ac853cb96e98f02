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

// Package integrity layers hash-tree verification over a byte source.
//
// A tree is a stack of levels inside one source: each level's bytes are
// covered, block by block, by SHA-256 hashes stored in the level above
// it, and the top level is covered by a trust anchor the caller supplies
// out of band. Reading any range of the bottom level verifies every
// block it touches against hashes that were themselves read through the
// verified level above, so no byte is ever served unchecked.
//
// Verification happens on every read. There is no state that marks a
// block as already checked, so a source that mutates between reads is
// caught the next time it is read.
package integrity

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/errdefs"
)

// HashSize is the width of one stored block hash.
const HashSize = sha256.Size

// Level locates one level of a hash tree within the shared source and
// gives the block width its hashes cover. Levels are ordered top down:
// the first is verified against the trust anchor, each later one against
// its predecessor, and the last holds the payload.
type Level struct {
	Offset    int64
	Size      int64
	BlockSize int
}

// BlockError reports a block whose content did not match its stored
// hash.
type BlockError struct {
	// Level is the index of the failing level, 0 being the level under
	// the trust anchor.
	Level int
	// Index is the block index within that level.
	Index int64
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("level %d block %d: %v", e.Level, e.Index, errdefs.ErrIntegrityViolation)
}

func (e *BlockError) Unwrap() error {
	return errdefs.ErrIntegrityViolation
}

// NewTree builds the verified view of the payload level.
//
// base is the source holding all levels; root is the trust anchor hash
// material covering the first level. When pad is set a trailing partial
// block is zero-extended to the full block size before hashing, which is
// how tree-backed filesystem images store their final block; flat
// partition images hash the bare tail instead.
//
// The returned reader serves the last level's bytes, verifying on every
// read. Nothing is read from base during construction.
func NewTree(base storage.ReaderAt, root []byte, levels []Level, pad bool) (storage.ReaderAt, error) {
	if len(root) == 0 || len(root)%HashSize != 0 {
		return nil, fmt.Errorf("trust anchor of %d bytes: %w", len(root), errdefs.ErrInvalidKeyLength)
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("hash tree without levels: %w", errdefs.ErrMalformedRecord)
	}
	hashes := storage.Bytes(bytes.Clone(root))
	var out storage.ReaderAt
	for i, l := range levels {
		data, err := storage.Section(base, l.Offset, l.Size)
		if err != nil {
			return nil, fmt.Errorf("level %d at [%d, +%d): %w", i, l.Offset, l.Size, err)
		}
		blocks, err := storage.NewBlocked(data, l.BlockSize)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		if need := storage.BlockCount(l.Size, l.BlockSize) * HashSize; need > hashes.Size() {
			return nil, fmt.Errorf("level %d needs %d hash bytes, previous level holds %d: %w",
				i, need, hashes.Size(), errdefs.ErrMalformedRecord)
		}
		v := &verifier{
			inner:  blocks,
			hashes: hashes,
			level:  i,
		}
		if pad {
			v.zero = make([]byte, l.BlockSize)
		}
		out = storage.NewAligned(v)
		hashes = out
	}
	return out, nil
}

// verifier checks each block of inner against the hashes exposed by the
// level above before the bytes are released. On failure the read errors
// and the destination buffer holds no usable data.
type verifier struct {
	inner  storage.BlockReaderAt
	hashes storage.ReaderAt
	level  int
	// zero pads a trailing partial block up to the block size before
	// hashing; nil when the tail is hashed bare.
	zero []byte
}

func (v *verifier) BlockSize() int {
	return v.inner.BlockSize()
}

func (v *verifier) Size() int64 {
	return v.inner.Size()
}

func (v *verifier) ReadBlocksAt(p []byte, index int64) error {
	if err := v.inner.ReadBlocksAt(p, index); err != nil {
		return err
	}
	bs := v.inner.BlockSize()
	count := (len(p) + bs - 1) / bs

	expected := make([]byte, count*HashSize)
	if _, err := v.hashes.ReadAt(expected, index*HashSize); err != nil {
		return fmt.Errorf("level %d hashes for blocks [%d, +%d): %w", v.level, index, count, err)
	}

	h := sha256.New()
	for i := 0; i < count; i++ {
		start := i * bs
		end := start + bs
		if end > len(p) {
			end = len(p)
		}
		h.Reset()
		h.Write(p[start:end])
		if v.zero != nil && end-start < bs {
			h.Write(v.zero[:bs-(end-start)])
		}
		if !bytes.Equal(h.Sum(nil), expected[i*HashSize:(i+1)*HashSize]) {
			return &BlockError{Level: v.level, Index: index + int64(i)}
		}
	}
	return nil
}
