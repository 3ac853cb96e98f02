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

// Package storage provides the random-access primitives the container and
// filesystem parsers are layered on.
//
// A ReaderAt is a finite byte source with strict range semantics: a read
// either fills the whole buffer or fails, and a range that is not fully
// inside the source fails with errdefs.ErrOutOfBounds before any bytes
// are produced. Decryption and integrity verification depend on this:
// a short read would silently misalign cipher counters and hash blocks.
//
// A BlockReaderAt serves the same bytes in fixed-size blocks. NewBlocked
// turns a ReaderAt into blocks and NewAligned turns blocks back into an
// arbitrary-range ReaderAt, buffering at most two partial blocks per
// call. Layers that are inherently block shaped, ciphers and hash trees,
// sit between the two adapters.
package storage

import (
	"fmt"
	"io"

	"github.com/hacfs/hacfs/errdefs"
)

// ReaderAt is a finite random-access byte source. Unlike a plain
// io.ReaderAt, implementations never return short reads: ReadAt fills p
// entirely or returns an error, and a range extending past Size fails
// with errdefs.ErrOutOfBounds.
type ReaderAt interface {
	io.ReaderAt
	Size() int64
}

// BlockReaderAt is a finite source addressed in fixed-size blocks. The
// final block may be shorter than BlockSize when Size is not a multiple
// of it.
type BlockReaderAt interface {
	// BlockSize returns the block width in bytes.
	BlockSize() int
	// Size returns the total byte length across all blocks.
	Size() int64
	// ReadBlocksAt fills p with the bytes starting at block index. The
	// range must begin on a block boundary and len(p) must be a multiple
	// of BlockSize unless the range ends exactly at Size.
	ReadBlocksAt(p []byte, index int64) error
}

// CheckRange validates that the half-open byte range [off, off+n) lies
// inside a source of the given size.
func CheckRange(size, off int64, n int) error {
	if off < 0 || n < 0 || int64(n) > size || off > size-int64(n) {
		return fmt.Errorf("read [%d, +%d) beyond size %d: %w", off, n, size, errdefs.ErrOutOfBounds)
	}
	return nil
}

// BlockCount returns the number of blocks covering size bytes, counting
// a trailing partial block.
func BlockCount(size int64, blockSize int) int64 {
	bs := int64(blockSize)
	return (size + bs - 1) / bs
}

// NthBlockSize returns the byte length of block index in a source of the
// given size, which is blockSize for every block but a trailing partial
// one.
func NthBlockSize(size int64, blockSize int, index int64) int {
	bs := int64(blockSize)
	if rem := size - index*bs; rem < bs {
		return int(rem)
	}
	return blockSize
}

// ReadRange reads the byte range [off, off+n) of r into a fresh buffer.
func ReadRange(r ReaderAt, off int64, n int) ([]byte, error) {
	p := make([]byte, n)
	if _, err := r.ReadAt(p, off); err != nil {
		return nil, err
	}
	return p, nil
}

// ReadAll reads the whole of r into memory. Callers use it for bounded
// metadata regions, not bulk content.
func ReadAll(r ReaderAt) ([]byte, error) {
	return ReadRange(r, 0, int(r.Size()))
}

// NewReader returns a sequential view of r with standard io.EOF
// semantics at the end of the source.
func NewReader(r ReaderAt) *io.SectionReader {
	return io.NewSectionReader(r, 0, r.Size())
}
