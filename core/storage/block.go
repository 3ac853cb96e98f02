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

package storage

import (
	"fmt"

	"github.com/hacfs/hacfs/errdefs"
)

type blocked struct {
	r  ReaderAt
	bs int
}

// NewBlocked exposes r as fixed-size blocks of blockSize bytes. The
// final block is partial when r's size is not a multiple of blockSize.
func NewBlocked(r ReaderAt, blockSize int) (BlockReaderAt, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size %d: %w", blockSize, errdefs.ErrOutOfBounds)
	}
	return &blocked{r: r, bs: blockSize}, nil
}

func (b *blocked) BlockSize() int {
	return b.bs
}

func (b *blocked) Size() int64 {
	return b.r.Size()
}

func (b *blocked) ReadBlocksAt(p []byte, index int64) error {
	if err := checkBlockRange(b.Size(), b.bs, p, index); err != nil {
		return err
	}
	_, err := b.r.ReadAt(p, index*int64(b.bs))
	return err
}

// checkBlockRange validates a block read: index in range, p starting on
// the block boundary and spanning whole blocks, except that the range
// may end exactly at size with a partial final block.
func checkBlockRange(size int64, bs int, p []byte, index int64) error {
	if index < 0 || len(p) == 0 {
		return fmt.Errorf("block read [%d, +%d bytes): %w", index, len(p), errdefs.ErrOutOfBounds)
	}
	off := index * int64(bs)
	if err := CheckRange(size, off, len(p)); err != nil {
		return err
	}
	if len(p)%bs != 0 && off+int64(len(p)) != size {
		return fmt.Errorf("block read [%d, +%d bytes) not block aligned: %w", index, len(p), errdefs.ErrOutOfBounds)
	}
	return nil
}

type aligned struct {
	b BlockReaderAt
}

// NewAligned exposes a block source as a byte-addressed ReaderAt. A read
// buffers at most one partial block at each end of the range; aligned
// spans are read directly into the caller's buffer.
func NewAligned(b BlockReaderAt) ReaderAt {
	return &aligned{b: b}
}

func (a *aligned) Size() int64 {
	return a.b.Size()
}

func (a *aligned) ReadAt(p []byte, off int64) (int, error) {
	if err := CheckRange(a.Size(), off, len(p)); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	var (
		bs    = int64(a.b.BlockSize())
		first = off / bs
		rem   = int(off - first*bs)
		n     = 0
	)
	if rem != 0 {
		// Head block straddles off.
		buf := make([]byte, NthBlockSize(a.Size(), a.b.BlockSize(), first))
		if err := a.b.ReadBlocksAt(buf, first); err != nil {
			return 0, err
		}
		n = copy(p, buf[rem:])
		first++
	}
	if n == len(p) {
		return n, nil
	}
	// Whole blocks land directly in p.
	last := first + int64(len(p)-n)/bs
	if whole := int(last-first) * int(bs); whole > 0 {
		if err := a.b.ReadBlocksAt(p[n:n+whole], first); err != nil {
			return 0, err
		}
		n += whole
	}
	if n == len(p) {
		return n, nil
	}
	// Tail partial block.
	buf := make([]byte, NthBlockSize(a.Size(), a.b.BlockSize(), last))
	if err := a.b.ReadBlocksAt(buf, last); err != nil {
		return 0, err
	}
	n += copy(p[n:], buf)
	return n, nil
}
