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

package ncz

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/klauspost/compress/zstd"

	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/errdefs"
)

// blockCacheEntries bounds the decompressed blocks held in memory.
const blockCacheEntries = 64

// openBlocks parses the random-access block table starting at pos and
// returns the decompressed body as a block source.
func openBlocks(r storage.ReaderAt, pos, bodySize int64) (storage.BlockReaderAt, error) {
	hdr, err := storage.ReadRange(r, pos, 24)
	if err != nil {
		return nil, fmt.Errorf("block table header: %w", err)
	}
	le := binary.LittleEndian
	if version := hdr[8]; version != 2 {
		return nil, fmt.Errorf("block table version %d, need 2: %w", version, errdefs.ErrMalformedRecord)
	}
	exponent := hdr[11]
	if exponent < blockExponentMin || exponent > blockExponentMax {
		return nil, fmt.Errorf("block size exponent %d outside [%d, %d]: %w",
			exponent, blockExponentMin, blockExponentMax, errdefs.ErrMalformedRecord)
	}
	count := le.Uint32(hdr[12:])
	if count == 0 {
		return nil, fmt.Errorf("block table without blocks: %w", errdefs.ErrMalformedRecord)
	}
	if total := int64(le.Uint64(hdr[16:])); total != bodySize {
		return nil, fmt.Errorf("block table declares %d decompressed bytes, sections declare %d: %w",
			total, bodySize, errdefs.ErrMalformedRecord)
	}

	sizes, err := storage.ReadRange(r, pos+24, int(count)*4)
	if err != nil {
		return nil, fmt.Errorf("block size table: %w", err)
	}

	var (
		bs     = int64(1) << exponent
		cursor = pos + 24 + int64(count)*4
		left   = bodySize
		blocks = make([]blockInfo, 0, count)
	)
	for i := uint32(0); i < count; i++ {
		comp := int64(le.Uint32(sizes[i*4:]))
		dec := bs
		if left < dec {
			dec = left
		}
		if dec == 0 {
			return nil, fmt.Errorf("block %d extends past the declared body: %w", i, errdefs.ErrMalformedRecord)
		}
		blocks = append(blocks, blockInfo{off: cursor, comp: comp, dec: int(dec)})
		cursor += comp
		left -= dec
	}
	if left != 0 {
		return nil, fmt.Errorf("blocks cover %d bytes less than the declared body: %w", left, errdefs.ErrMalformedRecord)
	}
	if cursor != r.Size() {
		return nil, fmt.Errorf("compressed blocks end at %#x but the file has %#x bytes: %w",
			cursor, r.Size(), errdefs.ErrMalformedRecord)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &blockBody{
		src:    r,
		blocks: blocks,
		bs:     bs,
		size:   bodySize,
		dec:    dec,
		cache:  lru.New(blockCacheEntries),
	}, nil
}

type blockInfo struct {
	off  int64
	comp int64
	dec  int
}

// blockBody decompresses fixed-size blocks on demand. The mutex guards
// the cache; frame decoding itself is stateless.
type blockBody struct {
	src    storage.ReaderAt
	blocks []blockInfo
	bs     int64
	size   int64
	dec    *zstd.Decoder

	mu    sync.Mutex
	cache *lru.Cache
}

func (b *blockBody) BlockSize() int {
	return int(b.bs)
}

func (b *blockBody) Size() int64 {
	return b.size
}

func (b *blockBody) ReadBlocksAt(p []byte, index int64) error {
	for len(p) > 0 {
		buf, err := b.block(index)
		if err != nil {
			return err
		}
		p = p[copy(p, buf):]
		index++
	}
	return nil
}

func (b *blockBody) block(index int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.cache.Get(index); ok {
		return v.([]byte), nil
	}

	info := b.blocks[index]
	comp, err := storage.ReadRange(b.src, info.off, int(info.comp))
	if err != nil {
		return nil, fmt.Errorf("block %d compressed bytes: %w", index, err)
	}
	var out []byte
	if int(info.comp) == info.dec {
		// Incompressible blocks are stored as-is.
		out = comp
	} else {
		out, err = b.dec.DecodeAll(comp, nil)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", index, err)
		}
		if len(out) != info.dec {
			return nil, fmt.Errorf("block %d decompressed to %d bytes, want %d: %w",
				index, len(out), info.dec, errdefs.ErrMalformedRecord)
		}
	}
	b.cache.Add(index, out)
	return out, nil
}
