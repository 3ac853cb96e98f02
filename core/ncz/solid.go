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
	"fmt"
	"io"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/klauspost/compress/zstd"

	"github.com/hacfs/hacfs/core/storage"
)

const (
	// solidChunkSize is the granularity solid streams are cached at.
	solidChunkSize = 512 << 10
	// solidCacheEntries bounds the cached chunks per stream.
	solidCacheEntries = 128
)

// openSolid wraps the single zstd stream spanning [pos, end of file) as
// a chunked block source of bodySize decompressed bytes.
func openSolid(r storage.ReaderAt, pos, bodySize int64) (storage.BlockReaderAt, error) {
	comp, err := storage.Section(r, pos, r.Size()-pos)
	if err != nil {
		return nil, fmt.Errorf("compressed stream: %w", err)
	}
	return &solidBody{
		comp:  comp,
		size:  bodySize,
		cache: lru.New(solidCacheEntries),
	}, nil
}

// solidBody serves chunks of one sequential zstd stream. The decoder
// cannot seek, so the mutex serializes all stream access: forward jumps
// decode and discard, backward jumps restart the stream from the top.
type solidBody struct {
	comp storage.ReaderAt
	size int64

	mu    sync.Mutex
	dec   *zstd.Decoder
	next  int64 // chunk index the stream yields next
	cache *lru.Cache
}

func (s *solidBody) BlockSize() int {
	return solidChunkSize
}

func (s *solidBody) Size() int64 {
	return s.size
}

func (s *solidBody) ReadBlocksAt(p []byte, index int64) error {
	for len(p) > 0 {
		buf, err := s.chunk(index)
		if err != nil {
			return err
		}
		p = p[copy(p, buf):]
		index++
	}
	return nil
}

func (s *solidBody) chunk(index int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache.Get(index); ok {
		return v.([]byte), nil
	}

	if s.dec == nil || index < s.next {
		if err := s.restart(); err != nil {
			return nil, err
		}
	}
	for s.next < index {
		skip := storage.NthBlockSize(s.size, solidChunkSize, s.next)
		if _, err := io.CopyN(io.Discard, s.dec, int64(skip)); err != nil {
			return nil, fmt.Errorf("skipping chunk %d: %w", s.next, err)
		}
		s.next++
	}

	out := make([]byte, storage.NthBlockSize(s.size, solidChunkSize, index))
	if _, err := io.ReadFull(s.dec, out); err != nil {
		return nil, fmt.Errorf("chunk %d: %w", index, err)
	}
	s.next = index + 1
	s.cache.Add(index, out)
	return out, nil
}

func (s *solidBody) restart() error {
	if s.dec == nil {
		dec, err := zstd.NewReader(storage.NewReader(s.comp), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return err
		}
		s.dec = dec
	} else if err := s.dec.Reset(storage.NewReader(s.comp)); err != nil {
		return err
	}
	s.next = 0
	return nil
}
