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

// Package ncz reads zstd-recompressed containers. Such files keep the
// first 0x4000 bytes of the original container verbatim and replace the
// rest with the decrypted body, compressed either as one solid stream or
// as independently compressed fixed-size blocks.
//
// Open presents the decompressed body at its original offsets so the
// result can stand in for the container file. The verbatim header region
// is not part of the body; reads below 0x4000 fail and callers keep
// using the compressed file for headers.
package ncz

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/containerd/log"

	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/errdefs"
)

const (
	// HeadersRegion is the verbatim prefix preserved from the original
	// container file.
	HeadersRegion = 0x4000

	sectionMagic = "NCZSECTN"
	blockMagic   = "NCZBLOCK"

	sectionHeaderLen = 0x40
	maxSectionCount  = 0x100

	blockExponentMin = 14
	blockExponentMax = 32
)

// Probe reports whether r holds a compressed container body.
func Probe(r storage.ReaderAt) bool {
	var magic [8]byte
	if _, err := r.ReadAt(magic[:], HeadersRegion); err != nil {
		return false
	}
	return string(magic[:]) == sectionMagic
}

// Open parses the compression metadata of r and returns a view of the
// decompressed body at its original offsets. Decompression happens on
// demand, chunk by chunk, behind a small cache.
func Open(ctx context.Context, r storage.ReaderAt) (storage.ReaderAt, error) {
	hdr, err := storage.ReadRange(r, HeadersRegion, 16)
	if err != nil {
		return nil, fmt.Errorf("section table header: %w", err)
	}
	if string(hdr[:8]) != sectionMagic {
		return nil, fmt.Errorf("bad section table magic %q: %w", hdr[:8], errdefs.ErrMalformedRecord)
	}
	count := binary.LittleEndian.Uint64(hdr[8:])
	if count == 0 || count > maxSectionCount {
		return nil, fmt.Errorf("section count %d out of range: %w", count, errdefs.ErrMalformedRecord)
	}

	raw, err := storage.ReadRange(r, HeadersRegion+16, int(count)*sectionHeaderLen)
	if err != nil {
		return nil, fmt.Errorf("section table: %w", err)
	}
	var bodySize int64
	for i := uint64(0); i < count; i++ {
		size := binary.LittleEndian.Uint64(raw[i*sectionHeaderLen+8:])
		if size > uint64(1)<<62 || bodySize+int64(size) < bodySize {
			return nil, fmt.Errorf("section %d size %#x overflows: %w", i, size, errdefs.ErrMalformedRecord)
		}
		bodySize += int64(size)
	}
	if bodySize == 0 {
		return nil, fmt.Errorf("sections describe an empty body: %w", errdefs.ErrMalformedRecord)
	}
	pos := HeadersRegion + 16 + int64(count)*sectionHeaderLen

	var (
		inner storage.BlockReaderAt
		mode  string
	)
	var peek [8]byte
	if _, err := r.ReadAt(peek[:], pos); err == nil && string(peek[:]) == blockMagic {
		inner, err = openBlocks(r, pos, bodySize)
		if err != nil {
			return nil, err
		}
		mode = "block"
	} else {
		inner, err = openSolid(r, pos, bodySize)
		if err != nil {
			return nil, err
		}
		mode = "solid"
	}

	log.G(ctx).WithFields(log.Fields{
		"mode": mode,
		"body": bodySize,
	}).Debug("opened compressed container body")
	return &reader{
		body: storage.NewAligned(inner),
		size: HeadersRegion + bodySize,
	}, nil
}

// reader rebases the decompressed body to its original file offsets. The
// verbatim header region below HeadersRegion stays unreadable here.
type reader struct {
	body storage.ReaderAt
	size int64
}

func (r *reader) Size() int64 {
	return r.size
}

func (r *reader) ReadAt(p []byte, off int64) (int, error) {
	if err := storage.CheckRange(r.size, off, len(p)); err != nil {
		return 0, err
	}
	if off < HeadersRegion {
		return 0, fmt.Errorf("offset %#x is inside the verbatim header region: %w", off, errdefs.ErrOutOfBounds)
	}
	return r.body.ReadAt(p, off-HeadersRegion)
}
