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

// Package pfs0 parses flat partition images: a header, a file entry
// table, a name table and a packed data region. Applications ship as
// such images, and container sections of the partition flavor carry
// them as payload.
package pfs0

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/containerd/log"

	"github.com/hacfs/hacfs/core/fs"
	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/errdefs"
)

// Magic identifies a flat partition image.
const Magic = "PFS0"

const (
	headerSize = 0x10
	entrySize  = 0x18
)

// FileEntry is one member of the partition.
type FileEntry struct {
	Name string
	// Offset is the absolute byte offset of the file within the image.
	Offset int64
	Size   int64
}

// FS is a parsed partition image. It is flat: the root directory holds
// every file and there are no subdirectories.
type FS struct {
	r       storage.ReaderAt
	entries []FileEntry
	byName  map[string]int
}

// Parse reads and validates the partition structure of r. File contents
// are not touched; they are read on demand through the opened files.
func Parse(ctx context.Context, r storage.ReaderAt) (*FS, error) {
	hdr, err := storage.ReadRange(r, 0, headerSize)
	if err != nil {
		return nil, fmt.Errorf("partition header: %w", tableErr(err))
	}
	if string(hdr[:4]) != Magic {
		return nil, fmt.Errorf("bad partition magic %q: %w", hdr[:4], errdefs.ErrMalformedPartitionTable)
	}
	le := binary.LittleEndian
	count := int64(le.Uint32(hdr[0x4:]))
	nameTableSize := int64(le.Uint32(hdr[0x8:]))

	dataBase := headerSize + count*entrySize + nameTableSize
	if dataBase > r.Size() {
		return nil, fmt.Errorf("partition tables of %d bytes exceed image of %d: %w",
			dataBase, r.Size(), errdefs.ErrMalformedPartitionTable)
	}

	raw, err := storage.ReadRange(r, headerSize, int(count*entrySize+nameTableSize))
	if err != nil {
		return nil, fmt.Errorf("partition tables: %w", tableErr(err))
	}
	names := raw[count*entrySize:]

	p := &FS{
		r:       r,
		entries: make([]FileEntry, 0, count),
		byName:  make(map[string]int, count),
	}
	dataSize := r.Size() - dataBase
	for i := int64(0); i < count; i++ {
		e := raw[i*entrySize:]
		var (
			off     = le.Uint64(e[0x0:])
			size    = le.Uint64(e[0x8:])
			nameOff = int64(le.Uint32(e[0x10:]))
		)
		if off > math.MaxInt64 || size > math.MaxInt64 || off+size < off || int64(off+size) > dataSize {
			return nil, fmt.Errorf("entry %d spans [%d, +%d) outside the data region of %d bytes: %w",
				i, off, size, dataSize, errdefs.ErrMalformedPartitionTable)
		}
		if nameOff >= int64(len(names)) {
			return nil, fmt.Errorf("entry %d name offset %d outside table: %w", i, nameOff, errdefs.ErrMalformedPartitionTable)
		}
		end := bytes.IndexByte(names[nameOff:], 0)
		if end < 0 {
			return nil, fmt.Errorf("entry %d name unterminated: %w", i, errdefs.ErrMalformedPartitionTable)
		}
		name := string(names[nameOff : nameOff+int64(end)])
		if name == "" {
			return nil, fmt.Errorf("entry %d has an empty name: %w", i, errdefs.ErrMalformedPartitionTable)
		}
		if _, ok := p.byName[name]; ok {
			return nil, fmt.Errorf("duplicate entry %q: %w", name, errdefs.ErrMalformedPartitionTable)
		}
		p.byName[name] = len(p.entries)
		p.entries = append(p.entries, FileEntry{
			Name:   name,
			Offset: dataBase + int64(off),
			Size:   int64(size),
		})
	}
	log.G(ctx).WithField("files", len(p.entries)).Debug("parsed partition image")
	return p, nil
}

// Files lists the partition members in image order.
func (p *FS) Files() []FileEntry {
	return p.entries
}

// Root returns the single directory of the partition.
func (p *FS) Root() fs.Directory {
	return p
}

// Entries implements fs.Directory.
func (p *FS) Entries() ([]fs.Entry, error) {
	out := make([]fs.Entry, len(p.entries))
	for i, e := range p.entries {
		out[i] = fs.Entry{Name: e.Name, Size: e.Size}
	}
	return out, nil
}

// Open opens a file by name.
func (p *FS) Open(name string) (fs.File, error) {
	i, ok := p.byName[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
	}
	return storage.Section(p.r, p.entries[i].Offset, p.entries[i].Size)
}

// OpenDir implements fs.Directory; partitions have no subdirectories.
func (p *FS) OpenDir(name string) (fs.Directory, error) {
	return nil, fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
}

// tableErr maps short reads to table corruption. Verification failures
// and other source errors pass through so callers see the real cause.
func tableErr(err error) error {
	if errdefs.IsOutOfBounds(err) {
		return errdefs.ErrMalformedPartitionTable
	}
	return err
}
