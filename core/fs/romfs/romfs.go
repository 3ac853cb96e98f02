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

// Package romfs parses directory-tree images. The image carries four
// metadata tables, a directory and a file table plus a hash table over
// each, followed by the packed file data. Entries reference each other
// by table offset; lookups go through the hash tables keyed on the
// parent directory and the entry name.
package romfs

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/containerd/log"

	"github.com/hacfs/hacfs/core/fs"
	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/errdefs"
)

const (
	headerSize = 0x50
	// none terminates sibling and hash chains.
	none = 0xFFFFFFFF

	dirEntrySize  = 0x18
	fileEntrySize = 0x20
)

// FS is a parsed directory-tree image. The metadata tables are held in
// memory; file contents are read on demand from the underlying source.
type FS struct {
	r        storage.ReaderAt
	dataOff  int64
	dirMeta  []byte
	fileMeta []byte
	dirHash  []byte
	fileHash []byte
}

// Parse reads and validates the table layout of r. Individual entries
// are validated as they are reached.
func Parse(ctx context.Context, r storage.ReaderAt) (*FS, error) {
	hdr, err := storage.ReadRange(r, 0, headerSize)
	if err != nil {
		return nil, fmt.Errorf("tree header: %w", treeErr(err))
	}
	le := binary.LittleEndian
	if s := le.Uint64(hdr[0x00:]); s != headerSize {
		return nil, fmt.Errorf("tree header of %d bytes: %w", s, errdefs.ErrMalformedFilesystemTree)
	}

	table := func(name string, offField, sizeField int) ([]byte, error) {
		off, size := le.Uint64(hdr[offField:]), le.Uint64(hdr[sizeField:])
		if off+size < off || off+size > uint64(r.Size()) {
			return nil, fmt.Errorf("%s table [%d, +%d) outside image of %d bytes: %w",
				name, off, size, r.Size(), errdefs.ErrMalformedFilesystemTree)
		}
		b, err := storage.ReadRange(r, int64(off), int(size))
		if err != nil {
			return nil, fmt.Errorf("%s table: %w", name, treeErr(err))
		}
		return b, nil
	}

	f := &FS{r: r}
	if f.dirHash, err = table("directory hash", 0x08, 0x10); err != nil {
		return nil, err
	}
	if f.dirMeta, err = table("directory", 0x18, 0x20); err != nil {
		return nil, err
	}
	if f.fileHash, err = table("file hash", 0x28, 0x30); err != nil {
		return nil, err
	}
	if f.fileMeta, err = table("file", 0x38, 0x40); err != nil {
		return nil, err
	}
	if len(f.dirHash)%4 != 0 || len(f.fileHash)%4 != 0 {
		return nil, fmt.Errorf("hash table size not a bucket multiple: %w", errdefs.ErrMalformedFilesystemTree)
	}

	dataOff := le.Uint64(hdr[0x48:])
	if dataOff > uint64(r.Size()) {
		return nil, fmt.Errorf("data region at %d outside image of %d bytes: %w",
			dataOff, r.Size(), errdefs.ErrMalformedFilesystemTree)
	}
	f.dataOff = int64(dataOff)

	// The root directory entry must exist at offset 0.
	if _, err := f.dirEntry(0); err != nil {
		return nil, err
	}
	log.G(ctx).WithFields(log.Fields{
		"dirmeta":  len(f.dirMeta),
		"filemeta": len(f.fileMeta),
	}).Debug("parsed tree image")
	return f, nil
}

// treeErr maps short reads to tree corruption. Verification failures
// and other source errors pass through so callers see the real cause.
func treeErr(err error) error {
	if errdefs.IsOutOfBounds(err) {
		return errdefs.ErrMalformedFilesystemTree
	}
	return err
}

type dirEntry struct {
	id        uint32
	parent    uint32
	sibling   uint32
	childDir  uint32
	childFile uint32
	hashNext  uint32
	name      string
}

type fileEntry struct {
	id       uint32
	parent   uint32
	sibling  uint32
	offset   uint64
	size     uint64
	hashNext uint32
	name     string
}

func (f *FS) dirEntry(id uint32) (dirEntry, error) {
	raw, name, err := entryAt(f.dirMeta, id, dirEntrySize, 0x14)
	if err != nil {
		return dirEntry{}, fmt.Errorf("directory entry %#x: %w", id, err)
	}
	le := binary.LittleEndian
	return dirEntry{
		id:        id,
		parent:    le.Uint32(raw[0x0:]),
		sibling:   le.Uint32(raw[0x4:]),
		childDir:  le.Uint32(raw[0x8:]),
		childFile: le.Uint32(raw[0xC:]),
		hashNext:  le.Uint32(raw[0x10:]),
		name:      name,
	}, nil
}

func (f *FS) fileEntry(id uint32) (fileEntry, error) {
	raw, name, err := entryAt(f.fileMeta, id, fileEntrySize, 0x1C)
	if err != nil {
		return fileEntry{}, fmt.Errorf("file entry %#x: %w", id, err)
	}
	le := binary.LittleEndian
	return fileEntry{
		id:       id,
		parent:   le.Uint32(raw[0x0:]),
		sibling:  le.Uint32(raw[0x4:]),
		offset:   le.Uint64(raw[0x8:]),
		size:     le.Uint64(raw[0x10:]),
		hashNext: le.Uint32(raw[0x18:]),
		name:     name,
	}, nil
}

// entryAt slices one table entry: the fixed part and the name trailing
// it, whose length sits at nameLenOff within the fixed part.
func entryAt(table []byte, id uint32, fixed, nameLenOff int) ([]byte, string, error) {
	end := int64(id) + int64(fixed)
	if end > int64(len(table)) {
		return nil, "", fmt.Errorf("offset outside %d byte table: %w", len(table), errdefs.ErrMalformedFilesystemTree)
	}
	raw := table[id:end]
	nameLen := int64(binary.LittleEndian.Uint32(raw[nameLenOff:]))
	if end+nameLen > int64(len(table)) {
		return nil, "", fmt.Errorf("name of %d bytes outside table: %w", nameLen, errdefs.ErrMalformedFilesystemTree)
	}
	return raw, string(table[end : end+nameLen]), nil
}

func (f *FS) findDir(parent uint32, name string) (dirEntry, bool, error) {
	id, steps := f.bucketHead(f.dirHash, parent, name), 0
	for id != none {
		if steps++; steps > len(f.dirMeta)/dirEntrySize+1 {
			return dirEntry{}, false, fmt.Errorf("directory hash chain cycle: %w", errdefs.ErrMalformedFilesystemTree)
		}
		e, err := f.dirEntry(id)
		if err != nil {
			return dirEntry{}, false, err
		}
		if e.parent == parent && e.name == name {
			return e, true, nil
		}
		id = e.hashNext
	}
	return dirEntry{}, false, nil
}

func (f *FS) findFile(parent uint32, name string) (fileEntry, bool, error) {
	id, steps := f.bucketHead(f.fileHash, parent, name), 0
	for id != none {
		if steps++; steps > len(f.fileMeta)/fileEntrySize+1 {
			return fileEntry{}, false, fmt.Errorf("file hash chain cycle: %w", errdefs.ErrMalformedFilesystemTree)
		}
		e, err := f.fileEntry(id)
		if err != nil {
			return fileEntry{}, false, err
		}
		if e.parent == parent && e.name == name {
			return e, true, nil
		}
		id = e.hashNext
	}
	return fileEntry{}, false, nil
}

func (f *FS) bucketHead(hashTable []byte, parent uint32, name string) uint32 {
	if len(hashTable) == 0 {
		return none
	}
	h := entryHash(parent, name) % uint32(len(hashTable)/4)
	return binary.LittleEndian.Uint32(hashTable[h*4:])
}

// entryHash is the bucket hash over the parent directory offset and the
// entry name.
func entryHash(parent uint32, name string) uint32 {
	h := uint32(123456789) ^ parent
	for i := 0; i < len(name); i++ {
		h = uint32(name[i]) ^ (h<<27 | h>>5)
	}
	return h
}

// Root returns the top directory.
func (f *FS) Root() fs.Directory {
	return &dir{f: f, id: 0}
}

// OpenPath resolves a whole path through the hash tables, one lookup
// per component.
func (f *FS) OpenPath(path string) (fs.File, error) {
	parts, err := fs.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("path %q names no file: %w", path, errdefs.ErrNotFound)
	}
	parent := uint32(0)
	for _, part := range parts[:len(parts)-1] {
		e, ok, err := f.findDir(parent, part)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: %s: %w", path, part, errdefs.ErrNotFound)
		}
		parent = e.id
	}
	e, ok, err := f.findFile(parent, parts[len(parts)-1])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, errdefs.ErrNotFound)
	}
	return f.openFile(e)
}

func (f *FS) openFile(e fileEntry) (fs.File, error) {
	if e.offset+e.size < e.offset {
		return nil, fmt.Errorf("file %s data overflow: %w", e.name, errdefs.ErrMalformedFilesystemTree)
	}
	s, err := storage.Section(f.r, f.dataOff+int64(e.offset), int64(e.size))
	if err != nil {
		return nil, fmt.Errorf("file %s data [%d, +%d): %w", e.name, e.offset, e.size, errdefs.ErrMalformedFilesystemTree)
	}
	return s, nil
}

type dir struct {
	f  *FS
	id uint32
}

// Entries implements fs.Directory, listing subdirectories first and
// files after, each chain in image order.
func (d *dir) Entries() ([]fs.Entry, error) {
	self, err := d.f.dirEntry(d.id)
	if err != nil {
		return nil, err
	}
	var out []fs.Entry

	id, steps := self.childDir, 0
	for id != none {
		if steps++; steps > len(d.f.dirMeta)/dirEntrySize+1 {
			return nil, fmt.Errorf("directory sibling cycle: %w", errdefs.ErrMalformedFilesystemTree)
		}
		e, err := d.f.dirEntry(id)
		if err != nil {
			return nil, err
		}
		out = append(out, fs.Entry{Name: e.name, Dir: true})
		id = e.sibling
	}

	id, steps = self.childFile, 0
	for id != none {
		if steps++; steps > len(d.f.fileMeta)/fileEntrySize+1 {
			return nil, fmt.Errorf("file sibling cycle: %w", errdefs.ErrMalformedFilesystemTree)
		}
		e, err := d.f.fileEntry(id)
		if err != nil {
			return nil, err
		}
		out = append(out, fs.Entry{Name: e.name, Size: int64(e.size)})
		id = e.sibling
	}
	return out, nil
}

func (d *dir) Open(name string) (fs.File, error) {
	e, ok, err := d.f.findFile(d.id, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
	}
	return d.f.openFile(e)
}

func (d *dir) OpenDir(name string) (fs.Directory, error) {
	e, ok, err := d.f.findDir(d.id, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
	}
	return &dir{f: d.f, id: e.id}, nil
}
