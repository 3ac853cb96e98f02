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

package hactest

import (
	"encoding/binary"
	"sort"
	"strings"
)

const rfsNone = 0xFFFFFFFF

type rfsDir struct {
	name    string
	parent  *rfsDir
	id      uint32
	subdirs []*rfsDir
	files   []*rfsFile
}

type rfsFile struct {
	name   string
	parent *rfsDir
	id     uint32
	data   []byte
	off    uint64
}

// BuildRomFS encodes a directory-tree image from slash-separated file
// paths. Directories are created implicitly, listings follow sorted
// path order.
func BuildRomFS(files map[string][]byte) []byte {
	root := &rfsDir{}
	root.parent = root

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		parts := strings.Split(strings.Trim(p, "/"), "/")
		d := root
		for _, part := range parts[:len(parts)-1] {
			d = d.subdir(part)
		}
		d.files = append(d.files, &rfsFile{
			name:   parts[len(parts)-1],
			parent: d,
			data:   files[p],
		})
	}

	var (
		dirs     []*rfsDir
		allFiles []*rfsFile
	)
	var collect func(d *rfsDir)
	collect = func(d *rfsDir) {
		dirs = append(dirs, d)
		allFiles = append(allFiles, d.files...)
		for _, s := range d.subdirs {
			collect(s)
		}
	}
	collect(root)

	// Meta table offsets double as entry IDs.
	var off uint32
	for _, d := range dirs {
		d.id = off
		off += 0x18 + align4(len(d.name))
	}
	dirMetaSize := off

	off = 0
	var dataOff uint64
	for _, f := range allFiles {
		f.id = off
		off += 0x20 + align4(len(f.name))
		f.off = dataOff
		dataOff += uint64(alignUp(int64(len(f.data)), 16))
	}
	fileMetaSize := off

	le := binary.LittleEndian

	dirMeta := make([]byte, dirMetaSize)
	dirHash := newHashTable(len(dirs))
	for i, d := range dirs {
		e := dirMeta[d.id:]
		le.PutUint32(e[0x0:], d.parent.id)
		le.PutUint32(e[0x4:], dirSibling(d, i == 0))
		if len(d.subdirs) > 0 {
			le.PutUint32(e[0x8:], d.subdirs[0].id)
		} else {
			le.PutUint32(e[0x8:], rfsNone)
		}
		if len(d.files) > 0 {
			le.PutUint32(e[0xC:], d.files[0].id)
		} else {
			le.PutUint32(e[0xC:], rfsNone)
		}
		le.PutUint32(e[0x10:], dirHash.insert(d.parent.id, d.name, d.id))
		le.PutUint32(e[0x14:], uint32(len(d.name)))
		copy(e[0x18:], d.name)
	}

	fileMeta := make([]byte, fileMetaSize)
	fileHash := newHashTable(len(allFiles))
	for _, f := range allFiles {
		e := fileMeta[f.id:]
		le.PutUint32(e[0x0:], f.parent.id)
		le.PutUint32(e[0x4:], fileSibling(f))
		le.PutUint64(e[0x8:], f.off)
		le.PutUint64(e[0x10:], uint64(len(f.data)))
		le.PutUint32(e[0x18:], fileHash.insert(f.parent.id, f.name, f.id))
		le.PutUint32(e[0x1C:], uint32(len(f.name)))
		copy(e[0x20:], f.name)
	}

	dirHashOff := int64(0x50)
	dirMetaOff := dirHashOff + int64(len(dirHash.buckets)*4)
	fileHashOff := dirMetaOff + int64(len(dirMeta))
	fileMetaOff := fileHashOff + int64(len(fileHash.buckets)*4)
	dataRegion := alignUp(fileMetaOff+int64(len(fileMeta)), 16)

	out := make([]byte, dataRegion+int64(dataOff))
	le.PutUint64(out[0x00:], 0x50)
	le.PutUint64(out[0x08:], uint64(dirHashOff))
	le.PutUint64(out[0x10:], uint64(len(dirHash.buckets)*4))
	le.PutUint64(out[0x18:], uint64(dirMetaOff))
	le.PutUint64(out[0x20:], uint64(len(dirMeta)))
	le.PutUint64(out[0x28:], uint64(fileHashOff))
	le.PutUint64(out[0x30:], uint64(len(fileHash.buckets)*4))
	le.PutUint64(out[0x38:], uint64(fileMetaOff))
	le.PutUint64(out[0x40:], uint64(len(fileMeta)))
	le.PutUint64(out[0x48:], uint64(dataRegion))
	copy(out[dirHashOff:], dirHash.bytes())
	copy(out[dirMetaOff:], dirMeta)
	copy(out[fileHashOff:], fileHash.bytes())
	copy(out[fileMetaOff:], fileMeta)
	for _, f := range allFiles {
		copy(out[dataRegion+int64(f.off):], f.data)
	}
	return out
}

func (d *rfsDir) subdir(name string) *rfsDir {
	for _, s := range d.subdirs {
		if s.name == name {
			return s
		}
	}
	s := &rfsDir{name: name, parent: d}
	d.subdirs = append(d.subdirs, s)
	return s
}

// dirSibling returns the next sibling directory's ID, or none. The root
// is its own parent and has no siblings.
func dirSibling(d *rfsDir, isRoot bool) uint32 {
	if isRoot {
		return rfsNone
	}
	siblings := d.parent.subdirs
	for i, s := range siblings {
		if s == d && i+1 < len(siblings) {
			return siblings[i+1].id
		}
	}
	return rfsNone
}

func fileSibling(f *rfsFile) uint32 {
	files := f.parent.files
	for i, s := range files {
		if s == f && i+1 < len(files) {
			return files[i+1].id
		}
	}
	return rfsNone
}

type hashTable struct {
	buckets []uint32
}

func newHashTable(entries int) *hashTable {
	n := entries + entries/3 + 3
	if n%2 == 0 {
		n++
	}
	t := &hashTable{buckets: make([]uint32, n)}
	for i := range t.buckets {
		t.buckets[i] = rfsNone
	}
	return t
}

// insert prepends the entry to its bucket chain and returns the hash
// link the entry must store.
func (t *hashTable) insert(parent uint32, name string, id uint32) uint32 {
	b := entryHash(parent, name) % uint32(len(t.buckets))
	next := t.buckets[b]
	t.buckets[b] = id
	return next
}

func (t *hashTable) bytes() []byte {
	out := make([]byte, len(t.buckets)*4)
	for i, v := range t.buckets {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func entryHash(parent uint32, name string) uint32 {
	h := uint32(123456789) ^ parent
	for i := 0; i < len(name); i++ {
		h = uint32(name[i]) ^ (h<<27 | h>>5)
	}
	return h
}

func align4(n int) uint32 {
	return uint32((n + 3) &^ 3)
}
