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

// Package fs defines the read-only filesystem view that image parsers
// expose: a tree of directories and random-access files. Paths are
// slash separated; a leading slash is accepted and ignored.
package fs

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/errdefs"
)

// File is an open file. Files are random-access and safe for concurrent
// reads. Implementations backed by OS handles also implement io.Closer.
type File interface {
	storage.ReaderAt
}

// Entry describes a directory member.
type Entry struct {
	Name string
	Dir  bool
	// Size is the file length in bytes, zero for directories.
	Size int64
	// ModTime is the file's modification time when the source records
	// one. Parsed images carry no times, so it is usually zero.
	ModTime time.Time
}

// Directory is one level of the tree.
type Directory interface {
	// Entries lists the directory in image order.
	Entries() ([]Entry, error)
	// Open opens a file in this directory by name.
	Open(name string) (File, error)
	// OpenDir opens a subdirectory by name.
	OpenDir(name string) (Directory, error)
}

// FS is a parsed filesystem image.
type FS interface {
	Root() Directory
}

// PathOpener is implemented by filesystems that resolve whole paths
// natively, typically through an on-image lookup structure. Open uses
// it when available instead of descending level by level.
type PathOpener interface {
	OpenPath(path string) (File, error)
}

// SplitPath breaks a slash-separated path into components, dropping
// empty and "." components. Parent references are not meaningful in
// image paths and are rejected.
func SplitPath(path string) ([]string, error) {
	var parts []string
	for _, c := range strings.Split(path, "/") {
		switch c {
		case "", ".":
		case "..":
			return nil, fmt.Errorf("path %q: parent reference: %w", path, errdefs.ErrNotFound)
		default:
			parts = append(parts, c)
		}
	}
	return parts, nil
}

// Open opens the file at path in fsys.
func Open(fsys FS, path string) (File, error) {
	if po, ok := fsys.(PathOpener); ok {
		return po.OpenPath(path)
	}
	parts, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("path %q names no file: %w", path, errdefs.ErrNotFound)
	}
	d, err := descend(fsys.Root(), parts[:len(parts)-1])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f, err := d.Open(parts[len(parts)-1])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// OpenDir opens the directory at path in fsys. The empty path names the
// root.
func OpenDir(fsys FS, path string) (Directory, error) {
	parts, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	d, err := descend(fsys.Root(), parts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func descend(d Directory, parts []string) (Directory, error) {
	for _, part := range parts {
		next, err := d.OpenDir(part)
		if err != nil {
			return nil, err
		}
		d = next
	}
	return d, nil
}

// ReadFile reads the whole file at path into memory, closing the file
// if it holds an OS handle.
func ReadFile(fsys FS, path string) ([]byte, error) {
	f, err := Open(fsys, path)
	if err != nil {
		return nil, err
	}
	if c, ok := f.(io.Closer); ok {
		defer c.Close()
	}
	return storage.ReadAll(f)
}
