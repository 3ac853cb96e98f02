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

package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/errdefs"
)

// OSDir exposes a host directory with the same interface as parsed
// images, so directory trees of loose content files can be scanned the
// way archive contents are. Files opened through it hold OS handles;
// callers that care close them via io.Closer.
func OSDir(root string) FS {
	return &osFS{root: root}
}

type osFS struct {
	root string
}

func (o *osFS) Root() Directory {
	return &osDir{path: o.root}
}

type osDir struct {
	path string
}

func (d *osDir) Entries() ([]Entry, error) {
	dents, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(dents))
	for _, de := range dents {
		e := Entry{Name: de.Name(), Dir: de.IsDir()}
		if !e.Dir {
			fi, err := de.Info()
			if err != nil {
				return nil, err
			}
			e.Size = fi.Size()
			e.ModTime = fi.ModTime()
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (d *osDir) Open(name string) (File, error) {
	path := filepath.Join(d.path, name)
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
		}
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s: is a directory: %w", name, errdefs.ErrNotFound)
	}
	return storage.OpenFile(path)
}

func (d *osDir) OpenDir(name string) (Directory, error) {
	path := filepath.Join(d.path, name)
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
		}
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: not a directory: %w", name, errdefs.ErrNotFound)
	}
	return &osDir{path: path}, nil
}
