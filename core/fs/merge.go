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
	"fmt"

	"github.com/hacfs/hacfs/errdefs"
)

// Merge overlays the given filesystems into one view. Directories with
// the same path are unioned across all layers; for files the earliest
// layer wins. Entries keep the order of first appearance.
func Merge(layers ...FS) FS {
	dirs := make([]Directory, len(layers))
	for i, l := range layers {
		dirs[i] = l.Root()
	}
	return &mergeFS{root: &mergeDir{layers: dirs}}
}

type mergeFS struct {
	root *mergeDir
}

func (m *mergeFS) Root() Directory {
	return m.root
}

type mergeDir struct {
	layers []Directory
}

func (m *mergeDir) Entries() ([]Entry, error) {
	var (
		out  []Entry
		seen = map[string]struct{}{}
	)
	for _, d := range m.layers {
		entries, err := d.Entries()
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if _, ok := seen[e.Name]; ok {
				continue
			}
			seen[e.Name] = struct{}{}
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mergeDir) Open(name string) (File, error) {
	for _, d := range m.layers {
		f, err := d.Open(name)
		if err == nil {
			return f, nil
		}
		if !errdefs.IsNotFound(err) {
			return nil, err
		}
		// A directory of the same name in this layer shadows files in
		// the layers below it.
		if _, derr := d.OpenDir(name); derr == nil {
			break
		}
	}
	return nil, fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
}

func (m *mergeDir) OpenDir(name string) (Directory, error) {
	var sub []Directory
	for _, d := range m.layers {
		s, err := d.OpenDir(name)
		if err == nil {
			sub = append(sub, s)
			continue
		}
		if !errdefs.IsNotFound(err) {
			return nil, err
		}
	}
	if len(sub) == 0 {
		return nil, fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
	}
	return &mergeDir{layers: sub}, nil
}
