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

// Package hactest builds synthetic container and filesystem images for
// tests. The builders are independent encoders: they share no code with
// the parsers under test, only the on-disk formats.
package hactest

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/hacfs/hacfs/core/fs"
	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/keyset"
)

// MapFS is an in-memory fs.FS keyed by slash-separated file paths.
// Directories exist implicitly. Listings are sorted by name.
type MapFS map[string][]byte

func (m MapFS) Root() fs.Directory {
	return &mapDir{m: m}
}

type mapDir struct {
	m      MapFS
	prefix string // empty or "a/b/"
}

func (d *mapDir) Entries() ([]fs.Entry, error) {
	var (
		out  []fs.Entry
		seen = map[string]struct{}{}
	)
	for path, data := range d.m {
		if !strings.HasPrefix(path, d.prefix) {
			continue
		}
		rest := path[len(d.prefix):]
		name, _, isDir := strings.Cut(rest, "/")
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		e := fs.Entry{Name: name, Dir: isDir}
		if !isDir {
			e.Size = int64(len(data))
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *mapDir) Open(name string) (fs.File, error) {
	data, ok := d.m[d.prefix+name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
	}
	return storage.Bytes(data), nil
}

func (d *mapDir) OpenDir(name string) (fs.Directory, error) {
	prefix := d.prefix + name + "/"
	for path := range d.m {
		if strings.HasPrefix(path, prefix) {
			return &mapDir{m: d.m, prefix: prefix}, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
}

// Deterministic key material for the builders. HeaderKey protects the
// container header; SectionKey is the plaintext section key the key
// area wraps; TitleKey is the plaintext key behind rights IDs.
var (
	HeaderKey  = counted(32, 0x80)
	SectionKey = counted16(0x40)
	TitleKey   = counted16(0xD0)

	kaekApplication = counted16(0x10)
	kaekOcean       = counted16(0x20)
	kaekSystem      = counted16(0x30)
	titleKek        = counted16(0x50)
)

func counted(n int, base byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = base + byte(i)
	}
	return b
}

func counted16(base byte) [16]byte {
	var b [16]byte
	copy(b[:], counted(16, base))
	return b
}

// Keys returns a key set able to open everything the builders produce:
// header key, application/ocean/system key area keys and title keks for
// generations 0 through 3.
func Keys() *keyset.Set {
	s := keyset.New()
	if err := s.SetHeaderKey(HeaderKey); err != nil {
		panic(err)
	}
	for gen := uint8(0); gen <= 3; gen++ {
		s.SetTitleKek(gen, mixed(titleKek, gen))
		must(s.SetKeyAreaKey(keyset.KeyAreaApplication, gen, mixed(kaekApplication, gen)))
		must(s.SetKeyAreaKey(keyset.KeyAreaOcean, gen, mixed(kaekOcean, gen)))
		must(s.SetKeyAreaKey(keyset.KeyAreaSystem, gen, mixed(kaekSystem, gen)))
	}
	return s
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// mixed derives a distinct per-generation key from a base key.
func mixed(base [16]byte, gen uint8) [16]byte {
	base[15] ^= gen
	return base
}

func alignUp(n int64, align int64) int64 {
	return (n + align - 1) / align * align
}

func padTo(b []byte, size int64) []byte {
	if int64(len(b)) >= size {
		return b
	}
	return append(b, make([]byte, size-int64(len(b)))...)
}

// HashBlocks produces the stored hash run covering data at blockSize,
// zero-extending a partial tail block when pad is set.
func HashBlocks(data []byte, blockSize int, pad bool) []byte {
	var out []byte
	for off := 0; off < len(data); off += blockSize {
		end := off + blockSize
		if end > len(data) {
			end = len(data)
		}
		block := data[off:end]
		if pad && len(block) < blockSize {
			block = padTo(append([]byte(nil), block...), int64(blockSize))
		}
		h := sha256.Sum256(block)
		out = append(out, h[:]...)
	}
	return out
}
