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

// Package keyset loads and serves the console key material the readers
// need: the header key, per-generation title keks and key area keys from
// a production key table, and per-title keys from a title key table or
// imported tickets.
//
// Key tables use the common INI-style dump format, one `name = hex`
// pair per line. Unknown names are ignored so full dumps load as is.
package keyset

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/containerd/log"
	"gopkg.in/ini.v1"

	"github.com/hacfs/hacfs/defaults"
	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/hos"
)

// KeyAreaIndex selects one of the three key area key families.
type KeyAreaIndex uint8

const (
	KeyAreaApplication KeyAreaIndex = 0
	KeyAreaOcean       KeyAreaIndex = 1
	KeyAreaSystem      KeyAreaIndex = 2
)

func (i KeyAreaIndex) String() string {
	switch i {
	case KeyAreaApplication:
		return "application"
	case KeyAreaOcean:
		return "ocean"
	case KeyAreaSystem:
		return "system"
	}
	return fmt.Sprintf("keyareaindex(%d)", uint8(i))
}

// Set holds loaded key material. The zero value is unusable; construct
// with New or one of the loaders.
type Set struct {
	headerKey   []byte
	titleKeks   map[uint8][16]byte
	keyAreaKeys [3]map[uint8][16]byte
	titleKeys   map[hos.RightsID][16]byte
}

// New returns an empty Set.
func New() *Set {
	s := &Set{
		titleKeks: map[uint8][16]byte{},
		titleKeys: map[hos.RightsID][16]byte{},
	}
	for i := range s.keyAreaKeys {
		s.keyAreaKeys[i] = map[uint8][16]byte{}
	}
	return s
}

// Clone returns an independent copy. Scans import ticket keys into a
// clone so one archive's tickets never leak into another's lookups.
func (s *Set) Clone() *Set {
	c := New()
	if s.headerKey != nil {
		c.headerKey = append([]byte(nil), s.headerKey...)
	}
	for k, v := range s.titleKeks {
		c.titleKeks[k] = v
	}
	for i := range s.keyAreaKeys {
		for k, v := range s.keyAreaKeys[i] {
			c.keyAreaKeys[i][k] = v
		}
	}
	for k, v := range s.titleKeys {
		c.titleKeys[k] = v
	}
	return c
}

// HeaderKey returns the 32-byte header cipher key.
func (s *Set) HeaderKey() ([]byte, error) {
	if s.headerKey == nil {
		return nil, fmt.Errorf("header_key: %w", errdefs.ErrMissingKey)
	}
	return s.headerKey, nil
}

// TitleKek returns the title kek for a key generation.
func (s *Set) TitleKek(generation uint8) ([16]byte, error) {
	k, ok := s.titleKeks[generation]
	if !ok {
		return k, fmt.Errorf("titlekek_%02x: %w", generation, errdefs.ErrUnknownKeyGeneration)
	}
	return k, nil
}

// KeyAreaKey returns the key area key for a family and key generation.
func (s *Set) KeyAreaKey(index KeyAreaIndex, generation uint8) ([16]byte, error) {
	var k [16]byte
	if int(index) >= len(s.keyAreaKeys) {
		return k, fmt.Errorf("key area index %d: %w", index, errdefs.ErrMalformedRecord)
	}
	k, ok := s.keyAreaKeys[index][generation]
	if !ok {
		return k, fmt.Errorf("key_area_key_%s_%02x: %w", index, generation, errdefs.ErrUnknownKeyGeneration)
	}
	return k, nil
}

// TitleKey returns the wrapped title key for a rights ID.
func (s *Set) TitleKey(rights hos.RightsID) ([16]byte, error) {
	k, ok := s.titleKeys[rights]
	if !ok {
		return k, fmt.Errorf("title key for %s: %w", rights, errdefs.ErrMissingKey)
	}
	return k, nil
}

// AddTitleKey registers a wrapped title key, replacing any previous key
// for the same rights ID. Ticket imports land here.
func (s *Set) AddTitleKey(rights hos.RightsID, key [16]byte) {
	s.titleKeys[rights] = key
}

// SetHeaderKey installs the 32-byte header cipher key.
func (s *Set) SetHeaderKey(key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("header key of %d bytes: %w", len(key), errdefs.ErrInvalidKeyLength)
	}
	s.headerKey = append([]byte(nil), key...)
	return nil
}

// SetTitleKek installs a title kek for a generation.
func (s *Set) SetTitleKek(generation uint8, key [16]byte) {
	s.titleKeks[generation] = key
}

// SetKeyAreaKey installs a key area key for a family and generation.
func (s *Set) SetKeyAreaKey(index KeyAreaIndex, generation uint8, key [16]byte) error {
	if int(index) >= len(s.keyAreaKeys) {
		return fmt.Errorf("key area index %d: %w", index, errdefs.ErrMalformedRecord)
	}
	s.keyAreaKeys[index][generation] = key
	return nil
}

// LoadProdKeys merges a production key table into the set. Recognized
// names are header_key, titlekek_NN and key_area_key_<family>_NN; other
// lines are skipped.
func (s *Set) LoadProdKeys(path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	for _, key := range f.Section("").Keys() {
		name := strings.ToLower(key.Name())
		if err := s.applyProdKey(name, key.Value()); err != nil {
			return fmt.Errorf("%s: key %q: %w", path, name, err)
		}
	}
	return nil
}

func (s *Set) applyProdKey(name, value string) error {
	switch {
	case name == "header_key":
		raw, err := decodeKey(value, 32)
		if err != nil {
			return err
		}
		return s.SetHeaderKey(raw)
	case strings.HasPrefix(name, "titlekek_"):
		gen, ok := parseGeneration(strings.TrimPrefix(name, "titlekek_"))
		if !ok {
			return nil
		}
		k, err := decodeKey16(value)
		if err != nil {
			return err
		}
		s.SetTitleKek(gen, k)
	case strings.HasPrefix(name, "key_area_key_"):
		rest := strings.TrimPrefix(name, "key_area_key_")
		family, suffix, ok := strings.Cut(rest, "_")
		if !ok {
			return nil
		}
		var index KeyAreaIndex
		switch family {
		case "application":
			index = KeyAreaApplication
		case "ocean":
			index = KeyAreaOcean
		case "system":
			index = KeyAreaSystem
		default:
			return nil
		}
		gen, ok := parseGeneration(suffix)
		if !ok {
			return nil
		}
		k, err := decodeKey16(value)
		if err != nil {
			return err
		}
		return s.SetKeyAreaKey(index, gen, k)
	}
	return nil
}

// LoadTitleKeys merges a title key table into the set. Each line maps a
// 32-digit rights ID to its wrapped title key.
func (s *Set) LoadTitleKeys(path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	for _, key := range f.Section("").Keys() {
		rights, err := hos.ParseRightsID(key.Name())
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		k, err := decodeKey16(key.Value())
		if err != nil {
			return fmt.Errorf("%s: title key for %s: %w", path, rights, err)
		}
		s.AddTitleKey(rights, k)
	}
	return nil
}

func decodeKey(value string, size int) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%q: %w", value, errdefs.ErrMalformedRecord)
	}
	if len(raw) != size {
		return nil, fmt.Errorf("%d bytes, expected %d: %w", len(raw), size, errdefs.ErrInvalidKeyLength)
	}
	return raw, nil
}

func decodeKey16(value string) ([16]byte, error) {
	var k [16]byte
	raw, err := decodeKey(value, 16)
	if err != nil {
		return k, err
	}
	copy(k[:], raw)
	return k, nil
}

func parseGeneration(s string) (uint8, bool) {
	if len(s) != 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

// FromFiles loads a set from an explicit production key table and an
// optional title key table path.
func FromFiles(prodKeys, titleKeys string) (*Set, error) {
	s := New()
	if err := s.LoadProdKeys(prodKeys); err != nil {
		return nil, err
	}
	if titleKeys != "" {
		if err := s.LoadTitleKeys(titleKeys); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Discover loads the set from the first default key directory holding a
// production key table, merging the title key table beside it when
// present.
func Discover(ctx context.Context) (*Set, error) {
	dirs := defaults.KeysDirs()
	for _, dir := range dirs {
		prod := filepath.Join(dir, defaults.DefaultProdKeysFile)
		if _, err := os.Stat(prod); err != nil {
			continue
		}
		log.G(ctx).WithField("dir", dir).Debug("loading keys")
		title := filepath.Join(dir, defaults.DefaultTitleKeysFile)
		if _, err := os.Stat(title); err != nil {
			title = ""
		}
		return FromFiles(prod, title)
	}
	return nil, fmt.Errorf("no %s under %s: %w",
		defaults.DefaultProdKeysFile, strings.Join(dirs, ", "), errdefs.ErrMissingKey)
}
