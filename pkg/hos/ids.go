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

// Package hos defines the identifier types shared by the content formats:
// title IDs, content IDs and rights IDs. The types are plain values with
// canonical string forms so they can key maps and appear in logs unchanged.
package hos

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/hacfs/hacfs/errdefs"
)

// TitleID identifies a title: an application, a patch, an add-on content
// or a system title.
type TitleID uint64

// ParseTitleID parses a 16-digit hexadecimal title ID.
func ParseTitleID(s string) (TitleID, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("title id %q: expected 16 hex digits: %w", s, errdefs.ErrMalformedRecord)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("title id %q: %w", s, errdefs.ErrMalformedRecord)
	}
	return TitleID(v), nil
}

func (t TitleID) String() string {
	return fmt.Sprintf("%016x", uint64(t))
}

// MarshalText encodes the ID in its canonical hex form, so JSON and
// text encodings carry the same spelling as logs and file names.
func (t TitleID) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TitleID) UnmarshalText(text []byte) error {
	v, err := ParseTitleID(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ContentID identifies one content file inside a title. On disk the
// content file is named after its ID.
type ContentID [16]byte

// ParseContentID parses a 32-digit hexadecimal content ID, as found in
// content file names.
func ParseContentID(s string) (ContentID, error) {
	var id ContentID
	if len(s) != 32 {
		return id, fmt.Errorf("content id %q: expected 32 hex digits: %w", s, errdefs.ErrMalformedRecord)
	}
	if _, err := hex.Decode(id[:], []byte(strings.ToLower(s))); err != nil {
		return id, fmt.Errorf("content id %q: %w", s, errdefs.ErrMalformedRecord)
	}
	return id, nil
}

func (c ContentID) String() string {
	return hex.EncodeToString(c[:])
}

// MarshalText encodes the ID in its canonical hex form.
func (c ContentID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ContentID) UnmarshalText(text []byte) error {
	v, err := ParseContentID(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// RightsID names the external title key a container is encrypted under.
// An all-zero rights ID means the container carries its keys in the key
// area instead.
type RightsID [16]byte

// ParseRightsID parses a 32-digit hexadecimal rights ID, as found in
// title key tables and ticket names.
func ParseRightsID(s string) (RightsID, error) {
	var id RightsID
	if len(s) != 32 {
		return id, fmt.Errorf("rights id %q: expected 32 hex digits: %w", s, errdefs.ErrMalformedRecord)
	}
	if _, err := hex.Decode(id[:], []byte(strings.ToLower(s))); err != nil {
		return id, fmt.Errorf("rights id %q: %w", s, errdefs.ErrMalformedRecord)
	}
	return id, nil
}

// IsZero reports whether the rights ID is all zero.
func (r RightsID) IsZero() bool {
	return r == RightsID{}
}

// TitleID returns the title the rights ID belongs to, stored big-endian
// in its first eight bytes.
func (r RightsID) TitleID() TitleID {
	return TitleID(binary.BigEndian.Uint64(r[:8]))
}

func (r RightsID) String() string {
	return hex.EncodeToString(r[:])
}

// MarshalText encodes the ID in its canonical hex form.
func (r RightsID) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RightsID) UnmarshalText(text []byte) error {
	v, err := ParseRightsID(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Version is a title version number. Display names conventionally carry
// it in the form "v65536".
type Version uint32

func (v Version) String() string {
	return "v" + strconv.FormatUint(uint64(v), 10)
}
