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

package nca

import (
	"context"
	"fmt"

	"github.com/hacfs/hacfs/core/fs"
	"github.com/hacfs/hacfs/core/fs/pfs0"
	"github.com/hacfs/hacfs/core/fs/romfs"
	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/core/storage/crypt"
	"github.com/hacfs/hacfs/core/storage/integrity"
	"github.com/hacfs/hacfs/errdefs"
)

// Section is one payload region of a container. The three Open variants
// expose it at increasing levels of interpretation; all of them are
// cheap, deferring payload reads to the returned handle.
type Section struct {
	Index int
	Type  SectionType

	nca    *NCA
	header *FsHeader
	start  int64 // absolute, inclusive
	end    int64 // absolute, exclusive
}

// Header returns the section's parsed fs header.
func (s *Section) Header() *FsHeader {
	return s.header
}

// Offset is the section's absolute position within the container file.
func (s *Section) Offset() int64 {
	return s.start
}

// Size is the stored size of the section, including hash tree levels.
func (s *Section) Size() int64 {
	return s.end - s.start
}

// OpenRaw returns the section's stored bytes: encrypted, unverified.
func (s *Section) OpenRaw() (storage.ReaderAt, error) {
	return storage.Section(s.nca.r, s.start, s.Size())
}

// OpenDecrypted returns the section's plaintext bytes without integrity
// verification. Hash tree levels remain part of the view.
func (s *Section) OpenDecrypted() (storage.ReaderAt, error) {
	if err := s.checkSupported(); err != nil {
		return nil, err
	}
	raw, err := s.OpenRaw()
	if err != nil {
		return nil, err
	}
	if s.nca.plaintextBody || s.header.Encryption == EncryptionNone {
		return raw, nil
	}
	switch s.header.Encryption {
	case EncryptionCTR:
		if !s.nca.hasKeys {
			return nil, fmt.Errorf("section %d payload key: %w", s.Index, errdefs.ErrMissingKey)
		}
		blocks, err := storage.NewBlocked(raw, crypt.CTRBlockSize)
		if err != nil {
			return nil, err
		}
		c, err := crypt.NewCTR(blocks, s.nca.keys.ctr[:], crypt.SectionIV(s.header.UpperCounter, s.start))
		if err != nil {
			return nil, err
		}
		return storage.NewAligned(c), nil
	default:
		return nil, fmt.Errorf("section %d uses %s encryption: %w", s.Index, s.header.Encryption, errdefs.ErrNotImplemented)
	}
}

// Open returns the section's verified plaintext payload. Every read
// checks the blocks it touches against the hash tree; reads of tampered
// regions fail with ErrIntegrityViolation.
func (s *Section) Open() (storage.ReaderAt, error) {
	dec, err := s.OpenDecrypted()
	if err != nil {
		return nil, err
	}
	if s.header.Hash == HashNone {
		return dec, nil
	}
	for i, l := range s.header.levels {
		if l.Size > dec.Size() || l.Offset > dec.Size()-l.Size {
			return nil, fmt.Errorf("integrity level %d at [%#x, +%#x) outside section %d: %w",
				i, l.Offset, l.Size, s.Index, errdefs.ErrMalformedRecord)
		}
	}
	tree, err := integrity.NewTree(dec, s.header.masterHash, s.header.levels, s.header.padTail)
	if err != nil {
		return nil, fmt.Errorf("section %d hash tree: %w", s.Index, err)
	}
	return tree, nil
}

// OpenFS parses the section payload as the filesystem its header
// declares. The payload stays verified: file reads through the returned
// filesystem check the hash tree.
func (s *Section) OpenFS(ctx context.Context) (fs.FS, error) {
	payload, err := s.Open()
	if err != nil {
		return nil, err
	}
	switch s.header.Format {
	case FormatPFS0:
		return pfs0.Parse(ctx, payload)
	case FormatRomFS:
		return romfs.Parse(ctx, payload)
	default:
		return nil, fmt.Errorf("section %d format %s: %w", s.Index, s.header.Format, errdefs.ErrNotImplemented)
	}
}

// checkSupported rejects section features that need patch machinery.
func (s *Section) checkSupported() error {
	switch {
	case s.header.IsPatch:
		return fmt.Errorf("section %d is a patch overlay: %w", s.Index, errdefs.ErrNotImplemented)
	case s.header.IsSparse:
		return fmt.Errorf("section %d is sparse: %w", s.Index, errdefs.ErrNotImplemented)
	case s.header.IsCompressed:
		return fmt.Errorf("section %d is compressed: %w", s.Index, errdefs.ErrNotImplemented)
	}
	return nil
}
