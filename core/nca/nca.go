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

// Package nca reads content archive containers, the encrypted and
// integrity-protected envelope around every piece of installed content.
//
// Open decrypts and validates the container headers, then hands out
// sections. Section payloads are decrypted and verified lazily, on every
// read, so a container can be opened cheaply and large payloads never
// need to be buffered whole:
//
//	n, err := nca.Open(ctx, r, keys)
//	if err != nil { ... }
//	fsys, err := n.Sections()[0].OpenFS(ctx)
//
// Verification failures surface as ErrIntegrityViolation at read time.
package nca

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/containerd/log"

	"github.com/hacfs/hacfs/core/ncz"
	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/keyset"
)

// NCA is an opened container. Its sections stay readable for as long as
// the underlying reader does.
type NCA struct {
	r       storage.ReaderAt
	header  *Header
	keys    sectionKeys
	hasKeys bool

	// plaintextBody marks containers whose payload is stored decrypted
	// even though the headers claim a cipher, as produced by compressed
	// dump tools.
	plaintextBody bool

	sections []*Section
}

// OpenOpt adjusts how a container is opened.
type OpenOpt func(*openOpts)

type openOpts struct {
	plaintextBody bool
}

// WithPlaintextBody treats section payloads as already decrypted,
// regardless of the encryption type the headers declare. Header
// decryption is unaffected.
func WithPlaintextBody() OpenOpt {
	return func(o *openOpts) {
		o.plaintextBody = true
	}
}

// Open reads and validates the container headers from r. Section payloads
// are not touched; they are read on demand through the handles returned
// by Sections.
func Open(ctx context.Context, r storage.ReaderAt, ks *keyset.Set, opts ...OpenOpt) (*NCA, error) {
	var o openOpts
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := storage.ReadRange(r, 0, headersLen)
	if err != nil {
		return nil, fmt.Errorf("reading container headers: %w", err)
	}
	main, fsRaw, err := decryptHeaders(raw, ks)
	if err != nil {
		return nil, err
	}
	hdr, err := parseHeader(main)
	if err != nil {
		return nil, err
	}

	// A recompressed file keeps its headers verbatim but stores the body
	// decompressed and decrypted.
	body := r
	if ncz.Probe(r) {
		if body, err = ncz.Open(ctx, r); err != nil {
			return nil, err
		}
		o.plaintextBody = true
	}
	if hdr.Size != body.Size() {
		return nil, fmt.Errorf("header claims %d bytes but file has %d: %w", hdr.Size, body.Size(), errdefs.ErrMalformedRecord)
	}

	n := &NCA{
		r:             body,
		header:        hdr,
		plaintextBody: o.plaintextBody,
	}
	if err := n.buildSections(fsRaw); err != nil {
		return nil, err
	}

	needKeys := false
	for _, s := range n.sections {
		if s.header.Encryption != EncryptionNone && !n.plaintextBody {
			needKeys = true
		}
	}
	if needKeys {
		n.keys, err = resolveKeys(ks, hdr)
		if err != nil {
			return nil, err
		}
		n.hasKeys = true
	}

	log.G(ctx).WithFields(log.Fields{
		"title":    hdr.TitleID,
		"type":     hdr.ContentType,
		"sections": len(n.sections),
	}).Debug("opened container")
	return n, nil
}

// Header returns the parsed main header.
func (n *NCA) Header() *Header {
	return n.header
}

// Sections returns the container's sections in ascending index order.
func (n *NCA) Sections() []*Section {
	return n.sections
}

// FindSection returns the first section of the given type, or nil when
// the container has none.
func (n *NCA) FindSection(typ SectionType) *Section {
	for _, s := range n.sections {
		if s.Type == typ {
			return s
		}
	}
	return nil
}

// buildSections verifies, parses, and geometry-checks the enabled
// entries of the section table.
func (n *NCA) buildSections(fsRaw [][]byte) error {
	for i, entry := range n.header.sections {
		if entry.Enabled == 0 {
			continue
		}
		sum := sha256.Sum256(fsRaw[i])
		if sum != n.header.fsHeaderHashes[i] {
			return fmt.Errorf("fs header %d digest mismatch: %w", i, errdefs.ErrIntegrityViolation)
		}
		fsh, err := parseFsHeader(fsRaw[i])
		if err != nil {
			return fmt.Errorf("fs header %d: %w", i, err)
		}
		start := int64(entry.Start) * mediaUnit
		end := int64(entry.End) * mediaUnit
		if start < headersLen || end <= start || end > n.header.Size {
			return fmt.Errorf("section %d spans [%#x, %#x) outside the container: %w", i, start, end, errdefs.ErrMalformedPartitionTable)
		}
		n.sections = append(n.sections, &Section{
			Index:  i,
			Type:   sectionType(i, n.header.ContentType),
			nca:    n,
			header: fsh,
			start:  start,
			end:    end,
		})
	}

	switch count := len(n.sections); n.header.ContentType {
	case ContentProgram:
		if count != 2 && count != 3 {
			return fmt.Errorf("program container has %d sections, need 2 or 3: %w", count, errdefs.ErrMalformedRecord)
		}
	default:
		if count != 1 {
			return fmt.Errorf("%s container has %d sections, need 1: %w", n.header.ContentType, count, errdefs.ErrMalformedRecord)
		}
	}

	// Sections may not share bytes. Order in the table is not guaranteed,
	// so check after sorting by start.
	byStart := append([]*Section(nil), n.sections...)
	sort.Slice(byStart, func(i, j int) bool { return byStart[i].start < byStart[j].start })
	for i := 1; i < len(byStart); i++ {
		if byStart[i].start < byStart[i-1].end {
			return fmt.Errorf("sections %d and %d overlap: %w", byStart[i-1].Index, byStart[i].Index, errdefs.ErrMalformedPartitionTable)
		}
	}
	return nil
}

// sectionType derives a section's role from its index. Only program
// containers distinguish roles; everything else carries a single data
// section.
func sectionType(index int, content ContentType) SectionType {
	if content == ContentProgram {
		switch index {
		case 0:
			return SectionCode
		case 1:
			return SectionData
		case 2:
			return SectionLogo
		}
	}
	return SectionData
}
