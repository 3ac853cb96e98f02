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

// Package cnmt parses packaged content meta records. Every title ships a
// meta container holding one such record; it enumerates the title's
// content files with their hashes and declares how the title relates to
// others (its patch, its base application, its add-on data).
package cnmt

import (
	"encoding/binary"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/hos"
)

// MetaType classifies a content meta record.
type MetaType uint8

const (
	MetaSystemProgram        MetaType = 1
	MetaSystemData           MetaType = 2
	MetaSystemUpdate         MetaType = 3
	MetaBootImagePackage     MetaType = 4
	MetaBootImagePackageSafe MetaType = 5
	MetaApplication          MetaType = 0x80
	MetaPatch                MetaType = 0x81
	MetaAddOnContent         MetaType = 0x82
	MetaDelta                MetaType = 0x83
	MetaDataPatch            MetaType = 0x84
)

func (t MetaType) String() string {
	switch t {
	case MetaSystemProgram:
		return "systemprogram"
	case MetaSystemData:
		return "systemdata"
	case MetaSystemUpdate:
		return "systemupdate"
	case MetaBootImagePackage:
		return "bootimagepackage"
	case MetaBootImagePackageSafe:
		return "bootimagepackagesafe"
	case MetaApplication:
		return "application"
	case MetaPatch:
		return "patch"
	case MetaAddOnContent:
		return "addoncontent"
	case MetaDelta:
		return "delta"
	case MetaDataPatch:
		return "datapatch"
	}
	return fmt.Sprintf("metatype(%#x)", uint8(t))
}

func (t MetaType) valid() bool {
	return (t >= MetaSystemProgram && t <= MetaBootImagePackageSafe) ||
		(t >= MetaApplication && t <= MetaDataPatch)
}

// ContentType classifies one content file within a title.
type ContentType uint8

const (
	ContentMeta             ContentType = 0
	ContentProgram          ContentType = 1
	ContentData             ContentType = 2
	ContentControl          ContentType = 3
	ContentHtmlDocument     ContentType = 4
	ContentLegalInformation ContentType = 5
	ContentDeltaFragment    ContentType = 6
)

func (t ContentType) String() string {
	switch t {
	case ContentMeta:
		return "meta"
	case ContentProgram:
		return "program"
	case ContentData:
		return "data"
	case ContentControl:
		return "control"
	case ContentHtmlDocument:
		return "htmldocument"
	case ContentLegalInformation:
		return "legalinformation"
	case ContentDeltaFragment:
		return "deltafragment"
	}
	return fmt.Sprintf("contenttype(%d)", uint8(t))
}

// Attribute bits of a meta record.
const (
	AttributeIncludesExFatDriver uint8 = 0x01
	AttributeRebootless          uint8 = 0x02
	AttributeCompacted           uint8 = 0x04
)

// ContentEntry names one content file of the title. Hash is the expected
// digest of the whole content file.
type ContentEntry struct {
	Hash       digest.Digest
	ID         hos.ContentID
	Size       int64
	Attributes uint8
	Type       ContentType
	// IDOffset distinguishes multi-program titles; program N lives at
	// title ID base+N.
	IDOffset uint8
}

// MetaEntry references another meta record. Only system updates carry
// these.
type MetaEntry struct {
	ID         hos.TitleID
	Version    hos.Version
	Type       MetaType
	Attributes uint8
}

// ApplicationExt is the extension an application meta carries.
type ApplicationExt struct {
	PatchID                    hos.TitleID
	RequiredSystemVersion      hos.Version
	RequiredApplicationVersion hos.Version
}

// PatchExt is the extension a patch meta carries.
type PatchExt struct {
	ApplicationID         hos.TitleID
	RequiredSystemVersion hos.Version
	ExtendedDataSize      uint32
}

// AddOnContentExt is the extension an add-on-content meta carries.
type AddOnContentExt struct {
	ApplicationID              hos.TitleID
	RequiredApplicationVersion hos.Version
	ContentAccessibilities     uint8
	DataPatchID                hos.TitleID
}

// DeltaExt is the extension a delta meta carries.
type DeltaExt struct {
	ApplicationID    hos.TitleID
	ExtendedDataSize uint32
}

// SystemUpdateExt is the extension a system update meta carries.
type SystemUpdateExt struct {
	ExtendedDataSize uint32
}

// Key identifies a meta record. Two records with equal keys describe the
// same installable unit.
type Key struct {
	ID          hos.TitleID
	Version     hos.Version
	Type        MetaType
	InstallType uint8
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ID, k.Type, k.Version)
}

// CNMT is a parsed content meta record. At most one of the Ext fields is
// set, matching Type.
type CNMT struct {
	ID                            hos.TitleID
	Version                       hos.Version
	Type                          MetaType
	Attributes                    uint8
	StorageID                     uint8
	InstallType                   uint8
	InstallState                  uint8
	RequiredDownloadSystemVersion hos.Version

	Application  *ApplicationExt
	Patch        *PatchExt
	AddOnContent *AddOnContentExt
	Delta        *DeltaExt
	SystemUpdate *SystemUpdateExt

	Contents []ContentEntry
	Metas    []MetaEntry

	// Digest seals the record; it is carried as stored, not recomputed.
	Digest digest.Digest
}

// Key returns the record's identity.
func (c *CNMT) Key() Key {
	return Key{ID: c.ID, Version: c.Version, Type: c.Type, InstallType: c.InstallType}
}

// Content returns the first content entry of the given type, or nil.
func (c *CNMT) Content(ty ContentType) *ContentEntry {
	for i := range c.Contents {
		if c.Contents[i].Type == ty {
			return &c.Contents[i]
		}
	}
	return nil
}

const (
	headerLen       = 0x20
	contentEntryLen = 0x38
	metaEntryLen    = 0x10
	digestLen       = 0x20
)

// extHeaderLen returns the fixed extension size for a meta type, or -1
// when the type carries none or an unmodeled one.
func extHeaderLen(t MetaType) int {
	switch t {
	case MetaApplication, MetaDelta:
		return 0x10
	case MetaPatch, MetaAddOnContent:
		return 0x18
	}
	return -1
}

// Parse decodes a packaged content meta record.
func Parse(data []byte) (*CNMT, error) {
	if len(data) < headerLen+digestLen {
		return nil, fmt.Errorf("meta record of %d bytes: %w", len(data), errdefs.ErrMalformedRecord)
	}
	le := binary.LittleEndian

	c := &CNMT{
		ID:                            hos.TitleID(le.Uint64(data)),
		Version:                       hos.Version(le.Uint32(data[0x8:])),
		Type:                          MetaType(data[0xC]),
		Attributes:                    data[0x14],
		StorageID:                     data[0x15],
		InstallType:                   data[0x16],
		InstallState:                  data[0x17],
		RequiredDownloadSystemVersion: hos.Version(le.Uint32(data[0x18:])),
	}
	if !c.Type.valid() {
		return nil, fmt.Errorf("meta type %#x: %w", data[0xC], errdefs.ErrMalformedRecord)
	}
	var (
		extSize      = int(le.Uint16(data[0xE:]))
		contentCount = int(le.Uint16(data[0x10:]))
		metaCount    = int(le.Uint16(data[0x12:]))
	)
	if want := extHeaderLen(c.Type); want >= 0 && extSize < want {
		return nil, fmt.Errorf("%s extension of %d bytes, expected %d: %w",
			c.Type, extSize, want, errdefs.ErrMalformedRecord)
	}
	if headerLen+extSize > len(data)-digestLen {
		return nil, fmt.Errorf("extension of %d bytes exceeds record: %w", extSize, errdefs.ErrMalformedRecord)
	}

	extData, err := c.parseExt(data[headerLen : headerLen+extSize])
	if err != nil {
		return nil, err
	}

	need := headerLen + extSize + contentCount*contentEntryLen + metaCount*metaEntryLen + extData + digestLen
	if need != len(data) {
		return nil, fmt.Errorf("meta record of %d bytes, tables need %d: %w",
			len(data), need, errdefs.ErrMalformedRecord)
	}

	off := headerLen + extSize
	c.Contents = make([]ContentEntry, 0, contentCount)
	for i := 0; i < contentCount; i++ {
		e := data[off+i*contentEntryLen:]
		ty := ContentType(e[0x36])
		if ty > ContentDeltaFragment {
			return nil, fmt.Errorf("content entry %d type %d: %w", i, e[0x36], errdefs.ErrMalformedRecord)
		}
		c.Contents = append(c.Contents, ContentEntry{
			Hash:       digest.NewDigestFromBytes(digest.SHA256, e[:0x20]),
			ID:         hos.ContentID(e[0x20:0x30]),
			Size:       int64(le.Uint32(e[0x30:])) | int64(e[0x34])<<32,
			Attributes: e[0x35],
			Type:       ty,
			IDOffset:   e[0x37],
		})
	}

	off += contentCount * contentEntryLen
	c.Metas = make([]MetaEntry, 0, metaCount)
	for i := 0; i < metaCount; i++ {
		e := data[off+i*metaEntryLen:]
		c.Metas = append(c.Metas, MetaEntry{
			ID:         hos.TitleID(le.Uint64(e)),
			Version:    hos.Version(le.Uint32(e[0x8:])),
			Type:       MetaType(e[0xC]),
			Attributes: e[0xD],
		})
	}

	// Patch extended data (fragment sets and friends) is skipped; its
	// size was accounted for above.
	c.Digest = digest.NewDigestFromBytes(digest.SHA256, data[len(data)-digestLen:])
	return c, nil
}

// parseExt decodes the typed extension and returns the extended data
// size it declares.
func (c *CNMT) parseExt(ext []byte) (int, error) {
	le := binary.LittleEndian
	switch c.Type {
	case MetaApplication:
		c.Application = &ApplicationExt{
			PatchID:                    hos.TitleID(le.Uint64(ext)),
			RequiredSystemVersion:      hos.Version(le.Uint32(ext[0x8:])),
			RequiredApplicationVersion: hos.Version(le.Uint32(ext[0xC:])),
		}
	case MetaPatch:
		c.Patch = &PatchExt{
			ApplicationID:         hos.TitleID(le.Uint64(ext)),
			RequiredSystemVersion: hos.Version(le.Uint32(ext[0x8:])),
			ExtendedDataSize:      le.Uint32(ext[0xC:]),
		}
		return int(c.Patch.ExtendedDataSize), nil
	case MetaAddOnContent:
		c.AddOnContent = &AddOnContentExt{
			ApplicationID:              hos.TitleID(le.Uint64(ext)),
			RequiredApplicationVersion: hos.Version(le.Uint32(ext[0x8:])),
			ContentAccessibilities:     ext[0xC],
			DataPatchID:                hos.TitleID(le.Uint64(ext[0x10:])),
		}
	case MetaDelta:
		c.Delta = &DeltaExt{
			ApplicationID:    hos.TitleID(le.Uint64(ext)),
			ExtendedDataSize: le.Uint32(ext[0x8:]),
		}
		return int(c.Delta.ExtendedDataSize), nil
	case MetaSystemUpdate:
		if len(ext) >= 4 {
			c.SystemUpdate = &SystemUpdateExt{ExtendedDataSize: le.Uint32(ext)}
			return int(c.SystemUpdate.ExtendedDataSize), nil
		}
	}
	// Remaining types carry extensions this reader has no use for; the
	// declared size still positions the tables.
	return 0, nil
}
