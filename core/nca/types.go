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

import "fmt"

// ContentType tells what role a container plays within a title.
type ContentType uint8

const (
	ContentProgram ContentType = iota
	ContentMeta
	ContentControl
	ContentManual
	ContentData
	ContentPublicData
)

func (c ContentType) String() string {
	switch c {
	case ContentProgram:
		return "program"
	case ContentMeta:
		return "meta"
	case ContentControl:
		return "control"
	case ContentManual:
		return "manual"
	case ContentData:
		return "data"
	case ContentPublicData:
		return "public-data"
	}
	return fmt.Sprintf("contenttype(%d)", uint8(c))
}

// DistributionType tells how the container was distributed.
type DistributionType uint8

const (
	DistributionDownload DistributionType = iota
	DistributionGameCard
)

func (d DistributionType) String() string {
	switch d {
	case DistributionDownload:
		return "download"
	case DistributionGameCard:
		return "gamecard"
	}
	return fmt.Sprintf("distribution(%d)", uint8(d))
}

// SectionType is the role of a section, derived from its index and the
// container's content type.
type SectionType uint8

const (
	SectionData SectionType = iota
	SectionCode
	SectionLogo
)

func (s SectionType) String() string {
	switch s {
	case SectionData:
		return "data"
	case SectionCode:
		return "code"
	case SectionLogo:
		return "logo"
	}
	return fmt.Sprintf("sectiontype(%d)", uint8(s))
}

// FormatType is the filesystem format of a section payload.
type FormatType uint8

const (
	FormatRomFS FormatType = iota
	FormatPFS0
)

func (f FormatType) String() string {
	switch f {
	case FormatRomFS:
		return "romfs"
	case FormatPFS0:
		return "pfs0"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// HashType is the integrity scheme covering a section payload.
type HashType uint8

const (
	HashAuto HashType = iota
	HashNone
	HashSha256
	HashIvfc
)

func (h HashType) String() string {
	switch h {
	case HashAuto:
		return "auto"
	case HashNone:
		return "none"
	case HashSha256:
		return "sha256"
	case HashIvfc:
		return "ivfc"
	}
	return fmt.Sprintf("hash(%d)", uint8(h))
}

// EncryptionType is the cipher scheme of a section payload.
type EncryptionType uint8

const (
	EncryptionAuto EncryptionType = iota
	EncryptionNone
	EncryptionXTS
	EncryptionCTR
	EncryptionCTREx
)

func (e EncryptionType) String() string {
	switch e {
	case EncryptionAuto:
		return "auto"
	case EncryptionNone:
		return "none"
	case EncryptionXTS:
		return "xts"
	case EncryptionCTR:
		return "ctr"
	case EncryptionCTREx:
		return "ctr-ex"
	}
	return fmt.Sprintf("encryption(%d)", uint8(e))
}
