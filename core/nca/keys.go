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
	"fmt"

	"github.com/hacfs/hacfs/core/storage/crypt"
	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/keyset"
)

// masterKeyRevision maps the header's key generation to the index used by
// key derivation. Generations 0 and 1 both decrypt with revision 0.
func masterKeyRevision(generation uint8) uint8 {
	if generation == 0 {
		return 0
	}
	return generation - 1
}

// sectionKeys holds the unwrapped payload ciphers of one container.
type sectionKeys struct {
	ctr [16]byte
	xts [32]byte
}

// resolveKeys unwraps the container's payload keys, either through the
// title key named by the rights ID or through the header's key area.
func resolveKeys(ks *keyset.Set, hdr *Header) (sectionKeys, error) {
	var keys sectionKeys
	rev := masterKeyRevision(hdr.KeyGeneration())

	if !hdr.RightsID.IsZero() {
		wrapped, err := ks.TitleKey(hdr.RightsID)
		if err != nil {
			return keys, err
		}
		kek, err := ks.TitleKek(rev)
		if err != nil {
			return keys, err
		}
		if err := crypt.DecryptECB(keys.ctr[:], wrapped[:], kek[:]); err != nil {
			return keys, err
		}
		return keys, nil
	}

	kak, err := ks.KeyAreaKey(keyset.KeyAreaIndex(hdr.KeyAreaIndex), rev)
	if err != nil {
		return keys, err
	}
	if err := crypt.DecryptECB(keys.ctr[:], hdr.keyArea.CTR[:], kak[:]); err != nil {
		return keys, err
	}
	if err := crypt.DecryptECB(keys.xts[:], hdr.keyArea.XTS[:], kak[:]); err != nil {
		return keys, err
	}
	return keys, nil
}

// decryptHeaders returns the plaintext main header and the four section fs
// headers from the raw front of the file. Plaintext dumps are recognized
// and passed through unchanged.
func decryptHeaders(raw []byte, ks *keyset.Set) (main []byte, fs [][]byte, err error) {
	if len(raw) != headersLen {
		return nil, nil, fmt.Errorf("header region is %d bytes, need %d: %w", len(raw), headersLen, errdefs.ErrMalformedRecord)
	}

	buf := make([]byte, headersLen)
	copy(buf, raw)
	fs = make([][]byte, maxSections)
	for i := range fs {
		fs[i] = buf[mainHeaderLen+i*fsHeaderLen : mainHeaderLen+(i+1)*fsHeaderLen]
	}

	if validMagic(buf[0x200:0x204]) {
		return buf[:mainHeaderLen], fs, nil
	}

	hk, err := ks.HeaderKey()
	if err != nil {
		return nil, nil, err
	}
	x, err := crypt.NewXTS(hk)
	if err != nil {
		return nil, nil, err
	}
	for sector := 0; sector < mainHeaderLen/sectorLen; sector++ {
		if err := x.DecryptSector(buf[sector*sectorLen:(sector+1)*sectorLen], uint64(sector)); err != nil {
			return nil, nil, err
		}
	}
	if !validMagic(buf[0x200:0x204]) {
		return nil, nil, fmt.Errorf("bad container magic after header decryption (wrong header key?): %w", errdefs.ErrMalformedRecord)
	}

	switch version := buf[0x203]; version {
	case '3':
		// One continuous XTS run across the whole header region.
		for sector := mainHeaderLen / sectorLen; sector < headersLen/sectorLen; sector++ {
			if err := x.DecryptSector(buf[sector*sectorLen:(sector+1)*sectorLen], uint64(sector)); err != nil {
				return nil, nil, err
			}
		}
	case '2':
		// Each fs header restarts its sector counter.
		for i := range fs {
			if err := x.DecryptSector(fs[i][:sectorLen], 0); err != nil {
				return nil, nil, err
			}
		}
	default:
		return nil, nil, fmt.Errorf("container version NCA%c: %w", version, errdefs.ErrNotImplemented)
	}
	return buf[:mainHeaderLen], fs, nil
}
