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

package hactest

import "encoding/binary"

// PFS0File is one member of a flat partition image.
type PFS0File struct {
	Name string
	Data []byte
}

// BuildPFS0 encodes a flat partition image holding the given files in
// order.
func BuildPFS0(files ...PFS0File) []byte {
	var (
		le       = binary.LittleEndian
		names    []byte
		nameOffs = make([]uint32, len(files))
	)
	for i, f := range files {
		nameOffs[i] = uint32(len(names))
		names = append(names, f.Name...)
		names = append(names, 0)
	}

	out := make([]byte, 0x10+0x18*len(files)+len(names))
	copy(out, "PFS0")
	le.PutUint32(out[0x4:], uint32(len(files)))
	le.PutUint32(out[0x8:], uint32(len(names)))
	copy(out[0x10+0x18*len(files):], names)

	var dataOff uint64
	for i, f := range files {
		e := out[0x10+0x18*i:]
		le.PutUint64(e[0x0:], dataOff)
		le.PutUint64(e[0x8:], uint64(len(f.Data)))
		le.PutUint32(e[0x10:], nameOffs[i])
		dataOff += uint64(len(f.Data))
	}
	for _, f := range files {
		out = append(out, f.Data...)
	}
	return out
}
