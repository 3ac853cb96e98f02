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

import (
	"encoding/binary"

	"github.com/klauspost/compress/zstd"
)

const nczBlockSize = 1 << 14

// BuildNCZ builds a container through BuildNCA and recompresses it into
// the zstd layout: the first 0x4000 bytes verbatim, then the section
// table, then the body as one solid stream or as independent blocks.
// The body is stored decrypted, so the source is forced to a plaintext
// body. Returned section ranges describe the decompressed layout.
func BuildNCZ(p NCAParams, blockMode bool) NCAImage {
	p.Plaintext = false
	p.PlaintextBody = true
	img := BuildNCA(p)
	body := img.Data[0x4000:]

	out := append([]byte(nil), img.Data[:0x4000]...)
	out = append(out, "NCZSECTN"...)
	out = le64(out, uint64(len(img.Sections)))
	for _, s := range img.Sections {
		out = le64(out, uint64(s.Start))
		out = le64(out, uint64(s.End-s.Start))
		out = le64(out, 3) // ctr crypto
		out = le64(out, 0)
		out = append(out, SectionKey[:]...)
		out = append(out, make([]byte, 16)...)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
	defer enc.Close()

	if !blockMode {
		return NCAImage{Data: enc.EncodeAll(body, out), Sections: img.Sections}
	}

	var (
		frames []byte
		sizes  []uint32
	)
	for off := 0; off < len(body); off += nczBlockSize {
		end := off + nczBlockSize
		if end > len(body) {
			end = len(body)
		}
		chunk := body[off:end]
		frame := enc.EncodeAll(chunk, nil)
		if len(frame) >= len(chunk) {
			// Incompressible blocks are stored raw; equal sizes mark them.
			frame = chunk
		}
		frames = append(frames, frame...)
		sizes = append(sizes, uint32(len(frame)))
	}

	out = append(out, "NCZBLOCK"...)
	out = append(out, 2, 1, 0, 14)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(sizes)))
	out = le64(out, uint64(len(body)))
	for _, s := range sizes {
		out = binary.LittleEndian.AppendUint32(out, s)
	}
	out = append(out, frames...)
	return NCAImage{Data: out, Sections: img.Sections}
}

func le64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}
