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

package storage

type bytesReaderAt struct {
	b []byte
}

// Bytes returns a ReaderAt serving the given slice. The slice is not
// copied; the caller must not mutate it while the reader is in use.
func Bytes(b []byte) ReaderAt {
	return &bytesReaderAt{b: b}
}

func (r *bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if err := CheckRange(r.Size(), off, len(p)); err != nil {
		return 0, err
	}
	return copy(p, r.b[off:]), nil
}

func (r *bytesReaderAt) Size() int64 {
	return int64(len(r.b))
}
