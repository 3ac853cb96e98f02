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

import (
	"fmt"

	"github.com/hacfs/hacfs/errdefs"
)

type section struct {
	r    ReaderAt
	off  int64
	size int64
}

// Section returns a view of the byte range [off, off+n) of r. The range
// is validated against r once, at construction.
func Section(r ReaderAt, off, n int64) (ReaderAt, error) {
	if off < 0 || n < 0 || n > r.Size() || off > r.Size()-n {
		return nil, fmt.Errorf("section [%d, +%d) beyond size %d: %w", off, n, r.Size(), errdefs.ErrOutOfBounds)
	}
	if s, ok := r.(*section); ok {
		// Collapse nested sections so deep stacks do not chain views.
		return &section{r: s.r, off: s.off + off, size: n}, nil
	}
	return &section{r: r, off: off, size: n}, nil
}

func (s *section) ReadAt(p []byte, off int64) (int, error) {
	if err := CheckRange(s.size, off, len(p)); err != nil {
		return 0, err
	}
	return s.r.ReadAt(p, s.off+off)
}

func (s *section) Size() int64 {
	return s.size
}
