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

import "sort"

type concat struct {
	parts []ReaderAt
	// starts[i] is the offset of parts[i] in the combined view.
	starts []int64
	size   int64
}

// Concat returns a ReaderAt serving the given sources back to back.
func Concat(parts ...ReaderAt) ReaderAt {
	c := &concat{
		parts:  parts,
		starts: make([]int64, len(parts)),
	}
	for i, p := range parts {
		c.starts[i] = c.size
		c.size += p.Size()
	}
	return c
}

func (c *concat) ReadAt(p []byte, off int64) (int, error) {
	if err := CheckRange(c.size, off, len(p)); err != nil {
		return 0, err
	}
	// First part extending past off.
	i := sort.Search(len(c.parts), func(i int) bool {
		return c.starts[i]+c.parts[i].Size() > off
	})
	total := 0
	for total < len(p) {
		part, rel := c.parts[i], off-c.starts[i]
		n := len(p) - total
		if max := part.Size() - rel; int64(n) > max {
			n = int(max)
		}
		if _, err := part.ReadAt(p[total:total+n], rel); err != nil {
			return 0, err
		}
		total += n
		off += int64(n)
		i++
	}
	return total, nil
}

func (c *concat) Size() int64 {
	return c.size
}
