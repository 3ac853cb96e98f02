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
	"io"
	"os"
)

// File is a file-backed ReaderAt. Concurrent reads are safe; Close
// invalidates all outstanding views derived from it.
type File struct {
	f    *os.File
	size int64
}

// OpenFile opens the file at path for random-access reading.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, size: fi.Size()}, nil
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if err := CheckRange(f.size, off, len(p)); err != nil {
		return 0, err
	}
	n, err := f.f.ReadAt(p, off)
	if err != nil {
		return 0, fmt.Errorf("%s: short read at %d: %w", f.f.Name(), off, err)
	}
	return n, nil
}

func (f *File) Size() int64 {
	return f.size
}

func (f *File) Close() error {
	return f.f.Close()
}

// Name returns the path the file was opened with.
func (f *File) Name() string {
	return f.f.Name()
}

type readerAt struct {
	r    io.ReaderAt
	size int64
}

// FromReaderAt adapts an arbitrary io.ReaderAt of known size to the
// strict ReaderAt contract.
func FromReaderAt(r io.ReaderAt, size int64) ReaderAt {
	return &readerAt{r: r, size: size}
}

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	if err := CheckRange(r.size, off, len(p)); err != nil {
		return 0, err
	}
	n, err := r.r.ReadAt(p, off)
	if n == len(p) {
		return n, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return 0, fmt.Errorf("short read at %d: %w", off, err)
}

func (r *readerAt) Size() int64 {
	return r.size
}
