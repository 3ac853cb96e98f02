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

package fs

import "errors"

// SkipDir tells Walk not to descend into the directory it was returned
// for.
var SkipDir = errors.New("skip directory")

// WalkFunc is called once per entry with its slash-separated path
// relative to the walk root. Returning SkipDir for a directory prunes
// its subtree; any other error aborts the walk.
type WalkFunc func(path string, entry Entry) error

// Walk visits every entry below the root of fsys, depth first, in
// directory order.
func Walk(fsys FS, fn WalkFunc) error {
	return walkDir(fsys.Root(), "", fn)
}

func walkDir(d Directory, prefix string, fn WalkFunc) error {
	entries, err := d.Entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := e.Name
		if prefix != "" {
			path = prefix + "/" + e.Name
		}
		err := fn(path, e)
		if e.Dir {
			if errors.Is(err, SkipDir) {
				continue
			}
			if err != nil {
				return err
			}
			sub, err := d.OpenDir(e.Name)
			if err != nil {
				return err
			}
			if err := walkDir(sub, path, fn); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}
