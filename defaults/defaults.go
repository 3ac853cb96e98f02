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

// Package defaults holds cross-package default names and locations.
package defaults

import (
	"os"
	"path/filepath"
)

const (
	// DefaultKeysDirName is the per-user directory searched for key
	// tables. It is resolved under the user configuration directory and,
	// as a dot directory, under the home directory.
	DefaultKeysDirName = "switch"

	// DefaultProdKeysFile is the file name of the production key table
	// inside a keys directory.
	DefaultProdKeysFile = "prod.keys"

	// DefaultTitleKeysFile is the file name of the title key table inside
	// a keys directory.
	DefaultTitleKeysFile = "title.keys"

	// DefaultScanCacheFile is the file name of the bolt database caching
	// container scan results between runs.
	DefaultScanCacheFile = "hacfs-scan.db"

	// DefaultConfigFile is the file name of the optional tool
	// configuration inside a keys directory.
	DefaultConfigFile = "hacfs.toml"
)

// KeysDirs returns the candidate key directories in search order. Callers
// use the first directory that holds a production key table.
func KeysDirs() []string {
	var dirs []string
	if conf, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(conf, DefaultKeysDirName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "."+DefaultKeysDirName))
	}
	return dirs
}

// ScanCachePath returns the default scan cache location under the user
// cache directory, or the empty string when none is available.
func ScanCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, DefaultScanCacheFile)
}

// ConfigPath returns the default configuration file location, or the
// empty string when no candidate directory resolves.
func ConfigPath() string {
	dirs := KeysDirs()
	if len(dirs) == 0 {
		return ""
	}
	return filepath.Join(dirs[0], DefaultConfigFile)
}
