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

// Package commands holds the pieces shared by the hacfs subcommands:
// the tool configuration, key set resolution and input file opening.
package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v2"

	"github.com/hacfs/hacfs/core/fs/pfs0"
	"github.com/hacfs/hacfs/core/nca"
	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/defaults"
	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/keyset"
)

// ConfigKey addresses the loaded configuration in App.Metadata.
const ConfigKey = "hacfs/config"

// Config is the optional TOML tool configuration.
type Config struct {
	// Keys is the production key table path.
	Keys string `toml:"keys"`
	// TitleKeys is the title key table path.
	TitleKeys string `toml:"title_keys"`
	// LogLevel overrides the default logging level.
	LogLevel string `toml:"log_level"`
	// Cache is the scan cache location. "none" disables caching.
	Cache string `toml:"cache"`
}

// LoadConfig reads the tool configuration from disk in TOML format.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	config := Config{}
	if err := toml.NewDecoder(f).Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return &config, nil
}

// ConfigFrom returns the configuration the app's Before hook loaded.
func ConfigFrom(cliContext *cli.Context) *Config {
	if config, ok := cliContext.App.Metadata[ConfigKey].(*Config); ok {
		return config
	}
	return &Config{}
}

// Keys resolves the key set: explicit flags win over configuration
// paths, which win over the default key directories.
func Keys(cliContext *cli.Context) (*keyset.Set, error) {
	config := ConfigFrom(cliContext)
	prod := cliContext.String("keys")
	if prod == "" {
		prod = config.Keys
	}
	title := cliContext.String("title-keys")
	if title == "" {
		title = config.TitleKeys
	}
	if prod != "" {
		return keyset.FromFiles(prod, title)
	}
	ks, err := keyset.Discover(cliContext.Context)
	if err != nil {
		return nil, err
	}
	if title != "" {
		if err := ks.LoadTitleKeys(title); err != nil {
			return nil, err
		}
	}
	return ks, nil
}

// CachePath resolves the scan cache location: the configuration value
// when set ("none" disables the cache), the per-user default otherwise.
func CachePath(cliContext *cli.Context) string {
	config := ConfigFrom(cliContext)
	switch config.Cache {
	case "none":
		return ""
	case "":
		return defaults.ScanCachePath()
	}
	return config.Cache
}

// Archive is an opened input file: a partition archive or a single
// content container, depending on which field is set.
type Archive struct {
	Path string
	File *storage.File
	PFS  *pfs0.FS
	NCA  *nca.NCA
}

func (a *Archive) Close() error {
	return a.File.Close()
}

// FindSection resolves a section by its type name or index.
func FindSection(n *nca.NCA, name string) (*nca.Section, error) {
	for _, s := range n.Sections() {
		if s.Type.String() == name || strconv.Itoa(s.Index) == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no section %q in container: %w", name, errdefs.ErrNotFound)
}

// OpenArchive opens path as a partition archive when it starts with the
// partition magic, as a content container otherwise. Key material is
// only resolved for containers; partition archives need none.
func OpenArchive(cliContext *cli.Context, path string) (*Archive, error) {
	ctx := cliContext.Context
	f, err := storage.OpenFile(path)
	if err != nil {
		return nil, err
	}
	var magic [4]byte
	if _, err := f.ReadAt(magic[:], 0); err == nil && string(magic[:]) == "PFS0" {
		p, err := pfs0.Parse(ctx, f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &Archive{Path: path, File: f, PFS: p}, nil
	}
	ks, err := Keys(cliContext)
	if err != nil {
		f.Close()
		return nil, err
	}
	n, err := nca.Open(ctx, f, ks)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Archive{Path: path, File: f, NCA: n}, nil
}
