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

package rename

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/log"
	"github.com/urfave/cli/v2"

	"github.com/hacfs/hacfs/cmd/hacfs/commands"
	"github.com/hacfs/hacfs/core/catalog"
	"github.com/hacfs/hacfs/core/cnmt"
	"github.com/hacfs/hacfs/core/fs/pfs0"
	"github.com/hacfs/hacfs/core/storage"
	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/keyset"
)

// Command renames partition archives in a directory to their canonical
// names, derived from the single title each archive carries.
var Command = &cli.Command{
	Name:      "rename",
	Usage:     "Canonicalize archive file names",
	ArgsUsage: "<dir>",
	Description: `Rename every *.nsp in a directory to "{Name} [{TITLEID}][{version}].nsp"
based on the title it contains. A leading bracket tag in the old name,
like "[group] ", is carried over. Archives holding no title or more than
one are left alone with a warning.`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "dry-run",
			Aliases: []string{"n"},
			Usage:   "Print the renames without performing them",
		},
	},
	Action: func(cliContext *cli.Context) error {
		dir := cliContext.Args().First()
		if dir == "" {
			return errors.New("please provide a directory of archives")
		}
		ks, err := commands.Keys(cliContext)
		if err != nil {
			return err
		}
		ctx := cliContext.Context
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}

		dryRun := cliContext.Bool("dry-run")
		renamed := 0
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".nsp") {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			target, err := archiveName(ctx, filepath.Join(dir, e.Name()), ks)
			if err != nil {
				log.G(ctx).WithError(err).WithField("file", e.Name()).Warn("skipping")
				continue
			}
			target = withPrefix(e.Name(), target)
			if target == e.Name() {
				continue
			}
			dest := filepath.Join(dir, target)
			if _, err := os.Stat(dest); err == nil {
				log.G(ctx).WithFields(log.Fields{
					"file":   e.Name(),
					"target": target,
				}).Warn("target exists, skipping")
				continue
			}
			fmt.Printf("%s -> %s\n", e.Name(), target)
			if dryRun {
				continue
			}
			if err := os.Rename(filepath.Join(dir, e.Name()), dest); err != nil {
				return err
			}
			renamed++
		}
		if !dryRun {
			fmt.Printf("renamed %d archives\n", renamed)
		}
		return nil
	},
}

// archiveName scans one archive and derives its canonical file name.
func archiveName(ctx context.Context, path string, ks *keyset.Set) (string, error) {
	f, err := storage.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	p, err := pfs0.Parse(ctx, f)
	if err != nil {
		return "", err
	}
	cat, err := catalog.Scan(ctx, p, ks)
	if err != nil {
		return "", err
	}
	titles := cat.Titles()
	switch {
	case len(titles) == 0:
		// Surface why the meta did not resolve, if the scan recorded it.
		for _, s := range cat.Skipped() {
			return "", fmt.Errorf("%s: %w", s.Path, s.Err)
		}
		return "", fmt.Errorf("no titles in archive: %w", errdefs.ErrNotFound)
	case len(titles) > 1:
		return "", fmt.Errorf("archive holds %d titles", len(titles))
	}
	t := titles[0]
	name := ""
	if c := t.Control(); c != nil {
		if title := c.AnyTitle(); title != nil {
			name = title.Name
		}
	}
	return canonicalName(name, t.Key), nil
}

// canonicalName builds the target base name for a title.
func canonicalName(displayName string, key cnmt.Key) string {
	name := sanitizeName(displayName)
	if name == "" {
		name = key.ID.String()
	}
	return fmt.Sprintf("%s [%s][%s].nsp", name, strings.ToUpper(key.ID.String()), key.Version)
}

// sanitizeName strips path separators and the characters portable
// filesystems refuse, then trims the leftovers.
func sanitizeName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return -1
		}
		return r
	}, name)
	clean = strings.Join(strings.Fields(clean), " ")
	return strings.Trim(clean, " .")
}

// withPrefix carries a leading bracket tag from the old base name over
// to the new one.
func withPrefix(oldBase, newBase string) string {
	if !strings.HasPrefix(oldBase, "[") {
		return newBase
	}
	end := strings.Index(oldBase, "]")
	if end < 0 {
		return newBase
	}
	return oldBase[:end+1] + " " + newBase
}
