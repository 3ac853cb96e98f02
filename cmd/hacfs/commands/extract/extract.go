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

package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/urfave/cli/v2"

	"github.com/hacfs/hacfs/cmd/hacfs/commands"
	"github.com/hacfs/hacfs/core/fs"
	"github.com/hacfs/hacfs/core/nca"
)

// Command extracts archive contents to a host directory. Container
// section payloads pass through decryption and integrity verification
// on the way out.
var Command = &cli.Command{
	Name:      "extract",
	Usage:     "Extract archive contents to a directory",
	ArgsUsage: "<file> <dest>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "section",
			Usage: "Only extract the named container section",
		},
	},
	Action: func(cliContext *cli.Context) error {
		path := cliContext.Args().First()
		if path == "" {
			return errors.New("please provide a file to extract")
		}
		dest := cliContext.Args().Get(1)
		if dest == "" {
			return errors.New("please provide a destination directory")
		}
		a, err := commands.OpenArchive(cliContext, path)
		if err != nil {
			return err
		}
		defer a.Close()

		var (
			files int
			total int64
			start = time.Now()
		)
		if a.PFS != nil {
			if cliContext.String("section") != "" {
				return fmt.Errorf("%s is a partition archive, not a sectioned container", path)
			}
			files, total, err = extractTree(a.PFS, dest)
		} else {
			files, total, err = extractContainer(cliContext, a.NCA, dest)
		}
		if err != nil {
			return err
		}
		fmt.Printf("extracted %d files (%s) in %s\n",
			files, units.HumanSize(float64(total)), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func extractContainer(cliContext *cli.Context, n *nca.NCA, dest string) (int, int64, error) {
	sections := n.Sections()
	if name := cliContext.String("section"); name != "" {
		s, err := commands.FindSection(n, name)
		if err != nil {
			return 0, 0, err
		}
		sections = []*nca.Section{s}
	}
	var (
		files int
		total int64
	)
	for _, s := range sections {
		fsys, err := s.OpenFS(cliContext.Context)
		if err != nil {
			return files, total, err
		}
		out := dest
		if len(sections) > 1 {
			out = filepath.Join(dest, s.Type.String())
		}
		n, size, err := extractTree(fsys, out)
		files += n
		total += size
		if err != nil {
			return files, total, err
		}
	}
	return files, total, nil
}

func extractTree(fsys fs.FS, dest string) (int, int64, error) {
	var (
		files int
		total int64
	)
	err := fs.Walk(fsys, func(path string, e fs.Entry) error {
		target := filepath.Join(dest, filepath.FromSlash(path))
		if e.Dir {
			return os.MkdirAll(target, 0o755)
		}
		f, err := fs.Open(fsys, path)
		if err != nil {
			return err
		}
		if closer, ok := f.(io.Closer); ok {
			defer closer.Close()
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		n, err := io.Copy(out, io.NewSectionReader(f, 0, f.Size()))
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("extracting %s: %w", path, err)
		}
		files++
		total += n
		return nil
	})
	return files, total, err
}
