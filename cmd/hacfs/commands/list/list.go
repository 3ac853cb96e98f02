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

package list

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/urfave/cli/v2"

	"github.com/hacfs/hacfs/cmd/hacfs/commands"
	"github.com/hacfs/hacfs/core/fs"
	"github.com/hacfs/hacfs/core/nca"
)

// Command lists the entries of a partition archive or of a container's
// section filesystems.
var Command = &cli.Command{
	Name:      "ls",
	Aliases:   []string{"list"},
	Usage:     "List filesystem entries",
	ArgsUsage: "<file> [section]",
	Description: `List the files inside an archive. For containers the optional section
argument ("data", "code", "logo" or an index) limits the listing to one
section; otherwise every section is listed, prefixed with its type.`,
	Action: func(cliContext *cli.Context) error {
		path := cliContext.Args().First()
		if path == "" {
			return errors.New("please provide a file to list")
		}
		a, err := commands.OpenArchive(cliContext, path)
		if err != nil {
			return err
		}
		defer a.Close()

		w := tabwriter.NewWriter(os.Stdout, 4, 8, 4, ' ', 0)
		fmt.Fprintln(w, "PATH\tSIZE\t")

		if a.PFS != nil {
			if cliContext.Args().Get(1) != "" {
				return fmt.Errorf("%s is a partition archive, not a sectioned container", path)
			}
			if err := listTree(w, a.PFS, ""); err != nil {
				return err
			}
			return w.Flush()
		}

		sections := a.NCA.Sections()
		if name := cliContext.Args().Get(1); name != "" {
			s, err := commands.FindSection(a.NCA, name)
			if err != nil {
				return err
			}
			sections = []*nca.Section{s}
		}
		for _, s := range sections {
			fsys, err := s.OpenFS(cliContext.Context)
			if err != nil {
				return err
			}
			prefix := ""
			if len(sections) > 1 {
				prefix = s.Type.String() + "/"
			}
			if err := listTree(w, fsys, prefix); err != nil {
				return err
			}
		}
		return w.Flush()
	},
}

func listTree(w io.Writer, fsys fs.FS, prefix string) error {
	return fs.Walk(fsys, func(path string, e fs.Entry) error {
		if e.Dir {
			fmt.Fprintf(w, "%s%s/\t\t\n", prefix, path)
			return nil
		}
		fmt.Fprintf(w, "%s%s\t%s\t\n", prefix, path, units.HumanSize(float64(e.Size)))
		return nil
	})
}
