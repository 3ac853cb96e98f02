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

package info

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/urfave/cli/v2"

	"github.com/hacfs/hacfs/cmd/hacfs/commands"
	"github.com/hacfs/hacfs/pkg/hos"
)

// Command prints a summary of one archive or container.
var Command = &cli.Command{
	Name:      "info",
	Usage:     "Print an archive or container summary",
	ArgsUsage: "<file>",
	Action: func(cliContext *cli.Context) error {
		path := cliContext.Args().First()
		if path == "" {
			return errors.New("please provide a file to inspect")
		}
		a, err := commands.OpenArchive(cliContext, path)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.PFS != nil {
			return printPartition(a)
		}
		return printContainer(a)
	},
}

func printPartition(a *commands.Archive) error {
	files := a.PFS.Files()
	fmt.Printf("path:    %s\n", a.Path)
	fmt.Printf("format:  partition archive\n")
	fmt.Printf("size:    %s\n", units.HumanSize(float64(a.File.Size())))
	fmt.Printf("entries: %d\n", len(files))

	w := tabwriter.NewWriter(os.Stdout, 4, 8, 4, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\t")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t\n", f.Name, units.HumanSize(float64(f.Size)))
	}
	return w.Flush()
}

func printContainer(a *commands.Archive) error {
	h := a.NCA.Header()
	fmt.Printf("path:           %s\n", a.Path)
	fmt.Printf("size:           %s\n", units.HumanSize(float64(h.Size)))
	if stored := a.File.Size(); stored != h.Size {
		// A recompressed container is smaller on disk than it declares.
		fmt.Printf("stored size:    %s\n", units.HumanSize(float64(stored)))
	}
	fmt.Printf("content type:   %s\n", h.ContentType)
	fmt.Printf("title id:       %s\n", h.TitleID)
	fmt.Printf("distribution:   %s\n", h.Distribution)
	fmt.Printf("key generation: %d\n", h.KeyGeneration())
	if h.RightsID != (hos.RightsID{}) {
		fmt.Printf("rights id:      %s\n", h.RightsID)
	}
	fmt.Printf("sdk version:    %d.%d.%d.%d\n",
		h.SDKVersion>>24&0xff, h.SDKVersion>>16&0xff, h.SDKVersion>>8&0xff, h.SDKVersion&0xff)

	w := tabwriter.NewWriter(os.Stdout, 4, 8, 4, ' ', 0)
	fmt.Fprintln(w, "SECTION\tTYPE\tFORMAT\tHASH\tENCRYPTION\tOFFSET\tSIZE\tNOTES\t")
	for _, s := range a.NCA.Sections() {
		fh := s.Header()
		var notes []string
		if fh.IsPatch {
			notes = append(notes, "patch")
		}
		if fh.IsSparse {
			notes = append(notes, "sparse")
		}
		if fh.IsCompressed {
			notes = append(notes, "compressed")
		}
		note := strings.Join(notes, ",")
		if note == "" {
			note = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%#x\t%s\t%s\t\n",
			s.Index, s.Type, fh.Format, fh.Hash, fh.Encryption,
			s.Offset(), units.HumanSize(float64(s.Size())), note)
	}
	return w.Flush()
}
