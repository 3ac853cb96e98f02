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

package titles

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/containerd/log"
	"github.com/urfave/cli/v2"

	"github.com/hacfs/hacfs/cmd/hacfs/commands"
	"github.com/hacfs/hacfs/core/catalog"
	"github.com/hacfs/hacfs/core/fs"
	"github.com/hacfs/hacfs/core/nacp"
)

// Command scans a directory tree of content files and prints the
// correlated titles.
var Command = &cli.Command{
	Name:      "titles",
	Usage:     "Scan a directory tree and print its titles",
	ArgsUsage: "<dir>",
	Description: `Walk a directory tree of content containers and tickets, correlate them
into titles and print the joined application view: each base application
with its patches and add-on content. Files that cannot be read are
logged and skipped.

Scan results for unchanged files come from the scan cache; --no-cache
forces every container to be reopened.`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "all",
			Usage: "Print every meta record instead of the joined application view",
		},
		&cli.BoolFlag{
			Name:  "no-cache",
			Usage: "Do not consult or update the scan cache",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Number of containers opened in parallel (defaults to the CPU count)",
		},
	},
	Action: func(cliContext *cli.Context) error {
		dir := cliContext.Args().First()
		if dir == "" {
			return errors.New("please provide a directory to scan")
		}
		ks, err := commands.Keys(cliContext)
		if err != nil {
			return err
		}
		ctx := cliContext.Context

		var opts []catalog.ScanOpt
		if !cliContext.Bool("no-cache") {
			if path := commands.CachePath(cliContext); path != "" {
				cache, err := catalog.OpenCache(path)
				if err != nil {
					// The cache is advisory; scan without it.
					log.G(ctx).WithError(err).Warn("scan cache unavailable")
				} else {
					defer cache.Close()
					opts = append(opts, catalog.WithCache(cache))
				}
			}
		}
		if n := cliContext.Int("concurrency"); n > 0 {
			opts = append(opts, catalog.WithConcurrency(n))
		}

		cat, err := catalog.Scan(ctx, fs.OSDir(dir), ks, opts...)
		if err != nil {
			return err
		}
		if skipped := cat.Skipped(); len(skipped) > 0 {
			fmt.Fprintf(os.Stderr, "%d files skipped\n", len(skipped))
		}

		if cliContext.Bool("all") {
			return printTitles(cat)
		}
		return printApplications(cat)
	},
}

func printApplications(cat *catalog.Catalog) error {
	w := tabwriter.NewWriter(os.Stdout, 4, 8, 4, ' ', 0)
	fmt.Fprintln(w, "TITLE ID\tNAME\tPUBLISHER\tVERSION\tDISPLAY\tPATCHES\tADD-ONS\t")
	for _, a := range cat.Applications() {
		name, publisher, display := controlFields(a.Control())
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t\n",
			a.Base.Key.ID, name, publisher, a.Version(), display,
			len(a.Patches), len(a.AddOns))
	}
	return w.Flush()
}

func printTitles(cat *catalog.Catalog) error {
	w := tabwriter.NewWriter(os.Stdout, 4, 8, 4, ' ', 0)
	fmt.Fprintln(w, "TITLE ID\tVERSION\tKIND\tCONTENTS\tNAME\t")
	for _, t := range cat.Titles() {
		name, _, _ := controlFields(t.Control())
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t\n",
			t.Key.ID, t.Key.Version, t.Key.Type, len(t.Contents), name)
	}
	return w.Flush()
}

func controlFields(n *nacp.NACP) (name, publisher, display string) {
	name, publisher, display = "-", "-", "-"
	if n == nil {
		return
	}
	if t := n.AnyTitle(); t != nil {
		if t.Name != "" {
			name = t.Name
		}
		if t.Publisher != "" {
			publisher = t.Publisher
		}
	}
	if n.DisplayVersion != "" {
		display = n.DisplayVersion
	}
	return
}
