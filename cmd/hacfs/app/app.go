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

package app

import (
	"fmt"
	"os"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/hacfs/hacfs/cmd/hacfs/commands"
	"github.com/hacfs/hacfs/cmd/hacfs/commands/extract"
	"github.com/hacfs/hacfs/cmd/hacfs/commands/info"
	"github.com/hacfs/hacfs/cmd/hacfs/commands/list"
	"github.com/hacfs/hacfs/cmd/hacfs/commands/rename"
	"github.com/hacfs/hacfs/cmd/hacfs/commands/titles"
	"github.com/hacfs/hacfs/defaults"
	"github.com/hacfs/hacfs/version"
)

func init() {
	cli.VersionPrinter = func(cliContext *cli.Context) {
		fmt.Println(cliContext.App.Name, version.Package, cliContext.App.Version)
	}
}

// New returns a *cli.App instance.
func New() *cli.App {
	app := cli.NewApp()
	app.Name = "hacfs"
	app.Version = version.Version
	app.Usage = "inspect and extract console content archives"
	app.Description = `
hacfs reads content containers (NCA, recompressed NCZ) and partition
archives (NSP): print their headers, list and extract their section
filesystems, and correlate whole directories of content into titles.

Keys are looked up in the usual key directories unless --keys and
--title-keys point elsewhere. An optional TOML configuration file can
set the same paths plus the log level and the scan cache location.`
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "keys",
			Usage: "Path to the production key table",
		},
		&cli.StringFlag{
			Name:  "title-keys",
			Usage: "Path to the title key table",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the configuration file",
			Value:   defaults.ConfigPath(),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Usage:   "Set the logging level [trace, debug, info, warn, error, fatal, panic]",
		},
	}
	app.Commands = []*cli.Command{
		info.Command,
		list.Command,
		titles.Command,
		extract.Command,
		rename.Command,
	}
	app.Before = func(cliContext *cli.Context) error {
		config := &commands.Config{}
		// Only try to load the config if it either exists, or the user
		// explicitly told us to load this path.
		configPath := cliContext.String("config")
		if configPath != "" {
			_, err := os.Stat(configPath)
			if !os.IsNotExist(err) || cliContext.IsSet("config") {
				config, err = commands.LoadConfig(configPath)
				if err != nil {
					return err
				}
			}
		}
		cliContext.App.Metadata[commands.ConfigKey] = config

		logrus.SetOutput(os.Stderr)
		if err := setLogLevel(cliContext, config); err != nil {
			return err
		}
		return log.SetFormat(log.TextFormat)
	}
	return app
}

func setLogLevel(cliContext *cli.Context, config *commands.Config) error {
	l := cliContext.String("log-level")
	if l == "" {
		l = config.LogLevel
	}
	if l != "" {
		return log.SetLevel(l)
	}
	return nil
}
