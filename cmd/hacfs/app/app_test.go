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

package app_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/hacfs/hacfs/cmd/hacfs/app"
	"github.com/hacfs/hacfs/cmd/hacfs/commands"
)

const prodKeys = `
header_key  = 000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f
titlekek_00 = 202122232425262728292a2b2c2d2e2f
`

// run executes the app with a probe command appended so tests can
// observe what the Before hook resolved.
func run(t *testing.T, probe cli.ActionFunc, args ...string) error {
	t.Helper()
	a := app.New()
	a.Commands = append(a.Commands, &cli.Command{
		Name:   "probe",
		Hidden: true,
		Action: probe,
	})
	return a.Run(append([]string{"hacfs"}, append(args, "probe")...))
}

func TestCommandSet(t *testing.T) {
	var names []string
	for _, c := range app.New().Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"info", "ls", "titles", "extract", "rename"}, names)
}

func TestConfigLoading(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hacfs.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"
cache = "none"
keys = "/somewhere/prod.keys"
`), 0o644))

	var config *commands.Config
	err := run(t, func(cliContext *cli.Context) error {
		config = commands.ConfigFrom(cliContext)
		assert.Empty(t, commands.CachePath(cliContext))
		return nil
	}, "--config", path)
	require.NoError(t, err)

	require.NotNil(t, config)
	assert.Equal(t, "/somewhere/prod.keys", config.Keys)
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestConfigMissingExplicit(t *testing.T) {
	err := run(t, func(cliContext *cli.Context) error { return nil },
		"--config", filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorContains(t, err, "no such file")
}

func TestKeyResolution(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	dir := t.TempDir()
	prod := filepath.Join(dir, "prod.keys")
	require.NoError(t, os.WriteFile(prod, []byte(prodKeys), 0o600))

	headerKey := func(cliContext *cli.Context) error {
		ks, err := commands.Keys(cliContext)
		if err != nil {
			return err
		}
		_, err = ks.HeaderKey()
		return err
	}

	// Explicit flag.
	require.NoError(t, run(t, headerKey, "--keys", prod))

	// Path from the configuration file.
	config := filepath.Join(dir, "hacfs.toml")
	require.NoError(t, os.WriteFile(config, []byte(fmt.Sprintf("keys = %q\n", prod)), 0o644))
	require.NoError(t, run(t, headerKey, "--config", config))
}
