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

package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hacfs/hacfs/core/fs"
	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/internal/hactest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/", nil},
		{"a", []string{"a"}},
		{"/a/b/c", []string{"a", "b", "c"}},
		{"a//b/", []string{"a", "b"}},
		{"./a/./b", []string{"a", "b"}},
	} {
		got, err := fs.SplitPath(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := fs.SplitPath("a/../b")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestOpenDescends(t *testing.T) {
	fsys := hactest.MapFS{
		"top.bin":      []byte("top"),
		"dir/deep.bin": []byte("deep"),
	}

	got, err := fs.ReadFile(fsys, "dir/deep.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("deep"), got)

	_, err = fs.Open(fsys, "dir/missing")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
	_, err = fs.Open(fsys, "")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	d, err := fs.OpenDir(fsys, "dir")
	require.NoError(t, err)
	entries, err := d.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "deep.bin", entries[0].Name)
}

func TestWalkSkipDir(t *testing.T) {
	fsys := hactest.MapFS{
		"a/one":  []byte("1"),
		"b/two":  []byte("2"),
		"c.root": []byte("3"),
	}

	var paths []string
	err := fs.Walk(fsys, func(path string, e fs.Entry) error {
		paths = append(paths, path)
		if path == "a" {
			return fs.SkipDir
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "b/two", "c.root"}, paths)
}

func TestMergeFirstLayerWins(t *testing.T) {
	lower := hactest.MapFS{
		"shared.bin": []byte("lower"),
		"only/low":   []byte("low"),
	}
	upper := hactest.MapFS{
		"shared.bin": []byte("upper"),
		"only/high":  []byte("high"),
		"extra.bin":  []byte("extra"),
	}

	m := fs.Merge(upper, lower)

	got, err := fs.ReadFile(m, "shared.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("upper"), got)

	// Directories union across layers.
	got, err = fs.ReadFile(m, "only/low")
	require.NoError(t, err)
	assert.Equal(t, []byte("low"), got)
	got, err = fs.ReadFile(m, "only/high")
	require.NoError(t, err)
	assert.Equal(t, []byte("high"), got)

	entries, err := m.Root().Entries()
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.ElementsMatch(t, []string{"shared.bin", "only", "extra.bin"}, names)

	_, err = fs.Open(m, "nope")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestOSDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.nca"), []byte("content a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "nested", "b.tik"), []byte("ticket"), 0o644))

	fsys := fs.OSDir(root)

	entries, err := fsys.Root().Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.nca", entries[0].Name)
	assert.EqualValues(t, 9, entries[0].Size)
	assert.False(t, entries[0].ModTime.IsZero())
	assert.Equal(t, fs.Entry{Name: "nested", Dir: true}, entries[1])

	got, err := fs.ReadFile(fsys, "nested/b.tik")
	require.NoError(t, err)
	assert.Equal(t, []byte("ticket"), got)

	_, err = fs.Open(fsys, "missing.bin")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
	_, err = fs.OpenDir(fsys, "a.nca")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}
