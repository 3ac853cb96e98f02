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

package keyset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/hos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prodKeys = `
; dumped keys
header_key        = 000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f
titlekek_00       = 202122232425262728292a2b2c2d2e2f
titlekek_03       = 303132333435363738393a3b3c3d3e3f
key_area_key_application_00 = 404142434445464748494a4b4c4d4e4f
key_area_key_ocean_00       = 505152535455565758595a5b5c5d5e5f
key_area_key_system_02      = 606162636465666768696a6b6c6d6e6f
master_key_00     = 707172737475767778797a7b7c7d7e7f
mariko_bek        = 808182838485868788898a8b8c8d8e8f
`

func writeKeys(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadProdKeys(t *testing.T) {
	s := New()
	require.NoError(t, s.LoadProdKeys(writeKeys(t, "prod.keys", prodKeys)))

	hk, err := s.HeaderKey()
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), hk[0])
	assert.Equal(t, byte(0x1f), hk[31])

	kek, err := s.TitleKek(3)
	require.NoError(t, err)
	assert.Equal(t, byte(0x30), kek[0])

	_, err = s.TitleKek(1)
	assert.ErrorIs(t, err, errdefs.ErrUnknownKeyGeneration)

	kak, err := s.KeyAreaKey(KeyAreaSystem, 2)
	require.NoError(t, err)
	assert.Equal(t, byte(0x60), kak[0])

	_, err = s.KeyAreaKey(KeyAreaApplication, 9)
	assert.ErrorIs(t, err, errdefs.ErrUnknownKeyGeneration)

	_, err = s.KeyAreaKey(KeyAreaIndex(7), 0)
	assert.ErrorIs(t, err, errdefs.ErrMalformedRecord)
}

func TestLoadProdKeysRejectsBadMaterial(t *testing.T) {
	s := New()
	err := s.LoadProdKeys(writeKeys(t, "prod.keys", "header_key = 0011\n"))
	assert.ErrorIs(t, err, errdefs.ErrInvalidKeyLength)

	err = s.LoadProdKeys(writeKeys(t, "prod.keys", "titlekek_00 = nothex\n"))
	assert.ErrorIs(t, err, errdefs.ErrMalformedRecord)
}

func TestMissingHeaderKey(t *testing.T) {
	_, err := New().HeaderKey()
	assert.ErrorIs(t, err, errdefs.ErrMissingKey)
}

func TestLoadTitleKeys(t *testing.T) {
	s := New()
	path := writeKeys(t, "title.keys",
		"0100abcd012340000000000000000003 = 707172737475767778797a7b7c7d7e7f\n")
	require.NoError(t, s.LoadTitleKeys(path))

	rights, err := hos.ParseRightsID("0100abcd012340000000000000000003")
	require.NoError(t, err)
	k, err := s.TitleKey(rights)
	require.NoError(t, err)
	assert.Equal(t, byte(0x70), k[0])

	_, err = s.TitleKey(hos.RightsID{})
	assert.ErrorIs(t, err, errdefs.ErrMissingKey)
}

func TestLoadTitleKeysRejectsBadRightsID(t *testing.T) {
	s := New()
	err := s.LoadTitleKeys(writeKeys(t, "title.keys", "zz = 707172737475767778797a7b7c7d7e7f\n"))
	assert.ErrorIs(t, err, errdefs.ErrMalformedRecord)
}

func TestCloneIsIndependent(t *testing.T) {
	s := New()
	require.NoError(t, s.SetHeaderKey(make([]byte, 32)))

	var rights hos.RightsID
	rights[0] = 1

	c := s.Clone()
	c.AddTitleKey(rights, [16]byte{0xAA})

	_, err := c.TitleKey(rights)
	assert.NoError(t, err)
	_, err = s.TitleKey(rights)
	assert.ErrorIs(t, err, errdefs.ErrMissingKey)
}

func TestDiscover(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	dir := filepath.Join(home, ".switch")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prod.keys"), []byte(prodKeys), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "title.keys"),
		[]byte("0100abcd012340000000000000000003 = 707172737475767778797a7b7c7d7e7f\n"), 0o600))

	s, err := Discover(context.Background())
	require.NoError(t, err)

	_, err = s.HeaderKey()
	assert.NoError(t, err)

	rights, err := hos.ParseRightsID("0100abcd012340000000000000000003")
	require.NoError(t, err)
	_, err = s.TitleKey(rights)
	assert.NoError(t, err)
}

func TestDiscoverMissing(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	_, err := Discover(context.Background())
	assert.ErrorIs(t, err, errdefs.ErrMissingKey)
}
