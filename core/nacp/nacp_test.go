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

package nacp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/internal/hactest"
	"github.com/hacfs/hacfs/pkg/hos"
)

func TestParseControl(t *testing.T) {
	raw := hactest.BuildNACP(hactest.NACPParams{
		Titles: map[int]hactest.NACPTitle{
			0:  {Name: "Example Quest", Publisher: "Example Co."},
			11: {Name: "Пример", Publisher: "Издатель"},
		},
		DisplayVersion:        "1.2.3",
		SupportedLanguages:    1<<0 | 1<<11,
		PresenceGroupID:       0x0100000000010000,
		AddOnContentBaseID:    0x0100000000011000,
		SaveDataOwnerID:       0x0100000000010000,
		LocalCommunicationIDs: []uint64{0x0100000000010000, 0x0100000000010001},
		ProgramIndex:          2,
	})

	n, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, Title{Name: "Example Quest", Publisher: "Example Co."}, n.Titles[LangAmericanEnglish])
	assert.Equal(t, Title{Name: "Пример", Publisher: "Издатель"}, n.Titles[LangRussian])
	assert.True(t, n.Titles[LangJapanese].IsZero())

	assert.Equal(t, "1.2.3", n.DisplayVersion)
	assert.Equal(t, uint32(1<<0|1<<11), n.SupportedLanguages)
	assert.Equal(t, uint64(0x0100000000010000), n.PresenceGroupID)
	assert.Equal(t, hos.TitleID(0x0100000000011000), n.AddOnContentBaseID)
	assert.Equal(t, hos.TitleID(0x0100000000010000), n.SaveDataOwnerID)
	assert.Equal(t, uint64(0x0100000000010001), n.LocalCommunicationIDs[1])
	assert.Equal(t, uint8(2), n.ProgramIndex)

	title := n.AnyTitle()
	require.NotNil(t, title)
	assert.Equal(t, "Example Quest", title.Name)
}

func TestAnyTitle(t *testing.T) {
	raw := hactest.BuildNACP(hactest.NACPParams{
		Titles: map[int]hactest.NACPTitle{
			2: {Name: "日本語タイトル", Publisher: "任天堂ではない"},
		},
	})
	n, err := Parse(raw)
	require.NoError(t, err)

	title := n.AnyTitle()
	require.NotNil(t, title)
	assert.Equal(t, "日本語タイトル", title.Name)

	empty, err := Parse(hactest.BuildNACP(hactest.NACPParams{}))
	require.NoError(t, err)
	assert.Nil(t, empty.AnyTitle())
}

func TestParseMalformed(t *testing.T) {
	raw := hactest.BuildNACP(hactest.NACPParams{})

	_, err := Parse(raw[:Size-1])
	assert.ErrorIs(t, err, errdefs.ErrMalformedRecord)

	_, err = Parse(append(append([]byte(nil), raw...), 0))
	assert.ErrorIs(t, err, errdefs.ErrMalformedRecord)

	bad := append([]byte(nil), raw...)
	bad[0] = 0xFF // not valid utf-8
	_, err = Parse(bad)
	assert.ErrorIs(t, err, errdefs.ErrMalformedRecord)
}

func TestLanguageNames(t *testing.T) {
	assert.Equal(t, "en-US", LangAmericanEnglish.String())
	assert.Equal(t, "zh-Hans", LangSimplifiedChinese.String())
	assert.Equal(t, "language(16)", Language(16).String())
}
