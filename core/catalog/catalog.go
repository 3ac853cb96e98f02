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

// Package catalog scans a tree of content files and correlates them into
// titles. The meta records found among the containers name the other
// contents of each title; program contents pair with their control data,
// and patches and add-on contents join the application they extend.
//
// A scan reads container headers and the small meta and control payloads,
// never whole contents. The catalog it returns is plain data: records can
// be serialized, and an optional bolt-backed cache keeps them across runs
// so unchanged files are not reopened.
package catalog

import (
	"sort"

	"github.com/hacfs/hacfs/core/cnmt"
	"github.com/hacfs/hacfs/core/nacp"
	"github.com/hacfs/hacfs/core/nca"
	"github.com/hacfs/hacfs/pkg/hos"
)

// Record is what a scan keeps about one content file: the identifying
// header fields plus, for meta and control containers, their parsed
// payload record.
type Record struct {
	ID            hos.ContentID   `json:"id"`
	Path          string          `json:"path"`
	Size          int64           `json:"size"`
	Type          nca.ContentType `json:"type"`
	TitleID       hos.TitleID     `json:"titleID"`
	RightsID      hos.RightsID    `json:"rightsID"`
	KeyGeneration uint8           `json:"keyGeneration"`

	// CNMT is set for meta containers, NACP for control containers.
	CNMT *cnmt.CNMT `json:"cnmt,omitempty"`
	NACP *nacp.NACP `json:"nacp,omitempty"`
}

// Program is one launchable unit of a title: the program content paired
// with the control content describing it.
type Program struct {
	// ID is the title's base ID plus the program's ID offset.
	ID           hos.TitleID
	Program      *Record
	Control      *Record
	HTMLDocument *Record
}

// Title is one meta record resolved against the scanned contents.
type Title struct {
	Key  cnmt.Key
	Meta *Record

	// Contents holds the resolved content files in record order, delta
	// fragments excluded.
	Contents []*Record
	// Programs pairs program contents with their control data, in ID
	// offset order. Titles without program contents have none.
	Programs []Program
}

// Control returns the control data of the title's first program, or nil
// when the title has no programs.
func (t *Title) Control() *nacp.NACP {
	if len(t.Programs) == 0 {
		return nil
	}
	return t.Programs[0].Control.NACP
}

// Application groups a base application with the patches and add-on
// contents that extend it. Patches are sorted by version, add-ons by ID.
type Application struct {
	Base    *Title
	Patches []*Title
	AddOns  []*Title
}

// Control returns the newest control data of the application: the
// highest-versioned patch carrying one, else the base's own.
func (a *Application) Control() *nacp.NACP {
	for i := len(a.Patches) - 1; i >= 0; i-- {
		if c := a.Patches[i].Control(); c != nil {
			return c
		}
	}
	return a.Base.Control()
}

// Version returns the installed version: the highest patch version, or
// the base version when no patch is present.
func (a *Application) Version() hos.Version {
	if n := len(a.Patches); n > 0 {
		return a.Patches[n-1].Key.Version
	}
	return a.Base.Key.Version
}

// Skipped reports one file the scan could not use, or one meta record it
// could not resolve, with the reason.
type Skipped struct {
	Path string
	Err  error
}

// Catalog is the result of a scan.
type Catalog struct {
	records map[hos.ContentID]*Record
	titles  []*Title
	apps    []*Application
	skipped []Skipped
}

// Record returns the content file with the given ID, or nil.
func (c *Catalog) Record(id hos.ContentID) *Record {
	return c.records[id]
}

// Records returns every content file found, sorted by path.
func (c *Catalog) Records() []*Record {
	out := make([]*Record, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Titles returns every resolved title, sorted by ID, version and type.
func (c *Catalog) Titles() []*Title {
	return c.titles
}

// Applications returns the base applications joined with their patches
// and add-on contents, sorted by ID. Titles extending an application
// that is not in the catalog stay visible through Titles only.
func (c *Catalog) Applications() []*Application {
	return c.apps
}

// Skipped returns what the scan had to leave out.
func (c *Catalog) Skipped() []Skipped {
	return c.skipped
}
