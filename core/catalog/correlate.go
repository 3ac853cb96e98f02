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

package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/containerd/log"

	"github.com/hacfs/hacfs/core/cnmt"
	"github.com/hacfs/hacfs/core/nca"
	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/hos"
)

// correlate resolves every meta record against the scanned contents and
// joins the resulting titles into applications. Metas that reference
// missing or unusable contents are skipped, not fatal.
func (c *Catalog) correlate(ctx context.Context) {
	var metas []*Record
	for _, rec := range c.records {
		if rec.Type == nca.ContentMeta {
			metas = append(metas, rec)
		}
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })

	for _, meta := range metas {
		t, err := c.resolveTitle(meta)
		if err != nil {
			c.skip(ctx, meta.Path, err)
			continue
		}
		c.titles = append(c.titles, t)
	}
	sort.Slice(c.titles, func(i, j int) bool {
		a, b := c.titles[i].Key, c.titles[j].Key
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.Type < b.Type
	})

	c.apps = buildApplications(ctx, c.titles)
}

// resolveTitle checks that every content the meta record names is in the
// set and groups the program contents with their control data.
func (c *Catalog) resolveTitle(meta *Record) (*Title, error) {
	t := &Title{Key: meta.CNMT.Key(), Meta: meta}

	type resolved struct {
		entry cnmt.ContentEntry
		rec   *Record
	}
	var contents []resolved
	for _, e := range meta.CNMT.Contents {
		if e.Type == cnmt.ContentDeltaFragment {
			continue
		}
		rec, ok := c.records[e.ID]
		if !ok {
			return nil, fmt.Errorf("%s content %s named by %s: %w", e.Type, e.ID, t.Key, errdefs.ErrNotFound)
		}
		contents = append(contents, resolved{entry: e, rec: rec})
		t.Contents = append(t.Contents, rec)
	}

	var (
		programs = map[uint8]*Program{}
		offsets  []uint8
	)
	for _, r := range contents {
		switch r.entry.Type {
		case cnmt.ContentProgram, cnmt.ContentControl, cnmt.ContentHtmlDocument:
		default:
			continue
		}
		p := programs[r.entry.IDOffset]
		if p == nil {
			p = &Program{ID: t.Key.ID + hos.TitleID(r.entry.IDOffset)}
			programs[r.entry.IDOffset] = p
			offsets = append(offsets, r.entry.IDOffset)
		}
		switch r.entry.Type {
		case cnmt.ContentProgram:
			p.Program = r.rec
		case cnmt.ContentControl:
			p.Control = r.rec
		case cnmt.ContentHtmlDocument:
			p.HTMLDocument = r.rec
		}
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	for _, off := range offsets {
		p := programs[off]
		switch {
		case p.Program == nil:
			return nil, fmt.Errorf("%s has no program content at id offset %d: %w", t.Key, off, errdefs.ErrMalformedRecord)
		case p.Control == nil:
			return nil, fmt.Errorf("program %s has no control content: %w", p.ID, errdefs.ErrMalformedRecord)
		case p.Control.NACP == nil:
			return nil, fmt.Errorf("control content %s of program %s carries no control record: %w", p.Control.ID, p.ID, errdefs.ErrMalformedRecord)
		}
		t.Programs = append(t.Programs, *p)
	}
	return t, nil
}

// buildApplications joins titles two ways: applications first, then
// patches and add-on contents attach to the application they extend.
// Titles whose application is missing stay out of the joined view.
func buildApplications(ctx context.Context, titles []*Title) []*Application {
	var (
		apps  = map[hos.TitleID]*Application{}
		order []hos.TitleID
	)
	for _, t := range titles {
		if t.Key.Type != cnmt.MetaApplication {
			continue
		}
		if prev, ok := apps[t.Key.ID]; ok {
			// Two base versions of the same application; the newer one
			// represents it.
			if t.Key.Version > prev.Base.Key.Version {
				prev.Base = t
			}
			continue
		}
		apps[t.Key.ID] = &Application{Base: t}
		order = append(order, t.Key.ID)
	}

	for _, t := range titles {
		switch t.Key.Type {
		case cnmt.MetaPatch:
			app, ok := apps[t.Meta.CNMT.Patch.ApplicationID]
			if !ok {
				log.G(ctx).WithFields(log.Fields{
					"patch":       t.Key.ID,
					"application": t.Meta.CNMT.Patch.ApplicationID,
				}).Warn("patch without its application")
				continue
			}
			app.Patches = append(app.Patches, t)
		case cnmt.MetaAddOnContent:
			app, ok := apps[t.Meta.CNMT.AddOnContent.ApplicationID]
			if !ok {
				log.G(ctx).WithFields(log.Fields{
					"addon":       t.Key.ID,
					"application": t.Meta.CNMT.AddOnContent.ApplicationID,
				}).Warn("add-on content without its application")
				continue
			}
			app.AddOns = append(app.AddOns, t)
		case cnmt.MetaDataPatch:
			log.G(ctx).WithField("title", t.Key.ID).Warn("data patch titles are not joined")
		}
	}

	out := make([]*Application, 0, len(order))
	for _, id := range order {
		app := apps[id]
		sort.Slice(app.Patches, func(i, j int) bool { return app.Patches[i].Key.Version < app.Patches[j].Key.Version })
		sort.Slice(app.AddOns, func(i, j int) bool { return app.AddOns[i].Key.ID < app.AddOns[j].Key.ID })
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Base.Key.ID < out[j].Base.Key.ID })
	return out
}
