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
	"io"
	"runtime"
	"strings"

	"github.com/containerd/log"
	"golang.org/x/sync/errgroup"

	"github.com/hacfs/hacfs/core/cnmt"
	"github.com/hacfs/hacfs/core/fs"
	"github.com/hacfs/hacfs/core/nacp"
	"github.com/hacfs/hacfs/core/nca"
	"github.com/hacfs/hacfs/core/ticket"
	"github.com/hacfs/hacfs/errdefs"
	"github.com/hacfs/hacfs/pkg/hos"
	"github.com/hacfs/hacfs/pkg/keyset"
)

// ScanOpt adjusts a scan.
type ScanOpt func(*scanOpts)

type scanOpts struct {
	cache *Cache
	limit int
}

// WithCache consults c for unchanged files and records fresh results in
// it. Misses behave like an uncached scan.
func WithCache(c *Cache) ScanOpt {
	return func(o *scanOpts) {
		o.cache = c
	}
}

// WithConcurrency caps how many containers are opened at once. The
// default is the number of usable CPUs.
func WithConcurrency(n int) ScanOpt {
	return func(o *scanOpts) {
		if n > 0 {
			o.limit = n
		}
	}
}

type candidate struct {
	path  string
	entry fs.Entry
	id    hos.ContentID
}

// Scan walks fsys for tickets and content files and correlates what it
// finds. Tickets are imported into a copy of ks first, so title-key
// encrypted containers open when their ticket travels in the same tree.
// Files the scan cannot use are logged and reported through
// Catalog.Skipped; only a broken walk or a cancelled context fail the
// scan as a whole.
func Scan(ctx context.Context, fsys fs.FS, ks *keyset.Set, opts ...ScanOpt) (*Catalog, error) {
	o := scanOpts{limit: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}

	cat := &Catalog{records: map[hos.ContentID]*Record{}}

	var tickets, contents []candidate
	err := fs.Walk(fsys, func(path string, e fs.Entry) error {
		if e.Dir {
			return nil
		}
		switch {
		case strings.HasSuffix(e.Name, ".tik"):
			tickets = append(tickets, candidate{path: path, entry: e})
		case strings.HasSuffix(e.Name, ".nca"), strings.HasSuffix(e.Name, ".ncz"):
			id, err := hos.ParseContentID(contentStem(e.Name))
			if err != nil {
				cat.skip(ctx, path, err)
				return nil
			}
			contents = append(contents, candidate{path: path, entry: e, id: id})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking the tree: %w", err)
	}

	keys := ks.Clone()
	for _, t := range tickets {
		if err := importTicket(fsys, t.path, keys); err != nil {
			cat.skip(ctx, t.path, err)
		}
	}

	var (
		records = make([]*Record, len(contents))
		errs    = make([]error, len(contents))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.limit)
	for i, c := range contents {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i], errs[i] = openRecord(gctx, fsys, c, keys, o.cache)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, c := range contents {
		if errs[i] != nil {
			cat.skip(ctx, c.path, errs[i])
			continue
		}
		rec := records[i]
		if prev, ok := cat.records[rec.ID]; ok {
			log.G(ctx).WithFields(log.Fields{
				"id":    rec.ID,
				"path":  rec.Path,
				"first": prev.Path,
			}).Warn("duplicate content id, keeping the first")
			continue
		}
		cat.records[rec.ID] = rec
	}

	cat.correlate(ctx)

	log.G(ctx).WithFields(log.Fields{
		"contents": len(cat.records),
		"titles":   len(cat.titles),
		"skipped":  len(cat.skipped),
	}).Debug("scan complete")
	return cat, nil
}

func (c *Catalog) skip(ctx context.Context, path string, err error) {
	log.G(ctx).WithError(err).WithField("path", path).Warn("skipping")
	c.skipped = append(c.skipped, Skipped{Path: path, Err: err})
}

// contentStem strips the container suffixes off a content file name,
// leaving the hex content ID.
func contentStem(name string) string {
	name = strings.TrimSuffix(name, ".nca")
	name = strings.TrimSuffix(name, ".ncz")
	return strings.TrimSuffix(name, ".cnmt")
}

func importTicket(fsys fs.FS, path string, keys *keyset.Set) error {
	raw, err := fs.ReadFile(fsys, path)
	if err != nil {
		return err
	}
	t, err := ticket.Parse(raw)
	if err != nil {
		return err
	}
	return keys.ImportTicket(t)
}

// openRecord opens one content file and distills the record kept for it,
// consulting the cache first.
func openRecord(ctx context.Context, fsys fs.FS, c candidate, keys *keyset.Set, cache *Cache) (*Record, error) {
	if cache != nil {
		if rec := cache.lookup(ctx, c.path, c.entry); rec != nil {
			return rec, nil
		}
	}

	f, err := fs.Open(fsys, c.path)
	if err != nil {
		return nil, err
	}
	if closer, ok := f.(io.Closer); ok {
		defer closer.Close()
	}
	n, err := nca.Open(ctx, f, keys)
	if err != nil {
		return nil, err
	}

	hdr := n.Header()
	rec := &Record{
		ID:            c.id,
		Path:          c.path,
		Size:          c.entry.Size,
		Type:          hdr.ContentType,
		TitleID:       hdr.TitleID,
		RightsID:      hdr.RightsID,
		KeyGeneration: hdr.KeyGeneration(),
	}
	switch hdr.ContentType {
	case nca.ContentMeta:
		if rec.CNMT, err = readMeta(ctx, n); err != nil {
			return nil, err
		}
	case nca.ContentControl:
		if rec.NACP, err = readControl(ctx, n); err != nil {
			return nil, err
		}
	}

	if cache != nil {
		cache.store(ctx, c.entry, rec)
	}
	return rec, nil
}

// readMeta pulls the single meta record out of a meta container's data
// section.
func readMeta(ctx context.Context, n *nca.NCA) (*cnmt.CNMT, error) {
	fsys, err := dataFS(ctx, n)
	if err != nil {
		return nil, err
	}
	var meta string
	err = fs.Walk(fsys, func(path string, e fs.Entry) error {
		if e.Dir || !strings.HasSuffix(e.Name, ".cnmt") {
			return nil
		}
		if meta != "" {
			return fmt.Errorf("more than one meta record (%s, %s): %w", meta, path, errdefs.ErrMalformedRecord)
		}
		meta = path
		return nil
	})
	if err != nil {
		return nil, err
	}
	if meta == "" {
		return nil, fmt.Errorf("no meta record in container: %w", errdefs.ErrNotFound)
	}
	raw, err := fs.ReadFile(fsys, meta)
	if err != nil {
		return nil, err
	}
	return cnmt.Parse(raw)
}

// readControl pulls the control record out of a control container's data
// section.
func readControl(ctx context.Context, n *nca.NCA) (*nacp.NACP, error) {
	fsys, err := dataFS(ctx, n)
	if err != nil {
		return nil, err
	}
	raw, err := fs.ReadFile(fsys, "control.nacp")
	if err != nil {
		return nil, err
	}
	return nacp.Parse(raw)
}

func dataFS(ctx context.Context, n *nca.NCA) (fs.FS, error) {
	sec := n.FindSection(nca.SectionData)
	if sec == nil {
		return nil, fmt.Errorf("no data section: %w", errdefs.ErrMalformedRecord)
	}
	return sec.OpenFS(ctx)
}
