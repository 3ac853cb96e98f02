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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/containerd/log"
	bolt "go.etcd.io/bbolt"

	"github.com/hacfs/hacfs/core/fs"
)

// Cache keeps distilled records between scans, keyed by file path and
// validated by size and modification time, so unchanged containers are
// not reopened. It is advisory: every failure degrades to a miss.
type Cache struct {
	db *bolt.DB
}

// Entries live under a schema version bucket. A future schema bumps the
// version; content under older versions is ignored, never migrated.
var bucketScanV1 = []byte("v1")

// OpenCache opens or creates the scan cache at path, creating parent
// directories as needed.
func OpenCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	opts := *bolt.DefaultOptions
	// Without the timeout, open blocks on the flock while another
	// process scans.
	opts.Timeout = 3 * time.Second
	db, err := bolt.Open(path, 0o644, &opts)
	if err != nil {
		return nil, fmt.Errorf("opening scan cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketScanV1)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing scan cache %s: %w", path, err)
	}
	return &Cache{db: db}, nil
}

// Close releases the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

type cacheEntry struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
	Record  *Record   `json:"record"`
}

// lookup returns the cached record for path when size and modification
// time still match. Unparseable content is a miss; entries without a
// modification time never validate.
func (c *Cache) lookup(ctx context.Context, path string, e fs.Entry) *Record {
	if e.ModTime.IsZero() {
		return nil
	}
	var rec *Record
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketScanV1).Get([]byte(path))
		if raw == nil {
			return nil
		}
		var ent cacheEntry
		if err := json.Unmarshal(raw, &ent); err != nil {
			log.G(ctx).WithError(err).WithField("path", path).Debug("discarding corrupt cache entry")
			return nil
		}
		if ent.Record == nil || ent.Size != e.Size || !ent.ModTime.Equal(e.ModTime) {
			return nil
		}
		rec = ent.Record
		return nil
	})
	if err != nil {
		log.G(ctx).WithError(err).Debug("scan cache read failed")
		return nil
	}
	if rec != nil {
		log.G(ctx).WithField("path", path).Debug("scan cache hit")
	}
	return rec
}

// store records a freshly distilled record. Failures are logged, not
// returned.
func (c *Cache) store(ctx context.Context, e fs.Entry, rec *Record) {
	if e.ModTime.IsZero() {
		return
	}
	raw, err := json.Marshal(cacheEntry{Size: e.Size, ModTime: e.ModTime, Record: rec})
	if err != nil {
		log.G(ctx).WithError(err).Debug("scan cache encode failed")
		return
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScanV1).Put([]byte(rec.Path), raw)
	})
	if err != nil {
		log.G(ctx).WithError(err).WithField("path", rec.Path).Warn("scan cache write failed")
	}
}
