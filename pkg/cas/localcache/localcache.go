// Package localcache implements an optional, on-disk persistent cache of
// CAS object bytes, fronting pkg/cas so repeated restores of the same
// blob across build invocations don't re-fetch from the metadata service.
// It repurposes the teacher repo's badger dependency as a local blob
// cache rather than its original metadata-tree store.
package localcache

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
)

// Cache is a badger-backed, content-addressed blob cache. Keys are raw
// 32-byte Content Keys; values are the object bytes. Because objects are
// immutable and keyed by their own hash, there is no invalidation to
// model: an entry is either present and correct, or absent.
type Cache struct {
	db *badger.DB
}

// Open opens (creating if necessary) a local cache rooted at dir.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, cacheerr.Wrap(cacheerr.KindLocalIO, "localcache.open", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying badger database.
func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return cacheerr.Wrap(cacheerr.KindLocalIO, "localcache.close", err)
	}
	return nil
}

// Get returns the cached bytes for key, or found=false if absent.
func (c *Cache) Get(key hashkey.Key) (body []byte, found bool, err error) {
	txErr := c.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(key[:])
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			body = append([]byte(nil), val...)
			return nil
		})
	})
	if txErr != nil {
		return nil, false, cacheerr.Wrap(cacheerr.KindLocalIO, "localcache.get", txErr).WithKey(key.String())
	}
	return body, found, nil
}

// Put stores body under key. Since objects are content-addressed and
// immutable, a Put for a key already present is a harmless no-op write.
func (c *Cache) Put(key hashkey.Key, body []byte) error {
	err := c.db.Update(func(tx *badger.Txn) error {
		return tx.Set(key[:], body)
	})
	if err != nil {
		return cacheerr.Wrap(cacheerr.KindLocalIO, "localcache.put", err).WithKey(key.String())
	}
	return nil
}

// Size reports the approximate on-disk size of the cache in bytes, via
// badger's log-file size reporting, for operator-facing metrics.
func (c *Cache) Size() (int64, error) {
	lsm, vlog := c.db.Size()
	total := lsm + vlog
	if total < 0 {
		return 0, fmt.Errorf("localcache: negative size reported")
	}
	return total, nil
}
