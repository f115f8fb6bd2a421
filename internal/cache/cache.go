// Package cache stores projected records in a bbolt file, keyed by a hash of
// everything that determines them: extension, metadata, options and
// contents. Entries never go stale because any change to an input changes
// the key.
package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgallion1/annodoc/internal/record"
	bolt "go.etcd.io/bbolt"
)

var bucketRecords = []byte("records")

// Entry is a cached parse result.
type Entry struct {
	Language string          `json:"language"`
	Records  []record.Record `json:"records"`
}

// Cache is a bbolt-backed record cache. It is safe for concurrent use.
type Cache struct {
	db *bolt.DB
}

// Open opens (or creates) the cache file at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key derives the cache key for one parse.
func Key(filename string, meta map[string]any, contents string, variant string) string {
	h := xxhash.New()
	h.WriteString(strings.ToLower(filepath.Ext(filename)))
	h.Write([]byte{0})

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := json.Marshal(meta[k])
		h.WriteString(k)
		h.Write([]byte{'='})
		h.Write(v)
		h.Write([]byte{0})
	}
	h.WriteString(variant)
	h.Write([]byte{0})
	h.WriteString(contents)
	return strconv.FormatUint(h.Sum64(), 16)
}

// Get returns the entry stored under key. The boolean is false on a miss.
func (c *Cache) Get(key string) (*Entry, bool, error) {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return nil
		}
		// bbolt slices are only valid inside the transaction.
		if v := b.Get([]byte(key)); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	if raw == nil {
		return nil, false, nil
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, true, nil
}

// Put stores entry under key.
func (c *Cache) Put(key string, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketRecords)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), raw)
	})
}

// Len returns the number of cached entries.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketRecords); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}
