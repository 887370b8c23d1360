package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

var kvBucket = []byte("kv")

// BoltStore is the Bolt-backed key-value store. Each value is stored as a
// JSON envelope carrying the payload and its absolute expiry.
type BoltStore struct {
	db *bolt.DB
}

type boltEntry struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix nanoseconds, 0 = no expiry
}

// NewBoltStore opens (or creates) a Bolt store at dbPath.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(kvBucket)
		return e
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (e boltEntry) expired(now time.Time) bool {
	return e.ExpiresAt > 0 && e.ExpiresAt <= now.UnixNano()
}

// Get returns the value for key, treating expired entries as missing.
func (s *BoltStore) Get(key string) (string, bool, error) {
	var entry boltEntry
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(kvBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if e := json.Unmarshal(raw, &entry); e != nil {
			// Skip malformed entries instead of failing the read
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if !found || entry.expired(time.Now()) {
		return "", false, nil
	}
	return entry.Value, true, nil
}

// Set stores value under key with an optional TTL.
func (s *BoltStore) Set(key, value string, ttl time.Duration) error {
	entry := boltEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl).UnixNano()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvBucket).Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *BoltStore) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Incr atomically increments the integer stored at key. Bolt serializes
// Update transactions, so the read-modify-write is atomic.
func (s *BoltStore) Incr(key string) (int64, error) {
	var next int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		var current int64
		if raw := b.Get([]byte(key)); raw != nil {
			var entry boltEntry
			if e := json.Unmarshal(raw, &entry); e == nil && !entry.expired(time.Now()) {
				n, e2 := strconv.ParseInt(entry.Value, 10, 64)
				if e2 != nil {
					return fmt.Errorf("counter %s holds non-integer value %q", key, entry.Value)
				}
				current = n
			}
		}
		next = current + 1
		enc, e := json.Marshal(boltEntry{Value: strconv.FormatInt(next, 10)})
		if e != nil {
			return e
		}
		return b.Put([]byte(key), enc)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return next, nil
}

// Sweep removes expired entries.
func (s *BoltStore) Sweep() (int, error) {
	removed := 0
	now := time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		c := b.Cursor()
		var stale [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var entry boltEntry
			if e := json.Unmarshal(v, &entry); e != nil {
				continue
			}
			if entry.expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if e := b.Delete(k); e != nil {
				return e
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to sweep expired keys: %w", err)
	}
	return removed, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
