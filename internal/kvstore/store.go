// Package kvstore provides a durable, TTL-capable string key-value store
// used for conversation state. Two backends are available: a SQLite table
// and a Bolt bucket. Expired entries read as absent, never as an error.
package kvstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/SLZMWLMJY/Legal-ai/internal/config"
)

// Store is a TTL-capable string key-value store.
type Store interface {
	// Get returns the value for key. The second return is false when the
	// key is missing or its TTL has elapsed.
	Get(key string) (string, bool, error)

	// Set stores value under key. A ttl <= 0 means the entry never expires.
	// Writes replace the previous value wholesale.
	Set(key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Incr atomically increments the integer stored at key and returns the
	// new value. A missing key counts from zero. The counter never expires.
	Incr(key string) (int64, error)

	// Sweep removes expired entries and returns how many were dropped.
	Sweep() (int, error)

	Close() error
}

// Open creates a store for the configured backend.
func Open(cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "bolt":
		return NewBoltStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
