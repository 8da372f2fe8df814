// Package cache provides the SQLite-backed transpile cache. Results are
// keyed by a content hash of the source function plus the analysis
// configuration, so an unchanged function skips the whole pipeline on the
// next run.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ferrite-lang/ferrite/wire"
)

// Cache handles SQLite storage for transpile results.
type Cache struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (or creates) the cache database at dbPath.
func Open(dbPath string) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Create table if needed
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS results (
		key        TEXT PRIMARY KEY,
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating results table: %w", err)
	}

	return &Cache{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Key computes the cache key for one function: a hash over the source
// text and the analysis configuration that shaped its result.
func Key(source, config string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(config))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key, or found=false on a miss.
func (c *Cache) Get(key string) (*wire.Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.db.QueryRow("SELECT data FROM results WHERE key = ?", key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying cache: %w", err)
	}

	r, err := wire.UnmarshalResult(data)
	if err != nil {
		// A corrupt entry behaves like a miss; the caller will overwrite it.
		return nil, false, nil
	}
	return r, true, nil
}

// Put stores a result under key, replacing any previous entry.
func (c *Cache) Put(key string, r *wire.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := wire.MarshalResult(r)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO results (key, data, created_at) VALUES (?, ?, ?)",
		key, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storing result: %w", err)
	}
	return nil
}

// GetModule returns the cached module result for key, found=false on a miss.
func (c *Cache) GetModule(key string) (*wire.ModuleResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.db.QueryRow("SELECT data FROM results WHERE key = ?", key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying cache: %w", err)
	}

	m, err := wire.UnmarshalModuleResult(data)
	if err != nil {
		return nil, false, nil
	}
	return m, true, nil
}

// PutModule stores a module result under key.
func (c *Cache) PutModule(key string, m *wire.ModuleResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := wire.MarshalModuleResult(m)
	if err != nil {
		return fmt.Errorf("encoding module result: %w", err)
	}
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO results (key, data, created_at) VALUES (?, ?, ?)",
		key, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storing module result: %w", err)
	}
	return nil
}

// Purge removes every cached entry.
func (c *Cache) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM results"); err != nil {
		return fmt.Errorf("purging cache: %w", err)
	}
	return nil
}
