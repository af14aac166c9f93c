package statparse

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"ring5/statfmt"
)

// A Cache persists scan results keyed by file path, so that re-parsing
// a mostly unchanged tree only re-reads the files that changed. A
// cached entry is valid as long as the file's size and modification
// time match AND it was produced under the same scan configuration
// (classifier and hint set, captured as a fingerprint): the same bytes
// classify differently under different hints, so a hint change must
// invalidate the whole cache, not serve stale kinds. A mismatch is
// treated as a miss and the entry is overwritten by the next Put.
//
// The cache is a single SQLite database and is safe for use by the
// parser's concurrent workers.
type Cache struct {
	db *sql.DB
}

// cachedVar is the stored form of one descriptor. Unlike the scan
// record wire form it retains the raw samples, which the parser needs
// to rebuild row cells without re-reading the file.
type cachedVar struct {
	Name    string                `json:"name"`
	Type    string                `json:"type"`
	Repeat  int                   `json:"repeat"`
	Entries []string              `json:"entries,omitempty"`
	Raw     string                `json:"raw,omitempty"`
	Samples []statfmt.EntrySample `json:"samples,omitempty"`
}

// OpenCache opens or creates the scan cache at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("statparse: opening cache %s: %w", path, err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS scans (
	path    TEXT PRIMARY KEY,
	fp      TEXT NOT NULL,
	size    INTEGER NOT NULL,
	mtime   INTEGER NOT NULL,
	payload BLOB NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("statparse: initializing cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached descriptors for path if the file is unchanged
// since they were stored under the same scan fingerprint. Any
// cache-side problem (missing entry, stale entry, fingerprint
// mismatch, undecodable payload) is a miss, never an error: the caller
// falls back to a fresh scan.
func (c *Cache) Get(path, fingerprint string) ([]*statfmt.VariableDescriptor, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, false
	}

	var fp string
	var size, mtime int64
	var payload []byte
	row := c.db.QueryRow(`SELECT fp, size, mtime, payload FROM scans WHERE path = ?`, path)
	if err := row.Scan(&fp, &size, &mtime, &payload); err != nil {
		return nil, false
	}
	if fp != fingerprint || size != fi.Size() || mtime != fi.ModTime().UnixNano() {
		return nil, false
	}

	var vars []cachedVar
	if err := json.Unmarshal(payload, &vars); err != nil {
		return nil, false
	}
	ds := make([]*statfmt.VariableDescriptor, 0, len(vars))
	for _, v := range vars {
		kind := statfmt.KindOf(v.Type)
		if kind == statfmt.KindUnknown {
			return nil, false
		}
		d := &statfmt.VariableDescriptor{
			Name:     v.Name,
			Kind:     kind,
			Repeat:   v.Repeat,
			Entries:  v.Entries,
			RawValue: v.Raw,
		}
		for _, s := range v.Samples {
			d.AddSample(s.Entry, s.Raw)
		}
		ds = append(ds, d)
	}
	return ds, true
}

// Put stores the scan result for path, stamped with the file's current
// size and modification time and the scan fingerprint it was produced
// under.
func (c *Cache) Put(path, fingerprint string, ds []*statfmt.VariableDescriptor) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("statparse: stat for cache: %w", err)
	}

	vars := make([]cachedVar, len(ds))
	for i, d := range ds {
		vars[i] = cachedVar{
			Name:    d.Name,
			Type:    d.Kind.String(),
			Repeat:  d.Repeat,
			Entries: d.Entries,
			Raw:     d.RawValue,
			Samples: d.Samples(),
		}
	}
	payload, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("statparse: encoding cache payload: %w", err)
	}

	_, err = c.db.Exec(
		`INSERT INTO scans (path, fp, size, mtime, payload) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET fp = excluded.fp, size = excluded.size,
		 mtime = excluded.mtime, payload = excluded.payload`,
		path, fingerprint, fi.Size(), fi.ModTime().UnixNano(), payload)
	if err != nil {
		return fmt.Errorf("statparse: writing cache entry: %w", err)
	}
	return nil
}
