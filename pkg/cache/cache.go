// Package cache persists per-file check results between runs.
// Entries are keyed by absolute path and validated against a content hash
// and the rule set fingerprint, so an edited file or a changed rule set is
// always a miss.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/phpflow/pkg/lint"
)

// DefaultFile is the cache filename inside the cache directory.
const DefaultFile = "results.msgpack"

const formatVersion = 1

var (
	// ErrKeyNotFound is returned when no entry exists for a path.
	ErrKeyNotFound = errors.New("key not found")
	// ErrStaleEntry is returned when an entry exists but its hash or
	// fingerprint no longer matches.
	ErrStaleEntry = errors.New("stale cache entry")
)

// Entry is the cached result of checking one file.
type Entry struct {
	Path        string            `msgpack:"path"`
	Hash        string            `msgpack:"hash"`
	Fingerprint string            `msgpack:"fingerprint"`
	Callables   int               `msgpack:"callables"`
	Diagnostics []lint.Diagnostic `msgpack:"diagnostics"`
	CheckedAt   int64             `msgpack:"checked_at"` // Unix timestamp
}

// cacheData is the on-disk structure.
type cacheData struct {
	Version int     `msgpack:"version"`
	Entries []Entry `msgpack:"entries"`
}

// Store holds cached entries. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	dir     string
	file    string
}

// Option configures a Store.
type Option func(*Store)

// WithDir sets the cache directory.
func WithDir(dir string) Option {
	return func(s *Store) {
		s.dir = dir
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		dir:     ".phpflow/cache",
		file:    DefaultFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file the store is saved to.
func (s *Store) Path() string {
	return filepath.Join(s.dir, s.file)
}

// HashBytes computes the SHA256 of content.
func HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// Get returns the entry for path if it matches hash and fingerprint.
func (s *Store) Get(path, hash, fingerprint string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key(path)]
	if !ok {
		return Entry{}, ErrKeyNotFound
	}
	if e.Hash != hash || e.Fingerprint != fingerprint {
		return Entry{}, ErrStaleEntry
	}
	return e, nil
}

// Lookup is Get reduced to a hit/miss answer.
func (s *Store) Lookup(path, hash, fingerprint string) (Entry, bool) {
	e, err := s.Get(path, hash, fingerprint)
	return e, err == nil
}

// Put stores e, replacing any entry for the same path.
func (s *Store) Put(e Entry) {
	e.Path = key(e.Path)
	if e.CheckedAt == 0 {
		e.CheckedAt = time.Now().Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Path] = e
}

// Prune drops every entry whose path is not in keep and returns how many
// were removed.
func (s *Store) Prune(keep []string) int {
	wanted := make(map[string]struct{}, len(keep))
	for _, p := range keep {
		wanted[key(p)] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for p := range s.entries {
		if _, ok := wanted[p]; !ok {
			delete(s.entries, p)
			removed++
		}
	}
	return removed
}

// Paths returns the cached paths in sorted order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.entries))
	for p := range s.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
}

// Save persists the store to a writer using msgpack. Entries are written in
// path order.
func (s *Store) Save(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := cacheData{
		Version: formatVersion,
		Entries: make([]Entry, 0, len(s.entries)),
	}
	for _, e := range s.entries {
		data.Entries = append(data.Entries, e)
	}
	sort.Slice(data.Entries, func(i, j int) bool { return data.Entries[i].Path < data.Entries[j].Path })

	enc := msgpack.NewEncoder(w)
	return enc.Encode(data)
}

// Load restores the store from a reader using msgpack. Data written by a
// different format version is discarded.
func (s *Store) Load(r io.Reader) error {
	var data cacheData
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&data); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry, len(data.Entries))
	if data.Version != formatVersion {
		return nil
	}
	for _, e := range data.Entries {
		s.entries[e.Path] = e
	}
	return nil
}

// SaveFile writes the store to Path, creating the directory.
func (s *Store) SaveFile() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	f, err := os.Create(s.Path())
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()

	return s.Save(f)
}

// LoadFile reads the store from Path. A missing file is not an error.
func (s *Store) LoadFile() error {
	f, err := os.Open(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return s.Load(f)
}
