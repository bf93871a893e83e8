// Package cache persists expensive external results on disk keyed by a
// content hash, with freshness judged from file mtime.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"top10-pipeline/logging"
)

// DefaultMaxAge is the freshness window applied when no override is given.
const DefaultMaxAge = 7 * 24 * time.Hour

// Store is a directory-backed cache. The store is advisory: callers must
// tolerate a miss and recompute. Safe for concurrent use.
type Store struct {
	dir    string
	maxAge time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// New opens (creating if needed) a cache store rooted at dir.
func New(dir string, maxAge time.Duration) (*Store, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{
		dir:    dir,
		maxAge: maxAge,
		locks:  make(map[string]*sync.Mutex),
		now:    time.Now,
	}, nil
}

// Key produces a stable hash for any cacheable input. Maps are canonicalized
// by sorted keys, slices are serialized in order, everything else is hashed
// from its string form.
func Key(keyData any) string {
	h := sha1.New()
	h.Write([]byte(canonicalize(keyData)))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalize(keyData any) string {
	switch v := keyData.(type) {
	case string:
		return v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			b.WriteString(canonicalize(v[k]))
		}
		b.WriteByte('}')
		return b.String()
	case []string:
		return "[" + strings.Join(v, ",") + "]"
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = canonicalize(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

func (s *Store) path(hash, category string) string {
	if category == "" {
		category = "misc"
	}
	return filepath.Join(s.dir, category, hash+".json")
}

func (s *Store) fileLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[path]
	if !ok {
		m = &sync.Mutex{}
		s.locks[path] = m
	}
	return m
}

// Get looks up keyData under category and unmarshals the stored value into
// out. The second return is false when the entry is missing or older than
// the store's freshness window.
func (s *Store) Get(keyData any, category string, out any) (bool, error) {
	path := s.path(Key(keyData), category)
	lock := s.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	if s.now().Sub(info.ModTime()) > s.maxAge {
		os.Remove(path)
		return false, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// A corrupt entry counts as a miss, not a failure.
		os.Remove(path)
		return false, nil
	}
	return true, nil
}

// Set persists value under keyData and category, overwriting silently.
func (s *Store) Set(keyData any, value any, category string) error {
	path := s.path(Key(keyData), category)
	lock := s.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create category dir: %w", err)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Sweep deletes entries older than maxAge (the store default when zero)
// from one category, or every category when the name is empty.
func (s *Store) Sweep(category string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = s.maxAge
	}
	root := s.dir
	if category != "" {
		root = filepath.Join(s.dir, category)
	}

	removed := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if s.now().Sub(info.ModTime()) > maxAge {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	if removed > 0 {
		log := logging.For("cache")
		log.Info().Int("removed", removed).Str("category", category).Msg("swept stale entries")
	}
	return removed, err
}
