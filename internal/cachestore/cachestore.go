// Package cachestore implements the content-addressed, expiring on-disk
// cache for analysis artifacts and boundary decisions. Writes go through a
// write-to-temp-then-atomic-rename sequence, following the package's
// TempFile/TempDir convention; concurrent writers to the same key are
// serialized with a per-key advisory lock, never blocking readers.
package cachestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/reelsort/internal/util"
)

// Stats counts cache operations for observability; internal/metrics does not read it.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// Store is a directory-scoped cache. One Store instance should be shared by
// all goroutines that use the same root directory.
type Store struct {
	root           string
	payloadVersion int

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// New constructs a Store rooted at dir. dir is created if it does not exist.
func New(dir string, payloadVersion int) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &Store{root: dir, payloadVersion: payloadVersion, locks: make(map[string]*sync.Mutex)}, nil
}

// meta is the sidecar document stored next to a payload.
type meta struct {
	InputChecksum  string    `json:"inputChecksum"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	PayloadVersion int       `json:"payloadVersion"`
	LockToken      string    `json:"lockToken,omitempty"`
}

func (s *Store) payloadPath(key string) string { return filepath.Join(s.root, key+".json") }
func (s *Store) metaPath(key string) string    { return filepath.Join(s.root, key+".meta.json") }

// keyLock returns (creating if necessary) the mutex guarding writes to key.
func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Lookup returns (payload, true, nil) on a Hit. A Hit requires the entry to
// exist, be unexpired, have a matching inputChecksum, and a matching
// payloadVersion. Corrupt or stale entries are deleted as a side effect of a
// failed lookup (CacheError recovery: delete and recompute).
func (s *Store) Lookup(key, currentInputChecksum string) ([]byte, bool, error) {
	metaBytes, err := os.ReadFile(s.metaPath(key))
	if os.IsNotExist(err) {
		s.recordMiss()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache metadata for %s: %w", key, err)
	}

	var m meta
	if err := json.Unmarshal(metaBytes, &m); err != nil {
		s.evict(key)
		s.recordMiss()
		return nil, false, nil
	}

	if time.Now().After(m.ExpiresAt) || m.InputChecksum != currentInputChecksum || m.PayloadVersion != s.payloadVersion {
		s.evict(key)
		s.recordMiss()
		return nil, false, nil
	}

	payload, err := os.ReadFile(s.payloadPath(key))
	if err != nil {
		s.evict(key)
		s.recordMiss()
		return nil, false, nil
	}

	s.recordHit()
	return payload, true, nil
}

// Put stores payload under key with the given ttl and inputChecksum, via
// write-to-temp + atomic rename for both the payload and its sidecar.
func (s *Store) Put(key string, payload []byte, inputChecksum string, ttl time.Duration) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	m := meta{
		InputChecksum:  inputChecksum,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		PayloadVersion: s.payloadVersion,
		LockToken:      uuid.NewString(),
	}
	metaBytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal cache metadata: %w", err)
	}

	if err := writeAtomic(s.payloadPath(key), payload); err != nil {
		return fmt.Errorf("failed to write cache payload for %s: %w", key, err)
	}
	if err := writeAtomic(s.metaPath(key), metaBytes); err != nil {
		return fmt.Errorf("failed to write cache metadata for %s: %w", key, err)
	}
	return nil
}

// Invalidate removes key's payload and sidecar unconditionally.
func (s *Store) Invalidate(key string) error {
	s.evict(key)
	return nil
}

func (s *Store) evict(key string) {
	_ = os.Remove(s.payloadPath(key))
	_ = os.Remove(s.metaPath(key))
	s.statsMu.Lock()
	s.stats.Evictions++
	s.statsMu.Unlock()
}

// SweepExpired walks the cache root and removes any entry whose metadata
// sidecar has expired or is unreadable. This is an out-of-band debug hook,
// not part of the lookup/put hot path.
func (s *Store) SweepExpired() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory %s: %w", s.root, err)
	}
	removed := 0
	now := time.Now()
	seen := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".json" || e.IsDir() {
			continue
		}
		key := trimCacheSuffix(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		metaBytes, err := os.ReadFile(s.metaPath(key))
		if err != nil {
			s.evict(key)
			removed++
			continue
		}
		var m meta
		if err := json.Unmarshal(metaBytes, &m); err != nil || now.After(m.ExpiresAt) {
			s.evict(key)
			removed++
		}
	}
	return removed, nil
}

func trimCacheSuffix(name string) string {
	const metaSuffix = ".meta.json"
	const payloadSuffix = ".json"
	if len(name) > len(metaSuffix) && name[len(name)-len(metaSuffix):] == metaSuffix {
		return name[:len(name)-len(metaSuffix)]
	}
	if len(name) > len(payloadSuffix) && name[len(name)-len(payloadSuffix):] == payloadSuffix {
		return name[:len(name)-len(payloadSuffix)]
	}
	return ""
}

// Stats returns a snapshot of cumulative cache operation counts.
func (s *Store) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Store) recordHit() {
	s.statsMu.Lock()
	s.stats.Hits++
	s.statsMu.Unlock()
}

func (s *Store) recordMiss() {
	s.statsMu.Lock()
	s.stats.Misses++
	s.statsMu.Unlock()
}

// writeAtomic writes data to a temp file in the same directory as path, then
// renames it into place so readers never observe a partial write.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := util.CreateTempFile(dir, ".cachestore-tmp", "tmp")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
