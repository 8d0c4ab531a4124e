package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/episode"
)

// Sentinel errors for content-store operations.
var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("episode not found")

	// ErrAmbiguousID is returned when a short id prefix matches more
	// than one episode.
	ErrAmbiguousID = errors.New("ambiguous episode id")

	// ErrIO wraps content-store read/write failures.
	ErrIO = errors.New("content store I/O error")
)

const (
	// episodesDirName is the partition root under the data directory.
	episodesDirName = "episodes"

	// partitionLayout is the per-day partition name format.
	partitionLayout = "2006-01-02"

	// readCacheSize bounds the episode read cache.
	readCacheSize = 512
)

// Store is the on-disk content store.
type Store struct {
	root   string // data directory
	dir    string // <root>/episodes
	logger *zap.Logger

	mu    sync.RWMutex      // guards paths
	paths map[string]string // id -> canonical JSON path

	locks sync.Map // id -> *sync.Mutex, writer serialization per id

	cache *lru.TwoQueueCache[string, *episode.Episode]
}

// Open opens (and if needed creates) the content store under the given
// data directory. The id index is built by scanning the per-day
// partitions once.
func Open(dataDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Join(dataDir, episodesDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrIO, dir, err)
	}

	cache, err := lru.New2Q[string, *episode.Episode](readCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating read cache: %w", err)
	}

	s := &Store{
		root:   dataDir,
		dir:    dir,
		logger: logger,
		paths:  make(map[string]string),
		cache:  cache,
	}
	if err := s.rebuildIndex(); err != nil {
		return nil, err
	}

	logger.Debug("content store opened",
		zap.String("dir", dir),
		zap.Int("episodes", len(s.paths)),
	)
	return s, nil
}

// rebuildIndex scans all partitions and rebuilds the id -> path map.
func (s *Store) rebuildIndex() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: listing %s: %v", ErrIO, s.dir, err)
	}

	paths := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		partition := filepath.Join(s.dir, entry.Name())
		files, err := os.ReadDir(partition)
		if err != nil {
			s.logger.Warn("skipping unreadable partition", zap.String("dir", partition), zap.Error(err))
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			path := filepath.Join(partition, f.Name())
			ep, err := readRecord(path)
			if err != nil {
				s.logger.Warn("skipping unreadable record", zap.String("path", path), zap.Error(err))
				continue
			}
			paths[ep.ID] = path
		}
	}

	s.mu.Lock()
	s.paths = paths
	s.mu.Unlock()
	return nil
}

// lock returns the writer mutex for an id.
func (s *Store) lock(id string) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Put stores a new or replacement episode record. The record is fully
// visible or not at all: the JSON is written to a temp file in the
// partition directory and renamed into place.
func (s *Store) Put(ctx context.Context, e *episode.Episode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}

	mu := s.lock(e.ID)
	mu.Lock()
	defer mu.Unlock()

	return s.persistLocked(e)
}

// persistLocked writes the record and mirror. Caller holds the id lock.
func (s *Store) persistLocked(e *episode.Episode) error {
	s.mu.RLock()
	prevPath := s.paths[e.ID]
	s.mu.RUnlock()

	partition := filepath.Join(s.dir, e.CreatedAt.UTC().Format(partitionLayout))
	if err := os.MkdirAll(partition, 0o755); err != nil {
		return fmt.Errorf("%w: creating partition: %v", ErrIO, err)
	}

	path := filepath.Join(partition, fmt.Sprintf("session-%s.json", e.ShortID()))
	raw, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding episode %s: %w", e.ShortID(), err)
	}
	if err := writeFileAtomic(path, raw); err != nil {
		return err
	}

	// The markdown mirror is cosmetic: regenerated on every write, and a
	// failure never fails the record write.
	mdPath := strings.TrimSuffix(path, ".json") + ".md"
	if err := os.WriteFile(mdPath, []byte(e.Markdown()), 0o644); err != nil {
		s.logger.Warn("writing markdown mirror", zap.String("path", mdPath), zap.Error(err))
	}

	// A mutated created_at moves the record to another partition; drop
	// the superseded files so the old partition holds no stale copy.
	if prevPath != "" && prevPath != path {
		os.Remove(prevPath)
		os.Remove(strings.TrimSuffix(prevPath, ".json") + ".md")
	}

	s.mu.Lock()
	s.paths[e.ID] = path
	s.mu.Unlock()
	s.cache.Add(e.ID, e.Clone())
	return nil
}

// writeFileAtomic writes via temp file + rename, retrying once on a
// transient failure.
func writeFileAtomic(path string, data []byte) error {
	write := func() error {
		tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
		if err != nil {
			return err
		}
		tmpName := tmp.Name()
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return err
		}
		if err := os.Rename(tmpName, path); err != nil {
			os.Remove(tmpName)
			return err
		}
		return nil
	}

	if err := write(); err != nil {
		if retryErr := write(); retryErr != nil {
			return fmt.Errorf("%w: writing %s: %v", ErrIO, path, retryErr)
		}
	}
	return nil
}

// readRecord loads one episode file.
func readRecord(path string) (*episode.Episode, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e episode.Episode
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &e, nil
}

// Resolve maps a full id or unique short prefix to the full id.
func (s *Store) Resolve(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.paths[id]; ok {
		return id, nil
	}
	var match string
	for full := range s.paths {
		if strings.HasPrefix(full, id) {
			if match != "" {
				return "", fmt.Errorf("%w: %s", ErrAmbiguousID, id)
			}
			match = full
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}

// Get returns a snapshot of the episode for an id (full or unique short
// prefix). The snapshot is a deep copy; mutating it does not touch the
// store.
func (s *Store) Get(ctx context.Context, id string) (*episode.Episode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.Resolve(id)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.cache.Get(full); ok {
		return cached.Clone(), nil
	}

	s.mu.RLock()
	path := s.paths[full]
	s.mu.RUnlock()

	e, err := readRecord(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrIO, path, err)
	}
	s.cache.Add(full, e.Clone())
	return e, nil
}

// Update applies mut to the episode under the per-id lock and persists
// the result. The mutation sees a private copy; invariants are
// re-validated before the write. last_updated_at never moves backwards.
func (s *Store) Update(ctx context.Context, id string, mut func(*episode.Episode) error) (*episode.Episode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.Resolve(id)
	if err != nil {
		return nil, err
	}

	mu := s.lock(full)
	mu.Lock()
	defer mu.Unlock()

	s.mu.RLock()
	path := s.paths[full]
	s.mu.RUnlock()

	e, err := readRecord(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrIO, path, err)
	}

	if err := mut(e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.persistLocked(e); err != nil {
		return nil, err
	}
	return e.Clone(), nil
}

// UpdateUtility applies a utility-only mutation, stamping
// last_updated_at with the current time.
func (s *Store) UpdateUtility(ctx context.Context, id string, mut func(*episode.Utility)) (*episode.Episode, error) {
	return s.Update(ctx, id, func(e *episode.Episode) error {
		mut(&e.Utility)
		now := time.Now().UTC().Truncate(time.Second)
		if now.After(e.Utility.LastUpdatedAt) {
			e.Utility.LastUpdatedAt = now
		}
		return nil
	})
}

// Delete removes the record and its mirror files.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.Resolve(id)
	if err != nil {
		return err
	}

	mu := s.lock(full)
	mu.Lock()
	defer mu.Unlock()

	s.mu.RLock()
	path := s.paths[full]
	s.mu.RUnlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: removing %s: %v", ErrIO, path, err)
	}
	// Mirror files are best-effort.
	os.Remove(strings.TrimSuffix(path, ".json") + ".md")

	s.mu.Lock()
	delete(s.paths, full)
	s.mu.Unlock()
	s.cache.Remove(full)
	s.locks.Delete(full)
	return nil
}

// List returns snapshots of all episodes matching the filter, newest
// first. Partitions wholly outside the filter's created-at range are
// skipped without reading their records.
func (s *Store) List(ctx context.Context, f Filter) ([]*episode.Episode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	paths := make([]string, 0, len(s.paths))
	ids := make([]string, 0, len(s.paths))
	for id, p := range s.paths {
		paths = append(paths, p)
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var out []*episode.Episode
	for i, path := range paths {
		if skip := f.skipPartition(filepath.Base(filepath.Dir(path))); skip {
			continue
		}
		e, err := s.Get(ctx, ids[i])
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // deleted concurrently
			}
			return nil, err
		}
		if f.Matches(e) {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// IDs returns the ids of all stored episodes.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.paths))
	for id := range s.paths {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of stored episodes.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.paths)
}

// SizeBytes returns the total size of an episode's files on disk, used
// by the pruner report.
func (s *Store) SizeBytes(id string) int64 {
	s.mu.RLock()
	path, ok := s.paths[id]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	var total int64
	for _, p := range []string{path, strings.TrimSuffix(path, ".json") + ".md"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

// Refresh rescans the partitions, picking up records written by
// external tooling since the store was opened.
func (s *Store) Refresh() error {
	return s.rebuildIndex()
}

// Root returns the data directory this store was opened with.
func (s *Store) Root() string {
	return s.root
}
