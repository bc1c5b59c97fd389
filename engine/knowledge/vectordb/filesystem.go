package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/compozy/docqa/engine/core"
	"github.com/gofrs/flock"
)

// fileStore keeps records in memory and, when path is set, treats a JSON
// snapshot on disk as the source of truth. Writes reload the snapshot, apply
// the change and rewrite it while holding an advisory file lock. Reads reload
// whenever the snapshot changed since it was last seen, so an ingest run in
// another process becomes visible to a running server.
type fileStore struct {
	mu        sync.RWMutex
	path      string
	fileLock  *flock.Flock
	dimension int
	maxTopK   int
	records   map[string]Record
	seen      snapshotStamp
}

// snapshotStamp identifies one version of the snapshot file. Every commit
// renames a fresh file into place, so identity, mtime and size together
// change on each write.
type snapshotStamp struct {
	info os.FileInfo
}

func stampOf(info os.FileInfo) snapshotStamp {
	return snapshotStamp{info: info}
}

func (a snapshotStamp) same(b snapshotStamp) bool {
	if a.info == nil || b.info == nil {
		return a.info == nil && b.info == nil
	}
	return os.SameFile(a.info, b.info) &&
		a.info.ModTime().Equal(b.info.ModTime()) &&
		a.info.Size() == b.info.Size()
}

// NewMemoryStore returns a process-local store that is never persisted.
func NewMemoryStore(dimension int) Store {
	return &fileStore{dimension: dimension, records: make(map[string]Record)}
}

func newFileStore(cfg *Config) (Store, error) {
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("filesystem: ensure directory %q: %w", cfg.Path, err)
	}
	collection := collectionSlug(cfg.Collection)
	if collection == "" {
		collection = "default"
	}
	path := filepath.Join(filepath.Clean(cfg.Path), collection+".json")
	fs := &fileStore{
		path:      path,
		fileLock:  flock.New(path + ".lock"),
		dimension: cfg.Dimension,
		maxTopK:   cfg.MaxTopK,
		records:   make(map[string]Record),
	}
	if err := fs.refresh(true); err != nil {
		return nil, err
	}
	return fs, nil
}

func (s *fileStore) Upsert(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if err := checkDimension(fmt.Sprintf("record %q", records[i].ID), len(records[i].Embedding), s.dimension); err != nil {
			return fmt.Errorf("filesystem: %w", err)
		}
	}
	return s.mutate(func(current map[string]Record) bool {
		for i := range records {
			rec := records[i]
			current[rec.ID] = Record{
				ID:        rec.ID,
				Text:      rec.Text,
				Embedding: append([]float32(nil), rec.Embedding...),
				Metadata:  core.CloneMap(rec.Metadata),
			}
		}
		return true
	})
}

func (s *fileStore) Search(_ context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension("query", len(query), s.dimension); err != nil {
		return nil, fmt.Errorf("filesystem: %w", err)
	}
	if err := s.refresh(false); err != nil {
		return nil, err
	}
	topK := resolveTopK(opts.TopK, s.maxTopK)
	s.mu.RLock()
	defer s.mu.RUnlock()
	candidates := make([]Match, 0, len(s.records))
	for _, rec := range s.records {
		if !metadataMatches(rec.Metadata, opts.Filters) {
			continue
		}
		score := cosineSimilarity(rec.Embedding, query)
		if opts.belowThreshold(score) {
			continue
		}
		candidates = append(candidates, Match{
			ID:       rec.ID,
			Score:    score,
			Text:     rec.Text,
			Metadata: core.CloneMap(rec.Metadata),
		})
	}
	return rankMatches(candidates, topK), nil
}

func (s *fileStore) Delete(_ context.Context, filter Filter) error {
	return s.mutate(func(current map[string]Record) bool {
		changed := false
		if len(filter.IDs) > 0 {
			for _, id := range filter.IDs {
				if _, ok := current[id]; ok {
					delete(current, id)
					changed = true
				}
			}
		} else if len(filter.Metadata) > 0 {
			keep := filter.keepSet()
			for id, rec := range current {
				if _, kept := keep[id]; kept {
					continue
				}
				if metadataMatches(rec.Metadata, filter.Metadata) {
					delete(current, id)
					changed = true
				}
			}
		}
		return changed
	})
}

func (s *fileStore) Count(context.Context) (int, error) {
	if err := s.refresh(false); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *fileStore) Close(context.Context) error {
	if s.fileLock == nil {
		return nil
	}
	return s.fileLock.Close()
}

// mutate applies change to the latest snapshot and persists the result when
// change reports a modification.
func (s *fileStore) mutate(change func(map[string]Record) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		change(s.records)
		return nil
	}
	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("filesystem: lock %q: %w", s.path, err)
	}
	defer s.fileLock.Unlock() //nolint:errcheck // released on close as well
	current, stamp, err := s.readSnapshot()
	if err != nil {
		return err
	}
	s.records = current
	s.seen = stamp
	if !change(s.records) {
		return nil
	}
	return s.writeSnapshot()
}

// refresh reloads the snapshot when it changed on disk since the last read.
func (s *fileStore) refresh(force bool) error {
	if s.path == "" {
		return nil
	}
	info, err := os.Stat(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("filesystem: stat %q: %w", s.path, err)
	}
	s.mu.RLock()
	unchanged := s.seen.same(stampOf(info))
	s.mu.RUnlock()
	if unchanged && !force {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fileLock.RLock(); err != nil {
		return fmt.Errorf("filesystem: lock %q: %w", s.path, err)
	}
	defer s.fileLock.Unlock() //nolint:errcheck // released on close as well
	current, stamp, err := s.readSnapshot()
	if err != nil {
		return err
	}
	s.records = current
	s.seen = stamp
	return nil
}

// readSnapshot decodes the snapshot file. The caller holds the file lock.
func (s *fileStore) readSnapshot() (map[string]Record, snapshotStamp, error) {
	records := make(map[string]Record)
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return records, snapshotStamp{}, nil
	}
	if err != nil {
		return nil, snapshotStamp{}, fmt.Errorf("filesystem: stat %q: %w", s.path, err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, snapshotStamp{}, fmt.Errorf("filesystem: read %q: %w", s.path, err)
	}
	var payload fileStorePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, snapshotStamp{}, fmt.Errorf("filesystem: decode %q: %w", s.path, err)
	}
	if payload.Dimension > 0 && s.dimension != payload.Dimension {
		return nil, snapshotStamp{}, fmt.Errorf(
			"filesystem: stored dimension %d does not match config %d for %q",
			payload.Dimension,
			s.dimension,
			s.path,
		)
	}
	for i := range payload.Records {
		rec := payload.Records[i]
		if len(rec.Embedding) != s.dimension {
			return nil, snapshotStamp{}, fmt.Errorf("filesystem: record %q in %q is corrupt", rec.ID, s.path)
		}
		records[rec.ID] = Record{
			ID:        rec.ID,
			Text:      rec.Text,
			Embedding: rec.Embedding,
			Metadata:  rec.Metadata,
		}
	}
	return records, stampOf(info), nil
}

// writeSnapshot replaces the snapshot atomically. The caller holds s.mu and
// the exclusive file lock.
func (s *fileStore) writeSnapshot() error {
	payload := fileStorePayload{
		Dimension: s.dimension,
		Records:   make([]fileStoreRecord, 0, len(s.records)),
	}
	for _, rec := range s.records {
		payload.Records = append(payload.Records, fileStoreRecord{
			ID:        rec.ID,
			Text:      rec.Text,
			Embedding: rec.Embedding,
			Metadata:  rec.Metadata,
		})
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("filesystem: encode snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("filesystem: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("filesystem: commit snapshot: %w", err)
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("filesystem: stat %q: %w", s.path, err)
	}
	s.seen = stampOf(info)
	return nil
}

type fileStorePayload struct {
	Dimension int               `json:"dimension"`
	Records   []fileStoreRecord `json:"records"`
}

type fileStoreRecord struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
}
