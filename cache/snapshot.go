// Package cache implements the on-disk persistence of the resolution cache:
// an atomically-written JSON snapshot, loaded once at process start and
// rewritten after every applied batch. It is adapted from the teacher's
// in-memory dns.Msg Cache (cache.go): the mutex-guarded map gives way here
// to a mutex-guarded file, since durability rather than eviction is the
// concern a snapshot store exists to solve.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store manages the snapshot file at path, guaranteeing a write is either
// fully visible or not visible at all (I3 / P4 / P5).
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewStore returns a Store rooted at path. The parent directory is created
// on demand by Write, matching spec.md §6's "root directory ... created on
// demand".
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

func (s *Store) tmpPath() string {
	return s.path + ".tmp"
}

// Load reads the snapshot at s.path. A missing file is treated as an empty
// cache, not an error. If the main file is missing but a sibling temp file
// exists, the temp file is promoted (renamed into place) and then read —
// this recovers from a crash that completed the write but not the rename.
// A parse failure on the (possibly promoted) file is logged at error level
// and falls back to an empty cache, per spec.md §7's CorruptSnapshot handling.
func (s *Store) Load(classOrder []string) (map[string][]string, map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	empty := func() (map[string][]string, map[string]int) {
		sets := make(map[string][]string, len(classOrder))
		stats := make(map[string]int, len(classOrder))
		for _, c := range classOrder {
			sets[c] = nil
			stats[c] = 0
		}
		return sets, stats
	}

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		if _, err := os.Stat(s.tmpPath()); err == nil {
			if err := os.Rename(s.tmpPath(), s.path); err != nil {
				s.logger.Warn("failed to promote orphan snapshot temp file", "path", s.tmpPath(), "error", err)
				sets, stats := empty()
				return sets, stats, nil
			}
			s.logger.Info("promoted orphan snapshot temp file", "path", s.tmpPath())
		} else {
			sets, stats := empty()
			return sets, stats, nil
		}
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			sets, stats := empty()
			return sets, stats, nil
		}
		return nil, nil, fmt.Errorf("cache: read snapshot: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Error("corrupt snapshot, starting from empty cache", "path", s.path, "error", err)
		sets, stats := empty()
		return sets, stats, nil
	}

	sets := make(map[string][]string, len(classOrder))
	stats := make(map[string]int, len(classOrder))
	corrupt := false

	for _, c := range classOrder {
		raw, ok := doc[c]
		if !ok {
			sets[c] = nil
			continue
		}
		var domains []string
		if err := json.Unmarshal(raw, &domains); err != nil {
			corrupt = true
			break
		}
		sets[c] = domains
	}

	if corrupt {
		s.logger.Error("corrupt snapshot class array, starting from empty cache", "path", s.path)
		sets, stats := empty()
		return sets, stats, nil
	}

	for _, c := range classOrder {
		stats[c] = len(sets[c])
	}

	return sets, stats, nil
}

// Write atomically persists sets (keyed by class name) to s.path: marshal
// to a temp file, fsync, then rename over the real path. "stats" is written
// as the first object key, per spec.md §6. Any failure to write or rename
// is returned to the caller, who per spec.md §7's WriterFailure logs it and
// retries on the next batch.
func (s *Store) Write(classOrder []string, sets map[string][]string, stats map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cache: create root directory: %w", err)
		}
	}

	buf, err := marshalOrdered(classOrder, sets, stats)
	if err != nil {
		return fmt.Errorf("cache: marshal snapshot: %w", err)
	}

	tmp := s.tmpPath()
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("cache: create temp snapshot: %w", err)
	}

	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("cache: write temp snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("cache: fsync temp snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("cache: close temp snapshot: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("cache: rename temp snapshot into place: %w", err)
	}

	return nil
}

// marshalOrdered hand-assembles the snapshot JSON so that "stats" is always
// the first key, with each class array following in classOrder — the
// stdlib's encoding/json gives no control over map key order otherwise.
func marshalOrdered(classOrder []string, sets map[string][]string, stats map[string]int) ([]byte, error) {
	statsJSON, err := json.Marshal(orderedStats(classOrder, stats))
	if err != nil {
		return nil, err
	}

	out := append([]byte(`{"stats":`), statsJSON...)
	for _, c := range classOrder {
		arr, err := json.Marshal(sets[c])
		if err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf(`,%q:`, c)...)
		out = append(out, arr...)
	}
	out = append(out, '}')

	var buf bytes.Buffer
	if err := json.Indent(&buf, out, "", "  "); err != nil {
		return out, nil
	}
	return buf.Bytes(), nil
}

// orderedStats marshals a stats map with keys in classOrder, matching the
// array ordering used for the sets themselves.
func orderedStats(classOrder []string, stats map[string]int) json.RawMessage {
	out := []byte("{")
	for i, c := range classOrder {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, fmt.Sprintf(`%q:%d`, c, stats[c])...)
	}
	out = append(out, '}')
	return out
}
