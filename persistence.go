package resolver

import (
	"log/slog"
	"path/filepath"

	"github.com/alonbg/list-manager/cache"
)

// classNameOrder lists the class names in allClasses' ordinal order: the
// order of the per-class arrays on disk, which follow the leading "stats" key.
var classNameOrder = func() []string {
	names := make([]string, numClasses)
	for i, c := range allClasses {
		names[i] = c.String()
	}
	return names
}()

// snapshotStore is the subset of *cache.Store the engine depends on,
// narrowed to ease substitution in tests.
type snapshotStore interface {
	Load(classOrder []string) (map[string][]string, map[string]int, error)
	Write(classOrder []string, sets map[string][]string, stats map[string]int) error
}

// newStore resolves cfg's root directory and snapshot name into a
// *cache.Store, per spec.md §6's "all relative paths are resolved under a
// process-level root".
func newStore(cfg Config) *cache.Store {
	path := cfg.SnapshotName
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.RootDir, path)
	}
	return cache.NewStore(path, cfg.logger())
}

// loadCache reads store's snapshot, if any, into a fresh ResolutionCache.
func loadCache(store snapshotStore, logger *slog.Logger) (*ResolutionCache, error) {
	named, _, err := store.Load(classNameOrder)
	if err != nil {
		return nil, err
	}
	rc := NewResolutionCache(logger)
	rc.loadFromNamed(named)
	return rc, nil
}

// persist writes rc's current contents to store.
func persist(store snapshotStore, rc *ResolutionCache) error {
	named, stats := rc.exportNamed()
	return store.Write(classNameOrder, named, stats)
}
