package resolver

import (
	"context"
	"os"
	"sync"
)

// Environment variable names consumed by the core for root-directory and
// cache-path overrides, matching the original's ROOT_DIR convention
// (resolver/utils.py) extended with an analogous override for the snapshot
// file itself.
const (
	envRootDir   = "ROOT_DIR"
	envCachePath = "DNS_CACHE_PATH"
)

var (
	facadeOnce sync.Once
	facade     *Facade
)

// Facade is the single entry point the rest of the system uses to resolve
// and query domains. The process holds at most one instance: constructing
// a second one returns ErrSingletonViolation, per spec.md §4.6 and the
// original's SingletonInst.
type Facade struct {
	cfg        Config
	cache      *ResolutionCache
	store      snapshotStore
	classifier *Classifier
}

// New constructs the process-wide Facade. Only the first call succeeds;
// every subsequent call returns ErrSingletonViolation, matching spec.md
// §7's SingletonViolation handling ("the process should not continue").
func New(opts ...Option) (*Facade, error) {
	var err error
	first := false

	facadeOnce.Do(func() {
		first = true
		facade, err = newFacade(opts...)
	})

	if !first {
		return nil, ErrSingletonViolation
	}
	return facade, err
}

func newFacade(opts ...Option) (*Facade, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	if v := os.Getenv(envRootDir); v != "" {
		cfg.RootDir = v
	}
	if v := os.Getenv(envCachePath); v != "" {
		cfg.SnapshotName = v
	}

	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, err
	}

	classifier, err := NewClassifier(cfg)
	if err != nil {
		return nil, err
	}

	store := newStore(cfg)
	rc, err := loadCache(store, cfg.logger())
	if err != nil {
		return nil, err
	}

	return &Facade{cfg: cfg, cache: rc, store: store, classifier: classifier}, nil
}

// BatchResolve runs the Executor over domains, classifying and persisting
// each one, per spec.md §4.6's batch_resolve.
func (f *Facade) BatchResolve(ctx context.Context, domains []string) error {
	f.cache.Update(domains)
	ex := NewExecutor(f.cfg, f.classifier.Classify, f.cache, f.store)
	return ex.Run(ctx, domains)
}

// RefreshCache re-resolves every domain currently sitting in a provisional
// class (everything but resolvable/unresolvable), per spec.md §4.6's
// refresh_cache.
func (f *Facade) RefreshCache(ctx context.Context) error {
	provisional := f.provisionalDomains()
	ex := NewExecutor(f.cfg, f.classifier.Classify, f.cache, f.store)
	return ex.Run(ctx, provisional)
}

func (f *Facade) provisionalDomains() []string {
	stats := f.cache.Stats()
	total := 0
	for _, c := range provisionalClasses {
		total += stats[c.String()]
	}

	out := make([]string, 0, total)
	sets := f.cache.snapshotSets()
	for _, c := range provisionalClasses {
		for d := range sets[c] {
			out = append(out, d)
		}
	}
	return out
}

// IntersectSets returns, for every class, the subset of domains present in
// that class's set.
func (f *Facade) IntersectSets(domains []string) map[Class][]string {
	return f.cache.IntersectSets(domains)
}

// IntersectStats returns, for every class, the cardinality of the
// intersection of domains with that class's set.
func (f *Facade) IntersectStats(domains []string) map[string]int {
	return f.cache.IntersectStats(domains)
}

// ResolvableOf returns domains ∩ (resolvable ∪ timeout ∪ none).
func (f *Facade) ResolvableOf(domains []string) []string {
	return f.cache.resolvableOf(domains)
}

// UnresolvedOf returns domains ∩ (unresolvable ∪ nameServerError ∪ dnsError
// ∪ error).
func (f *Facade) UnresolvedOf(domains []string) []string {
	return f.cache.unresolvedOf(domains)
}

// IntersectionUpdate compacts the cache, dropping any domain no longer
// referenced by domains.
func (f *Facade) IntersectionUpdate(domains []string) {
	f.cache.IntersectionUpdate(domains)
}

// Sanity verifies I1 across the cache's classes and logs any violation
// found. Call Balance to repair a reported violation.
func (f *Facade) Sanity() []string {
	return f.cache.Sanity()
}

// Balance repairs I1 for one class by removing from it any domain that
// also appears elsewhere.
func (f *Facade) Balance(target Class) {
	f.cache.Balance(target)
}

// Stats returns the current cardinality of every class.
func (f *Facade) Stats() map[string]int {
	return f.cache.Stats()
}

// Find returns the class currently holding domain.
func (f *Facade) Find(domain string) (Class, bool) {
	return f.cache.Find(domain)
}

// resetForTesting tears down the process-wide singleton guard so package
// tests can construct a fresh Facade. It is not exported: production code
// never needs to un-singleton itself.
func resetForTesting() {
	facadeOnce = sync.Once{}
	facade = nil
}
