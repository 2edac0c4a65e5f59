package resolver

import (
	"log/slog"
	"sync"
)

// ResolutionCache is the in-memory mapping from Class to the set of domains
// currently classified into it. It enforces I1 (disjointness): inserting a
// domain into one class's set always removes it from every other class's
// set first. All mutation goes through a single mutex, per spec.md §4.3 /
// I4 — there is never more than one writer.
type ResolutionCache struct {
	mu     sync.Mutex
	sets   [numClasses]map[string]struct{}
	logger *slog.Logger
}

// NewResolutionCache returns an empty cache: seven empty sets, per spec.md's
// stated lifecycle for a process with no snapshot to load.
func NewResolutionCache(logger *slog.Logger) *ResolutionCache {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &ResolutionCache{logger: logger}
	for i := range rc.sets {
		rc.sets[i] = make(map[string]struct{})
	}
	return rc
}

// loadSets replaces the cache's contents wholesale, used by the snapshot
// loader at process start. The caller is responsible for ensuring no other
// goroutine is using rc yet.
func (rc *ResolutionCache) loadSets(sets [numClasses]map[string]struct{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i, s := range sets {
		if s == nil {
			s = make(map[string]struct{})
		}
		rc.sets[i] = s
	}
}

// loadFromNamed populates rc from a name-keyed representation, the shape
// the snapshot store loads off disk (I2: cache is keyed by class name on
// disk). Unknown keys are ignored.
func (rc *ResolutionCache) loadFromNamed(named map[string][]string) {
	var sets [numClasses]map[string]struct{}
	for i := range sets {
		sets[i] = make(map[string]struct{})
	}
	for name, domains := range named {
		c, ok := classByName[name]
		if !ok {
			continue
		}
		for _, d := range domains {
			sets[c][d] = struct{}{}
		}
	}
	rc.loadSets(sets)
}

// exportNamed returns the cache's current contents keyed by class name,
// alongside the matching cardinalities, the shape the snapshot store
// persists to disk.
func (rc *ResolutionCache) exportNamed() (map[string][]string, map[string]int) {
	sets := rc.snapshotSets()

	named := make(map[string][]string, numClasses)
	stats := make(map[string]int, numClasses)
	for _, c := range allClasses {
		domains := make([]string, 0, len(sets[c]))
		for d := range sets[c] {
			domains = append(domains, d)
		}
		named[c.String()] = domains
		stats[c.String()] = len(domains)
	}
	return named, stats
}

// snapshotSets returns a deep copy of the cache's sets, suitable for handing
// to the snapshot writer without holding rc's lock during file I/O.
func (rc *ResolutionCache) snapshotSets() [numClasses]map[string]struct{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	var out [numClasses]map[string]struct{}
	for i, s := range rc.sets {
		cp := make(map[string]struct{}, len(s))
		for d := range s {
			cp[d] = struct{}{}
		}
		out[i] = cp
	}
	return out
}

// ApplyBatch applies batch pair by pair, in order: each domain is removed
// from every other class's set and then added to its pair's class, so a
// domain listed twice in one batch ends in the class of its last pair. This
// is the sole entry point by which a
// classification result becomes durable state, per spec.md §4.3's
// apply_batch.
func (rc *ResolutionCache) ApplyBatch(batch BatchResult) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for _, pair := range batch {
		rc.insertLocked(pair.Domain, pair.Class)
	}
}

// insertLocked enforces I1 for a single domain: remove it from every class
// other than target, then add it to target. rc.mu must be held.
func (rc *ResolutionCache) insertLocked(domain string, target Class) {
	for _, c := range allClasses {
		if c == target {
			continue
		}
		delete(rc.sets[c], domain)
	}
	rc.sets[target][domain] = struct{}{}
}

// Update inserts any domain absent from every class into none, per spec.md
// §4.3's update.
func (rc *ResolutionCache) Update(domains []string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for _, d := range domains {
		found := false
		for _, c := range allClasses {
			if _, ok := rc.sets[c][d]; ok {
				found = true
				break
			}
		}
		if !found {
			rc.sets[None][d] = struct{}{}
		}
	}
}

// IntersectionUpdate intersects every class's set with domains, dropping any
// entry no longer referenced by the given source list. This is the cache's
// compaction operation, run when a source list shrinks, per spec.md §4.3's
// intersection_update.
func (rc *ResolutionCache) IntersectionUpdate(domains []string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	keep := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		keep[d] = struct{}{}
	}

	for _, c := range allClasses {
		for d := range rc.sets[c] {
			if _, ok := keep[d]; !ok {
				delete(rc.sets[c], d)
			}
		}
	}
}

// Balance removes from target's set any domain that also appears in another
// class, repairing I1 after external editing of the snapshot file, per
// spec.md §4.3's balance.
func (rc *ResolutionCache) Balance(target Class) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for d := range rc.sets[target] {
		for _, c := range allClasses {
			if c == target {
				continue
			}
			if _, ok := rc.sets[c][d]; ok {
				delete(rc.sets[target], d)
				break
			}
		}
	}
}

// Sanity verifies I1 across every pair of classes and logs (but does not
// fail on) any violation found, per spec.md §4.3's sanity and §7's
// DisjointnessViolation handling. It returns the offending domains, if any.
func (rc *ResolutionCache) Sanity() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	seen := make(map[string]Class, len(rc.sets[Resolvable]))
	var violations []string

	for _, c := range allClasses {
		for d := range rc.sets[c] {
			if prior, ok := seen[d]; ok {
				rc.logger.Warn("disjointness violation",
					"domain", d, "classes", []string{prior.String(), c.String()})
				violations = append(violations, d)
				continue
			}
			seen[d] = c
		}
	}

	return violations
}

// Stats returns the current cardinality of every class, keyed by its
// canonical name.
func (rc *ResolutionCache) Stats() map[string]int {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	out := make(map[string]int, numClasses)
	for _, c := range allClasses {
		out[c.String()] = len(rc.sets[c])
	}
	return out
}

// Find returns the Class currently holding domain, or (None, false) if it is
// not present in any class's set.
func (rc *ResolutionCache) Find(domain string) (Class, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for _, c := range allClasses {
		if _, ok := rc.sets[c][domain]; ok {
			return c, true
		}
	}
	return None, false
}

// IntersectSets returns, for every class, the subset of domains present in
// that class's set, per spec.md §4.6's intersect_sets.
func (rc *ResolutionCache) IntersectSets(domains []string) map[Class][]string {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	out := make(map[Class][]string, numClasses)
	for _, d := range domains {
		for _, c := range allClasses {
			if _, ok := rc.sets[c][d]; ok {
				out[c] = append(out[c], d)
				break
			}
		}
	}
	return out
}

// IntersectStats returns, for every class, the cardinality of the
// intersection of domains with that class's set, per spec.md §4.6's
// intersect_stats.
func (rc *ResolutionCache) IntersectStats(domains []string) map[string]int {
	sets := rc.IntersectSets(domains)
	out := make(map[string]int, numClasses)
	for _, c := range allClasses {
		out[c.String()] = len(sets[c])
	}
	return out
}

// resolvableOf returns the subset of domains in resolvable, timeout, or
// none, per spec.md §4.6's resolvable_of. This resolves spec.md §9's open
// question about whether timeout is provisional-resolvable or
// provisional-unresolved in favor of the original implementation's
// resolver.py, whose `resolvable` set is
// {ResolverSet.resolvable, ResolverSet.timeout, ResolverSet.none}.
func (rc *ResolutionCache) resolvableOf(domains []string) []string {
	return rc.domainsInAny(domains, Resolvable, Timeout, None)
}

// unresolvedOf returns the subset of domains in unresolvable,
// nameServerError, dnsError, or error, per spec.md §4.6's unresolved_of.
func (rc *ResolutionCache) unresolvedOf(domains []string) []string {
	return rc.domainsInAny(domains, Unresolvable, NameServerError, DNSError, Err)
}

func (rc *ResolutionCache) domainsInAny(domains []string, classes ...Class) []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	var out []string
	for _, d := range domains {
		for _, c := range classes {
			if _, ok := rc.sets[c][d]; ok {
				out = append(out, d)
				break
			}
		}
	}
	return out
}
