package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolutionCache_ApplyBatchEnforcesDisjointness(t *testing.T) {
	rc := NewResolutionCache(nil)

	rc.ApplyBatch(BatchResult{{Class: Resolvable, Domain: "a.test."}})
	rc.ApplyBatch(BatchResult{{Class: Timeout, Domain: "a.test."}})

	class, ok := rc.Find("a.test.")
	assert.True(t, ok)
	assert.Equal(t, Timeout, class)

	assert.Empty(t, rc.Sanity())
	stats := rc.Stats()
	assert.Equal(t, 0, stats[Resolvable.String()])
	assert.Equal(t, 1, stats[Timeout.String()])
}

func TestResolutionCache_UpdateInsertsIntoNone(t *testing.T) {
	rc := NewResolutionCache(nil)
	rc.ApplyBatch(BatchResult{{Class: Resolvable, Domain: "known.test."}})

	rc.Update([]string{"known.test.", "fresh.test."})

	class, ok := rc.Find("fresh.test.")
	assert.True(t, ok)
	assert.Equal(t, None, class)

	class, ok = rc.Find("known.test.")
	assert.True(t, ok)
	assert.Equal(t, Resolvable, class)
}

func TestResolutionCache_IntersectionUpdateCompacts(t *testing.T) {
	rc := NewResolutionCache(nil)
	rc.ApplyBatch(BatchResult{
		{Class: Resolvable, Domain: "keep.test."},
		{Class: Unresolvable, Domain: "drop.test."},
	})

	rc.IntersectionUpdate([]string{"keep.test."})

	_, ok := rc.Find("drop.test.")
	assert.False(t, ok)
	_, ok = rc.Find("keep.test.")
	assert.True(t, ok)
}

func TestResolutionCache_BalanceRepairsViolation(t *testing.T) {
	rc := NewResolutionCache(nil)
	rc.sets[Resolvable]["dup.test."] = struct{}{}
	rc.sets[Timeout]["dup.test."] = struct{}{}

	assert.NotEmpty(t, rc.Sanity())

	rc.Balance(Timeout)

	class, ok := rc.Find("dup.test.")
	assert.True(t, ok)
	assert.Equal(t, Resolvable, class)
	assert.Empty(t, rc.Sanity())
}

func TestResolutionCache_FindMissingReturnsFalse(t *testing.T) {
	rc := NewResolutionCache(nil)
	_, ok := rc.Find("nope.test.")
	assert.False(t, ok)
}

func TestResolutionCache_ResolvableOfAndUnresolvedOf(t *testing.T) {
	rc := NewResolutionCache(nil)
	rc.ApplyBatch(BatchResult{
		{Class: Resolvable, Domain: "r.test."},
		{Class: Timeout, Domain: "t.test."},
		{Class: None, Domain: "n.test."},
		{Class: Unresolvable, Domain: "u.test."},
		{Class: NameServerError, Domain: "ns.test."},
		{Class: DNSError, Domain: "dns.test."},
		{Class: Err, Domain: "e.test."},
	})

	domains := []string{"r.test.", "t.test.", "n.test.", "u.test.", "ns.test.", "dns.test.", "e.test."}

	resolvable := rc.resolvableOf(domains)
	assert.ElementsMatch(t, []string{"r.test.", "t.test.", "n.test."}, resolvable)

	unresolved := rc.unresolvedOf(domains)
	assert.ElementsMatch(t, []string{"u.test.", "ns.test.", "dns.test.", "e.test."}, unresolved)
}

func TestResolutionCache_IntersectSetsAndStats(t *testing.T) {
	rc := NewResolutionCache(nil)
	rc.ApplyBatch(BatchResult{
		{Class: Resolvable, Domain: "a.test."},
		{Class: Unresolvable, Domain: "b.test."},
	})

	sets := rc.IntersectSets([]string{"a.test.", "b.test.", "c.test."})
	assert.ElementsMatch(t, []string{"a.test."}, sets[Resolvable])
	assert.ElementsMatch(t, []string{"b.test."}, sets[Unresolvable])

	stats := rc.IntersectStats([]string{"a.test.", "b.test.", "c.test."})
	assert.Equal(t, 1, stats[Resolvable.String()])
	assert.Equal(t, 1, stats[Unresolvable.String()])
	assert.Equal(t, 0, stats[None.String()])
}
