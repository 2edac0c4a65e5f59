package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T, addr string, opts ...Option) *Classifier {
	t.Helper()

	cfg := defaultConfig()
	cfg.Nameservers = []string{addr}
	cfg.Lifetime = 100 * time.Millisecond
	cfg.Retries = 2
	for _, o := range opts {
		o(&cfg)
	}

	c, err := NewClassifier(cfg)
	require.NoError(t, err)
	return c
}

func TestClassifier_Resolvable(t *testing.T) {
	srv := newFakeAuthServer(t)
	srv.addA("ok.test.", "192.0.2.1")

	c := newTestClassifier(t, srv.addr)

	class, domain := c.Classify(context.Background(), "ok.test.")
	assert.Equal(t, Resolvable, class)
	assert.Equal(t, "ok.test.", domain)
}

func TestClassifier_Unresolvable_NXDOMAIN(t *testing.T) {
	srv := newFakeAuthServer(t)

	c := newTestClassifier(t, srv.addr)

	class, _ := c.Classify(context.Background(), "nx.test.")
	assert.Equal(t, Unresolvable, class)
}

func TestClassifier_Unresolvable_EmptyAnswer(t *testing.T) {
	srv := newFakeAuthServer(t)
	srv.records["empty.test."] = nil // present but no A records

	c := newTestClassifier(t, srv.addr)

	class, _ := c.Classify(context.Background(), "empty.test.")
	assert.Equal(t, Unresolvable, class)
}

func TestClassifier_DNSError_ServerFailure(t *testing.T) {
	srv := newFakeAuthServer(t)
	srv.setRcode("boom.test.", 2) // dns.RcodeServerFailure

	c := newTestClassifier(t, srv.addr)

	class, _ := c.Classify(context.Background(), "boom.test.")
	assert.Equal(t, DNSError, class)
}

func TestClassifier_NameServerError_NoUpstreamReachable(t *testing.T) {
	// 127.0.0.1:1 is not a DNS server; the OS should refuse the connection
	// or the send itself should fail outright (not a timeout).
	c := newTestClassifier(t, "127.0.0.1:1")

	class, _ := c.Classify(context.Background(), "whatever.test.")
	assert.Contains(t, []Class{NameServerError, Err}, class)
}

func TestClassifier_Timeout_RetriesThenGivesUp(t *testing.T) {
	srv := newFakeAuthServer(t)
	srv.setDrop("slow.test.")

	c := newTestClassifier(t, srv.addr, WithRetries(1))
	c.retries = 1

	start := time.Now()
	class, _ := c.Classify(context.Background(), "slow.test.")
	elapsed := time.Since(start)

	assert.Equal(t, Timeout, class)
	// One initial attempt plus one retry, each bounded by the lifetime
	// budget, plus the 1s sleep before the retry.
	assert.GreaterOrEqual(t, elapsed, 1*time.Second)
}

func TestClassifier_ContextCancellation(t *testing.T) {
	srv := newFakeAuthServer(t)
	srv.setDrop("slow.test.")

	c := newTestClassifier(t, srv.addr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	class, _ := c.Classify(ctx, "slow.test.")
	assert.Equal(t, Err, class)
}
