package resolver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFacade(t *testing.T, addr string) *Facade {
	t.Helper()
	resetForTesting()
	t.Cleanup(resetForTesting)

	dir := t.TempDir()
	f, err := New(
		WithRootDir(dir),
		WithNameservers(addr),
		WithLifetime(100*time.Millisecond),
		WithMinWorkerShare(1),
	)
	require.NoError(t, err)
	return f
}

func TestFacade_SingletonViolation(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	dir := t.TempDir()
	_, err := New(WithRootDir(dir))
	require.NoError(t, err)

	_, err = New(WithRootDir(dir))
	assert.ErrorIs(t, err, ErrSingletonViolation)
}

func TestFacade_BatchResolveAndQueries(t *testing.T) {
	srv := newFakeAuthServer(t)
	srv.addA("ok.test.", "192.0.2.1")

	f := newTestFacade(t, srv.addr)

	err := f.BatchResolve(context.Background(), []string{"ok.test.", "nx.test."})
	require.NoError(t, err)

	class, ok := f.Find("ok.test.")
	assert.True(t, ok)
	assert.Equal(t, Resolvable, class)

	class, ok = f.Find("nx.test.")
	assert.True(t, ok)
	assert.Equal(t, Unresolvable, class)

	resolvable := f.ResolvableOf([]string{"ok.test.", "nx.test."})
	assert.ElementsMatch(t, []string{"ok.test."}, resolvable)

	unresolved := f.UnresolvedOf([]string{"ok.test.", "nx.test."})
	assert.ElementsMatch(t, []string{"nx.test."}, unresolved)
}

func TestFacade_PersistsAcrossLoad(t *testing.T) {
	srv := newFakeAuthServer(t)
	srv.addA("ok.test.", "192.0.2.1")

	resetForTesting()
	dir := t.TempDir()

	f, err := New(WithRootDir(dir), WithNameservers(srv.addr), WithMinWorkerShare(1))
	require.NoError(t, err)
	require.NoError(t, f.BatchResolve(context.Background(), []string{"ok.test."}))

	resetForTesting()
	f2, err := New(WithRootDir(dir), WithNameservers(srv.addr), WithMinWorkerShare(1))
	require.NoError(t, err)
	t.Cleanup(resetForTesting)

	class, ok := f2.Find("ok.test.")
	assert.True(t, ok)
	assert.Equal(t, Resolvable, class)

	assert.FileExists(t, filepath.Join(dir, "dns_resolver_cache.json"))
}

func TestFacade_EnvOverridesRootDir(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	dir := t.TempDir()
	t.Setenv(envRootDir, dir)

	f, err := New()
	require.NoError(t, err)
	assert.Equal(t, dir, f.cfg.RootDir)
}
