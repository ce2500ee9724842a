// ABOUTME: Tests for the endpoint cache and reconnect-with-failover.
// ABOUTME: Uses KEEP_HOME to point the cache at a temp directory.

package keep

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEndpoint_UpdateInPlace(t *testing.T) {
	t.Setenv("KEEP_HOME", t.TempDir())

	require.NoError(t, CacheEndpoint("h1", 9009, &ServerInfo{Version: "0.1.0", AgentsOnline: 1}))

	eps, err := Endpoints()
	require.NoError(t, err)
	require.Len(t, eps, 1)
	firstSeen := eps[0].LastSeen

	time.Sleep(1100 * time.Millisecond) // RFC 3339 second granularity

	require.NoError(t, CacheEndpoint("h1", 9009, &ServerInfo{Version: "0.2.0", AgentsOnline: 5}))

	eps, err = Endpoints()
	require.NoError(t, err)
	require.Len(t, eps, 1, "same (host, port) must replace, not append")
	assert.Equal(t, "0.2.0", eps[0].Version)
	assert.Equal(t, 5, eps[0].AgentsOnline)
	assert.NotEqual(t, firstSeen, eps[0].LastSeen)
}

func TestCacheEndpoint_NewPairAppendsPreservingOrder(t *testing.T) {
	t.Setenv("KEEP_HOME", t.TempDir())

	require.NoError(t, CacheEndpoint("h1", 9009, &ServerInfo{Version: "a"}))
	require.NoError(t, CacheEndpoint("h2", 9010, &ServerInfo{Version: "b"}))
	require.NoError(t, CacheEndpoint("h1", 9009, &ServerInfo{Version: "c"}))

	eps, err := Endpoints()
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, "h1", eps[0].Host, "update must preserve list position")
	assert.Equal(t, "c", eps[0].Version)
	assert.Equal(t, "h2", eps[1].Host)
}

func TestCacheEndpoint_CorruptFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KEEP_HOME", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "endpoints.json"), []byte("{not json"), 0600))

	require.NoError(t, CacheEndpoint("h1", 9009, &ServerInfo{Version: "a"}))

	eps, err := Endpoints()
	require.NoError(t, err)
	require.Len(t, eps, 1)
}

func TestFromCache_MissingCache(t *testing.T) {
	t.Setenv("KEEP_HOME", t.TempDir())

	_, err := FromCache(Options{Timeout: time.Second})
	assert.ErrorIs(t, err, ErrNoCachedEndpoint)
}

func TestFromCache_FailoverToSecondEntry(t *testing.T) {
	t.Setenv("KEEP_HOME", t.TempDir())

	s := startTestServer(t)
	require.NoError(t, CacheEndpoint("127.0.0.1", unreachablePort(t), &ServerInfo{}))
	require.NoError(t, CacheEndpoint(s.host(), s.port(), &ServerInfo{}))

	c, err := FromCache(Options{Src: "bot:test", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, s.port(), c.port, "client must be bound to the reachable entry")

	// The successful probe refreshes the cache record.
	eps, err := Endpoints()
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, "0.3.0", eps[1].Version)
}

func TestFromCache_AllUnreachable(t *testing.T) {
	t.Setenv("KEEP_HOME", t.TempDir())

	require.NoError(t, CacheEndpoint("127.0.0.1", unreachablePort(t), &ServerInfo{}))
	require.NoError(t, CacheEndpoint("127.0.0.1", unreachablePort(t), &ServerInfo{}))

	_, err := FromCache(Options{Timeout: time.Second})
	assert.ErrorIs(t, err, ErrNoCachedEndpoint)
	assert.Contains(t, err.Error(), "last error")
}
