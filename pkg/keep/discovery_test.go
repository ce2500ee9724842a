// ABOUTME: Tests for discovery queries against an in-process hub.
// ABOUTME: Covers info/agents/stats decoding and non-JSON fallback behavior.

package keep

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keep-protocol/keep-go/pkg/wire"
)

func TestDiscover_Info(t *testing.T) {
	s := startTestServer(t)
	c := newTestClient(t, s)

	result, err := c.Discover(QueryInfo)
	require.NoError(t, err)
	require.NotNil(t, result.Fields)
	assert.Equal(t, "0.3.0", result.Fields["version"])
	assert.EqualValues(t, 2, result.Fields["agents_online"])
}

func TestDiscover_UnknownQueryYieldsRawResult(t *testing.T) {
	s := startTestServer(t)
	c := newTestClient(t, s)

	result, err := c.Discover("bogus")
	require.NoError(t, err, "a non-JSON reply body must not fail")
	assert.Nil(t, result.Fields)
	assert.Equal(t, "error:unknown_discovery", result.Raw)
}

func TestDiscoverInfo_Typed(t *testing.T) {
	s := startTestServer(t)
	c := newTestClient(t, s)

	info, err := c.DiscoverInfo()
	require.NoError(t, err)
	assert.Equal(t, "0.3.0", info.Version)
	assert.Equal(t, 2, info.AgentsOnline)
	assert.EqualValues(t, 10, info.UptimeSec)
}

func TestDiscoverStats_Typed(t *testing.T) {
	s := startTestServer(t)
	c := newTestClient(t, s)

	stats, err := c.DiscoverStats()
	require.NoError(t, err)
	assert.EqualValues(t, 7, stats.TotalPackets)
	assert.EqualValues(t, 3, stats.ScarExchanges["bot:alice"])
}

func TestDiscoverAgents(t *testing.T) {
	s := startTestServer(t)
	c := newTestClient(t, s)

	agents, err := c.DiscoverAgents()
	require.NoError(t, err)
	assert.Equal(t, []string{"bot:alice", "bot:bob"}, agents)
}

func TestDiscoverAgents_MissingFieldDefaultsEmpty(t *testing.T) {
	host, port := startPushServer(t, func(conn net.Conn) {
		defer conn.Close()
		p, err := wire.ReadPacket(conn)
		if err != nil {
			return
		}
		wire.WritePacket(conn, &wire.Packet{Typ: 1, ID: p.ID, Src: "server", Body: `{}`})
	})

	c, err := New(Options{Host: host, Port: port, Timeout: 2 * time.Second})
	require.NoError(t, err)

	agents, err := c.DiscoverAgents()
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestDiscoverInfo_BadReply(t *testing.T) {
	host, port := startPushServer(t, func(conn net.Conn) {
		defer conn.Close()
		p, err := wire.ReadPacket(conn)
		if err != nil {
			return
		}
		wire.WritePacket(conn, &wire.Packet{Typ: 1, ID: p.ID, Src: "server", Body: "not json"})
	})

	c, err := New(Options{Host: host, Port: port, Timeout: 2 * time.Second})
	require.NoError(t, err)

	_, err = c.DiscoverInfo()
	assert.ErrorIs(t, err, ErrBadDiscoveryReply)
}

func TestDiscover_RepliesCorrelateByID(t *testing.T) {
	s := startTestServer(t)
	c := newTestClient(t, s)

	reply, err := c.Send(Message{Dst: "discover:info", ID: "query-42"})
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "query-42", reply.ID, "the hub echoes the query id on the reply")
}
