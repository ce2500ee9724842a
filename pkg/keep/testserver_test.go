// ABOUTME: In-process TCP test server speaking the hub side of the keep protocol.
// ABOUTME: Replies "done" to server-bound packets and answers discovery queries.

package keep

import (
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keep-protocol/keep-go/pkg/wire"
)

type testServer struct {
	t  *testing.T
	ln net.Listener

	info   ServerInfo
	agents []string
	stats  ServerStats

	mu       sync.Mutex
	received []*wire.Packet
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testServer{
		t:      t,
		ln:     ln,
		info:   ServerInfo{Version: "0.3.0", AgentsOnline: 2, UptimeSec: 10},
		agents: []string{"bot:alice", "bot:bob"},
		stats:  ServerStats{TotalPackets: 7, ScarExchanges: map[string]int64{"bot:alice": 3}},
	}
	t.Cleanup(func() { ln.Close() })

	go s.acceptLoop()
	return s
}

func (s *testServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *testServer) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		p, err := wire.ReadPacket(conn)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.received = append(s.received, p)
		s.mu.Unlock()

		switch {
		case strings.HasPrefix(p.Dst, "discover:"):
			s.reply(conn, p, s.discoveryBody(strings.TrimPrefix(p.Dst, "discover:")))
		case p.Dst == "server" || p.Dst == "":
			s.reply(conn, p, "done")
		default:
			// Routed elsewhere; the sender gets nothing back on this
			// connection.
		}
	}
}

func (s *testServer) discoveryBody(query string) string {
	var v any
	switch query {
	case "info":
		v = s.info
	case "agents":
		v = map[string]any{"agents": s.agents}
	case "stats":
		v = s.stats
	default:
		return "error:unknown_discovery"
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func (s *testServer) reply(conn net.Conn, req *wire.Packet, body string) {
	resp := &wire.Packet{Typ: 1, ID: req.ID, Src: "server", Body: body}
	if err := wire.WritePacket(conn, resp); err != nil {
		s.t.Logf("test server write: %v", err)
	}
}

func (s *testServer) host() string {
	host, _, _ := net.SplitHostPort(s.ln.Addr().String())
	return host
}

func (s *testServer) port() int {
	_, port, _ := net.SplitHostPort(s.ln.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

func (s *testServer) receivedPackets() []*wire.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*wire.Packet(nil), s.received...)
}

// waitReceived polls until the server has seen at least n packets.
func (s *testServer) waitReceived(n int) []*wire.Packet {
	s.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := s.receivedPackets()
		if len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.t.Fatalf("test server received %d packets, want at least %d", len(s.receivedPackets()), n)
	return nil
}

func newTestClient(t *testing.T, s *testServer) *Client {
	t.Helper()
	c, err := New(Options{
		Host:    s.host(),
		Port:    s.port(),
		Src:     "bot:test",
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return c
}

// unreachablePort returns a port with nothing listening on it.
func unreachablePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()
	n, _ := strconv.Atoi(port)
	return n
}
