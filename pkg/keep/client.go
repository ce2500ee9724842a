// ABOUTME: Client for the keep protocol — signs packets and sends them over TCP.
// ABOUTME: Supports ephemeral (connection per send) and persistent connection modes.

package keep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keep-protocol/keep-go/pkg/wire"
)

// ErrNotConnected indicates an operation that requires a persistent
// connection was invoked without one.
var ErrNotConnected = errors.New("not connected")

// Defaults applied by New when the corresponding Options field is zero.
const (
	DefaultHost    = "localhost"
	DefaultPort    = 9009
	DefaultSrc     = "bot:keep-client"
	DefaultTimeout = 10 * time.Second
	DefaultTTL     = 60
)

// TypHeartbeat is the reserved keep-alive packet type. Readers filter it
// before packets reach application code.
const TypHeartbeat = 2

// ReplyMode controls whether a persistent-mode Send blocks for a reply.
type ReplyMode int

const (
	// ReplyAuto waits when the destination is "server", the empty string,
	// or a "discover:" query, and returns immediately otherwise.
	ReplyAuto ReplyMode = iota
	// ReplyWait blocks until one reply frame is read.
	ReplyWait
	// ReplyNone returns immediately after the frame is written.
	ReplyNone
)

// Message describes one outbound packet. Zero fields take protocol defaults:
// Src falls back to the client identity string, ID to a random UUID, TTL to
// DefaultTTL seconds.
type Message struct {
	Body  string
	Dst   string
	Src   string
	Typ   int32
	Fee   int64
	TTL   int64
	ID    string
	Scar  []byte
	Reply ReplyMode
}

// Options configures a Client. Zero fields take the package defaults;
// a nil Identity means a fresh keypair is generated for this client.
type Options struct {
	Host     string
	Port     int
	Src      string
	Identity *Identity
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Client speaks the keep protocol to a single routing server.
//
// Without Connect, every Send opens and closes its own TCP connection
// (ephemeral mode). After Connect, sends share the persistent connection and
// Listen can receive asynchronously routed packets. Frames on one connection
// are strictly ordered; the caller must ensure a single logical reader and
// writer at a time — sends concurrent with a running Listen on the same
// connection compete for the next inbound frame.
type Client struct {
	host     string
	port     int
	src      string
	identity *Identity
	timeout  time.Duration
	logger   *slog.Logger

	mu   sync.Mutex // guards conn transitions
	conn net.Conn
}

// New creates a Client. It performs no I/O.
func New(opts Options) (*Client, error) {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Src == "" {
		opts.Src = DefaultSrc
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "keep-client")
	}
	if opts.Identity == nil {
		id, err := NewIdentity()
		if err != nil {
			return nil, err
		}
		opts.Identity = id
	}

	return &Client{
		host:     opts.Host,
		port:     opts.Port,
		src:      opts.Src,
		identity: opts.Identity,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}, nil
}

// Addr returns the server address the client is bound to.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Src returns the identity string stamped on outbound packets by default.
func (c *Client) Src() string {
	return c.src
}

// Connect opens the persistent TCP connection. It is a no-op when already
// connected. Pair with a deferred Disconnect so the socket is released on
// every exit path.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr())
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.Addr(), err)
	}

	c.conn = conn
	c.logger.Debug("connected", "addr", c.Addr())
	return nil
}

// Disconnect closes the persistent connection, swallowing close errors.
// It is a no-op when not connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("close error ignored", "err", err)
	}
	c.conn = nil
}

// Connected reports whether a persistent connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) current() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// buildAndSign fills in message defaults, signs, and returns the packet.
func (c *Client) buildAndSign(msg Message) *wire.Packet {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Src == "" {
		msg.Src = c.src
	}
	if msg.TTL == 0 {
		msg.TTL = DefaultTTL
	}

	p := &wire.Packet{
		Typ:  msg.Typ,
		ID:   msg.ID,
		Src:  msg.Src,
		Dst:  msg.Dst,
		Body: msg.Body,
		Fee:  msg.Fee,
		TTL:  msg.TTL,
		Scar: msg.Scar,
	}
	p.Sign(c.identity.PrivateKey())
	return p
}

// shouldWait resolves the reply-wait decision for persistent mode. Discovery
// always waits: a discovery query is useless without its synchronous reply.
func shouldWait(mode ReplyMode, dst string) bool {
	switch mode {
	case ReplyWait:
		return true
	case ReplyNone:
		return false
	default:
		return dst == "server" || dst == "" || strings.HasPrefix(dst, "discover:")
	}
}

// Send signs and sends one packet.
//
// In ephemeral mode it opens a connection, writes the frame, reads exactly
// one reply frame, and closes — the reply is always returned, with a single
// attempt and no retry.
//
// In persistent mode it writes the frame on the open connection and blocks
// for a reply according to msg.Reply. Fire-and-forget sends return (nil, nil);
// replies to them are not correlated and arrive via Listen, never here.
func (c *Client) Send(msg Message) (*wire.Packet, error) {
	p := c.buildAndSign(msg)

	conn := c.current()
	if conn == nil {
		return c.sendEphemeral(p)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	if err := wire.WritePacket(conn, p); err != nil {
		return nil, err
	}
	c.logger.Debug("packet sent", "id", p.ID, "dst", p.Dst, "typ", p.Typ)

	if !shouldWait(msg.Reply, msg.Dst) {
		return nil, nil
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	return wire.ReadPacket(conn)
}

// sendEphemeral performs one connect/send/receive/close cycle.
func (c *Client) sendEphemeral(p *wire.Packet) (*wire.Packet, error) {
	conn, err := net.DialTimeout("tcp", c.Addr(), c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.Addr(), err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	if err := wire.WritePacket(conn, p); err != nil {
		return nil, err
	}
	return wire.ReadPacket(conn)
}
