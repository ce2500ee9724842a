// ABOUTME: Blocking receive loop over the persistent connection.
// ABOUTME: Filters heartbeats and treats timeout or connection close as normal exit.

package keep

import (
	"errors"
	"net"
	"time"

	"github.com/keep-protocol/keep-go/pkg/wire"
)

// Listen blocks reading packets from the persistent connection and invokes
// handler for each, synchronously and in arrival order. Heartbeat packets
// (TypHeartbeat) are discarded before reaching the handler.
//
// A timeout > 0 bounds each read; zero listens until the connection closes
// or errors. A read timeout, an orderly close, or any other transport error
// ends the loop normally with a nil return — only a frame that fails to
// parse as a Packet is reported. On exit the read deadline is cleared so a
// short listen timeout does not leak into later operations on the same
// connection.
//
// Returns ErrNotConnected when no persistent connection is open. To
// interrupt an unbounded Listen, close the connection from another
// goroutine via Disconnect.
func (c *Client) Listen(handler func(*wire.Packet), timeout time.Duration) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}

	// Clear any deadline left behind by an earlier reply-waiting send, and
	// leave the connection deadline-free on exit.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return nil
			}
		}

		p, err := wire.ReadPacket(conn)
		if err != nil {
			if errors.Is(err, wire.ErrMalformedPacket) {
				return err
			}
			// Timeouts, EOF, resets, and framing violations all end the
			// loop without propagating.
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				c.logger.Debug("listen timeout", "timeout", timeout)
			} else {
				c.logger.Debug("listen ended", "err", err)
			}
			return nil
		}

		if p.Typ == TypHeartbeat {
			continue
		}
		handler(p)
	}
}
