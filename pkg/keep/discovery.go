// ABOUTME: Discovery queries — server metadata, connected agents, traffic stats.
// ABOUTME: Thin convention over Send with dst "discover:<query>".

package keep

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadDiscoveryReply indicates a discovery reply body that did not decode
// as the expected structure.
var ErrBadDiscoveryReply = errors.New("bad discovery reply")

// Recognized discovery queries. Unrecognized values reach the server and
// come back as a server-defined error indicator in the reply body.
const (
	QueryInfo   = "info"
	QueryAgents = "agents"
	QueryStats  = "stats"
)

// ServerInfo is the decoded reply to a discover("info") query.
type ServerInfo struct {
	Version      string `json:"version"`
	AgentsOnline int    `json:"agents_online"`
	UptimeSec    int64  `json:"uptime_sec"`
}

// ServerStats is the decoded reply to a discover("stats") query.
type ServerStats struct {
	TotalPackets  int64            `json:"total_packets"`
	ScarExchanges map[string]int64 `json:"scar_exchanges"`
}

// DiscoveryResult holds a discovery reply body. Fields is populated when the
// body is a JSON object; otherwise it is nil and only Raw carries the body
// (servers answer unknown queries with a bare error string).
type DiscoveryResult struct {
	Raw    string
	Fields map[string]any
}

// Discover sends a discovery query and decodes the reply body. A non-JSON
// body is surfaced as a raw-string result, never an error.
func (c *Client) Discover(query string) (*DiscoveryResult, error) {
	reply, err := c.Send(Message{Dst: "discover:" + query, Reply: ReplyWait})
	if err != nil {
		return nil, err
	}

	result := &DiscoveryResult{Raw: reply.Body}
	var fields map[string]any
	if json.Unmarshal([]byte(reply.Body), &fields) == nil {
		result.Fields = fields
	}
	return result, nil
}

// DiscoverInfo queries server metadata.
func (c *Client) DiscoverInfo() (*ServerInfo, error) {
	reply, err := c.Send(Message{Dst: "discover:" + QueryInfo, Reply: ReplyWait})
	if err != nil {
		return nil, err
	}

	var info ServerInfo
	if err := json.Unmarshal([]byte(reply.Body), &info); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadDiscoveryReply, reply.Body, err)
	}
	return &info, nil
}

// DiscoverStats queries packet counters and per-agent scar-exchange counts.
func (c *Client) DiscoverStats() (*ServerStats, error) {
	reply, err := c.Send(Message{Dst: "discover:" + QueryStats, Reply: ReplyWait})
	if err != nil {
		return nil, err
	}

	var stats ServerStats
	if err := json.Unmarshal([]byte(reply.Body), &stats); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadDiscoveryReply, reply.Body, err)
	}
	return &stats, nil
}

// DiscoverAgents returns the identities currently connected to the server,
// or an empty list when the reply carries none.
func (c *Client) DiscoverAgents() ([]string, error) {
	result, err := c.Discover(QueryAgents)
	if err != nil {
		return nil, err
	}

	raw, ok := result.Fields["agents"].([]any)
	if !ok {
		return []string{}, nil
	}

	agents := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			agents = append(agents, s)
		}
	}
	return agents, nil
}
