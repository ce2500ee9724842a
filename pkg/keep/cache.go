// ABOUTME: Persisted endpoint cache (~/.keep/endpoints.json) and reconnect failover.
// ABOUTME: Tracks known-good servers; FromCache probes them in stored order.

package keep

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoCachedEndpoint indicates the endpoint cache is missing, empty, or no
// cached endpoint was reachable.
var ErrNoCachedEndpoint = errors.New("no cached endpoint")

const endpointsFile = "endpoints.json"

// Endpoint is one cached server address with the server state last observed
// there. Entries are unique on (host, port) and never pruned automatically.
type Endpoint struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Version      string `json:"version"`
	AgentsOnline int    `json:"agents_online"`
	LastSeen     string `json:"last_seen"` // RFC 3339, UTC
}

type endpointCache struct {
	Endpoints []Endpoint `json:"endpoints"`
}

// cacheDir resolves the per-user cache directory: $KEEP_HOME, else ~/.keep.
func cacheDir() (string, error) {
	if dir := os.Getenv("KEEP_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".keep"), nil
}

// loadEndpoints reads the cache file. A missing or undecodable file yields
// an empty list, never an error — the cache is advisory.
func loadEndpoints(path string) []Endpoint {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cache endpointCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil
	}
	return cache.Endpoints
}

// Endpoints returns the cached endpoints in stored order.
func Endpoints() ([]Endpoint, error) {
	dir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	return loadEndpoints(filepath.Join(dir, endpointsFile)), nil
}

// CacheEndpoint records a server at (host, port) with the given info. An
// existing entry for the pair is replaced in place, preserving its position;
// a new pair appends at the end. The whole file is rewritten.
func CacheEndpoint(host string, port int, info *ServerInfo) error {
	dir, err := cacheDir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, endpointsFile)

	endpoints := loadEndpoints(path)

	entry := Endpoint{
		Host:         host,
		Port:         port,
		Version:      info.Version,
		AgentsOnline: info.AgentsOnline,
		LastSeen:     time.Now().UTC().Format(time.RFC3339),
	}

	updated := false
	for i, ep := range endpoints {
		if ep.Host == host && ep.Port == port {
			endpoints[i] = entry
			updated = true
			break
		}
	}
	if !updated {
		endpoints = append(endpoints, entry)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.MarshalIndent(endpointCache{Endpoints: endpoints}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding endpoint cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing endpoint cache: %w", err)
	}
	return nil
}

// FromCache builds a client from the endpoint cache. Host and Port in opts
// are ignored; entries are tried in stored order, each probed with a
// discover("info") round trip within the configured timeout. The first
// endpoint that answers has its cache record refreshed and its bound,
// already-probed client returned. Every per-endpoint failure — refused
// connection, timeout, decode error — is swallowed and the next entry tried;
// if all fail, the error wraps the last failure.
func FromCache(opts Options) (*Client, error) {
	dir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	endpoints := loadEndpoints(filepath.Join(dir, endpointsFile))
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: cache at %s is missing or empty", ErrNoCachedEndpoint, dir)
	}

	var lastErr error
	for _, ep := range endpoints {
		opts.Host = ep.Host
		opts.Port = ep.Port

		client, err := New(opts)
		if err != nil {
			return nil, err
		}

		info, err := client.DiscoverInfo()
		if err != nil {
			lastErr = err
			continue
		}

		if err := CacheEndpoint(ep.Host, ep.Port, info); err != nil {
			client.logger.Warn("refreshing endpoint cache failed", "err", err)
		}
		return client, nil
	}

	return nil, fmt.Errorf("%w: last error: %w", ErrNoCachedEndpoint, lastErr)
}
