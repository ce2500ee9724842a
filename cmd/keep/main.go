// ABOUTME: Entry point for the keep command-line client
// ABOUTME: Sends signed packets, listens for routed messages, and queries discovery

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/keep-protocol/keep-go/internal/config"
	"github.com/keep-protocol/keep-go/internal/history"
	"github.com/keep-protocol/keep-go/internal/profile"
	"github.com/keep-protocol/keep-go/pkg/keep"
	"github.com/keep-protocol/keep-go/pkg/wire"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _
| | _____  ___ _ __
| |/ / _ \/ _ \ '_ \
|   <  __/  __/ |_) |
|_|\_\___|\___| .__/
              |_|
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: keep <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  send --dst DST --body TEXT   Sign and send a packet")
		fmt.Println("  listen                       Receive routed packets on a persistent connection")
		fmt.Println("  discover [info|agents|stats] Query server metadata")
		fmt.Println("  agents                       List connected agent identities")
		fmt.Println("  endpoints                    Show the cached server endpoints")
		fmt.Println("  keygen --out PATH            Generate an ed25519 identity key")
		fmt.Println("  init                         Create a starter config file")
		fmt.Println("  version                      Print the client version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(os.Args[2:])
	case "listen":
		err = runListen(ctx, os.Args[2:])
	case "discover":
		err = runDiscover(os.Args[2:])
	case "agents":
		err = runAgents(os.Args[2:])
	case "endpoints":
		err = runEndpoints()
	case "keygen":
		err = runKeygen(os.Args[2:])
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags registers the flags shared by every network command.
type commonFlags struct {
	host    string
	port    int
	src     string
	prof    string
	timeout time.Duration
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.host, "host", "", "server host (overrides config)")
	fs.IntVar(&cf.port, "port", 0, "server port (overrides config)")
	fs.StringVar(&cf.src, "src", "", "identity string (overrides config and profile)")
	fs.StringVar(&cf.prof, "profile", "", "named identity profile from ~/.keep/profiles.toml")
	fs.DurationVar(&cf.timeout, "timeout", 0, "I/O timeout (overrides config)")
	return cf
}

// buildClient resolves config, profile, identity key, and flag overrides
// into a ready Client.
func buildClient(cf *commonFlags) (*keep.Client, *config.Config, error) {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return nil, nil, err
	}

	src := cfg.Client.Src
	keyFile := cfg.Client.KeyFile

	profName := cfg.Client.Profile
	if cf.prof != "" {
		profName = cf.prof
	}
	if profName != "" {
		p, err := profile.Lookup(profName)
		if err != nil {
			return nil, nil, err
		}
		src = p.Src
		if p.KeyFile != "" {
			keyFile = p.KeyFile
		}
	}
	if cf.src != "" {
		src = cf.src
	}

	var identity *keep.Identity
	if keyFile != "" {
		identity, err = keep.LoadIdentityFromFile(keyFile)
		if err != nil {
			return nil, nil, err
		}
	}

	opts := keep.Options{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Src:      src,
		Identity: identity,
		Timeout:  cfg.Client.Timeout,
		Logger:   setupLogger(cfg.Logging),
	}
	if cf.host != "" {
		opts.Host = cf.host
	}
	if cf.port != 0 {
		opts.Port = cf.port
	}
	if cf.timeout != 0 {
		opts.Timeout = cf.timeout
	}

	client, err := keep.New(opts)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

// openHistory returns the packet log when enabled, else nil.
func openHistory(cfg *config.Config) *history.Log {
	if !cfg.History.Enabled {
		return nil
	}
	l, err := history.Open(cfg.History.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: history disabled: %v\n", err)
		return nil
	}
	return l
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	cf := registerCommon(fs)
	dst := fs.String("dst", "server", "destination identity or routing target")
	body := fs.String("body", "", "message body")
	typ := fs.Int("typ", 0, "packet type tag")
	fee := fs.Int64("fee", 0, "anti-spam micro-fee")
	ttl := fs.Int64("ttl", 0, "time to live in seconds (0 = default)")
	scarFile := fs.String("scar", "", "file whose bytes are attached as scar data")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, cfg, err := buildClient(cf)
	if err != nil {
		return err
	}

	var scar []byte
	if *scarFile != "" {
		scar, err = os.ReadFile(*scarFile)
		if err != nil {
			return fmt.Errorf("reading scar file: %w", err)
		}
	}

	msg := keep.Message{
		ID:   uuid.NewString(),
		Dst:  *dst,
		Body: *body,
		Typ:  int32(*typ),
		Fee:  *fee,
		TTL:  *ttl,
		Scar: scar,
	}

	reply, err := client.Send(msg)
	if err != nil {
		return err
	}

	if log := openHistory(cfg); log != nil {
		defer log.Close()
		log.Record(history.DirectionSent, &wire.Packet{
			ID: msg.ID, Src: client.Src(), Dst: msg.Dst, Body: msg.Body, Typ: msg.Typ, Fee: msg.Fee,
		})
		if reply != nil {
			log.Record(history.DirectionReceived, reply)
		}
	}

	green := color.New(color.FgGreen)
	if reply == nil {
		green.Print("sent ")
		fmt.Printf("%s -> %s (no reply expected)\n", client.Src(), *dst)
		return nil
	}
	green.Print("reply ")
	fmt.Printf("from %s: %s\n", reply.Src, reply.Body)
	return nil
}

func runListen(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	cf := registerCommon(fs)
	timeout := fs.Duration("window", 0, "listen window (0 = until the connection closes)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, cfg, err := buildClient(cf)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Server:   %s\n", client.Addr())
	green.Print("    ▶ ")
	fmt.Printf("Identity: %s\n\n", client.Src())

	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	// Close the connection on SIGINT so an unbounded listen unblocks.
	go func() {
		<-ctx.Done()
		client.Disconnect()
	}()

	// Register this identity with the hub before listening.
	if _, err := client.Send(keep.Message{Dst: "server"}); err != nil {
		return fmt.Errorf("registering with server: %w", err)
	}

	log := openHistory(cfg)
	if log != nil {
		defer log.Close()
	}

	yellow := color.New(color.FgYellow)
	return client.Listen(func(p *wire.Packet) {
		yellow.Printf("%s ", p.Src)
		fmt.Println(p.Body)
		if log != nil {
			log.Record(history.DirectionReceived, p)
		}
	}, *timeout)
}

func runDiscover(args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	cf := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	query := keep.QueryInfo
	if fs.NArg() > 0 {
		query = fs.Arg(0)
	}

	client, _, err := buildClient(cf)
	if err != nil {
		return err
	}

	result, err := client.Discover(query)
	if err != nil {
		return err
	}

	if result.Fields == nil {
		fmt.Println(result.Raw)
		return nil
	}

	cyan := color.New(color.FgCyan)
	for k, v := range result.Fields {
		cyan.Printf("%-16s", k)
		fmt.Printf(" %v\n", v)
	}

	// A successful info query marks this endpoint as known-good.
	if query == keep.QueryInfo {
		var info keep.ServerInfo
		if json.Unmarshal([]byte(result.Raw), &info) == nil {
			host, port := splitAddr(client.Addr())
			if err := keep.CacheEndpoint(host, port, &info); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: endpoint not cached: %v\n", err)
			}
		}
	}
	return nil
}

func runAgents(args []string) error {
	fs := flag.NewFlagSet("agents", flag.ExitOnError)
	cf := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, _, err := buildClient(cf)
	if err != nil {
		return err
	}

	agents, err := client.DiscoverAgents()
	if err != nil {
		return err
	}

	if len(agents) == 0 {
		fmt.Println("no agents online")
		return nil
	}
	for _, a := range agents {
		fmt.Println(a)
	}
	return nil
}

func runEndpoints() error {
	endpoints, err := keep.Endpoints()
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		fmt.Println("endpoint cache is empty")
		return nil
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, ep := range endpoints {
		cyan.Printf("%s:%d", ep.Host, ep.Port)
		fmt.Printf("  v%s  %d agents  ", ep.Version, ep.AgentsOnline)
		gray.Printf("last seen %s\n", ep.LastSeen)
	}
	return nil
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	out := fs.String("out", "", "output path (default $KEEP_HOME/agent_ed25519)")
	comment := fs.String("comment", "keep-agent", "key comment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *out
	if path == "" {
		dir := os.Getenv("KEEP_HOME")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			dir = filepath.Join(home, ".keep")
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
		path = filepath.Join(dir, "agent_ed25519")
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing key at %s", path)
	}

	id, err := keep.NewIdentity()
	if err != nil {
		return err
	}
	if err := id.WriteFile(path, *comment); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("wrote ")
	fmt.Println(path)
	return nil
}

const starterConfig = `server:
  host: "localhost"
  port: 9009

client:
  src: "bot:keep-client"
  # key_file: "${HOME}/.keep/agent_ed25519"
  timeout: "10s"

history:
  enabled: false
  path: "${HOME}/.keep/history.db"

logging:
  level: "info"
  format: "text"
`

func runInit() error {
	path := config.Path()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0644); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("wrote ")
	fmt.Println(path)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// splitAddr breaks "host:port" back into its parts. The address always comes
// from net.JoinHostPort, so the parse cannot fail in practice.
func splitAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}
