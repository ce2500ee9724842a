// Package keep is a client for the keep protocol: signed, low-latency
// agent-to-agent messaging routed through a hub server over TCP.
//
// # Identity
//
// Every client signs its packets with an ed25519 keypair. Pass an Identity
// explicitly to keep a stable cryptographic identity, or leave it nil and New
// generates an ephemeral one:
//
//	id, _ := keep.LoadIdentityFromFile("~/.keep/agent_ed25519")
//	client, err := keep.New(keep.Options{Src: "bot:alice", Identity: id})
//
// The Src identity string presented on the wire is independent of the
// keypair.
//
// # Sending
//
// Without Connect, each Send opens its own connection and always returns the
// server's reply:
//
//	reply, err := client.Send(keep.Message{Dst: "bot:bob", Body: "hello"})
//
// With a persistent connection, the reply-wait behavior follows
// Message.Reply; ReplyAuto waits only for "server", "", and "discover:"
// destinations:
//
//	if err := client.Connect(ctx); err != nil { ... }
//	defer client.Disconnect()
//	client.Send(keep.Message{Dst: "bot:bob", Body: "fire and forget"})
//
// # Receiving
//
// Listen blocks on the persistent connection, invoking the handler for every
// routed packet in arrival order. Heartbeats never reach the handler:
//
//	err := client.Listen(func(p *wire.Packet) {
//	    fmt.Println(p.Src, p.Body)
//	}, 30*time.Second)
//
// Sends and a running Listen compete for the same inbound frames; keep one
// logical reader per connection (the reference pattern is sends first, then
// Listen).
//
// # Discovery and failover
//
// Discover queries server metadata ("info"), the connected agent list
// ("agents"), and traffic statistics ("stats"). Successful endpoints can be
// cached and reused:
//
//	info, _ := client.DiscoverInfo()
//	keep.CacheEndpoint(host, port, info)
//	...
//	client, err := keep.FromCache(keep.Options{Src: "bot:alice"})
//
// FromCache tries cached endpoints in stored order and returns the first one
// that answers a discovery probe.
package keep
