// Package wire implements the keep protocol's byte-level contract: the
// signed Packet codec and the length-prefixed frame transport.
//
// # Packets
//
// A Packet is serialized in protobuf wire format against the fixed schema in
// keep.proto. The signature covers the packet serialized with Sig and Pk
// cleared:
//
//	p := &wire.Packet{ID: id, Src: "bot:alice", Dst: "server", Body: "hi", TTL: 60}
//	p.Sign(priv)
//	data := wire.Marshal(p)
//
// # Frames
//
// Every packet travels inside one frame: a 4-byte big-endian length followed
// by the serialized packet. Frames over MaxPacketSize (65536 bytes) are
// rejected symmetrically — before writing on the send side and before
// reading the body on the receive side.
//
//	err := wire.WritePacket(conn, p)
//	reply, err := wire.ReadPacket(conn)
//
// ReadFrame accumulates across short reads, so fragmented delivery (including
// a fragmented header) is handled transparently.
package wire
