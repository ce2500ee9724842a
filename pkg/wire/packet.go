// ABOUTME: Packet type and its protobuf wire codec for the keep protocol.
// ABOUTME: Hand-encoded with protowire against the fixed schema shared with the server.

package wire

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformedPacket indicates bytes that do not decode as a Packet.
var ErrMalformedPacket = errors.New("malformed packet")

// Packet field numbers. The schema is an external contract shared with the
// keep server (see keep.proto); field numbers must never be reassigned.
const (
	fieldTyp  = 1
	fieldID   = 2
	fieldSrc  = 3
	fieldDst  = 4
	fieldBody = 5
	fieldFee  = 6
	fieldTTL  = 7
	fieldScar = 8
	fieldSig  = 9
	fieldPk   = 10
)

// Packet is the protocol's signed message unit.
//
// Typ 0 is a normal message, 1 a server reply, 2 a heartbeat. Sig covers the
// packet serialized with Sig and Pk cleared; the transmitted form carries both
// populated.
type Packet struct {
	Typ  int32  // packet type tag
	ID   string // opaque message identifier, unique per send
	Src  string // sender identity, e.g. "bot:alice"
	Dst  string // destination identity or routing target
	Body string // UTF-8 payload
	Fee  int64  // anti-spam micro-fee
	TTL  int64  // time to live, seconds
	Scar []byte // opaque application-defined auxiliary data
	Sig  []byte // ed25519 signature
	Pk   []byte // raw ed25519 public key of the signer
}

// Marshal serializes p in protobuf wire format. Fields are emitted in
// ascending field-number order and zero values are omitted (proto3
// semantics), so the output is deterministic for a given packet.
func Marshal(p *Packet) []byte {
	var b []byte
	if p.Typ != 0 {
		b = protowire.AppendTag(b, fieldTyp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(p.Typ)))
	}
	if p.ID != "" {
		b = protowire.AppendTag(b, fieldID, protowire.BytesType)
		b = protowire.AppendString(b, p.ID)
	}
	if p.Src != "" {
		b = protowire.AppendTag(b, fieldSrc, protowire.BytesType)
		b = protowire.AppendString(b, p.Src)
	}
	if p.Dst != "" {
		b = protowire.AppendTag(b, fieldDst, protowire.BytesType)
		b = protowire.AppendString(b, p.Dst)
	}
	if p.Body != "" {
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendString(b, p.Body)
	}
	if p.Fee != 0 {
		b = protowire.AppendTag(b, fieldFee, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Fee))
	}
	if p.TTL != 0 {
		b = protowire.AppendTag(b, fieldTTL, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.TTL))
	}
	if len(p.Scar) > 0 {
		b = protowire.AppendTag(b, fieldScar, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Scar)
	}
	if len(p.Sig) > 0 {
		b = protowire.AppendTag(b, fieldSig, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Sig)
	}
	if len(p.Pk) > 0 {
		b = protowire.AppendTag(b, fieldPk, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Pk)
	}
	return b
}

// Unmarshal decodes protobuf wire bytes into a Packet. Unknown fields are
// skipped so the client stays compatible with newer server schema revisions.
func Unmarshal(data []byte) (*Packet, error) {
	p := &Packet{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag: %v", ErrMalformedPacket, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.VarintType && (num == fieldTyp || num == fieldFee || num == fieldTTL):
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedPacket, num, protowire.ParseError(n))
			}
			data = data[n:]
			switch num {
			case fieldTyp:
				p.Typ = int32(v)
			case fieldFee:
				p.Fee = int64(v)
			case fieldTTL:
				p.TTL = int64(v)
			}

		case typ == protowire.BytesType && num >= fieldID && num <= fieldPk:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedPacket, num, protowire.ParseError(n))
			}
			data = data[n:]
			switch num {
			case fieldID:
				p.ID = string(v)
			case fieldSrc:
				p.Src = string(v)
			case fieldDst:
				p.Dst = string(v)
			case fieldBody:
				p.Body = string(v)
			case fieldScar:
				p.Scar = append([]byte(nil), v...)
			case fieldSig:
				p.Sig = append([]byte(nil), v...)
			case fieldPk:
				p.Pk = append([]byte(nil), v...)
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedPacket, num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return p, nil
}

// SigningBytes returns the serialization the signature covers: the packet
// with Sig and Pk cleared. A verifier must reproduce the same exclusion.
func (p *Packet) SigningBytes() []byte {
	unsigned := *p
	unsigned.Sig = nil
	unsigned.Pk = nil
	return Marshal(&unsigned)
}

// Sign computes the ed25519 signature over SigningBytes and populates
// Sig and Pk.
func (p *Packet) Sign(priv ed25519.PrivateKey) {
	p.Sig = ed25519.Sign(priv, p.SigningBytes())
	p.Pk = []byte(priv.Public().(ed25519.PublicKey))
}

// Verify reports whether the embedded signature is valid for the embedded
// public key. The client never enforces this on received packets; it exists
// for tools and tests.
func (p *Packet) Verify() bool {
	if len(p.Pk) != ed25519.PublicKeySize || len(p.Sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(p.Pk), p.SigningBytes(), p.Sig)
}
