// ABOUTME: Cryptographic identity for keep clients — an ed25519 signing keypair.
// ABOUTME: Supports fresh generation, fixed seeds, and OpenSSH key files.

package keep

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// ErrNotEd25519 indicates a key file that parsed but does not hold an
// ed25519 private key.
var ErrNotEd25519 = errors.New("not an ed25519 private key")

// Identity is a client's signing keypair. The identity string (src) an agent
// presents on the wire is configured separately; one keypair may back many
// identity strings and vice versa.
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewIdentity generates a fresh ed25519 keypair.
func NewIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return &Identity{priv: priv, pub: pub}, nil
}

// IdentityFromSeed derives a deterministic identity from a 32-byte seed.
func IdentityFromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Identity{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// LoadIdentityFromFile reads an unencrypted OpenSSH ed25519 private key.
func LoadIdentityFromFile(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	raw, err := ssh.ParseRawPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing key file %s: %w", path, err)
	}

	var priv ed25519.PrivateKey
	switch k := raw.(type) {
	case ed25519.PrivateKey:
		priv = k
	case *ed25519.PrivateKey:
		priv = *k
	default:
		return nil, fmt.Errorf("%w: %s holds %T", ErrNotEd25519, path, raw)
	}

	return &Identity{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// WriteFile stores the private key at path in OpenSSH PEM format, mode 0600.
func (id *Identity) WriteFile(path, comment string) error {
	block, err := ssh.MarshalPrivateKey(id.priv, comment)
	if err != nil {
		return fmt.Errorf("marshaling private key: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

// PublicKey returns the raw 32-byte public key as carried in Packet.Pk.
func (id *Identity) PublicKey() ed25519.PublicKey {
	return id.pub
}

// PrivateKey returns the signing key.
func (id *Identity) PrivateKey() ed25519.PrivateKey {
	return id.priv
}
