// Package sessionconfig is the driver-facing loader that turns an on-disk
// JSON session description into the read-only pkg/config.Config the core
// state machines consume, and mints the ambient identifiers and derived
// key material that config loading needs but the core itself never does.
package sessionconfig

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/sixafter/nanoid"
	"golang.org/x/crypto/hkdf"

	"github.com/opd-ai/dcnet/pkg/config"
	"github.com/opd-ai/dcnet/pkg/group"
	"github.com/opd-ai/dcnet/pkg/security"
)

// file is the on-disk JSON shape. It follows config.Config's fields and adds
// self.private_seed; on top of plain unmarshaling this package adds
// defaulting, validation, session ID minting, and, when private_key is
// empty, derivation of the private key from private_seed.
type file struct {
	SessionID string `json:"session_id"`
	GroupID   string `json:"group_id"`
	Interval  uint64 `json:"interval"`

	Clients  []peer `json:"clients"`
	Trustees []peer `json:"trustees"`
	Relay    struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"relay"`

	Slots      []string `json:"slots"`
	CellLength int      `json:"cell_length"`
	LogLevel   string   `json:"log_level"`

	Self struct {
		Role          string `json:"role"`
		ID            string `json:"id"`
		PrivateKey    string `json:"private_key"`
		PrivateSeed   string `json:"private_seed"`
		NymPrivateKey string `json:"nym_private_key"`
	} `json:"self"`
}

type peer struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key"`
}

// Load reads a session configuration file and returns the validated
// config.Config a driver hands to the Client, Trustee, or Relay
// constructors. If session_id is empty, one is minted with NewSessionID.
// If self.private_key is empty but self.private_seed is set, the node's
// scalar is derived from the seed with DeriveNodeScalar instead of being
// read literally off disk.
func Load(path string, g *group.Group) (*config.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sessionconfig: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadFrom(f, g)
}

// LoadFrom is Load over an already-open reader, split out so callers in
// tests can pass a bytes.Reader instead of a file.
func LoadFrom(r io.Reader, g *group.Group) (*config.Config, error) {
	var raw file
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("sessionconfig: decode: %w", err)
	}

	cfg := config.DefaultConfig()
	cfg.SessionID = raw.SessionID
	cfg.GroupID = raw.GroupID
	cfg.Interval = raw.Interval
	cfg.Slots = raw.Slots
	cfg.LogLevel = raw.LogLevel

	if raw.CellLength != 0 {
		cfg.CellLength = raw.CellLength
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SessionID == "" {
		id, err := NewSessionID()
		if err != nil {
			return nil, fmt.Errorf("sessionconfig: mint session id: %w", err)
		}
		cfg.SessionID = id
	}

	cfg.Relay = config.RelayAddress{Host: raw.Relay.Host, Port: raw.Relay.Port}

	cfg.Clients = make([]config.Peer, len(raw.Clients))
	for i, p := range raw.Clients {
		cfg.Clients[i] = config.Peer{ID: p.ID, PublicKey: p.PublicKey}
	}
	cfg.Trustees = make([]config.Peer, len(raw.Trustees))
	for i, p := range raw.Trustees {
		cfg.Trustees[i] = config.Peer{ID: p.ID, PublicKey: p.PublicKey}
	}

	cfg.Self = config.SelfConfig{
		Role:          config.NodeRole(raw.Self.Role),
		ID:            raw.Self.ID,
		PrivateKey:    raw.Self.PrivateKey,
		NymPrivateKey: raw.Self.NymPrivateKey,
	}

	if cfg.Self.PrivateKey == "" && raw.Self.PrivateSeed != "" {
		if g == nil {
			return nil, fmt.Errorf("sessionconfig: private_seed given but no group to derive against")
		}
		seed, err := hex.DecodeString(raw.Self.PrivateSeed)
		if err != nil {
			return nil, fmt.Errorf("sessionconfig: invalid private_seed hex: %w", err)
		}
		scalar, err := DeriveNodeScalar(g, seed, raw.Self.ID)
		if err != nil {
			return nil, fmt.Errorf("sessionconfig: derive node scalar: %w", err)
		}
		cfg.Self.PrivateKey = hex.EncodeToString(scalar.Bytes())
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sessionconfig: %w", err)
	}
	return cfg, nil
}

// NewSessionID mints a short, human-opaque token to label a session in
// logs and diagnostics. It is never fed into any cryptographic derivation,
// so nanoid's non-deterministic generator is the right tool: two sessions
// started a microsecond apart still get unrelated IDs.
func NewSessionID() (string, error) {
	id, err := nanoid.New()
	if err != nil {
		return "", fmt.Errorf("sessionconfig: nanoid: %w", err)
	}
	return id, nil
}

// DeriveNodeScalar expands a long-term seed (e.g. a passphrase hash, or a
// seed held in a hardware key and handed to the loader once at startup)
// into a group scalar. How a node's configured secret material becomes
// its exact private scalar is a config-loading concern, not part of the
// DC-net protocol, so HKDF-Expand is free to fill it; the protocol's own
// PRNG seeds stay on their fixed SHA-256 derivations.
func DeriveNodeScalar(g *group.Group, seed []byte, info string) (group.Scalar, error) {
	byteLen := (g.Order().BitLen() + 7) / 8
	kdf := hkdf.New(sha256.New, seed, nil, []byte("dcnet-node-scalar:"+info))
	raw := make([]byte, byteLen)
	if _, err := io.ReadFull(kdf, raw); err != nil {
		return group.Scalar{}, fmt.Errorf("hkdf expand: %w", err)
	}
	v := new(big.Int).SetBytes(raw)
	security.ZeroSecret(raw)
	v.Mod(v, g.Order())
	if v.Sign() == 0 {
		v.SetInt64(1)
	}
	return group.ScalarFromBytes(v.Bytes()), nil
}
