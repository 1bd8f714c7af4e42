// Package config provides the session configuration surface for the DC-net
// core: the read-only inputs a driver assembles once per session and hands
// to the Client, Trustee, and Relay state machines. The core never parses
// command-line flags or files itself; that remains a driver concern.
package config

import (
	"encoding/hex"
	"fmt"
)

// NodeRole identifies which of the three cooperating roles a node plays.
type NodeRole string

const (
	RoleClient  NodeRole = "client"
	RoleTrustee NodeRole = "trustee"
	RoleRelay   NodeRole = "relay"
)

// Peer is one entry of the ordered client or trustee list.
type Peer struct {
	ID        string // opaque identifier, unique within its list
	PublicKey string // hex-encoded group element
}

// RelayAddress is the relay's externally reachable address; the core treats
// it as an opaque field handed to the transport, never dialing it itself.
type RelayAddress struct {
	Host string
	Port int
}

// SelfConfig is the node's own private material. PrivateKey is required
// for clients and trustees and may be empty for the relay; NymPrivateKey
// is set only for a client that owns a slot in the
// current interval.
type SelfConfig struct {
	Role          NodeRole
	ID            string
	PrivateKey    string // hex-encoded scalar
	NymPrivateKey string // hex-encoded scalar, client-only, may be empty
}

// Config is the full session configuration surface: clients, trustees,
// relay, the slot permutation, session and group identifiers, the starting
// interval, and this node's own material.
type Config struct {
	SessionID string
	GroupID   string
	Interval  uint64

	Clients  []Peer
	Trustees []Peer
	Relay    RelayAddress

	// Slots is the shuffled permutation of nym public keys (hex-encoded);
	// slot index is the position in this slice. Every slot, slot 0
	// included, carries its nym's payload; the request cell is a separate
	// cell, not one of the slots.
	Slots []string

	// CellLength is the fixed cell size in bytes; spec default is 256.
	CellLength int

	// LogLevel: debug, info, warn, or error.
	LogLevel string

	Self SelfConfig
}

// DefaultConfig returns a configuration with the default cell size and
// an empty peer set; the driver fills in Clients/Trustees/Relay/Slots.
func DefaultConfig() *Config {
	return &Config{
		CellLength: 256,
		LogLevel:   "info",
		Clients:    []Peer{},
		Trustees:   []Peer{},
		Slots:      []string{},
	}
}

// Validate checks internal consistency of the configuration. It does not
// validate the hex-encoded key material against the group (pkg/group owns
// that check at the point each key is actually decoded).
func (c *Config) Validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("SessionID is required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("GroupID is required")
	}
	if c.CellLength <= 0 {
		return fmt.Errorf("CellLength must be positive, got %d", c.CellLength)
	}
	if len(c.Clients) == 0 {
		return fmt.Errorf("at least one client is required")
	}
	if len(c.Trustees) == 0 {
		return fmt.Errorf("at least one trustee is required")
	}
	if len(c.Slots) != len(c.Clients) {
		return fmt.Errorf("slots length %d must equal client count %d", len(c.Slots), len(c.Clients))
	}

	seen := make(map[string]bool, len(c.Slots))
	for i, s := range c.Slots {
		if _, err := hex.DecodeString(s); err != nil {
			return fmt.Errorf("slot %d: invalid hex public key: %w", i, err)
		}
		if seen[s] {
			return fmt.Errorf("slot %d: duplicate nym public key in slots permutation", i)
		}
		seen[s] = true
	}

	for i, p := range c.Clients {
		if p.ID == "" {
			return fmt.Errorf("client %d: ID is required", i)
		}
		if _, err := hex.DecodeString(p.PublicKey); err != nil {
			return fmt.Errorf("client %d: invalid hex public key: %w", i, err)
		}
	}
	for i, p := range c.Trustees {
		if p.ID == "" {
			return fmt.Errorf("trustee %d: ID is required", i)
		}
		if _, err := hex.DecodeString(p.PublicKey); err != nil {
			return fmt.Errorf("trustee %d: invalid hex public key: %w", i, err)
		}
	}

	switch c.Self.Role {
	case RoleClient, RoleTrustee, RoleRelay:
	default:
		return fmt.Errorf("invalid Self.Role: %q", c.Self.Role)
	}
	if c.Self.Role != RoleRelay && c.Self.PrivateKey == "" {
		return fmt.Errorf("Self.PrivateKey is required for role %q", c.Self.Role)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid LogLevel: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Clients = append([]Peer{}, c.Clients...)
	clone.Trustees = append([]Peer{}, c.Trustees...)
	clone.Slots = append([]string{}, c.Slots...)
	return &clone
}
