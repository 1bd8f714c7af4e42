// Package cell provides the wire framing the DC-net core produces and
// consumes: fixed-size client and trustee cells, the one-byte trustee
// node tag sent once per interval, and the relay's downstream framing
// back to clients.
package cell

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/opd-ai/dcnet/pkg/security"
)

// DefaultLength is the fixed cell payload size in bytes.
const DefaultLength = 256

// NodeTagLen is the width of the one-byte tag a trustee sends once per
// interval, ahead of its first cell.
const NodeTagLen = 1

// ClientCell is one client's fixed-size contribution for one slot.
type ClientCell struct {
	Payload []byte
}

// NewClientCell allocates a zero-filled client cell of the given length.
func NewClientCell(length int) *ClientCell {
	return &ClientCell{Payload: make([]byte, length)}
}

// Encode writes the cell payload as-is; the length is fixed and known to
// both ends out of band (from the session configuration), so no length
// prefix is written.
func (c *ClientCell) Encode(w io.Writer) error {
	if _, err := w.Write(c.Payload); err != nil {
		return fmt.Errorf("cell: failed to write client payload: %w", err)
	}
	return nil
}

// DecodeClientCell reads a fixed-length client cell.
func DecodeClientCell(r io.Reader, length int) (*ClientCell, error) {
	c := &ClientCell{Payload: make([]byte, length)}
	if _, err := io.ReadFull(r, c.Payload); err != nil {
		return nil, fmt.Errorf("cell: failed to read client payload: %w", err)
	}
	return c, nil
}

// TrusteeCell is one trustee's fixed-size contribution for one slot.
type TrusteeCell struct {
	Payload []byte
}

// NewTrusteeCell allocates a zero-filled trustee cell of the given length.
func NewTrusteeCell(length int) *TrusteeCell {
	return &TrusteeCell{Payload: make([]byte, length)}
}

func (t *TrusteeCell) Encode(w io.Writer) error {
	if _, err := w.Write(t.Payload); err != nil {
		return fmt.Errorf("cell: failed to write trustee payload: %w", err)
	}
	return nil
}

// DecodeTrusteeCell reads a fixed-length trustee cell.
func DecodeTrusteeCell(r io.Reader, length int) (*TrusteeCell, error) {
	t := &TrusteeCell{Payload: make([]byte, length)}
	if _, err := io.ReadFull(r, t.Payload); err != nil {
		return nil, fmt.Errorf("cell: failed to read trustee payload: %w", err)
	}
	return t, nil
}

// EncodeNodeTag writes the one-byte tag a trustee sends once at the start
// of an interval, ahead of its first cell.
func EncodeNodeTag(w io.Writer, tag byte) error {
	if _, err := w.Write([]byte{tag}); err != nil {
		return fmt.Errorf("cell: failed to write node tag: %w", err)
	}
	return nil
}

// DecodeNodeTag reads the one-byte interval-leading trustee tag.
func DecodeNodeTag(r io.Reader) (byte, error) {
	var buf [NodeTagLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("cell: failed to read node tag: %w", err)
	}
	return buf[0], nil
}

// Downstream is the relay's framing back to a client: a connection
// number, the payload it carries, and a hint at which slot the relay
// expects this client to produce next, so the client can start encoding
// before the next round's slot order arrives.
type Downstream struct {
	ConnectionID uint32
	NextSlotHint uint32
	Payload      []byte
}

// Encode writes connection ID, next-slot hint, payload length, and the
// payload itself, each big-endian.
func (d *Downstream) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, d.ConnectionID); err != nil {
		return fmt.Errorf("cell: failed to write connection id: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, d.NextSlotHint); err != nil {
		return fmt.Errorf("cell: failed to write next-slot hint: %w", err)
	}
	payloadLen, err := security.SafeIntToUint32(len(d.Payload))
	if err != nil {
		return fmt.Errorf("cell: payload too large to frame: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, payloadLen); err != nil {
		return fmt.Errorf("cell: failed to write payload length: %w", err)
	}
	if _, err := w.Write(d.Payload); err != nil {
		return fmt.Errorf("cell: failed to write downstream payload: %w", err)
	}
	return nil
}

// DecodeDownstream reads one relay-to-client downstream frame.
func DecodeDownstream(r io.Reader) (*Downstream, error) {
	d := &Downstream{}
	if err := binary.Read(r, binary.BigEndian, &d.ConnectionID); err != nil {
		return nil, fmt.Errorf("cell: failed to read connection id: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &d.NextSlotHint); err != nil {
		return nil, fmt.Errorf("cell: failed to read next-slot hint: %w", err)
	}
	var payloadLen uint32
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return nil, fmt.Errorf("cell: failed to read payload length: %w", err)
	}
	d.Payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(r, d.Payload); err != nil {
		return nil, fmt.Errorf("cell: failed to read downstream payload: %w", err)
	}
	return d, nil
}
