// Package codec implements the two cell codecs the DC-net core layers on
// top of the raw keystream: the inversion trap codec, which lets a trustee
// detect a disrupted cell without ever learning its plaintext, and the
// request codec, a fixed-weight bit-vector scheme clients use to claim
// slot ownership. Both share the same operation set, captured here as a
// single interface. The dcnet package does not select codecs through this
// interface: it uses InversionCodec for every data slot and RequestCodec for
// the request cell directly.
package codec

// Codec is the common shape of every cell codec: encode a plaintext cell,
// decode a ciphertext cell, check whether a ciphertext's trap bits are
// intact, and map a plaintext size to its encoded size and back. Not every
// codec needs every operation — Null's Check always succeeds — but all five
// must be present to make codecs interchangeable.
type Codec interface {
	Encode(cell []byte) ([]byte, error)
	Decode(cell []byte) ([]byte, error)
	Check(cell []byte) bool
	EncodedSize(n int) int
	DecodedSize(n int) int
}

// Null is the no-op codec: it passes cells through unchanged and never
// flags disruption. No other package in this module constructs one; the
// request cell goes through RequestCodec.
type Null struct{}

// NewNull constructs a Null codec.
func NewNull() *Null { return &Null{} }

func (n *Null) Encode(cell []byte) ([]byte, error) { return cell, nil }
func (n *Null) Decode(cell []byte) ([]byte, error) { return cell, nil }
func (n *Null) Check(cell []byte) bool             { return true }
func (n *Null) EncodedSize(size int) int           { return size }
func (n *Null) DecodedSize(size int) int           { return size }
