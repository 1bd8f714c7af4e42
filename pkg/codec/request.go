package codec

import (
	"crypto/sha256"
	"math/rand"

	dcerrors "github.com/opd-ai/dcnet/pkg/errors"
)

// RequestCode is one nym's fixed R-bit pattern within a B-bit request
// cell, computed once per interval from that nym's trap secrets.
type RequestCode struct {
	B         int
	Positions []int // R distinct bit positions in [0, B), in draw order
}

// Bytes renders the code as a ⌈B/8⌉-byte big-endian bit-vector.
func (rc RequestCode) Bytes() []byte {
	out := make([]byte, (rc.B+7)/8)
	for _, p := range rc.Positions {
		out[p/8] |= 1 << uint(7-p%8)
	}
	return out
}

// bitSet reports whether bit p is set in data.
func bitSet(data []byte, p int) bool {
	if p/8 >= len(data) {
		return false
	}
	return data[p/8]&(1<<uint(7-p%8)) != 0
}

// NewRequestCode derives the R bit positions a nym sets from the SHA-256
// of its trap secrets shared with every trustee, concatenated in trustee
// order. Two nyms presented with the same secrets always derive the same
// code, which is the point: it lets every trustee and the relay recognize
// the code without the client announcing it out of band.
func NewRequestCode(b, r int, trapSecrets [][]byte) RequestCode {
	h := sha256.New()
	for _, s := range trapSecrets {
		h.Write(s)
	}
	rng := rand.New(rand.NewSource(seedToInt64(h.Sum(nil))))

	seen := make(map[int]bool, r)
	positions := make([]int, 0, r)
	for len(positions) < r {
		p := rng.Intn(b)
		if seen[p] {
			continue
		}
		seen[p] = true
		positions = append(positions, p)
	}
	return RequestCode{B: b, Positions: positions}
}

// RequestCodec implements the fixed-weight bit-vector slot-request scheme:
// every nym's code is R bits set out of B; a trustee recognizes any nym
// whose code is a subset of the aggregated request cell, and flags
// disruption if any bit outside the union of all known codes is set.
type RequestCodec struct {
	b     int
	codes []RequestCode // indexed by nym index
	union []byte        // OR of every known code, used to derive trapmask
}

// NewRequestCodec builds a decoder over every nym's known code.
func NewRequestCodec(b int, codes []RequestCode) *RequestCodec {
	union := make([]byte, (b+7)/8)
	for _, c := range codes {
		cb := c.Bytes()
		for i := range union {
			union[i] |= cb[i]
		}
	}
	return &RequestCodec{b: b, codes: codes, union: union}
}

// EncodedSize and DecodedSize are both the fixed request-cell byte length;
// the request codec carries no variable-length payload.
func (rc *RequestCodec) EncodedSize(int) int { return (rc.b + 7) / 8 }
func (rc *RequestCodec) DecodedSize(int) int { return (rc.b + 7) / 8 }

// EncodeGrant renders a single nym's own code as its request cell: its
// full R-bit pattern, used the first time it claims a slot in an interval.
func EncodeGrant(code RequestCode) []byte {
	return code.Bytes()
}

// EncodeRetry renders a partial re-request: only the bits of code not yet
// reflected in accumulated (the interval's running request accumulator),
// with each remaining bit independently suppressed with probability 1/2
// to limit how much of the nym's code a single retry reveals.
func EncodeRetry(code RequestCode, accumulated []byte, coinFlip func() bool) []byte {
	out := make([]byte, (code.B+7)/8)
	for _, p := range code.Positions {
		if bitSet(accumulated, p) {
			continue
		}
		if coinFlip() {
			out[p/8] |= 1 << uint(7-p%8)
		}
	}
	return out
}

// Decode returns the index of every nym whose code is a subset of the
// aggregated request cell, i.e. every bit of that nym's code is set. The
// result is a list of nym indices, not a plaintext cell, but the signature
// matches Codec.
func (rc *RequestCodec) Decode(cell []byte) ([]byte, error) {
	var grants []byte
	for i, c := range rc.codes {
		granted := true
		for _, p := range c.Positions {
			if !bitSet(cell, p) {
				granted = false
				break
			}
		}
		if granted {
			grants = append(grants, byte(i))
		}
	}
	return grants, nil
}

// Check reports whether cell sets any bit outside the union of every
// known nym's code — any such bit is a trap-bit violation.
func (rc *RequestCodec) Check(cell []byte) bool {
	for i := range rc.union {
		var cb byte
		if i < len(cell) {
			cb = cell[i]
		}
		if cb&^rc.union[i] != 0 {
			return false
		}
	}
	return true
}

// Encode satisfies the Codec interface by treating cell as an already-
// rendered request bit-vector and validating its length.
func (rc *RequestCodec) Encode(cell []byte) ([]byte, error) {
	want := (rc.b + 7) / 8
	if len(cell) != want {
		return nil, dcerrors.CodecError("request encode: cell has the wrong length", nil)
	}
	return cell, nil
}
