// Package keystream implements XorNet, the AES-CTR keystream layer that
// turns a set of pairwise Diffie-Hellman shared secrets into the raw
// ciphertext each DC-net participant contributes per cell. Every shared
// secret seeds one independent AES-CTR stream; XORing all of them together
// over a zero plaintext is the layer's entire output. When a client and the
// trustees that share that pairwise secret each run their own XorNet, the
// pairwise contributions cancel out under a final XOR at the relay.
package keystream

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"

	dcerrors "github.com/opd-ai/dcnet/pkg/errors"
)

const seedLen = 16 // AES-128 key/IV size

// XorNet produces one cell-sized ciphertext block per call, the XOR of n
// independent AES-CTR streams each seeded by SHA-256(secret ‖ interval).
type XorNet struct {
	streams    []cipher.Stream
	cellLength int
}

// New constructs a XorNet over the given shared secrets for interval i.
// cellLength is the fixed cell size in bytes (spec default 256).
func New(secrets [][]byte, interval uint64, cellLength int) (*XorNet, error) {
	if cellLength <= 0 {
		return nil, dcerrors.CryptoError("keystream: cellLength must be positive", nil)
	}
	streams := make([]cipher.Stream, 0, len(secrets))
	for _, s := range secrets {
		seed := deriveSeed(s, interval)
		block, err := aes.NewCipher(seed)
		if err != nil {
			return nil, dcerrors.CryptoError("keystream: failed to construct AES cipher", err)
		}
		// A fixed all-zero IV is safe here: the key itself is unique per
		// (pairwise secret, interval), which is the only thing that must
		// never repeat for a given keystream.
		iv := make([]byte, aes.BlockSize)
		streams = append(streams, cipher.NewCTR(block, iv))
	}
	return &XorNet{streams: streams, cellLength: cellLength}, nil
}

// deriveSeed computes SHA-256(s ‖ interval)[0:16], the seed for one
// pairwise AES-CTR stream.
func deriveSeed(secret []byte, interval uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], interval)
	h := sha256.New()
	h.Write(secret)
	h.Write(buf[:])
	digest := h.Sum(nil)
	return digest[:seedLen]
}

// ProduceCiphertext returns the XOR of every stream's output over a
// zero-filled cell of the configured length.
func (x *XorNet) ProduceCiphertext() []byte {
	out := make([]byte, x.cellLength)
	zero := make([]byte, x.cellLength)
	scratch := make([]byte, x.cellLength)
	for _, stream := range x.streams {
		stream.XORKeyStream(scratch, zero)
		for i := range out {
			out[i] ^= scratch[i]
		}
	}
	return out
}

// NumStreams returns the number of pairwise streams this XorNet manages.
func (x *XorNet) NumStreams() int { return len(x.streams) }
