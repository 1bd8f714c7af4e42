package codec

import (
	"crypto/sha256"
	"math/rand"

	dcerrors "github.com/opd-ai/dcnet/pkg/errors"
	"github.com/opd-ai/dcnet/pkg/security"
)

// headerFlagBitsPerByte is the number of inversion-flag bits packed into
// each header byte; the top bit of every header byte is a reserved guard
// bit, keeping the header chunk width uniform with a data chunk.
const headerFlagBitsPerByte = 7

// InversionParams fixes the sizes derived from one cell length. Chunks
// are byte-granular: one trap bit per data byte.
type InversionParams struct {
	CellLength       int // data region size, in bytes
	InvertHeaderSize int // header region size, in bytes
}

// NewInversionParams derives header sizing from a data cell length.
func NewInversionParams(cellLength int) InversionParams {
	headerChunks := (cellLength + headerFlagBitsPerByte - 1) / headerFlagBitsPerByte
	return InversionParams{CellLength: cellLength, InvertHeaderSize: headerChunks}
}

// InversionCodec implements the trap-bit encoding scheme: every data byte
// carries one PRNG-chosen "trap bit" whose value after encoding always
// matches a value only the holder of the same seed material can predict.
// Flipping any bit of an encoded cell's data region has at least a 1/8
// chance of landing on a trap bit and being caught by Check. Check reads
// only the data region, so a flipped header bit is not caught.
//
// An InversionCodec is stateful: each Encode/Decode/Check call advances its
// internal PRNGs by one cell's worth of draws, mirroring the way a client
// and the trustees that share its trap secrets stay in lockstep call for
// call across a whole interval. Reset rewinds to the interval's initial
// state.
type InversionCodec struct {
	params InversionParams
	seeds  [][]byte

	noiseRNGs []*rand.Rand
	posRNG    *rand.Rand
}

// NewInversionCodec builds a codec from one trap seed per trustee sharing
// this nym's trap secrets. The position PRNG is seeded from the SHA-256 of
// every noise seed concatenated, so every party deriving the same trap
// secrets reconstructs the identical position sequence.
func NewInversionCodec(params InversionParams, seeds [][]byte) *InversionCodec {
	c := &InversionCodec{params: params, seeds: seeds}
	c.Reset()
	return c
}

// Reset reseeds both PRNGs back to the interval's initial state.
func (c *InversionCodec) Reset() {
	c.noiseRNGs = make([]*rand.Rand, len(c.seeds))
	for i, s := range c.seeds {
		c.noiseRNGs[i] = rand.New(rand.NewSource(seedToInt64(s)))
	}
	h := sha256.New()
	for _, s := range c.seeds {
		h.Write(s)
	}
	c.posRNG = rand.New(rand.NewSource(seedToInt64(h.Sum(nil))))
}

func seedToInt64(b []byte) int64 {
	h := sha256.Sum256(b)
	var v int64
	for i := 0; i < 8; i++ {
		v = v<<8 | int64(h[i])
	}
	if v < 0 {
		v = -v
	}
	return v
}

// generateTraps draws n noise bytes (the XOR of every trustee's
// independent noise stream) and n trap-bit positions in [0, 8).
func (c *InversionCodec) generateTraps(n int) (noise []byte, positions []int) {
	noise = make([]byte, n)
	for _, rng := range c.noiseRNGs {
		for i := 0; i < n; i++ {
			noise[i] ^= byte(rng.Intn(256))
		}
	}
	positions = make([]int, n)
	for i := range positions {
		positions[i] = c.posRNG.Intn(8)
	}
	return noise, positions
}

// EncodedSize returns the on-wire size for a plaintext of n bytes.
func (c *InversionCodec) EncodedSize(n int) int { return c.params.InvertHeaderSize + n }

// DecodedSize returns the plaintext size recoverable from an n-byte cell.
func (c *InversionCodec) DecodedSize(n int) int { return n - c.params.InvertHeaderSize }

// Encode packs data into chunks_per_cell data bytes (zero-padded), flips
// each byte whose trap-bit position disagrees with the noise stream, and
// prepends a header carrying one inversion flag per data byte.
func (c *InversionCodec) Encode(data []byte) ([]byte, error) {
	if len(data) > c.params.CellLength {
		return nil, dcerrors.CodecError("inversion encode: plaintext exceeds cell length", nil)
	}
	dataChunks := make([]byte, c.params.CellLength)
	copy(dataChunks, data)

	total := c.params.CellLength + c.params.InvertHeaderSize
	noise, positions := c.generateTraps(total)
	dataNoise, dataPos := noise[:c.params.CellLength], positions[:c.params.CellLength]
	headerNoise := noise[c.params.CellLength:]

	flags := make([]bool, c.params.CellLength)
	encoded := make([]byte, c.params.CellLength)
	for i, d := range dataChunks {
		bit := (d >> uint(dataPos[i])) & 1
		nbit := (dataNoise[i] >> uint(dataPos[i])) & 1
		if bit == nbit {
			encoded[i] = d
			flags[i] = false
		} else {
			encoded[i] = ^d
			flags[i] = true
		}
	}

	header := make([]byte, c.params.InvertHeaderSize)
	for i, f := range flags {
		if !f {
			continue
		}
		byteIdx := i / headerFlagBitsPerByte
		bitIdx := i % headerFlagBitsPerByte
		header[byteIdx] |= 1 << uint(bitIdx)
	}
	for i := range header {
		header[i] ^= headerNoise[i]
	}

	out := make([]byte, 0, len(header)+len(encoded))
	out = append(out, header...)
	out = append(out, encoded...)
	return out, nil
}

// Decode is the inverse of Encode: it recomputes the same noise and
// positions, recovers the header flags, and conditionally complements
// each data byte back to its original value.
func (c *InversionCodec) Decode(cell []byte) ([]byte, error) {
	if len(cell) != c.params.InvertHeaderSize+c.params.CellLength {
		return nil, dcerrors.CodecError("inversion decode: cell has the wrong length", nil)
	}
	header := cell[:c.params.InvertHeaderSize]
	data := cell[c.params.InvertHeaderSize:]

	total := c.params.CellLength + c.params.InvertHeaderSize
	noise, _ := c.generateTraps(total)
	headerNoise := noise[c.params.CellLength:]

	plainHeader := make([]byte, len(header))
	for i := range header {
		plainHeader[i] = header[i] ^ headerNoise[i]
	}

	out := make([]byte, c.params.CellLength)
	for i, d := range data {
		byteIdx := i / headerFlagBitsPerByte
		bitIdx := i % headerFlagBitsPerByte
		flag := (plainHeader[byteIdx]>>uint(bitIdx))&1 == 1
		if flag {
			out[i] = ^d
		} else {
			out[i] = d
		}
	}
	return out, nil
}

// WireNoise draws one cell's worth of noise, consuming exactly the same
// draws Encode/Decode/Check would for this cell, and returns a
// wire-cell-sized buffer with the header mask in the header region and
// zeros in the data region. Only the header carries an additive XOR
// mask in Encode (the data region is conditionally complemented, not
// XORed against noise); every trustee sharing a nym's trap secret
// contributes its own single-secret WireNoise, and XORing all of them
// together against the owner's masked header reproduces the same mask
// the owner's combined-secret codec applied, cancelling it to the plain
// flag bits while leaving the already-plaintext-or-complemented data
// region untouched.
func (c *InversionCodec) WireNoise() []byte {
	total := c.params.CellLength + c.params.InvertHeaderSize
	noise, _ := c.generateTraps(total)
	headerNoise := noise[c.params.CellLength:]
	out := make([]byte, total)
	copy(out, headerNoise)
	return out
}

// DecodePlain strips inversion complement flags from a cell whose header
// is already unmasked — the state after every party's trap-secret
// contribution has been XORed together and the secret-dependent masking
// has cancelled out. No trap secret is needed at this point: the header
// bits are read as plain flags.
func DecodePlain(cell []byte, headerSize int) ([]byte, error) {
	if len(cell) <= headerSize {
		return nil, dcerrors.CodecError("inversion decode-plain: cell shorter than header", nil)
	}
	header := cell[:headerSize]
	data := cell[headerSize:]
	out := make([]byte, len(data))
	for i, d := range data {
		byteIdx := i / headerFlagBitsPerByte
		bitIdx := i % headerFlagBitsPerByte
		if (header[byteIdx]>>uint(bitIdx))&1 == 1 {
			out[i] = ^d
		} else {
			out[i] = d
		}
	}
	return out, nil
}

// Check verifies the trap-bit invariant: every data byte's trap-bit
// position must equal the corresponding noise bit. A single flipped bit
// in the data region is caught with probability at least 1/8; the caller
// must have a codec instance in the same PRNG state the encoder was in
// when it produced this cell (typically a freshly-reset one, processing
// cells in the same order they were encoded).
func (c *InversionCodec) Check(cell []byte) bool {
	if len(cell) != c.params.InvertHeaderSize+c.params.CellLength {
		return false
	}
	data := cell[c.params.InvertHeaderSize:]

	total := c.params.CellLength + c.params.InvertHeaderSize
	noise, positions := c.generateTraps(total)
	dataNoise, dataPos := noise[:c.params.CellLength], positions[:c.params.CellLength]

	observed := make([]byte, len(data))
	expected := make([]byte, len(data))
	for i, d := range data {
		observed[i] = (d >> uint(dataPos[i])) & 1
		expected[i] = (dataNoise[i] >> uint(dataPos[i])) & 1
	}
	// Every position is compared regardless of earlier mismatches, so the
	// check's duration never reveals which trap bit failed first.
	return security.ConstantTimeEqual(observed, expected)
}
