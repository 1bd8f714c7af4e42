// Package verdict implements the Verdict cell certifier: every party's
// DC-net contribution for a round is AES-CTR encrypted under a fresh
// per-party seed, and the seed is blinded into a group element keyed to
// a rolling shared generator, so the relay can recover each seed — and
// with it the underlying DC-net ciphertexts — only once every party's
// commitment terms cancel. The layer is transparent to the XOR pipeline:
// Accumulator.Before strips the blinding and hands back the plain
// DC-net shares for ordinary slot-wise accumulation.
package verdict

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math/big"

	dcerrors "github.com/opd-ai/dcnet/pkg/errors"
	"github.com/opd-ai/dcnet/pkg/group"
)

// seedLen is the AES-128 seed each certifier draws per round. Seeds are
// forced above 2^121 so their byte encoding is always exactly 16 bytes.
const seedLen = 16

// Verifier is the shared shape of ClientVerdict and TrusteeVerdict: each
// holds a signed sum of pairwise shared secrets and can both publish that
// sum as a public commitment and use it to blind a group element.
type Verifier interface {
	Commitment() group.Element
	GenerateCiphertext(generator group.Element, data []byte) (group.Element, error)
}

// ClientVerdict is one client's half: the positive sum of its pairwise
// Diffie-Hellman secrets with every trustee.
type ClientVerdict struct {
	g            *group.Group
	sharedSecret group.Scalar
	commitment   group.Element
}

// NewClientVerdict sums own's DH exchange with every trustee public key.
func NewClientVerdict(g *group.Group, own group.Scalar, trusteePublics []group.Element) *ClientVerdict {
	sum := group.ScalarFromBytes(nil) // zero scalar
	for _, t := range trusteePublics {
		shared := g.SharedSecret(own, t)
		sum = addModQ(g, sum, elementToScalar(shared))
	}
	return &ClientVerdict{g: g, sharedSecret: sum, commitment: g.PublicFromSecret(sum)}
}

// Commitment returns g^ss, the value this client publishes so every other
// party can confirm the session-wide sum of commitments is the identity.
func (c *ClientVerdict) Commitment() group.Element { return c.commitment }

// GenerateCiphertext returns generator^ss, optionally multiplied by the
// group-encoded data.
func (c *ClientVerdict) GenerateCiphertext(generator group.Element, data []byte) (group.Element, error) {
	return generateCiphertext(c.g, generator, c.sharedSecret, data)
}

// TrusteeVerdict is one trustee's half: the negative sum of its pairwise
// Diffie-Hellman secrets with every client, so that the session-wide sum
// of every client's and trustee's secret cancels to zero.
type TrusteeVerdict struct {
	g            *group.Group
	sharedSecret group.Scalar
	commitment   group.Element
}

// NewTrusteeVerdict sums own's DH exchange with every client public key,
// negated mod q.
func NewTrusteeVerdict(g *group.Group, own group.Scalar, clientPublics []group.Element) *TrusteeVerdict {
	sum := group.ScalarFromBytes(nil)
	for _, c := range clientPublics {
		shared := g.SharedSecret(own, c)
		sum = subModQ(g, sum, elementToScalar(shared))
	}
	return &TrusteeVerdict{g: g, sharedSecret: sum, commitment: g.PublicFromSecret(sum)}
}

func (t *TrusteeVerdict) Commitment() group.Element { return t.commitment }

func (t *TrusteeVerdict) GenerateCiphertext(generator group.Element, data []byte) (group.Element, error) {
	return generateCiphertext(t.g, generator, t.sharedSecret, data)
}

func generateCiphertext(g *group.Group, generator group.Element, ss group.Scalar, data []byte) (group.Element, error) {
	encrypted := g.Multiply(generator, ss)
	if data != nil {
		de, err := g.Encode(data)
		if err != nil {
			return group.Element{}, err
		}
		encrypted = g.Add(de, encrypted)
	}
	return encrypted, nil
}

// chain is the rolling generator state both sides of the exchange keep in
// lockstep: this round's generator is g^H(counter ‖ previous cleartexts),
// so every party can derive the next generator from public data alone.
type chain struct {
	g       *group.Group
	counter uint64
	prev    []byte
}

func (c *chain) generator() group.Element {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], c.counter)
	h := sha256.New()
	h.Write(buf[:])
	h.Write(c.prev)
	exp := group.ScalarFromBytes(h.Sum(nil))
	return c.g.PublicFromSecret(exp)
}

func (c *chain) advance(cleartexts [][]byte) {
	c.counter++
	c.prev = c.prev[:0]
	for _, ct := range cleartexts {
		c.prev = append(c.prev, ct...)
	}
}

// Contribution is one party's verdict-wrapped output for a round: its
// AES-encrypted DC-net shares plus the two commitment terms the relay
// needs to recover the seed. Other is generator^ss; Own additionally
// folds in the group-encoded seed.
type Contribution struct {
	Cells [][]byte
	Other group.Element
	Own   group.Element
}

// Certifier is the party side of the encrypted exchange: it draws a
// fresh AES seed each round, blinds it under the rolling generator with
// its verifier's signed secret sum, and encrypts the party's DC-net
// shares under the seed.
type Certifier struct {
	g        *group.Group
	verifier Verifier
	rand     io.Reader
	chain    chain
}

// NewCertifier wraps a verifier (the client- or trustee-side signed sum)
// into a certifier. r supplies the per-round AES seeds.
func NewCertifier(g *group.Group, verifier Verifier, r io.Reader) *Certifier {
	return &Certifier{g: g, verifier: verifier, rand: r, chain: chain{g: g}}
}

// Commitment returns the wrapped verifier's published commitment.
func (c *Certifier) Commitment() group.Element { return c.verifier.Commitment() }

// CurrentGenerator returns this round's shared generator from the
// rolling chain.
func (c *Certifier) CurrentGenerator() group.Element { return c.chain.generator() }

// Certify wraps one round's DC-net shares: it draws a fresh seed,
// AES-CTR encrypts every cell under it, and blinds the seed into the
// Own term while publishing the bare blinding as Other.
func (c *Certifier) Certify(cells [][]byte) (Contribution, error) {
	gen := c.chain.generator()

	other, err := c.verifier.GenerateCiphertext(gen, nil)
	if err != nil {
		return Contribution{}, err
	}

	seed := make([]byte, seedLen)
	if _, err := io.ReadFull(c.rand, seed); err != nil {
		return Contribution{}, dcerrors.CryptoError("verdict certify: failed to draw seed", err)
	}
	seed[0] |= 0x02 // keep the seed above 2^121 so it re-encodes to 16 bytes

	own, err := c.verifier.GenerateCiphertext(gen, seed)
	if err != nil {
		return Contribution{}, err
	}

	stream, err := newSeedStream(seed)
	if err != nil {
		return Contribution{}, err
	}
	encrypted := make([][]byte, len(cells))
	for i, cell := range cells {
		encrypted[i] = make([]byte, len(cell))
		stream.XORKeyStream(encrypted[i], cell)
	}
	return Contribution{Cells: encrypted, Other: other, Own: own}, nil
}

// Advance rolls the chain forward with the round's recovered cleartexts,
// keeping this certifier's generator in lockstep with the accumulator's.
func (c *Certifier) Advance(cleartexts [][]byte) { c.chain.advance(cleartexts) }

// AccumulatorLike is the relay-side counterpart to Certifier: Before
// strips every party's AES blinding and returns the underlying DC-net
// ciphertexts, and After folds the round's cleartexts into the rolling
// chain.
type AccumulatorLike interface {
	CurrentGenerator() group.Element
	Before(contributions []Contribution) ([][][]byte, error)
	After(cleartexts [][]byte)
}

// Accumulator is the relay-side half of the exchange. Because every
// client's positive and every trustee's negative secret sum cancel
// across the full contribution set, the seed term for party s is
// recovered as Own_s plus the Other term of every other party — no
// relay-held secret is involved.
type Accumulator struct {
	g     *group.Group
	chain chain
}

// NewAccumulator starts a chain at counter 0 with an empty cleartext seed.
func NewAccumulator(g *group.Group) *Accumulator {
	return &Accumulator{g: g, chain: chain{g: g}}
}

// CurrentGenerator derives this round's shared generator from the
// rolling chain state: g^H(counter ‖ prevCleartexts).
func (a *Accumulator) CurrentGenerator() group.Element { return a.chain.generator() }

// Before recovers every party's AES seed from the commitment terms and
// decrypts its cells, returning the underlying DC-net ciphertexts in the
// same party order. A mismatched commitment set leaves a seed that no
// longer decodes as a group-encoded byte string, surfaced as an error.
func (a *Accumulator) Before(contributions []Contribution) ([][][]byte, error) {
	out := make([][][]byte, len(contributions))
	for sdx, contrib := range contributions {
		shared := group.ElementFromBytes([]byte{1})
		for idx, other := range contributions {
			if idx == sdx {
				continue
			}
			shared = a.g.Add(shared, other.Other)
		}
		pseed := a.g.Add(shared, contrib.Own)

		seed, err := a.g.Decode(pseed)
		if err != nil || len(seed) != seedLen {
			return nil, dcerrors.VerdictError("verdict accumulate: seed does not decode; commitment sums mismatched", err)
		}
		stream, err := newSeedStream(seed)
		if err != nil {
			return nil, err
		}
		out[sdx] = make([][]byte, len(contrib.Cells))
		for i, cell := range contrib.Cells {
			out[sdx][i] = make([]byte, len(cell))
			stream.XORKeyStream(out[sdx][i], cell)
		}
	}
	return out, nil
}

// After advances the chain once the round's cleartexts are known, so the
// next round's generator depends on this one.
func (a *Accumulator) After(cleartexts [][]byte) { a.chain.advance(cleartexts) }

// newSeedStream builds the AES-CTR stream a 16-byte seed keys, counting
// from an initial block value of 1.
func newSeedStream(seed []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(seed)
	if err != nil {
		return nil, dcerrors.CryptoError("verdict: failed to construct AES cipher from seed", err)
	}
	iv := make([]byte, aes.BlockSize)
	iv[len(iv)-1] = 1
	return cipher.NewCTR(block, iv), nil
}

func elementToScalar(e group.Element) group.Scalar {
	return group.ScalarFromBytes(e.Bytes())
}

func addModQ(g *group.Group, a, b group.Scalar) group.Scalar {
	av := new(big.Int).SetBytes(a.Bytes())
	bv := new(big.Int).SetBytes(b.Bytes())
	sum := new(big.Int).Mod(new(big.Int).Add(av, bv), g.Order())
	return group.ScalarFromBytes(sum.Bytes())
}

func subModQ(g *group.Group, a, b group.Scalar) group.Scalar {
	av := new(big.Int).SetBytes(a.Bytes())
	bv := new(big.Int).SetBytes(b.Bytes())
	diff := new(big.Int).Mod(new(big.Int).Sub(av, bv), g.Order())
	return group.ScalarFromBytes(diff.Bytes())
}
