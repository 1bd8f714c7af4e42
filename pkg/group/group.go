// Package group implements the prime-order Schnorr group the DC-net core
// builds every other cryptographic primitive on: modular exponentiation,
// the encode/decode-as-quadratic-residue trick that turns arbitrary byte
// strings into group elements, ElGamal encryption, and Schnorr signatures.
//
// The group is a 1024-bit safe-prime multiplicative subgroup; no curve
// library in the example pack models this algebraic structure (fixed-curve
// libraries such as curve25519/ed25519 have no analogous encode-as-element
// operation), so this package is built directly on math/big over a fixed
// 1024-bit safe prime.
package group

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"

	dcerrors "github.com/opd-ai/dcnet/pkg/errors"
)

// maxEncodePad bounds the quadratic-residue search in Encode.
const maxEncodePad = 256

// Element is a member of the prime-order subgroup, represented by its
// value mod P. The zero Element is not a valid group element.
type Element struct {
	v *big.Int
}

// Scalar is an exponent in [0, Q). The zero Scalar is not a valid secret.
type Scalar struct {
	v *big.Int
}

// Signature is a Schnorr signature (r, s) over this group.
type Signature struct {
	R Element
	S Scalar
}

// Ciphertext is an ElGamal ciphertext (c1, c2) over this group.
type Ciphertext struct {
	C1 Element
	C2 Element
}

// Group holds the fixed parameters of a prime-order Schnorr group: a
// 1024-bit safe prime P, its order-q subgroup generator G, and Q = (P-1)/2.
type Group struct {
	P *big.Int
	Q *big.Int
	g *big.Int
}

// verdict1024Hex is the 1024-bit safe prime used throughout the Verdict
// certifier and the DC-net group arithmetic.
const verdict1024Hex = "fd8a16fc2afdaeb2ea62b66b355f73e6c2fc4349bf455179336ca1b45f75d" +
	"68da0101cba63c22efd5f72e5c81dc30cf709daaef2323e950160926e11ef8cbf40a26" +
	"496668749218b5620276697c2d1536b31042ad846e1e5758d79b3e4e0b5bc4c5d3a4e9" +
	"5da4502e9058ea3beade156d8234e35d5164783c57e6135139db097"

// New1024 returns the canonical 1024-bit Schnorr group used by the core:
// generator 2 over the safe prime P, with subgroup order Q = (P-1)/2.
func New1024() *Group {
	p, ok := new(big.Int).SetString(verdict1024Hex, 16)
	if !ok {
		panic("group: invalid embedded prime constant")
	}
	q := new(big.Int).Rsh(new(big.Int).Sub(p, big.NewInt(1)), 1)
	return &Group{P: p, Q: q, g: big.NewInt(2)}
}

// Generator returns the group generator g.
func (g *Group) Generator() Element { return Element{v: new(big.Int).Set(g.g)} }

// Order returns a copy of the subgroup order q.
func (g *Group) Order() *big.Int { return new(big.Int).Set(g.Q) }

// ByteLen is the fixed width of P in bytes, used to size encoded elements.
func (g *Group) ByteLen() int { return (g.P.BitLen() + 7) / 8 }

// IsElement reports whether v is a member of the order-q subgroup, i.e.
// v^q ≡ 1 mod p.
func (g *Group) IsElement(v *big.Int) bool {
	if v.Sign() <= 0 || v.Cmp(g.P) >= 0 {
		return false
	}
	r := new(big.Int).Exp(v, g.Q, g.P)
	return r.Cmp(big.NewInt(1)) == 0
}

// Add computes a·b mod p — the group operation, written multiplicatively.
func (g *Group) Add(a, b Element) Element {
	return Element{v: new(big.Int).Mod(new(big.Int).Mul(a.v, b.v), g.P)}
}

// Multiply computes a^k mod p.
func (g *Group) Multiply(a Element, k Scalar) Element {
	return Element{v: new(big.Int).Exp(a.v, k.v, g.P)}
}

// Inverse computes the multiplicative inverse of a mod p.
func (g *Group) Inverse(a Element) Element {
	return Element{v: new(big.Int).ModInverse(a.v, g.P)}
}

// RandomSecret draws a uniform scalar in [2^(bits(q)-1), q-1): a
// full-width exponent, never a tiny one.
func (g *Group) RandomSecret(r io.Reader) (Scalar, error) {
	bits := g.Q.BitLen()
	lo := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	hi := new(big.Int).Sub(g.Q, big.NewInt(1))
	span := new(big.Int).Sub(hi, lo)
	if span.Sign() <= 0 {
		return Scalar{}, dcerrors.GroupError("random_secret: empty range", nil)
	}
	n, err := rand.Int(r, span)
	if err != nil {
		return Scalar{}, dcerrors.GroupError("random_secret: rng failure", err)
	}
	return Scalar{v: new(big.Int).Add(lo, n)}, nil
}

// PublicFromSecret returns g^secret mod p.
func (g *Group) PublicFromSecret(s Scalar) Element {
	return g.Multiply(g.Generator(), s)
}

// SharedSecret computes a Diffie-Hellman shared secret pub^secret mod p,
// the primitive every pairwise XorNet seed and trap secret is built from.
func (g *Group) SharedSecret(secret Scalar, pub Element) Element {
	return g.Multiply(pub, secret)
}

// Encode maps an arbitrary byte string to a group element using the
// 0xFF-sentinel padding trick: it prepends 0xFF, appends a one-byte
// counter and a trailing 0xFF, and increments the counter until the
// resulting integer is a quadratic residue (a member of the subgroup).
// Failing to find one within 256 attempts returns an error.
func (g *Group) Encode(data []byte) (Element, error) {
	buf := make([]byte, len(data)+3)
	buf[0] = 0xff
	copy(buf[1:], data)
	buf[len(buf)-1] = 0xff

	for pad := 0; pad < maxEncodePad; pad++ {
		buf[len(buf)-2] = byte(pad)
		v := new(big.Int).SetBytes(buf)
		if g.IsElement(v) {
			return Element{v: v}, nil
		}
	}
	return Element{}, dcerrors.GroupError(
		fmt.Sprintf("encode: no quadratic residue found in %d attempts", maxEncodePad), nil)
}

// Decode recovers the original byte string from an element produced by
// Encode, stripping the leading/trailing 0xFF sentinels and the pad byte.
func (g *Group) Decode(e Element) ([]byte, error) {
	data := e.v.Bytes()
	if len(data) < 3 || data[0] != 0xff || data[len(data)-1] != 0xff {
		return nil, dcerrors.GroupError("decode: malformed element encoding", nil)
	}
	return data[1 : len(data)-2], nil
}

// schnorrHash is the signature scheme's truncated-SHA-256 hash: it takes
// the SHA-256 digest of msg and interprets up to ceil(bits/8) leading bytes
// as a big-endian integer (the digest itself is shorter than that for any
// bits ≥ 256, so in practice the whole digest is used).
func schnorrHash(msg []byte, bits int) *big.Int {
	limit := bits / 8
	if bits%8 != 0 {
		limit++
	}
	digest := sha256.Sum256(msg)
	if limit > len(digest) {
		limit = len(digest)
	}
	return new(big.Int).SetBytes(digest[:limit])
}

// Sign produces a Schnorr signature over msg with the given secret key.
// It draws a fresh k coprime with p-1, sets r = g^k mod p, and solves
// s = k^-1 · (H(msg) - secret·r) mod (p-1).
func (g *Group) Sign(secret Scalar, msg []byte) (Signature, error) {
	p1 := new(big.Int).Sub(g.P, big.NewInt(1))
	one := big.NewInt(1)

	var k *big.Int
	for {
		cand, err := rand.Int(rand.Reader, p1)
		if err != nil {
			return Signature{}, dcerrors.GroupError("sign: rng failure", err)
		}
		if cand.Sign() == 0 {
			continue
		}
		if new(big.Int).GCD(nil, nil, cand, p1).Cmp(one) == 0 {
			k = cand
			break
		}
	}

	r := new(big.Int).Exp(g.g, k, g.P)
	kInv := new(big.Int).ModInverse(k, p1)
	if kInv == nil {
		return Signature{}, dcerrors.GroupError("sign: k not invertible mod p-1", nil)
	}

	h := schnorrHash(msg, p1.BitLen())
	sr := new(big.Int).Mul(secret.v, r)
	diff := new(big.Int).Sub(h, sr)
	s := new(big.Int).Mod(new(big.Int).Mul(diff, kInv), p1)

	return Signature{R: Element{v: r}, S: Scalar{v: s}}, nil
}

// Verify checks a Schnorr signature: element^r · r^s ≡ g^H(msg) mod p.
func (g *Group) Verify(pub Element, msg []byte, sig Signature) bool {
	one := big.NewInt(1)
	pLess1 := new(big.Int).Sub(g.P, one)
	if sig.R.v.Cmp(one) < 0 || sig.R.v.Cmp(pLess1) > 0 {
		return false
	}
	if sig.S.v.Cmp(one) < 0 || sig.S.v.Cmp(pLess1) > 0 {
		return false
	}

	v1a := new(big.Int).Exp(pub.v, sig.R.v, g.P)
	v1b := new(big.Int).Exp(sig.R.v, sig.S.v, g.P)
	v1 := new(big.Int).Mod(new(big.Int).Mul(v1a, v1b), g.P)

	h := schnorrHash(msg, new(big.Int).Sub(g.P, one).BitLen())
	v2 := new(big.Int).Exp(g.g, h, g.P)

	return v1.Cmp(v2) == 0
}

// Encrypt produces an ElGamal ciphertext of data under the recipient's
// public element: c1 = g^y, c2 = encode(data) · element^y.
func (g *Group) Encrypt(pub Element, data []byte, r io.Reader) (Ciphertext, error) {
	y, err := g.RandomSecret(r)
	if err != nil {
		return Ciphertext{}, err
	}
	c1 := g.Multiply(g.Generator(), y)
	s := g.Multiply(pub, y)
	de, err := g.Encode(data)
	if err != nil {
		return Ciphertext{}, err
	}
	c2 := g.Add(de, s)
	return Ciphertext{C1: c1, C2: c2}, nil
}

// Decrypt recovers the plaintext from an ElGamal ciphertext using secret.
func (g *Group) Decrypt(secret Scalar, ct Ciphertext) ([]byte, error) {
	s := g.Multiply(ct.C1, secret)
	de := g.Add(ct.C2, g.Inverse(s))
	return g.Decode(de)
}

// ElementFromBytes interprets raw bytes as a group element without
// validating subgroup membership; callers that need membership checked
// should follow with IsElement.
func ElementFromBytes(b []byte) Element {
	return Element{v: new(big.Int).SetBytes(b)}
}

// Bytes returns the big-endian byte encoding of the element.
func (e Element) Bytes() []byte { return e.v.Bytes() }

// Equal reports whether two elements have the same value.
func (e Element) Equal(other Element) bool { return e.v.Cmp(other.v) == 0 }

// ScalarFromBytes interprets raw bytes as a scalar.
func ScalarFromBytes(b []byte) Scalar {
	return Scalar{v: new(big.Int).SetBytes(b)}
}

// Bytes returns the big-endian byte encoding of the scalar.
func (s Scalar) Bytes() []byte { return s.v.Bytes() }
