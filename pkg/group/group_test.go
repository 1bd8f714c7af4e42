package group

import (
	"crypto/rand"
	"testing"
)

func TestGeneratorIsElement(t *testing.T) {
	g := New1024()
	if !g.IsElement(g.Generator().v) {
		t.Fatal("generator is not a member of the order-q subgroup")
	}
}

func TestRandomSecretRange(t *testing.T) {
	g := New1024()
	for i := 0; i < 20; i++ {
		s, err := g.RandomSecret(rand.Reader)
		if err != nil {
			t.Fatalf("RandomSecret failed: %v", err)
		}
		if s.v.Sign() <= 0 || s.v.Cmp(g.Q) >= 0 {
			t.Fatalf("secret %v out of range [1, q)", s.v)
		}
	}
}

func TestDiffieHellmanAgreement(t *testing.T) {
	g := New1024()
	a, err := g.RandomSecret(rand.Reader)
	if err != nil {
		t.Fatalf("RandomSecret: %v", err)
	}
	b, err := g.RandomSecret(rand.Reader)
	if err != nil {
		t.Fatalf("RandomSecret: %v", err)
	}

	aPub := g.PublicFromSecret(a)
	bPub := g.PublicFromSecret(b)

	sharedA := g.SharedSecret(a, bPub)
	sharedB := g.SharedSecret(b, aPub)

	if !sharedA.Equal(sharedB) {
		t.Fatalf("shared secrets disagree: %v != %v", sharedA.v, sharedB.v)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	g := New1024()
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hi")},
		{"hello", []byte("hello world")},
		{"binary", []byte{0x00, 0x01, 0xfe, 0xff, 0x10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elem, err := g.Encode(tt.data)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if !g.IsElement(elem.v) {
				t.Fatal("encoded value is not a subgroup element")
			}
			got, err := g.Decode(elem)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if string(got) != string(tt.data) {
				t.Fatalf("round trip mismatch: got %q, want %q", got, tt.data)
			}
		})
	}
}

func TestSignVerify(t *testing.T) {
	g := New1024()
	secret, err := g.RandomSecret(rand.Reader)
	if err != nil {
		t.Fatalf("RandomSecret: %v", err)
	}
	pub := g.PublicFromSecret(secret)

	msg := []byte("verdict commitment binds this cell")
	sig, err := g.Sign(secret, msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !g.Verify(pub, msg, sig) {
		t.Fatal("valid signature failed to verify")
	}

	if g.Verify(pub, []byte("tampered"), sig) {
		t.Fatal("signature verified against the wrong message")
	}

	otherSecret, _ := g.RandomSecret(rand.Reader)
	otherPub := g.PublicFromSecret(otherSecret)
	if g.Verify(otherPub, msg, sig) {
		t.Fatal("signature verified against the wrong key")
	}
}

func TestElGamalEncryptDecrypt(t *testing.T) {
	g := New1024()
	secret, err := g.RandomSecret(rand.Reader)
	if err != nil {
		t.Fatalf("RandomSecret: %v", err)
	}
	pub := g.PublicFromSecret(secret)

	plaintext := []byte("slot ownership request")
	ct, err := g.Encrypt(pub, plaintext, rand.Reader)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	got, err := g.Decrypt(secret, ct)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("decrypted = %q, want %q", got, plaintext)
	}
}

func TestEncodeOversizedInputFails(t *testing.T) {
	g := New1024()
	big := make([]byte, g.ByteLen()+10)
	if _, err := g.Encode(big); err == nil {
		t.Fatal("expected Encode to fail for data wider than the group modulus")
	}
}
