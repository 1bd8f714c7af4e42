package verdict

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/opd-ai/dcnet/pkg/group"
)

func genKeyPair(t *testing.T, g *group.Group) (group.Scalar, group.Element) {
	t.Helper()
	s, err := g.RandomSecret(rand.Reader)
	if err != nil {
		t.Fatalf("RandomSecret: %v", err)
	}
	return s, g.PublicFromSecret(s)
}

// exchangeParties builds the certifiers for a session of n clients and m
// trustees, all sharing pairwise secrets so the signed sums cancel.
func exchangeParties(t *testing.T, g *group.Group, n, m int) []*Certifier {
	t.Helper()
	clientSecrets := make([]group.Scalar, n)
	clientPublics := make([]group.Element, n)
	for i := range clientSecrets {
		clientSecrets[i], clientPublics[i] = genKeyPair(t, g)
	}
	trusteeSecrets := make([]group.Scalar, m)
	trusteePublics := make([]group.Element, m)
	for i := range trusteeSecrets {
		trusteeSecrets[i], trusteePublics[i] = genKeyPair(t, g)
	}

	var parties []*Certifier
	for _, s := range clientSecrets {
		parties = append(parties, NewCertifier(g, NewClientVerdict(g, s, trusteePublics), rand.Reader))
	}
	for _, s := range trusteeSecrets {
		parties = append(parties, NewCertifier(g, NewTrusteeVerdict(g, s, clientPublics), rand.Reader))
	}
	return parties
}

// TestCommitmentsCancel reproduces the invariant the whole Verdict scheme
// rests on: the sum of every client's and trustee's commitment is the
// group identity, because each pairwise shared secret is added once by
// the client side and subtracted once by the trustee side.
func TestCommitmentsCancel(t *testing.T) {
	g := group.New1024()

	parties := exchangeParties(t, g, 3, 2)
	sum := group.ElementFromBytes([]byte{1})
	for _, p := range parties {
		sum = g.Add(sum, p.Commitment())
	}
	identity := group.ElementFromBytes([]byte{1})
	if !sum.Equal(identity) {
		t.Fatal("sum of client and trustee commitments is not the group identity")
	}
}

// TestEncryptedExchangeRoundTrip runs one full round of the encrypted
// exchange: every party AES-wraps its shares under a seed blinded to the
// rolling generator, and the accumulator must hand back every party's
// original shares.
func TestEncryptedExchangeRoundTrip(t *testing.T) {
	g := group.New1024()
	parties := exchangeParties(t, g, 3, 2)
	acc := NewAccumulator(g)

	shares := make([][][]byte, len(parties))
	contributions := make([]Contribution, len(parties))
	for i, p := range parties {
		cells := [][]byte{
			{byte(i), 0x01, 0x02, 0x03},
			{byte(i), 0xAA, 0xBB, 0xCC, 0xDD, 0xEE},
		}
		shares[i] = cells
		contrib, err := p.Certify(cells)
		if err != nil {
			t.Fatalf("party %d Certify: %v", i, err)
		}
		contributions[i] = contrib

		// The wrapped cells must not equal the shares they encrypt.
		if bytes.Equal(contrib.Cells[0], cells[0]) {
			t.Fatalf("party %d emitted an unencrypted cell", i)
		}
	}

	recovered, err := acc.Before(contributions)
	if err != nil {
		t.Fatalf("Before: %v", err)
	}
	for i := range parties {
		for j := range shares[i] {
			if !bytes.Equal(recovered[i][j], shares[i][j]) {
				t.Fatalf("party %d cell %d: recovered %x, want %x", i, j, recovered[i][j], shares[i][j])
			}
		}
	}
}

// TestExchangeStaysInLockstepAcrossRounds advances every party's chain
// and the accumulator's with the same cleartexts and confirms a second
// round still round-trips, i.e. both sides derived the same next
// generator.
func TestExchangeStaysInLockstepAcrossRounds(t *testing.T) {
	g := group.New1024()
	parties := exchangeParties(t, g, 2, 1)
	acc := NewAccumulator(g)

	for round := 0; round < 2; round++ {
		contributions := make([]Contribution, len(parties))
		cells := [][]byte{{byte(round), 0x42, 0x42, 0x42}}
		for i, p := range parties {
			contrib, err := p.Certify(cells)
			if err != nil {
				t.Fatalf("round %d party %d Certify: %v", round, i, err)
			}
			contributions[i] = contrib
		}
		recovered, err := acc.Before(contributions)
		if err != nil {
			t.Fatalf("round %d Before: %v", round, err)
		}
		for i := range parties {
			if !bytes.Equal(recovered[i][0], cells[0]) {
				t.Fatalf("round %d party %d failed to round-trip", round, i)
			}
		}

		cleartexts := [][]byte{{byte(round), 0x10, 0x20}}
		acc.After(cleartexts)
		for _, p := range parties {
			p.Advance(cleartexts)
		}
	}
}

func TestGeneratorChangesAfterAdvance(t *testing.T) {
	g := group.New1024()
	acc := NewAccumulator(g)

	g1 := acc.CurrentGenerator()
	acc.After([][]byte{[]byte("some cleartext")})
	g2 := acc.CurrentGenerator()

	if g1.Equal(g2) {
		t.Fatal("generator did not change after After() advanced the chain")
	}
}

// TestTamperedSeedTermFailsDecode corrupts one party's Own term: the
// recovered seed no longer decodes as a group-encoded byte string, and
// Before must surface the mismatch instead of returning garbage shares.
func TestTamperedSeedTermFailsDecode(t *testing.T) {
	g := group.New1024()
	parties := exchangeParties(t, g, 2, 1)
	acc := NewAccumulator(g)

	contributions := make([]Contribution, len(parties))
	for i, p := range parties {
		contrib, err := p.Certify([][]byte{{0x11, 0x22}})
		if err != nil {
			t.Fatalf("Certify: %v", err)
		}
		contributions[i] = contrib
	}
	contributions[0].Own = g.Add(contributions[0].Own, g.Generator())

	if _, err := acc.Before(contributions); err == nil {
		t.Fatal("Before accepted a tampered seed term")
	}
}

func TestNullPairPassesCellsThrough(t *testing.T) {
	c := NewNullCertifier()
	acc := NewNullAccumulator()

	cells := [][]byte{[]byte("plain payload")}
	contrib, err := c.Certify(cells)
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}
	if !bytes.Equal(contrib.Cells[0], cells[0]) {
		t.Fatal("null certifier modified a cell")
	}

	recovered, err := acc.Before([]Contribution{contrib})
	if err != nil {
		t.Fatalf("Before: %v", err)
	}
	if !bytes.Equal(recovered[0][0], cells[0]) {
		t.Fatal("null accumulator modified a cell")
	}
}
