package dcnet

import (
	"encoding/hex"
	"testing"

	"github.com/opd-ai/dcnet/pkg/codec"
	"github.com/opd-ai/dcnet/pkg/group"
)

// requestSession assembles a small session with the request codec wired:
// n clients, each owning one nym, one trustee, and a relay.
func requestSession(t *testing.T, n int) (*group.Group, []*Client, []*Trustee, *Relay, []string) {
	t.Helper()
	g := group.New1024()
	const cellLength = 16

	trusteeSelf, trusteePub := genKeyPair(t, g)

	clientPublics := make([]group.Element, n)
	clientSecrets := make([]group.Scalar, n)
	nymOrder := make([]group.Element, n)
	nymHexes := make([]string, n)
	clients := make([]*Client, n)

	nymPrivs := make([]group.Scalar, n)
	for i := 0; i < n; i++ {
		clientSecrets[i], clientPublics[i] = genKeyPair(t, g)
		nymPrivs[i], nymOrder[i] = genKeyPair(t, g)
		nymHexes[i] = hex.EncodeToString(nymOrder[i].Bytes())
	}
	for i := 0; i < n; i++ {
		clients[i] = NewClient(g, nil, clientSecrets[i], []group.Element{trusteePub}, cellLength)
		clients[i].AddOwnNym(nymPrivs[i])
	}
	tr := NewTrustee(g, nil, trusteeSelf, clientPublics, cellLength)
	relay := NewRelay(nil, cellLength)

	// A deliberately sparse code space: a handful of requesters cover a
	// small fraction of the 64 bits, so subset coincidences cannot grant
	// an idle nym and the assertions below stay deterministic in
	// practice.
	params := codec.TunedParams{B: 64, R: 6}
	setup := IntervalSetup{Interval: 1, NymOrder: nymOrder, Request: params}
	if err := RunIntervalSetup(setup, []*Trustee{tr}, clients, relay); err != nil {
		t.Fatalf("RunIntervalSetup: %v", err)
	}
	return g, clients, []*Trustee{tr}, relay, nymHexes
}

// TestRequestCellGrantsRequestingNyms runs one request cell with a
// subset of clients requesting and confirms the relay's grant list
// contains exactly their slots (modulo subset coincidences in the fixed
// 64-bit code space, which could add an idle nym but cannot remove a
// requester).
func TestRequestCellGrantsRequestingNyms(t *testing.T) {
	_, clients, trustees, relay, nymHexes := requestSession(t, 8)

	requesters := []int{0, 3, 7}
	for _, i := range requesters {
		if err := clients[i].Request([]string{nymHexes[i]}); err != nil {
			t.Fatalf("Request: %v", err)
		}
	}

	grants, ok, err := RunRequestCell(clients, trustees, relay)
	if err != nil {
		t.Fatalf("RunRequestCell: %v", err)
	}
	if !ok {
		t.Fatal("request accumulator tripped a trap bit on honest input")
	}

	granted := make(map[int]bool, len(grants))
	for _, s := range grants {
		granted[s] = true
	}
	for _, i := range requesters {
		if !granted[i] {
			t.Fatalf("slot %d requested but was not granted", i)
		}
	}
	for _, i := range requesters {
		if !clients[i].NymGranted(nymHexes[i]) {
			t.Fatalf("client %d did not observe its grant", i)
		}
	}

	// Idle clients must not have been granted by their own doing; the
	// only acceptable extras are hash collisions, so a non-requesting
	// grant must be a strict subset coincidence. With B=64, R=6 and three
	// requesters this is overwhelmingly unlikely at n=8; treat it as a
	// failure to catch regressions that OR in spurious bits.
	for s := range granted {
		isRequester := false
		for _, i := range requesters {
			if s == i {
				isRequester = true
			}
		}
		if !isRequester {
			t.Fatalf("slot %d granted without requesting", s)
		}
	}
}

// TestRequestRetryCompletesPartialGrant simulates a lossy first request:
// one set bit of the decoded request cell is cleared before it reaches the
// accumulator, so the requester is not granted, and the retry path must
// eventually complete the code in the accumulator.
func TestRequestRetryCompletesPartialGrant(t *testing.T) {
	_, clients, trustees, relay, nymHexes := requestSession(t, 4)

	if err := clients[2].Request([]string{nymHexes[2]}); err != nil {
		t.Fatalf("Request: %v", err)
	}

	// First round: every party contributes normally so the keystreams
	// stay in lockstep, but the decoded request cell is damaged before
	// it reaches the accumulator — one of the code's set bits is
	// cleared, as a partial collision with a lost transmission would.
	clientCells := make([][]byte, len(clients))
	for i, c := range clients {
		cell, err := c.ProduceRequestCell()
		if err != nil {
			t.Fatalf("ProduceRequestCell: %v", err)
		}
		clientCells[i] = cell
	}
	trusteeCell, err := trustees[0].ProduceRequestCell()
	if err != nil {
		t.Fatalf("trustee ProduceRequestCell: %v", err)
	}
	cleartext, err := relay.ProcessRequestCell(clientCells, [][]byte{trusteeCell})
	if err != nil {
		t.Fatalf("ProcessRequestCell: %v", err)
	}
	damaged := false
	for i := range cleartext {
		if cleartext[i] != 0 {
			cleartext[i] &= cleartext[i] - 1 // clear the lowest set bit
			damaged = true
			break
		}
	}
	if !damaged {
		t.Fatal("request cleartext carried no code bits to damage")
	}
	relay.AccumulateRequest(cleartext)
	for _, c := range clients {
		c.ProcessRequestCleartext(relay.RequestAccumulator())
	}
	if clients[2].NymGranted(nymHexes[2]) {
		t.Fatal("client observed a grant despite the damaged request cell")
	}

	// Retry rounds: each retry emits the still-missing bits with
	// probability 1/2 each, so a bounded number of rounds completes the
	// code. The other parties contribute keystream every round.
	for round := 0; round < 200 && !clients[2].NymGranted(nymHexes[2]); round++ {
		if _, _, err := RunRequestCell(clients, trustees, relay); err != nil {
			t.Fatalf("RunRequestCell: %v", err)
		}
	}
	if !clients[2].NymGranted(nymHexes[2]) {
		t.Fatal("retry path never completed the request code")
	}
}

func TestRequestRequiresConfiguredParams(t *testing.T) {
	g := group.New1024()
	selfKey, _ := genKeyPair(t, g)
	_, trusteePub := genKeyPair(t, g)

	c := NewClient(g, nil, selfKey, []group.Element{trusteePub}, 16)
	if err := c.Request([]string{"00"}); err == nil {
		t.Fatal("Request did not reject unconfigured request parameters")
	}
	if _, err := c.ProduceRequestCell(); err == nil {
		t.Fatal("ProduceRequestCell did not reject unconfigured request parameters")
	}
}

// TestRequestAccumulatorMonotonic confirms bits only ever transition
// 0 to 1 within an interval.
func TestRequestAccumulatorMonotonic(t *testing.T) {
	_, clients, trustees, relay, nymHexes := requestSession(t, 4)

	if err := clients[1].Request([]string{nymHexes[1]}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, _, err := RunRequestCell(clients, trustees, relay); err != nil {
		t.Fatalf("RunRequestCell: %v", err)
	}
	before := append([]byte(nil), relay.RequestAccumulator()...)

	// A second, idle request round must not clear any bit.
	if _, _, err := RunRequestCell(clients, trustees, relay); err != nil {
		t.Fatalf("RunRequestCell: %v", err)
	}
	after := relay.RequestAccumulator()
	for i := range before {
		if before[i]&^after[i] != 0 {
			t.Fatalf("accumulator bit cleared at byte %d: %08b -> %08b", i, before[i], after[i])
		}
	}
}
