package dcnet

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/opd-ai/dcnet/pkg/codec"
	dcerrors "github.com/opd-ai/dcnet/pkg/errors"
	"github.com/opd-ai/dcnet/pkg/group"
	"github.com/opd-ai/dcnet/pkg/keystream"
	"github.com/opd-ai/dcnet/pkg/logger"
	"github.com/opd-ai/dcnet/pkg/metrics"
	"github.com/opd-ai/dcnet/pkg/verdict"
)

// Trustee is one DC-net trustee's per-session state: its node identity,
// the combined keystream it owes every client, and the per-nym trap
// secret it independently derives to verify disruption.
type Trustee struct {
	g          *group.Group
	log        *logger.Logger
	met        *metrics.Metrics
	cellLength int

	self          group.Scalar
	clientPublics []group.Element
	sharedSecrets [][]byte // this trustee's pairwise secret with each client

	trapPrivate group.Scalar
	trapPublic  group.Element

	interval uint64
	numSlots int
	slotNets map[int]*keystream.XorNet
	reqNet   *keystream.XorNet
	reqBytes int

	nymOrder    []string
	trapSecrets map[string][]byte                // nym public hex -> this trustee's own trap secret
	trapCodecs  map[string]*codec.InversionCodec // nym public hex -> this trustee's noise codec

	// storedSecrets holds every trustee's published per-nym trap secrets
	// for the current interval, in trustee order, once the interval has
	// closed and publication has run. history keeps one such merged map
	// per closed interval for retroactive verification.
	storedSecrets map[string][][]byte
	history       []map[string][][]byte

	certifier *verdict.Certifier
}

// NewTrustee builds a trustee from its own node private key and the
// clients' node public keys.
func NewTrustee(g *group.Group, log *logger.Logger, self group.Scalar, clientPublics []group.Element, cellLength int) *Trustee {
	secrets := make([][]byte, len(clientPublics))
	for i, cpub := range clientPublics {
		secrets[i] = g.SharedSecret(self, cpub).Bytes()
	}
	return &Trustee{
		g:             g,
		log:           log,
		cellLength:    cellLength,
		self:          self,
		clientPublics: clientPublics,
		sharedSecrets: secrets,
		slotNets:      make(map[int]*keystream.XorNet),
		trapSecrets:   make(map[string][]byte),
		trapCodecs:    make(map[string]*codec.InversionCodec),
	}
}

// SetMetrics attaches a metrics sink; nil disables recording.
func (t *Trustee) SetMetrics(m *metrics.Metrics) { t.met = m }

// AddNyms installs the ordered slot permutation for the current interval.
func (t *Trustee) AddNyms(pubs []group.Element) {
	t.numSlots = len(pubs)
	t.nymOrder = make([]string, len(pubs))
	for i, p := range pubs {
		t.nymOrder[i] = hex.EncodeToString(p.Bytes())
	}
}

// Sync advances the trustee to interval: it draws a fresh per-interval
// trap keypair and, for every nym in the current slot permutation,
// derives this trustee's own trap secret for that nym and a fresh noise
// codec keyed on it alone. The previous interval's trap keypair is
// discarded; only published secrets outlive a sync.
func (t *Trustee) Sync(interval uint64) error {
	priv, err := t.g.RandomSecret(rand.Reader)
	if err != nil {
		return dcerrors.CryptoError("trustee sync: failed to draw trap key", err)
	}
	t.trapPrivate = priv
	t.trapPublic = t.g.PublicFromSecret(priv)

	t.interval = interval
	t.slotNets = make(map[int]*keystream.XorNet)
	t.reqNet = nil
	t.trapSecrets = make(map[string][]byte)
	t.trapCodecs = make(map[string]*codec.InversionCodec)
	t.storedSecrets = nil

	params := codec.NewInversionParams(t.cellLength)
	for _, nymHex := range t.nymOrder {
		nymPub := group.ElementFromBytes(mustHexDecode(nymHex))
		secret := t.g.SharedSecret(t.trapPrivate, nymPub).Bytes()
		t.trapSecrets[nymHex] = secret
		t.trapCodecs[nymHex] = codec.NewInversionCodec(params, [][]byte{secret})
	}
	return nil
}

// TrapPublicKey returns the per-interval trap public key clients fold
// into their own trap-secret derivation. Valid only after Sync.
func (t *Trustee) TrapPublicKey() group.Element { return t.trapPublic }

// PublishTrapSecrets returns this trustee's per-nym trap secrets for the
// current interval, keyed by nym public key. A driver calls this only
// after the interval closes: releasing the secrets earlier would let the
// relay strip trap coding mid-interval.
func (t *Trustee) PublishTrapSecrets() map[string][]byte {
	out := make(map[string][]byte, len(t.trapSecrets))
	for k, v := range t.trapSecrets {
		out[k] = v
	}
	return out
}

// NymTrapSecrets returns this trustee's own per-nym trap secrets in slot
// order, the shares an interval's request codes are composed from.
func (t *Trustee) NymTrapSecrets() [][]byte {
	out := make([][]byte, len(t.nymOrder))
	for i, nymHex := range t.nymOrder {
		out[i] = t.trapSecrets[nymHex]
	}
	return out
}

// StoreTrapSecrets merges every trustee's published per-nym trap secrets
// for the closed interval, ordered by trustee index. The merged set is
// what CheckIntervalTraps needs to reproduce the exact noise and trap
// positions the slot owner's combined-secret codec used, and it is
// appended to the cross-interval history for retroactive verification.
func (t *Trustee) StoreTrapSecrets(published []map[string][]byte) error {
	merged := make(map[string][][]byte, len(t.nymOrder))
	for _, nymHex := range t.nymOrder {
		secrets := make([][]byte, len(published))
		for i, pub := range published {
			s, ok := pub[nymHex]
			if !ok {
				return dcerrors.ProtocolError("trustee store: a published set is missing a nym's trap secret", nil)
			}
			secrets[i] = s
		}
		merged[nymHex] = secrets
	}
	t.storedSecrets = merged
	t.history = append(t.history, merged)
	return nil
}

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

func (t *Trustee) wireCellLength() int {
	return codec.NewInversionParams(t.cellLength).InvertHeaderSize + t.cellLength
}

func (t *Trustee) slotNet(slot int) *keystream.XorNet {
	net, ok := t.slotNets[slot]
	if !ok {
		net, _ = keystream.New(t.sharedSecrets, combinedTag(t.interval, slot), t.wireCellLength())
		t.slotNets[slot] = net
	}
	return net
}

// ProduceIntervalCiphertext returns this trustee's contribution for every
// slot: its combined keystream for that slot, XORed with the header-region
// trap-noise mask it independently derives for the slot's nym (the data
// region carries keystream alone). A driver calls
// this once per cell; repeated calls within the same interval naturally
// advance each slot's keystream and trap-noise state to the next cell.
func (t *Trustee) ProduceIntervalCiphertext() ([][]byte, error) {
	out := make([][]byte, t.numSlots)
	for slot := 0; slot < t.numSlots; slot++ {
		cell, err := t.produceSlotCell(slot)
		if err != nil {
			return nil, err
		}
		out[slot] = cell
	}
	return out, nil
}

func (t *Trustee) produceSlotCell(slot int) ([]byte, error) {
	ks := t.slotNet(slot).ProduceCiphertext()
	nymHex := t.nymOrder[slot]
	tc, ok := t.trapCodecs[nymHex]
	if !ok {
		return nil, dcerrors.ProtocolError("trustee produce: missing trap codec for slot", nil)
	}
	return xorBytes(ks, tc.WireNoise()), nil
}

// ProduceIntervalCiphertexts preships a whole interval's cell budget in
// one call: result[slot] holds that slot's next `budget` cells in
// production order, ready for Relay.StoreTrusteeCiphertext. Cells are
// drawn cell-major so every slot's keystream and trap-noise state
// advances exactly as `budget` successive ProduceIntervalCiphertext
// calls would have advanced it.
func (t *Trustee) ProduceIntervalCiphertexts(budget int) ([][][]byte, error) {
	out := make([][][]byte, t.numSlots)
	for k := 0; k < budget; k++ {
		for slot := 0; slot < t.numSlots; slot++ {
			cell, err := t.produceSlotCell(slot)
			if err != nil {
				return nil, err
			}
			out[slot] = append(out[slot], cell)
		}
	}
	return out, nil
}

// SetRequestCellBytes fixes the request-cell byte length for this
// interval; the request slot carries pure keystream with no trap noise.
func (t *Trustee) SetRequestCellBytes(n int) {
	t.reqBytes = n
	t.reqNet = nil
}

// ProduceRequestCell returns this trustee's contribution for the request
// slot: pure combined keystream, no trap noise, sized to the request
// cell. Successive calls advance the stream one request cell at a time.
func (t *Trustee) ProduceRequestCell() ([]byte, error) {
	if t.reqBytes == 0 {
		return nil, dcerrors.ProtocolError("trustee request: request cell length not configured", nil)
	}
	if t.reqNet == nil {
		net, err := keystream.New(t.sharedSecrets, requestTag(t.interval), t.reqBytes)
		if err != nil {
			return nil, err
		}
		t.reqNet = net
	}
	return t.reqNet.ProduceCiphertext(), nil
}

// EnableVerdict installs the Verdict certifier for this trustee: its
// verifier half is the negative sum of its pairwise shared secrets with
// every client, so the session-wide sum of every commitment cancels to
// the identity.
func (t *Trustee) EnableVerdict() {
	t.certifier = verdict.NewCertifier(t.g, verdict.NewTrusteeVerdict(t.g, t.self, t.clientPublics), rand.Reader)
}

// VerdictCommitment returns the trustee's published commitment.
// EnableVerdict must have run.
func (t *Trustee) VerdictCommitment() group.Element {
	return t.certifier.Commitment()
}

// ProduceVerdictCiphertext produces this trustee's per-slot keystream
// and trap-noise shares for one round and wraps them through the
// Verdict certifier.
func (t *Trustee) ProduceVerdictCiphertext() (verdict.Contribution, error) {
	if t.certifier == nil {
		return verdict.Contribution{}, dcerrors.VerdictError("trustee verdict: EnableVerdict must run first", nil)
	}
	cells, err := t.ProduceIntervalCiphertext()
	if err != nil {
		return verdict.Contribution{}, err
	}
	return t.certifier.Certify(cells)
}

// AdvanceVerdict rolls this trustee's generator chain with the round's
// recovered cleartexts.
func (t *Trustee) AdvanceVerdict(cleartexts [][]byte) {
	if t.certifier != nil {
		t.certifier.Advance(cleartexts)
	}
}

// CheckIntervalTraps replays a closed interval's assembled cells through
// the inversion checker. assembled maps each slot to its cells in
// production order, still trap-encoded (CellResult.Assembled, not
// Cleartexts — the trap-bit invariant only holds before the complement
// flags are stripped back out).
//
// With every trustee's published secrets stored, the check rebuilds the
// slot owner's combined-secret codec exactly and verifies every trap
// bit. Before publication the trustee falls back to its own single
// secret, which is only conclusive in a single-trustee session; a
// multi-trustee session must StoreTrapSecrets first.
func (t *Trustee) CheckIntervalTraps(assembled map[int][][]byte) bool {
	params := codec.NewInversionParams(t.cellLength)
	ok := true
	for slot, nymHex := range t.nymOrder {
		cells, present := assembled[slot]
		if !present {
			continue
		}
		var checker *codec.InversionCodec
		if t.storedSecrets != nil {
			checker = codec.NewInversionCodec(params, t.storedSecrets[nymHex])
		} else {
			checker = codec.NewInversionCodec(params, [][]byte{t.trapSecrets[nymHex]})
		}
		for _, cell := range cells {
			pass := checker.Check(cell)
			if t.met != nil {
				t.met.RecordTrapCheck(pass)
			}
			if !pass {
				if t.log != nil {
					t.log.Warn("trap check failed", "slot", slot)
				}
				ok = false
			}
		}
	}
	return ok
}
