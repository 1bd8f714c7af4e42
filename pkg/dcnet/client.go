// Package dcnet implements the Client, Trustee, and Relay state machines
// that drive one DC-net session: per-interval synchronization, per-cell
// ciphertext production, and the relay's streaming cell assembly. It
// composes pkg/group, pkg/keystream, pkg/codec, and pkg/verdict the way a
// driver wires them together for a live session.
package dcnet

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/opd-ai/dcnet/pkg/codec"
	dcerrors "github.com/opd-ai/dcnet/pkg/errors"
	"github.com/opd-ai/dcnet/pkg/group"
	"github.com/opd-ai/dcnet/pkg/keystream"
	"github.com/opd-ai/dcnet/pkg/logger"
	"github.com/opd-ai/dcnet/pkg/metrics"
	"github.com/opd-ai/dcnet/pkg/verdict"
)

// combinedTag folds an interval number and a slot index into the single
// tag XorNet seeds each of its per-pair streams from, so every party
// computing the same slot within the same interval reconstructs the
// identical keystream without any extra coordination.
func combinedTag(interval uint64, slot int) uint64 {
	return interval*1_000_000 + uint64(slot)
}

// requestTag is the reserved keystream tag for an interval's request
// cell, outside the range any data slot can occupy.
func requestTag(interval uint64) uint64 {
	return interval*1_000_000 + 999_999
}

// ownedNym is one nym this client holds the private key for, together
// with the per-interval trap codec built from its trap secrets.
type ownedNym struct {
	public  group.Element
	private group.Scalar
	slot    int
	codec   *codec.InversionCodec
	pending []byte // queued payload for the next ProduceCiphertexts call

	requestCode    codec.RequestCode
	requestPending bool // queued for the next ProduceRequestCell call
	requestSent    bool // emitted, awaiting the interval accumulator
	granted        bool
}

// Client is one DC-net client's per-session state: its node identity,
// the nyms it owns, and the per-slot keystreams it maintains once synced
// to an interval.
type Client struct {
	g          *group.Group
	log        *logger.Logger
	met        *metrics.Metrics
	cellLength int

	self           group.Scalar
	trusteePublics []group.Element
	sharedSecrets  [][]byte // this client's pairwise secret with each trustee

	interval   uint64
	numSlots   int
	slotNets   map[int]*keystream.XorNet
	pendingOwn map[string]group.Scalar // nym public hex -> private, registered but not yet placed
	owned      map[string]*ownedNym    // nym public hex -> owned nym state
	nymOrder   []string                // slot index -> nym public hex, current interval's permutation

	requestParams codec.TunedParams
	reqNet        *keystream.XorNet
	requestAccum  []byte // this client's view of the interval request accumulator

	certifier *verdict.Certifier
}

// NewClient builds a client from its own node private key and the
// trustees' node public keys.
func NewClient(g *group.Group, log *logger.Logger, self group.Scalar, trusteePublics []group.Element, cellLength int) *Client {
	secrets := make([][]byte, len(trusteePublics))
	for i, t := range trusteePublics {
		secrets[i] = g.SharedSecret(self, t).Bytes()
	}
	return &Client{
		g:              g,
		log:            log,
		cellLength:     cellLength,
		self:           self,
		trusteePublics: trusteePublics,
		sharedSecrets:  secrets,
		slotNets:       make(map[int]*keystream.XorNet),
		pendingOwn:     make(map[string]group.Scalar),
		owned:          make(map[string]*ownedNym),
	}
}

// SetMetrics attaches a metrics sink; nil disables recording.
func (c *Client) SetMetrics(m *metrics.Metrics) { c.met = m }

// SetRequestParams fixes the request codec's (R, B) parameters for the
// session, as chosen by codec.TuneParams. Must be set before Sync for
// request codes to be derived.
func (c *Client) SetRequestParams(p codec.TunedParams) { c.requestParams = p }

// AddOwnNym registers a nym private key this client controls. The nym is
// not placed into a slot until AddNyms publishes the matching public key
// as part of the interval's slot permutation.
func (c *Client) AddOwnNym(priv group.Scalar) {
	pub := c.g.PublicFromSecret(priv)
	c.pendingOwn[hex.EncodeToString(pub.Bytes())] = priv
}

// AddNyms installs the ordered slot permutation for the current
// interval, recognizing which slots this client owns from its pending
// own-nym registrations.
func (c *Client) AddNyms(pubs []group.Element) {
	c.numSlots = len(pubs)
	c.nymOrder = make([]string, len(pubs))
	for i, p := range pubs {
		k := hex.EncodeToString(p.Bytes())
		c.nymOrder[i] = k
		if priv, ok := c.pendingOwn[k]; ok {
			c.owned[k] = &ownedNym{public: p, private: priv, slot: i}
		}
	}
}

// Sync resets the client to interval and rebuilds its per-slot
// keystreams plus, for each owned nym, a fresh trap codec derived from
// that nym's trap secret with every trustee's published trap public key,
// and (when request parameters are set) the nym's fixed request code.
func (c *Client) Sync(interval uint64, trapPublics []group.Element) error {
	if len(trapPublics) != len(c.trusteePublics) {
		return dcerrors.ProtocolError("client sync: trap public count does not match trustee count", nil)
	}
	c.interval = interval
	c.slotNets = make(map[int]*keystream.XorNet)
	c.reqNet = nil
	c.requestAccum = make([]byte, c.requestCellBytes())

	params := codec.NewInversionParams(c.cellLength)
	for _, n := range c.owned {
		trapSecrets := make([][]byte, len(trapPublics))
		for i, tp := range trapPublics {
			trapSecrets[i] = c.g.SharedSecret(n.private, tp).Bytes()
		}
		n.codec = codec.NewInversionCodec(params, trapSecrets)
		n.pending = nil
		n.requestPending = false
		n.requestSent = false
		n.granted = false
		if c.requestParams.B > 0 {
			n.requestCode = codec.NewRequestCode(c.requestParams.B, c.requestParams.R, trapSecrets)
		}
	}
	return nil
}

// Send queues a payload to be embedded into the next cell produced for
// the given nym's slot. The nym must be one this client owns.
func (c *Client) Send(nymPublicHex string, payload []byte) error {
	n, ok := c.owned[nymPublicHex]
	if !ok {
		return dcerrors.ProtocolError("client send: nym is not owned by this client", nil)
	}
	wireLen := n.codec.EncodedSize(len(payload))
	if wireLen > c.wireCellLength() {
		return dcerrors.ProtocolError(
			fmt.Sprintf("client send: encoded size %d exceeds cell length %d", wireLen, c.wireCellLength()), nil)
	}
	n.pending = payload
	if c.met != nil {
		c.met.PayloadBytesOut.Add(int64(len(payload)))
	}
	return nil
}

// Request queues slot-ownership requests for the listed own nyms; the
// requests ride the next ProduceRequestCell call.
func (c *Client) Request(nymPublicHexes []string) error {
	if c.requestParams.B == 0 {
		return dcerrors.ProtocolError("client request: request parameters not configured", nil)
	}
	for _, k := range nymPublicHexes {
		n, ok := c.owned[k]
		if !ok {
			return dcerrors.ProtocolError("client request: nym is not owned by this client", nil)
		}
		n.requestPending = true
	}
	return nil
}

// wireCellLength is the full on-wire cell size: header plus data region.
func (c *Client) wireCellLength() int {
	return codec.NewInversionParams(c.cellLength).InvertHeaderSize + c.cellLength
}

// requestCellBytes is the request cell's byte length for the configured
// (R, B) parameters.
func (c *Client) requestCellBytes() int {
	return (c.requestParams.B + 7) / 8
}

func (c *Client) slotNet(slot int) *keystream.XorNet {
	net, ok := c.slotNets[slot]
	if !ok {
		net, _ = keystream.New(c.sharedSecrets, combinedTag(c.interval, slot), c.wireCellLength())
		c.slotNets[slot] = net
	}
	return net
}

// ProduceCiphertexts returns this client's contribution for every slot of
// the current interval, one wire-sized cell per slot: pure keystream for
// slots it does not own, keystream XORed with the trap-encoded payload
// (or a trap-encoded empty payload, when idle) for any slot it owns.
// Every owned slot must always run through its trap codec, whether or
// not the client has something queued to send: the trustees' per-slot
// trap noise is unconditional, so an un-encoded idle contribution would
// leave that noise uncancelled at the relay.
func (c *Client) ProduceCiphertexts() ([][]byte, error) {
	start := time.Now()
	out := make([][]byte, c.numSlots)
	for slot := 0; slot < c.numSlots; slot++ {
		ks := c.slotNet(slot).ProduceCiphertext()
		nymKey := c.nymOrder[slot]
		own, isOwned := c.owned[nymKey]
		if !isOwned {
			out[slot] = ks
			continue
		}
		encoded, err := own.codec.Encode(own.pending)
		if err != nil {
			return nil, fmt.Errorf("dcnet: client failed to encode slot %d: %w", slot, err)
		}
		own.pending = nil
		out[slot] = xorBytes(encoded, ks)
	}
	if c.met != nil {
		c.met.RecordCellEncode(time.Since(start))
	}
	return out, nil
}

// ProduceRequestCell returns this client's contribution for the request
// slot: its combined request keystream, XORed with the request codes of
// every own nym queued by Request. A first request carries the nym's
// full code; a re-request after a partial grant carries only the bits
// the interval accumulator is still missing, each independently
// suppressed with probability 1/2 to limit how much of the code one
// retry reveals.
func (c *Client) ProduceRequestCell() ([]byte, error) {
	if c.requestParams.B == 0 {
		return nil, dcerrors.ProtocolError("client request: request parameters not configured", nil)
	}
	if c.reqNet == nil {
		net, err := keystream.New(c.sharedSecrets, requestTag(c.interval), c.requestCellBytes())
		if err != nil {
			return nil, err
		}
		c.reqNet = net
	}
	cell := c.reqNet.ProduceCiphertext()

	for _, n := range c.owned {
		if !n.requestPending || n.granted {
			continue
		}
		var code []byte
		if n.requestSent {
			code = codec.EncodeRetry(n.requestCode, c.requestAccum, cryptoCoinFlip)
		} else {
			code = codec.EncodeGrant(n.requestCode)
		}
		for i := range code {
			cell[i] ^= code[i]
		}
		n.requestPending = false
		n.requestSent = true
	}
	return cell, nil
}

// ProcessRequestCleartext folds the relay's decoded request cell into
// this client's view of the interval accumulator and settles any
// outstanding requests: a nym whose full code is now reflected is
// granted; one still missing bits is re-queued for a retry on the next
// request cell. Returns the nyms newly granted by this update.
func (c *Client) ProcessRequestCleartext(cleartext []byte) []string {
	for i := range c.requestAccum {
		if i < len(cleartext) {
			c.requestAccum[i] |= cleartext[i]
		}
	}
	var granted []string
	for key, n := range c.owned {
		if !n.requestSent || n.granted {
			continue
		}
		if requestCodeSatisfied(n.requestCode, c.requestAccum) {
			n.granted = true
			n.requestSent = false
			granted = append(granted, key)
			continue
		}
		n.requestPending = true
	}
	return granted
}

// NymGranted reports whether the interval accumulator has confirmed this
// client's ownership request for the nym.
func (c *Client) NymGranted(nymPublicHex string) bool {
	n, ok := c.owned[nymPublicHex]
	return ok && n.granted
}

func requestCodeSatisfied(code codec.RequestCode, accum []byte) bool {
	for _, p := range code.Positions {
		if p/8 >= len(accum) || accum[p/8]&(1<<uint(7-p%8)) == 0 {
			return false
		}
	}
	return true
}

// cryptoCoinFlip draws one fair bit from the system CSPRNG. A retry's
// suppression coin must not be derivable from any shared secret, or an
// observer who later learns the secrets could replay which retry bits a
// client chose to withhold.
func cryptoCoinFlip() bool {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return true
	}
	return b[0]&1 == 1
}

// EnableVerdict installs the Verdict certifier for this client: its
// verifier half is the positive sum of its pairwise shared secrets with
// every trustee, and each round's DC-net shares are AES-wrapped under a
// seed blinded to the rolling generator.
func (c *Client) EnableVerdict() {
	c.certifier = verdict.NewCertifier(c.g, verdict.NewClientVerdict(c.g, c.self, c.trusteePublics), rand.Reader)
}

// VerdictCommitment returns the client's published commitment g^ss.
// EnableVerdict must have run.
func (c *Client) VerdictCommitment() group.Element {
	return c.certifier.Commitment()
}

// ProduceVerdictCiphertexts produces this client's per-slot DC-net
// shares for one round and wraps them through the Verdict certifier:
// the returned contribution carries the AES-encrypted shares plus the
// blinded seed terms the relay needs to unwrap them.
func (c *Client) ProduceVerdictCiphertexts() (verdict.Contribution, error) {
	if c.certifier == nil {
		return verdict.Contribution{}, dcerrors.VerdictError("client verdict: EnableVerdict must run first", nil)
	}
	cells, err := c.ProduceCiphertexts()
	if err != nil {
		return verdict.Contribution{}, err
	}
	return c.certifier.Certify(cells)
}

// AdvanceVerdict rolls this client's generator chain with the round's
// recovered cleartexts, keeping it in lockstep with the relay's
// accumulator.
func (c *Client) AdvanceVerdict(cleartexts [][]byte) {
	if c.certifier != nil {
		c.certifier.Advance(cleartexts)
	}
}

// ProcessCleartext is a hook for the per-interval request/response loop:
// a driver calls it with the relay's decoded cleartext for a slot this
// client cares about (typically its own). The core performs no action
// beyond being available for a driver to extend; DC-net's confidentiality
// guarantee ends once cleartext is recovered.
func (c *Client) ProcessCleartext(slot int, cleartext []byte) {
	if c.log != nil {
		c.log.Debug("client observed cleartext", "slot", slot, "bytes", len(cleartext))
	}
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
