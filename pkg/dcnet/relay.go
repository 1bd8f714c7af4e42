package dcnet

import (
	"log/slog"
	"time"

	"github.com/opd-ai/dcnet/internal/diagnostics"
	"github.com/opd-ai/dcnet/pkg/codec"
	dcerrors "github.com/opd-ai/dcnet/pkg/errors"
	"github.com/opd-ai/dcnet/pkg/group"
	"github.com/opd-ai/dcnet/pkg/logger"
	"github.com/opd-ai/dcnet/pkg/metrics"
	"github.com/opd-ai/dcnet/pkg/pool"
	"github.com/opd-ai/dcnet/pkg/verdict"
)

// Slot-advertisement windows: trustees are told the next expected slots
// further ahead than clients so they can pipeline keystream generation
// for cells the clients have not started yet.
const (
	TrusteeScheduleWindow = 10
	ClientScheduleWindow  = 2
)

// Relay assembles one interval's cells from every client's and trustee's
// contributions. Its streaming decode API mirrors a round's natural
// shape: start a slot's buffer, XOR in each client's share as it
// arrives, XOR in each trustee's share, then read off the result.
// Trustees may instead preship a whole interval's cells up front via
// StoreTrusteeCiphertext, in which case ProcessCiphertext folds the
// preshipped cell at each slot's current offset in automatically.
type Relay struct {
	log        *logger.Logger
	met        *metrics.Metrics
	cellLength int // wire cell length: header + data region
	headerSize int

	interval uint64
	numSlots int
	cursor   int // next slot in the round-robin advertisement order

	bufPool  *pool.BufferPool
	decoding bool
	slot     int
	buf      []byte

	preship    map[int][][][]byte // trustee index -> slot -> queued cells
	slotOffset []int              // per-slot read offset into the preship queues

	requestCodec *codec.RequestCodec
	requestAccum []byte

	accumulator verdict.AccumulatorLike
}

// NewRelay builds a relay for cells carrying dataCellLength bytes of
// payload plus the inversion codec's header.
func NewRelay(log *logger.Logger, dataCellLength int) *Relay {
	params := codec.NewInversionParams(dataCellLength)
	wire := params.InvertHeaderSize + dataCellLength
	return &Relay{
		log:        log,
		cellLength: wire,
		headerSize: params.InvertHeaderSize,
		bufPool:    pool.NewBufferPool(wire),
		preship:    make(map[int][][][]byte),
	}
}

// SetMetrics attaches a metrics sink; nil disables recording.
func (r *Relay) SetMetrics(m *metrics.Metrics) { r.met = m }

// SetSlotCount records how many slots the current interval has.
func (r *Relay) SetSlotCount(n int) {
	r.numSlots = n
	r.slotOffset = make([]int, n)
	if r.met != nil {
		r.met.ActiveSlots.Set(int64(n))
	}
}

// AddNyms matches the other roles' naming for SetSlotCount: the relay never
// learns the nym keys themselves, only how many slots the permutation
// has.
func (r *Relay) AddNyms(count int) { r.SetSlotCount(count) }

// Sync advances the relay to a new interval, discarding every per-slot
// pointer, preshipped trustee cell, and the request accumulator.
func (r *Relay) Sync(interval uint64) {
	r.interval = interval
	r.cursor = 0
	r.decoding = false
	r.buf = nil
	r.preship = make(map[int][][][]byte)
	r.slotOffset = make([]int, r.numSlots)
	if r.requestCodec != nil {
		r.requestAccum = make([]byte, r.requestCodec.EncodedSize(0))
	}
	if r.met != nil {
		r.met.IntervalsStarted.Inc()
	}
}

// StoreTrusteeCiphertext preships one trustee's cells for the interval:
// cellsForSlots[slot] holds that slot's cells in production order, as
// returned by Trustee.ProduceIntervalCiphertexts.
func (r *Relay) StoreTrusteeCiphertext(trusteeIdx int, cellsForSlots [][][]byte) {
	r.preship[trusteeIdx] = cellsForSlots
}

// NextSlots returns the next `window` slot indices in round-robin order
// from the relay's current position, without advancing it. A driver
// advertises these to trustees (TrusteeScheduleWindow) further ahead
// than to clients (ClientScheduleWindow).
func (r *Relay) NextSlots(window int) []int {
	if r.numSlots == 0 {
		return nil
	}
	out := make([]int, window)
	for i := 0; i < window; i++ {
		out[i] = (r.cursor + i) % r.numSlots
	}
	return out
}

// logSchedule renders the interval's slot-to-nym schedule as a table and
// emits it at debug level. It does nothing when the relay has no logger or
// the logger isn't enabled for debug, so a live relay never pays for
// building the table on every interval.
func (r *Relay) logSchedule(nymOrder []group.Element) {
	if r.log == nil || !r.log.Enabled(nil, slog.LevelDebug) {
		return
	}
	entries := make([]diagnostics.ScheduleEntry, len(nymOrder))
	for i, nym := range nymOrder {
		entries[i] = diagnostics.ScheduleEntry{Slot: i, Nym: nym}
	}
	r.log.Debug("interval schedule", "table", "\n"+diagnostics.RenderSchedule(entries, r.cellLength-r.headerSize))
}

// DecodeStart zeroes the accumulation buffer for one slot, beginning a
// fresh streaming decode. The buffer comes from the relay's pool; a
// caller done with the assembled cell may hand it back via Release.
func (r *Relay) DecodeStart(slot int) {
	r.slot = slot
	r.buf = r.bufPool.GetZeroed()
	r.decoding = true
}

// Release returns an assembled cell's buffer to the relay's pool once
// the caller has finished with it.
func (r *Relay) Release(cell []byte) { r.bufPool.Put(cell) }

// DecodeClient XORs one client's contribution into the buffer currently
// being decoded.
func (r *Relay) DecodeClient(contribution []byte) error {
	return r.xorIn(contribution)
}

// DecodeTrustee XORs one trustee's contribution into the buffer
// currently being decoded.
func (r *Relay) DecodeTrustee(contribution []byte) error {
	return r.xorIn(contribution)
}

func (r *Relay) xorIn(contribution []byte) error {
	if !r.decoding {
		return dcerrors.ProtocolError("relay decode: DecodeStart must run before accumulating contributions", nil)
	}
	if len(contribution) != len(r.buf) {
		return dcerrors.ProtocolError("relay decode: contribution length mismatch", nil)
	}
	for i := range r.buf {
		r.buf[i] ^= contribution[i]
	}
	return nil
}

// DecodeCell returns the assembled buffer for the slot DecodeStart began,
// once every client's and trustee's contribution has been XORed in: the
// keystream terms cancel and the trap-coded wire cell for that slot
// remains.
func (r *Relay) DecodeCell() []byte {
	r.decoding = false
	return r.buf
}

// TrapDecodeCleartext strips the inversion codec's header flags from an
// assembled wire cell once every party's contribution has cancelled the
// secret-dependent masking, recovering the slot's plaintext (zero-padded
// to the data cell length).
func (r *Relay) TrapDecodeCleartext(assembled []byte) ([]byte, error) {
	return codec.DecodePlain(assembled, r.headerSize)
}

// ProcessSlot runs DecodeStart/DecodeClient*/DecodeTrustee*/DecodeCell in
// one call for a single slot, for callers that already have every
// contribution in hand.
func (r *Relay) ProcessSlot(slot int, clientCells, trusteeCells [][]byte) ([]byte, error) {
	start := time.Now()
	r.DecodeStart(slot)
	for _, c := range clientCells {
		if err := r.DecodeClient(c); err != nil {
			return nil, err
		}
	}
	for _, tcell := range trusteeCells {
		if err := r.DecodeTrustee(tcell); err != nil {
			return nil, err
		}
	}
	cell := r.DecodeCell()
	if r.met != nil {
		r.met.RecordCellDecode(time.Since(start))
	}
	return cell, nil
}

// ProcessCiphertext assembles one full round from every client's per-slot
// contributions plus the trustee cells preshipped for the interval:
// clientRounds[client][slot] is that client's cell for the slot. Each
// slot's preshipped trustee cells are consumed at the slot's current
// offset, and the offset advances. The result is the per-slot assembled
// wire cell array, still trap-encoded; TrapDecodeCleartext strips each
// one.
func (r *Relay) ProcessCiphertext(clientRounds [][][]byte) ([][]byte, error) {
	out := make([][]byte, r.numSlots)
	for slot := 0; slot < r.numSlots; slot++ {
		clientCells := make([][]byte, 0, len(clientRounds))
		for _, round := range clientRounds {
			if slot >= len(round) {
				return nil, dcerrors.ProtocolError("relay process: a client round is missing a slot", nil)
			}
			clientCells = append(clientCells, round[slot])
		}
		trusteeCells := make([][]byte, 0, len(r.preship))
		for _, cellsForSlots := range r.preship {
			if slot >= len(cellsForSlots) || r.slotOffset[slot] >= len(cellsForSlots[slot]) {
				return nil, dcerrors.ProtocolError("relay process: preshipped trustee cells exhausted for slot", nil)
			}
			trusteeCells = append(trusteeCells, cellsForSlots[slot][r.slotOffset[slot]])
		}
		cell, err := r.ProcessSlot(slot, clientCells, trusteeCells)
		if err != nil {
			return nil, err
		}
		out[slot] = cell
		r.slotOffset[slot]++
		r.cursor = (r.cursor + 1) % r.numSlots
	}
	return out, nil
}

// InstallRequestCodec fixes the interval's request codec: every nym's
// code, composed from the trap secrets the trustees share with it, and
// the derived trap mask. Resets the interval request accumulator.
func (r *Relay) InstallRequestCodec(rc *codec.RequestCodec) {
	r.requestCodec = rc
	r.requestAccum = make([]byte, rc.EncodedSize(0))
}

// RequestAccumulator returns the interval's running request cell: the OR
// of every request cell processed so far. Bits only ever transition 0 to
// 1 within an interval.
func (r *Relay) RequestAccumulator() []byte { return r.requestAccum }

// ProcessRequestCell assembles one request cell from every client's and
// trustee's request-slot contribution: the keystreams cancel, leaving
// the OR of the requesting nyms' codes.
func (r *Relay) ProcessRequestCell(clientCells, trusteeCells [][]byte) ([]byte, error) {
	if r.requestCodec == nil {
		return nil, dcerrors.ProtocolError("relay request: no request codec installed", nil)
	}
	n := r.requestCodec.EncodedSize(0)
	cell := make([]byte, n)
	for _, c := range append(append([][]byte{}, clientCells...), trusteeCells...) {
		if len(c) != n {
			return nil, dcerrors.ProtocolError("relay request: contribution length mismatch", nil)
		}
		for i := range cell {
			cell[i] ^= c[i]
		}
	}
	return cell, nil
}

// AccumulateRequest ORs a decoded request cell into the interval
// accumulator, verifies no trap bit outside the union of known codes is
// set, and returns the indices of every nym whose full code the
// accumulator now contains. ok is false when a trap bit fired.
func (r *Relay) AccumulateRequest(cleartext []byte) (grants []int, ok bool) {
	if r.requestCodec == nil {
		return nil, false
	}
	for i := range r.requestAccum {
		if i < len(cleartext) {
			r.requestAccum[i] |= cleartext[i]
		}
	}
	ok = r.requestCodec.Check(r.requestAccum)
	if !ok && r.met != nil {
		r.met.DisruptionsFlagged.Inc()
	}
	granted, _ := r.requestCodec.Decode(r.requestAccum)
	grants = make([]int, len(granted))
	for i, idx := range granted {
		grants[i] = int(idx)
	}
	if r.met != nil {
		r.met.RequestGrants.Add(int64(len(grants)))
	}
	return grants, ok
}

// EnableVerdict installs the rolling-generator Verdict accumulator: the
// relay recovers each party's AES seed from the commitment terms, strips
// the encryption to get back the plain DC-net shares, and advances the
// generator chain with each round's cleartexts.
func (r *Relay) EnableVerdict(g *group.Group) {
	r.accumulator = verdict.NewAccumulator(g)
}

// ProcessVerdictRound assembles one full verdict-mode round: Before
// unwraps every party's AES-encrypted shares into the underlying DC-net
// ciphertexts, the ordinary slot-wise XOR accumulation and trap decode
// run over them, and the accumulator's chain rolls forward on the
// recovered cleartexts. Returns the per-slot cleartexts alongside the
// still-trap-encoded assembled cells.
func (r *Relay) ProcessVerdictRound(clientContribs, trusteeContribs []verdict.Contribution) (cleartexts, assembled [][]byte, err error) {
	if r.accumulator == nil {
		return nil, nil, dcerrors.VerdictError("relay verdict: EnableVerdict must run first", nil)
	}
	all := make([]verdict.Contribution, 0, len(clientContribs)+len(trusteeContribs))
	all = append(all, clientContribs...)
	all = append(all, trusteeContribs...)

	shares, err := r.accumulator.Before(all)
	if err != nil {
		return nil, nil, err
	}

	cleartexts = make([][]byte, r.numSlots)
	assembled = make([][]byte, r.numSlots)
	for slot := 0; slot < r.numSlots; slot++ {
		clientCells := make([][]byte, 0, len(clientContribs))
		for _, cells := range shares[:len(clientContribs)] {
			if slot >= len(cells) {
				return nil, nil, dcerrors.ProtocolError("relay verdict: a client contribution is missing a slot", nil)
			}
			clientCells = append(clientCells, cells[slot])
		}
		trusteeCells := make([][]byte, 0, len(trusteeContribs))
		for _, cells := range shares[len(clientContribs):] {
			if slot >= len(cells) {
				return nil, nil, dcerrors.ProtocolError("relay verdict: a trustee contribution is missing a slot", nil)
			}
			trusteeCells = append(trusteeCells, cells[slot])
		}
		cell, err := r.ProcessSlot(slot, clientCells, trusteeCells)
		if err != nil {
			return nil, nil, err
		}
		plain, err := r.TrapDecodeCleartext(cell)
		if err != nil {
			return nil, nil, err
		}
		assembled[slot] = cell
		cleartexts[slot] = plain
	}
	r.accumulator.After(cleartexts)
	return cleartexts, assembled, nil
}
