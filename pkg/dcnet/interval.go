package dcnet

import (
	"github.com/opd-ai/dcnet/pkg/codec"
	"github.com/opd-ai/dcnet/pkg/group"
	"github.com/opd-ai/dcnet/pkg/verdict"
)

// IntervalSetup bundles the per-interval handshake every role repeats
// before any cell is produced: trustees sync and publish fresh trap
// public keys, clients sync against them and the new slot permutation,
// and the relay resets its per-slot state and request accumulator.
type IntervalSetup struct {
	Interval uint64
	NymOrder []group.Element

	// Request fixes the interval's request codec parameters, as chosen
	// by codec.TuneParams; a zero B disables the request path.
	Request codec.TunedParams
}

// RunIntervalSetup drives one interval's setup across every trustee,
// client, and the relay, in the order a live session needs: trustees
// sync first so their trap public keys exist before any client derives
// trap secrets from them, then the request codec is composed from the
// trap secrets the trustees share with each nym and installed at the
// relay.
func RunIntervalSetup(setup IntervalSetup, trustees []*Trustee, clients []*Client, relay *Relay) error {
	trapPublics := make([]group.Element, len(trustees))
	for i, t := range trustees {
		t.AddNyms(setup.NymOrder)
		if err := t.Sync(setup.Interval); err != nil {
			return err
		}
		trapPublics[i] = t.TrapPublicKey()
	}

	for _, c := range clients {
		if setup.Request.B > 0 {
			c.SetRequestParams(setup.Request)
		}
		c.AddNyms(setup.NymOrder)
		if err := c.Sync(setup.Interval, trapPublics); err != nil {
			return err
		}
	}

	if relay != nil {
		relay.AddNyms(len(setup.NymOrder))
		relay.Sync(setup.Interval)
		relay.logSchedule(setup.NymOrder)
	}

	if setup.Request.B > 0 {
		reqBytes := (setup.Request.B + 7) / 8
		perTrustee := make([][][]byte, len(trustees))
		for i, t := range trustees {
			t.SetRequestCellBytes(reqBytes)
			perTrustee[i] = t.NymTrapSecrets()
		}
		if relay != nil && len(trustees) > 0 {
			codes := make([]codec.RequestCode, len(setup.NymOrder))
			for slot := range setup.NymOrder {
				secrets := make([][]byte, len(trustees))
				for i := range trustees {
					secrets[i] = perTrustee[i][slot]
				}
				codes[slot] = codec.NewRequestCode(setup.Request.B, setup.Request.R, secrets)
			}
			relay.InstallRequestCodec(codec.NewRequestCodec(setup.Request.B, codes))
		}
	}
	return nil
}

// PublishAndStoreTrapSecrets runs the end-of-interval trap secret
// exchange: every trustee publishes its per-nym secrets and merges the
// full published set, after which any one of them can run a conclusive
// CheckIntervalTraps.
func PublishAndStoreTrapSecrets(trustees []*Trustee) error {
	published := make([]map[string][]byte, len(trustees))
	for i, t := range trustees {
		published[i] = t.PublishTrapSecrets()
	}
	for _, t := range trustees {
		if err := t.StoreTrapSecrets(published); err != nil {
			return err
		}
	}
	return nil
}

// CellResult is one cell's outcome across every slot: the recovered
// plaintext, and the still-trap-encoded assembled wire cell each
// trustee's CheckIntervalTraps needs (the trap-bit invariant only holds
// before the complement flags are stripped back out).
type CellResult struct {
	Cleartexts map[int][]byte
	Assembled  map[int][]byte
}

// RunCell drives one cell through every client, every trustee, and the
// relay, returning the recovered plaintext for every slot alongside the
// still-encoded assembled cell a trustee's disruption check needs.
func RunCell(clients []*Client, trustees []*Trustee, relay *Relay) (CellResult, error) {
	numSlots := relay.numSlots
	clientCells := make([][][]byte, numSlots)
	for _, c := range clients {
		cells, err := c.ProduceCiphertexts()
		if err != nil {
			return CellResult{}, err
		}
		for slot, cell := range cells {
			clientCells[slot] = append(clientCells[slot], cell)
		}
	}

	trusteeCells := make([][][]byte, numSlots)
	for _, t := range trustees {
		cells, err := t.ProduceIntervalCiphertext()
		if err != nil {
			return CellResult{}, err
		}
		for slot, cell := range cells {
			trusteeCells[slot] = append(trusteeCells[slot], cell)
		}
	}

	result := CellResult{
		Cleartexts: make(map[int][]byte, numSlots),
		Assembled:  make(map[int][]byte, numSlots),
	}
	for slot := 0; slot < numSlots; slot++ {
		assembled, err := relay.ProcessSlot(slot, clientCells[slot], trusteeCells[slot])
		if err != nil {
			return CellResult{}, err
		}
		plain, err := relay.TrapDecodeCleartext(assembled)
		if err != nil {
			return CellResult{}, err
		}
		result.Assembled[slot] = assembled
		result.Cleartexts[slot] = plain
	}
	return result, nil
}

// RunRequestCell drives one request cell through every party: each
// client contributes its queued request codes over request keystream,
// each trustee contributes pure keystream, the relay assembles the cell
// and folds it into the interval accumulator, and every client settles
// its outstanding requests against the updated accumulator. Returns the
// nym indices granted so far and whether the accumulator's trap bits
// are still clean.
func RunRequestCell(clients []*Client, trustees []*Trustee, relay *Relay) (grants []int, ok bool, err error) {
	clientCells := make([][]byte, 0, len(clients))
	for _, c := range clients {
		cell, err := c.ProduceRequestCell()
		if err != nil {
			return nil, false, err
		}
		clientCells = append(clientCells, cell)
	}
	trusteeCells := make([][]byte, 0, len(trustees))
	for _, t := range trustees {
		cell, err := t.ProduceRequestCell()
		if err != nil {
			return nil, false, err
		}
		trusteeCells = append(trusteeCells, cell)
	}

	cleartext, err := relay.ProcessRequestCell(clientCells, trusteeCells)
	if err != nil {
		return nil, false, err
	}
	grants, ok = relay.AccumulateRequest(cleartext)
	for _, c := range clients {
		c.ProcessRequestCleartext(relay.RequestAccumulator())
	}
	return grants, ok, nil
}

// RunVerdictCell drives one verdict-mode round: every party wraps its
// DC-net shares through its certifier, the relay unwraps and assembles
// them, and every chain — the accumulator's and each party's — rolls
// forward on the same recovered cleartexts.
func RunVerdictCell(clients []*Client, trustees []*Trustee, relay *Relay) (CellResult, error) {
	clientContribs := make([]verdict.Contribution, len(clients))
	for i, c := range clients {
		contrib, err := c.ProduceVerdictCiphertexts()
		if err != nil {
			return CellResult{}, err
		}
		clientContribs[i] = contrib
	}
	trusteeContribs := make([]verdict.Contribution, len(trustees))
	for i, t := range trustees {
		contrib, err := t.ProduceVerdictCiphertext()
		if err != nil {
			return CellResult{}, err
		}
		trusteeContribs[i] = contrib
	}

	cleartexts, assembled, err := relay.ProcessVerdictRound(clientContribs, trusteeContribs)
	if err != nil {
		return CellResult{}, err
	}
	for _, c := range clients {
		c.AdvanceVerdict(cleartexts)
	}
	for _, t := range trustees {
		t.AdvanceVerdict(cleartexts)
	}

	result := CellResult{
		Cleartexts: make(map[int][]byte, len(cleartexts)),
		Assembled:  make(map[int][]byte, len(assembled)),
	}
	for slot, ct := range cleartexts {
		result.Cleartexts[slot] = ct
		result.Assembled[slot] = assembled[slot]
	}
	return result, nil
}
