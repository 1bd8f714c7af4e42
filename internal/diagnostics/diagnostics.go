// Package diagnostics renders human-facing debug views of session state.
// Nothing here sits in the hot round loop; the interval driver calls into
// this package only when its logger is at debug level.
package diagnostics

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/markkurossi/tabulate"

	"github.com/opd-ai/dcnet/pkg/group"
)

// ScheduleEntry is one slot's assignment in a given interval.
type ScheduleEntry struct {
	Slot int
	Nym  group.Element
}

// RenderSchedule renders the current slot-to-nym permutation and the fixed
// per-slot cell budget as an ASCII table: one row per slot, one table
// per call, no persistent state.
func RenderSchedule(entries []ScheduleEntry, cellLength int) string {
	tab := tabulate.New(tabulate.Github)
	tab.Header("Slot").SetAlign(tabulate.MR)
	tab.Header("Nym").SetAlign(tabulate.ML)
	tab.Header("Cell Bytes").SetAlign(tabulate.MR)

	for _, e := range entries {
		row := tab.Row()
		row.Column(fmt.Sprintf("%d", e.Slot))
		row.Column(shortHex(e.Nym.Bytes()))
		row.Column(fmt.Sprintf("%d", cellLength))
	}

	var buf bytes.Buffer
	tab.Print(&buf)
	return buf.String()
}

// shortHex trims a public key to a log-friendly prefix; full keys belong
// in structured log fields, not in a table meant to fit on one screen.
func shortHex(b []byte) string {
	enc := hex.EncodeToString(b)
	if len(enc) <= 16 {
		return enc
	}
	return enc[:16] + "…"
}
