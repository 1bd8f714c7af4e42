package verdict

import "github.com/opd-ai/dcnet/pkg/group"

// NullCertifier applies no blinding at all: cells pass through unchanged
// and both commitment terms are the group identity. It has the same
// methods as Certifier, but pkg/dcnet's Client and Trustee hold a
// concrete *Certifier, so a dcnet session without the Verdict layer runs
// plain rounds through RunCell rather than installing this pair.
type NullCertifier struct{}

// NewNullCertifier constructs a certifier that never blinds a cell.
func NewNullCertifier() *NullCertifier { return &NullCertifier{} }

func (n *NullCertifier) Commitment() group.Element {
	return group.ElementFromBytes([]byte{1})
}

func (n *NullCertifier) CurrentGenerator() group.Element {
	return group.ElementFromBytes([]byte{1})
}

func (n *NullCertifier) Certify(cells [][]byte) (Contribution, error) {
	identity := group.ElementFromBytes([]byte{1})
	return Contribution{Cells: cells, Other: identity, Own: identity}, nil
}

func (n *NullCertifier) Advance(cleartexts [][]byte) {}

// NullAccumulator is the relay-side counterpart: Before hands every
// party's cells back untouched, and After is a no-op since there is no
// rolling chain state to advance.
type NullAccumulator struct{}

// NewNullAccumulator constructs the no-op accumulator.
func NewNullAccumulator() *NullAccumulator { return &NullAccumulator{} }

func (n *NullAccumulator) CurrentGenerator() group.Element {
	return group.ElementFromBytes([]byte{1})
}

func (n *NullAccumulator) Before(contributions []Contribution) ([][][]byte, error) {
	out := make([][][]byte, len(contributions))
	for i, c := range contributions {
		out[i] = c.Cells
	}
	return out, nil
}

func (n *NullAccumulator) After(cleartexts [][]byte) {}
