// Package security holds small cryptographic-hygiene helpers shared across
// the DC-net core: constant-time comparison for trap and disruption
// checks, best-effort zeroing of transient secret buffers, and overflow-
// checked integer conversions at wire-encoding boundaries.
package security

import (
	"crypto/subtle"
	"fmt"
	"math"
)

// ConstantTimeEqual reports whether a and b hold the same bytes, taking
// time independent of where they first differ. Checks that fold a
// client's or trustee's honesty into a single true/false result — trap
// verification, disruption detection — use this instead of bytes.Equal
// so the check's duration never leaks which position failed first.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ZeroSecret overwrites data with zeros in place. Go's garbage collector
// gives no guarantee this erases every copy the runtime made along the
// way, but it closes the window for the one buffer callers hold a
// reference to once they're done with it.
func ZeroSecret(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// SafeIntToUint32 converts an int to uint32, rejecting values that would
// change meaning across the conversion. Wire-framing code that writes a
// payload length as a fixed-width field uses this instead of a bare
// uint32(len(...)) cast.
func SafeIntToUint32(val int) (uint32, error) {
	if val < 0 {
		return 0, fmt.Errorf("security: negative value cannot be converted to uint32: %d", val)
	}
	if uint64(val) > math.MaxUint32 {
		return 0, fmt.Errorf("security: value exceeds uint32 range: %d", val)
	}
	return uint32(val), nil
}
