package codec

import (
	"math"
	"math/big"

	dcerrors "github.com/opd-ai/dcnet/pkg/errors"
)

// factorialCache memoizes n! for the range the tuner needs; values are
// shared across calls within a process since the set of client counts a
// session tunes for is small and stable.
var factorialCache = map[int]*big.Int{0: big.NewInt(1)}

func factorial(n int) *big.Int {
	if v, ok := factorialCache[n]; ok {
		return v
	}
	v := new(big.Int).Mul(factorial(n-1), big.NewInt(int64(n)))
	factorialCache[n] = v
	return v
}

// binomial returns C(n, k), the number of k-subsets of an n-set.
func binomial(n, k int) *big.Int {
	if k < 0 || k > n {
		return big.NewInt(0)
	}
	num := factorial(n)
	den := new(big.Int).Mul(factorial(k), factorial(n-k))
	return new(big.Int).Div(num, den)
}


// TunedParams is the (R, B) pair the parameter tuner selects for a given
// client count and target false-positive/collision probabilities.
type TunedParams struct {
	B int // request-cell bit length
	R int // bits each nym sets to 1
}

// TuneParams searches B = 8, 16, 24, ... up to 8*N for the
// smallest request-cell width whose derived R keeps the per-bit trap
// probability near p while holding the probability of any hash collision
// among N nyms' codes above 1-hp.
func TuneParams(n int, p, hp float64) (TunedParams, error) {
	if n <= 0 {
		return TunedParams{}, dcerrors.CodecError("tune: client count must be positive", nil)
	}
	if p <= 0 || p >= 1 || hp <= 0 || hp >= 1 {
		return TunedParams{}, dcerrors.CodecError("tune: p and hp must be in (0, 1)", nil)
	}

	br := math.Log(p) / float64(n)
	// One byte of width per client is enough headroom for the collision
	// bound at any plausible session size; the search returns the first
	// feasible width, so the bound only matters when nothing smaller fits.
	maxB := 8 * n
	if maxB < 8 {
		maxB = 8
	}

	for b := 8; b <= maxB; b += 8 {
		denom := math.Log(float64(b-1) / float64(b))
		r := int(math.Ceil(br / denom))
		if r < 1 {
			r = 1
		}
		if r > b {
			continue
		}

		combos := binomial(b, r)
		if combos.Sign() == 0 {
			continue
		}
		if big.NewInt(int64(n)).Cmp(combos) > 0 {
			// More nyms than distinct codes: collisions are certain.
			continue
		}

		ratio := noCollisionProbability(combos, n)
		if ratio > 1-hp {
			return TunedParams{B: b, R: r}, nil
		}
	}
	return TunedParams{}, dcerrors.CodecError("tune: no feasible (R, B) found", nil)
}

// noCollisionProbability computes nPr(combos, n) / combos^n as a float64,
// the probability that n independently-chosen codes out of `combos`
// possibilities are all distinct.
func noCollisionProbability(combos *big.Int, n int) float64 {
	combosInt := combos.Int64()
	if combos.IsInt64() && combosInt > 0 && combosInt < 1<<20 {
		num := permutationsBig(combosInt, n)
		den := new(big.Float).SetInt(new(big.Int).Exp(combos, big.NewInt(int64(n)), nil))
		ratio := new(big.Float).Quo(new(big.Float).SetInt(num), den)
		f, _ := ratio.Float64()
		return f
	}
	// combos too large to enumerate exactly as int64; approximate using
	// the standard birthday-problem exponential bound.
	logRatio := 0.0
	c := new(big.Float).SetInt(combos)
	cf, _ := c.Float64()
	for i := 0; i < n; i++ {
		logRatio += math.Log(1 - float64(i)/cf)
	}
	return math.Exp(logRatio)
}

func permutationsBig(combos int64, n int) *big.Int {
	result := big.NewInt(1)
	c := big.NewInt(combos)
	one := big.NewInt(1)
	for i := 0; i < n; i++ {
		result.Mul(result, c)
		c.Sub(c, one)
	}
	return result
}
