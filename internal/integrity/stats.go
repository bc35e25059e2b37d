package integrity

import "math"

// Shared statistical primitives for the scorer and detectors.
//
// All helpers are total functions: degenerate input (zero samples, negative
// counts, NaN intermediates) maps to the floor value rather than propagating,
// per the engine-wide rule that integrity math must never destabilize the
// caller's pipeline.

// WilsonLowerBound computes the lower bound of the Wilson score interval for
// an observed win rate at confidence z. This is the core anti-gaming device:
// a 3-for-3 record yields a bound near 44% while 650/1000 yields a bound
// above 61% — sample size is rewarded, small-sample luck is not.
func WilsonLowerBound(wins, total int64, z float64) float64 {
	if total <= 0 || wins < 0 || z <= 0 {
		return 0
	}
	if wins > total {
		wins = total
	}

	n := float64(total)
	pHat := float64(wins) / n
	z2 := z * z

	num := pHat + z2/(2*n) - z*math.Sqrt(pHat*(1-pHat)/n+z2/(4*n*n))
	bound := num / (1 + z2/n)

	if math.IsNaN(bound) || bound < 0 {
		return 0
	}
	return bound
}

// WinRateZScore computes the z statistic of an observed win rate against the
// coin-flip baseline p0 = 0.5.
func WinRateZScore(wins, total int64) float64 {
	if total <= 0 {
		return 0
	}
	if wins < 0 {
		wins = 0
	}
	if wins > total {
		wins = total
	}

	const p0 = 0.5
	pHat := float64(wins) / float64(total)
	stdDev := math.Sqrt(p0 * (1 - p0) / float64(total))
	if stdDev == 0 {
		return 0
	}
	return (pHat - p0) / stdDev
}

// mean returns the arithmetic mean, 0 for empty input.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev returns the population standard deviation, 0 for fewer than two samples.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	varSum := 0.0
	for _, x := range xs {
		d := x - m
		varSum += d * d
	}
	return math.Sqrt(varSum / float64(len(xs)))
}

// sharpeRatio is mean return over return volatility. Zero volatility yields 0
// since a flat series carries no consistency signal either way.
func sharpeRatio(returns []float64) float64 {
	sd := stdDev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd
}

// clamp bounds v to [lo, hi] and maps NaN to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
