// Package risk checks proposed trades against static limits and shrinks
// them until they fit. Nothing here ever grows or flips a proposal.
package risk

// shrink returns the largest quantity with the sign of q and magnitude at
// most |q| that satisfies feasible. feasible must hold at zero and describe
// an interval, which every limit in this package does because exposures are
// convex in the traded quantity.
func shrink(q int, feasible func(int) bool) int {
	if q == 0 || feasible(q) {
		return q
	}
	sign := 1
	if q < 0 {
		sign = -1
	}
	lo, hi := 0, abs(q)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if feasible(sign * mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return sign * lo
}

// notWorse accepts values within limit, or values no worse than the current
// one when the book already sits outside the limit.
func notWorse(value, current, limit float64) bool {
	if current > limit {
		limit = current
	}
	return value <= limit
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
