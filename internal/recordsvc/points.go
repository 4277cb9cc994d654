package recordsvc

import "math"

// tierBase maps a filter's tier to its points floor. Tiers 9 and 10 are
// unranked and have no entry here; Compute scores them 0.
var tierBase = map[int]float64{
	1: 0,
	2: 500,
	3: 2000,
	4: 3500,
	5: 5000,
	6: 6500,
	7: 8000,
	8: 9500,
}

// shareFunc computes the completion share for a time t given the PB t_best,
// either via the closed-form low-completion curve (N<50) or a fitted
// distribution's survival-function ratio (N>=50).
type shareFunc func(t, tBest float64) float64

// lowCompShare implements low_comp(t, t_best, tier) for the closed-form
// regime.
func lowCompShare(tier int) shareFunc {
	x := 2.1 - 0.25*float64(tier)
	y := 1 + math.Exp(-0.5*x)
	return func(t, tBest float64) float64 {
		z := 1 + math.Exp(x*(t/tBest-1.5))
		return y / z
	}
}

// distShare implements dist_share(t) = sf(t) / sf(t_best) for the
// distribution-fit regime, given the fitted NIG parameters.
func distShare(params NIGParams, sfTBest float64) shareFunc {
	return func(t, _ float64) float64 {
		if sfTBest == 0 {
			return 0
		}
		return params.SurvivalFunction(t) / sfTBest
	}
}

// rankShare implements rank_share(r, N), r zero-indexed.
func rankShare(rank, n int) float64 {
	share := 0.5 * (1 - float64(rank)/float64(n))

	if rank < 100 {
		share += 0.002 * float64(100-rank)
	}
	if rank < 20 {
		share += 0.01 * float64(20-rank)
	}

	topFive := []float64{0.1, 0.06, 0.045, 0.03, 0.01}
	if rank < len(topFive) {
		share += topFive[rank]
	}
	return share
}

// Compute returns the integral points in [0, 10000] awarded to the record
// at the given zero-indexed rank among n personal bests, with time t and
// PB t_best, on a filter of the given tier. share supplies the
// completion-fraction term (closed-form or distribution-fit, selected by
// the caller based on n). proSubset adds the 10% bonus slice for
// teleports=false filters.
func Compute(rank, n int, t, tBest float64, tier int, share shareFunc, proSubset bool) int {
	base, ok := tierBase[tier]
	if !ok {
		// tier 9/10: unranked, never scored.
		return 0
	}

	remaining := 10000 - base
	points := base + remaining*(0.75*share(t, tBest)+0.25*rankShare(rank, n))

	if proSubset {
		points += remaining * 0.10
	}

	if points < 0 {
		points = 0
	}
	if points > 10000 {
		points = 10000
	}
	return int(math.Floor(points))
}
