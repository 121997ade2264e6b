package drift

import "math"

// Bound is the acceptable proportion range for one bin under the null
// hypothesis that window observations still follow the baseline.
type Bound struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// BoundTable holds one Bound per bin. It is derived deterministically
// from a Model, the window size, and the confidence level, and must be
// recomputed if any of those change.
type BoundTable []Bound

// Contains reports whether proportion p is inside bound i.
func (t BoundTable) Contains(i int, p float64) bool {
	return p >= t[i].Lower && p <= t[i].Upper
}

// computeBounds derives the per-bin Wald interval [p-z·σ, p+z·σ] with
// σ = sqrt(p(1-p)/w), treating each bin's window count as approximately
// binomial(w, p) under the no-drift hypothesis. Bounds are clipped to
// [0, 1]. This is the only place a distributional assumption is made:
// window observations are taken as i.i.d. draws from the baseline.
func computeBounds(m *Model, windowSize int, confidence float64) BoundTable {
	z := zScore(confidence)
	w := float64(windowSize)

	table := make(BoundTable, m.Bins())
	for i, p := range m.Proportions {
		if p <= 0 {
			// Cannot happen for a fitted model (the binner guarantees
			// mass in every bin) but kept for snapshot-restored tables.
			table[i] = Bound{}
			continue
		}
		sigma := math.Sqrt(math.Max(p*(1-p)/w, 0))
		table[i] = Bound{
			Lower: math.Max(0, p-z*sigma),
			Upper: math.Min(1, p+z*sigma),
		}
	}
	return table
}

// zScore returns the two-sided normal quantile for the given confidence
// level. The two levels used in practice are short-circuited to their
// conventional values; anything else goes through the exact inverse
// complementary error function.
func zScore(confidence float64) float64 {
	switch {
	case math.Abs(confidence-0.95) < 1e-9:
		return 1.96
	case math.Abs(confidence-0.99) < 1e-9:
		return 2.576
	}
	return math.Sqrt2 * math.Erfcinv(1-confidence)
}
