// Package drift implements the Histogram Confidence Method (HCM), a
// constant-time, fixed-memory detector for distributional drift in a
// scalar observation stream.
//
// All statistical work happens once, when a Monitor is fitted from
// baseline data: adaptive bin edges, baseline proportions, and per-bin
// confidence bounds are precomputed into immutable tables. At runtime
// each observation is a binary search plus a counter increment;
// completed windows are compared against the bound table, and drift is
// declared only after a configured run of consecutive violating windows.
package drift

import "sort"

// BinEdges is an ordered set of bin boundary values, length bins+1.
// Edges are strictly increasing and immutable once fitted.
type BinEdges []float64

// Bins returns the number of bins the edges describe.
func (e BinEdges) Bins() int {
	if len(e) < 2 {
		return 0
	}
	return len(e) - 1
}

// Locate returns the bin index for x. Observations outside the baseline
// range are clamped to the nearest edge bin, never dropped; callers that
// care about out-of-range input should compare x against Min/Max first.
func (e BinEdges) Locate(x float64) int {
	// Bins are half-open intervals (lower, upper]; a value landing
	// exactly on an edge belongs to the bin below it.
	idx := sort.SearchFloat64s(e, x) - 1
	if idx < 0 {
		return 0
	}
	if idx >= e.Bins() {
		return e.Bins() - 1
	}
	return idx
}

// Min returns the lowest edge.
func (e BinEdges) Min() float64 { return e[0] }

// Max returns the highest edge.
func (e BinEdges) Max() float64 { return e[len(e)-1] }

// InRange reports whether x falls inside the fitted edge span.
func (e BinEdges) InRange(x float64) bool {
	return x > e.Min() && x <= e.Max()
}

// proportions converts bin counts to fractions of the given total.
func proportions(counts []int, total int) []float64 {
	p := make([]float64, len(counts))
	if total == 0 {
		return p
	}
	for i, c := range counts {
		p[i] = float64(c) / float64(total)
	}
	return p
}
