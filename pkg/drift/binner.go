package drift

import (
	"math"
	"sort"
)

// nudgeBelow returns a value just under x, used for the leftmost edge so
// the smallest baseline sample falls inside the first bin. The fixed
// offset keeps edges human-readable; Nextafter covers magnitudes where
// subtracting it would round away.
func nudgeBelow(x float64) float64 {
	if y := x - 1e-9; y < x {
		return y
	}
	return math.Nextafter(x, math.Inf(-1))
}

// fitEdges builds adaptive equal-frequency bin edges from baseline
// samples. Each bin receives at least minPerBin samples; at most maxBins
// bins are produced, with any remainder absorbed by the last bin. A
// trailing chunk smaller than half of minPerBin is merged into its
// predecessor rather than forming an undersized bin. Runs of identical
// values never split across bins: a candidate edge equal to the previous
// edge extends the previous bin instead.
//
// Returns the edges and the per-bin baseline counts. The input slice is
// not modified; sorting happens on a copy.
func fitEdges(samples []float64, minPerBin, maxBins int) (BinEdges, []int, error) {
	if len(samples) == 0 {
		return nil, nil, ErrEmptyBaseline
	}
	if len(samples) < minPerBin {
		return nil, nil, ErrInsufficientData
	}

	data := make([]float64, len(samples))
	copy(data, samples)
	sort.Float64s(data)

	n := len(data)
	edges := BinEdges{nudgeBelow(data[0])}
	var counts []int

	i := 0
	for i < n {
		start := i
		if len(counts) == maxBins-1 {
			i = n // last permitted bin takes everything that remains
		} else {
			i = min(n, i+minPerBin)
		}

		// Never split a run of equal values: extend the chunk past ties.
		for i < n && data[i] == data[i-1] {
			i++
		}

		size := i - start
		last := len(edges) - 1

		switch {
		case i == n && len(counts) > 0 && size*2 < minPerBin:
			// Undersized tail: merge into the previous bin.
			counts[len(counts)-1] += size
			edges[last] = data[i-1]
		case len(counts) > 0 && data[i-1] <= edges[last]:
			// Candidate edge does not advance (tie run landed on the
			// previous edge): fold the chunk into the previous bin.
			counts[len(counts)-1] += size
		default:
			counts = append(counts, size)
			edges = append(edges, data[i-1])
		}
	}

	return edges, counts, nil
}
