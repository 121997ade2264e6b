package drift

// aggregator accumulates observations into disjoint fixed-size windows.
// It is an explicit two-state machine: accumulating until the counter
// reaches capacity, then emitting the finished histogram and resetting.
// Windows never overlap and observations are not retained once counted,
// so memory stays O(bins + 1) regardless of stream length.
type aggregator struct {
	edges      BinEdges
	capacity   int
	counts     []int
	n          int
	outOfRange int
}

// WindowResult is the finalized histogram of one completed window.
type WindowResult struct {
	Counts      []int     `json:"counts"`
	Proportions []float64 `json:"proportions"`
	Size        int       `json:"size"`

	// OutOfRange is the number of observations in this window that fell
	// outside the baseline's edge span and were clamped into the nearest
	// edge bin. Informational: clamped observations still count toward
	// the bin they were assigned to.
	OutOfRange int `json:"out_of_range"`
}

func newAggregator(edges BinEdges, capacity int) *aggregator {
	return &aggregator{
		edges:    edges,
		capacity: capacity,
		counts:   make([]int, edges.Bins()),
	}
}

// add bins one observation. When the observation fills the window it
// returns the finalized result and resets for the next window;
// otherwise it returns nil.
func (a *aggregator) add(v float64) *WindowResult {
	if !a.edges.InRange(v) {
		a.outOfRange++
	}
	a.counts[a.edges.Locate(v)]++
	a.n++

	if a.n < a.capacity {
		return nil
	}

	result := &WindowResult{
		Counts:      a.counts,
		Proportions: proportions(a.counts, a.n),
		Size:        a.n,
		OutOfRange:  a.outOfRange,
	}
	a.counts = make([]int, a.edges.Bins())
	a.n = 0
	a.outOfRange = 0
	return result
}

// reset discards any partially accumulated window.
func (a *aggregator) reset() {
	for i := range a.counts {
		a.counts[i] = 0
	}
	a.n = 0
	a.outOfRange = 0
}

// pending returns how many observations the current window holds.
func (a *aggregator) pending() int { return a.n }
