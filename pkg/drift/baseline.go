package drift

// Model is the fixed reference distribution: adaptive bin edges plus the
// baseline proportion of mass in each bin. A Model is immutable once
// fitted; replacing the baseline means fitting a new Model.
type Model struct {
	Edges       BinEdges  `json:"edges"`
	Counts      []int     `json:"counts"`
	Proportions []float64 `json:"proportions"`
	Samples     int       `json:"samples"`
}

// FitModel builds a baseline model from representative samples. Every
// bin is guaranteed at least minPerBin baseline samples, so no bin has a
// zero baseline proportion.
func FitModel(samples []float64, minPerBin, maxBins int) (*Model, error) {
	edges, counts, err := fitEdges(samples, minPerBin, maxBins)
	if err != nil {
		return nil, err
	}
	return &Model{
		Edges:       edges,
		Counts:      counts,
		Proportions: proportions(counts, len(samples)),
		Samples:     len(samples),
	}, nil
}

// Bins returns the number of bins in the model.
func (m *Model) Bins() int { return len(m.Counts) }
