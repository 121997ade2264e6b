package drift

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func normalSamples(r *rand.Rand, n int, mean, stdDev float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = mean + stdDev*r.NormFloat64()
	}
	return s
}

// feed pushes values into the monitor and returns the state after the
// last completed window.
func feed(t *testing.T, m *Monitor, values []float64) DriftState {
	t.Helper()
	var state DriftState
	for _, v := range values {
		res, err := m.Update(v)
		if err != nil {
			t.Fatalf("Update(%v) error = %v", v, err)
		}
		if res.WindowCompleted {
			state = res.State
		}
	}
	return state
}

func TestFit_ConfigValidation(t *testing.T) {
	baseline := sequence(1000)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative window", Config{WindowSize: -1}},
		{"confidence at one", Config{Confidence: 1}},
		{"confidence above one", Config{Confidence: 1.5}},
		{"negative threshold", Config{Threshold: -2}},
		{"negative max bins", Config{MaxBins: -3}},
		{"mass criterion without limit", Config{Criterion: CriterionMassFraction, MassLimit: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Fit(baseline, tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Fit() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestFit_BaselineErrors(t *testing.T) {
	if _, err := Fit(nil, Config{}); !errors.Is(err, ErrEmptyBaseline) {
		t.Errorf("Fit(nil) error = %v, want ErrEmptyBaseline", err)
	}
	if _, err := Fit(sequence(5), Config{MinPerBin: 100}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Fit(5 samples) error = %v, want ErrInsufficientData", err)
	}
	if _, err := Fit([]float64{1, 2, math.NaN()}, Config{MinPerBin: 1}); !errors.Is(err, ErrInvalidObservation) {
		t.Errorf("Fit(NaN baseline) error = %v, want ErrInvalidObservation", err)
	}
}

func TestFit_MinBinMassFraction(t *testing.T) {
	// 10% minimum mass over 1000 samples = 100 per bin = 10 bins.
	m, err := Fit(sequence(1000), Config{MinBinMass: 0.1, WindowSize: 50})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if got := m.Model().Bins(); got != 10 {
		t.Errorf("Bins() = %d, want 10", got)
	}
	for i, c := range m.Model().Counts {
		if c < 100 {
			t.Errorf("bin %d baseline count = %d, below minimum mass", i, c)
		}
	}
}

func TestUpdate_RejectsNonFiniteWithoutMutation(t *testing.T) {
	m, err := Fit(sequence(200), Config{WindowSize: 10})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	feed(t, m, []float64{1, 2, 3})
	before := m.Pending()

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := m.Update(bad); !errors.Is(err, ErrInvalidObservation) {
			t.Errorf("Update(%v) error = %v, want ErrInvalidObservation", bad, err)
		}
	}
	if m.Pending() != before {
		t.Errorf("Pending() = %d after rejected input, want %d", m.Pending(), before)
	}
}

func TestUpdate_WindowsAreDisjoint(t *testing.T) {
	m, err := Fit(sequence(200), Config{WindowSize: 10})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	completed := 0
	for i := 0; i < 35; i++ {
		res, err := m.Update(float64(i % 200))
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if res.WindowCompleted {
			completed++
			if res.Window.Size != 10 {
				t.Errorf("window size = %d, want 10", res.Window.Size)
			}
		}
	}
	if completed != 3 {
		t.Errorf("completed windows = %d, want 3 (no sliding overlap)", completed)
	}
	if m.Pending() != 5 {
		t.Errorf("Pending() = %d, want 5", m.Pending())
	}
}

func TestMonitor_SustainedDriftScenario(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	baseline := normalSamples(r, 10000, 0, 1)

	m, err := Fit(baseline, Config{
		WindowSize: 100,
		MinPerBin:  1000,
		MaxBins:    10,
		Confidence: 0.999,
		Threshold:  3,
	})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	// Ten windows drawn from the baseline distribution itself: the
	// sustained-deviation rule must not declare drift.
	for i := 0; i < 10; i++ {
		state := feed(t, m, normalSamples(r, 100, 0, 1))
		if state.Drift {
			t.Fatalf("drift declared on in-distribution window %d", i)
		}
	}

	// Three full windows shifted to Normal(3, 1): drift must be
	// declared by the third.
	var state DriftState
	for i := 0; i < 3; i++ {
		state = feed(t, m, normalSamples(r, 100, 3, 1))
	}
	if !state.Drift {
		t.Fatalf("drift not declared after three shifted windows: %+v", state)
	}
	if state.ConsecutiveViolations < 3 {
		t.Errorf("ConsecutiveViolations = %d, want >= 3", state.ConsecutiveViolations)
	}
}

func TestMonitor_SingleAnomalousWindowDoesNotTrigger(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	baseline := normalSamples(r, 10000, 0, 1)

	m, err := Fit(baseline, Config{
		WindowSize: 100,
		MinPerBin:  1000,
		MaxBins:    10,
		Confidence: 0.999,
		Threshold:  3,
	})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	// One violating window, then clean traffic: the counter must reset
	// and the flag stay down.
	state := feed(t, m, normalSamples(r, 100, 5, 1))
	if state.Drift {
		t.Fatalf("drift declared after a single violating window")
	}
	if state.ConsecutiveViolations != 1 {
		t.Fatalf("ConsecutiveViolations = %d, want 1", state.ConsecutiveViolations)
	}

	state = feed(t, m, normalSamples(r, 100, 0, 1))
	if state.ConsecutiveViolations != 0 {
		t.Errorf("ConsecutiveViolations = %d after clean window, want 0", state.ConsecutiveViolations)
	}
	if state.Drift {
		t.Errorf("drift flag raised after clean window")
	}
}

func TestMonitor_StickyPolicy(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	baseline := normalSamples(r, 10000, 0, 1)

	m, err := Fit(baseline, Config{
		WindowSize: 100,
		MinPerBin:  1000,
		MaxBins:    10,
		Confidence: 0.999,
		Threshold:  2,
		Policy:     PolicySticky,
	})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	feed(t, m, normalSamples(r, 200, 5, 1)) // two violating windows
	if !m.Status().Drift {
		t.Fatalf("drift not declared after threshold violations")
	}

	feed(t, m, normalSamples(r, 100, 0, 1)) // clean window
	if !m.Status().Drift {
		t.Errorf("sticky drift flag cleared by clean window")
	}
	if m.Status().ConsecutiveViolations != 0 {
		t.Errorf("violation counter not reset by clean window")
	}

	m.Reset()
	if m.Status().Drift {
		t.Errorf("Reset() did not clear sticky drift flag")
	}
}

func TestMonitor_ResetReplayIsIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	baseline := normalSamples(r, 10000, 0, 1)
	stream := append(normalSamples(r, 300, 0, 1), normalSamples(r, 300, 4, 1)...)

	m, err := Fit(baseline, Config{
		WindowSize: 100,
		MinPerBin:  1000,
		MaxBins:    10,
		Confidence: 0.999,
		Threshold:  3,
	})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	run := func() []DriftState {
		var states []DriftState
		for _, v := range stream {
			res, err := m.Update(v)
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if res.WindowCompleted {
				states = append(states, res.State)
			}
		}
		return states
	}

	first := run()
	m.Reset()
	second := run()

	if len(first) != len(second) {
		t.Fatalf("replay produced %d windows, want %d", len(second), len(first))
	}
	for i := range first {
		if first[i].Drift != second[i].Drift ||
			first[i].ConsecutiveViolations != second[i].ConsecutiveViolations {
			t.Errorf("window %d: replay state %+v, want %+v", i, second[i], first[i])
		}
	}
}

func TestMonitor_IdenticalBaselineBoundary(t *testing.T) {
	baseline := make([]float64, 100)
	for i := range baseline {
		baseline[i] = 5.0
	}

	m, err := Fit(baseline, Config{WindowSize: 10, MinPerBin: 50, Threshold: 1})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if m.Model().Bins() != 1 {
		t.Fatalf("Bins() = %d, want 1", m.Model().Bins())
	}

	// Updates landing on the baseline value never violate.
	var res UpdateResult
	for i := 0; i < 10; i++ {
		res, err = m.Update(5.0)
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}
	if !res.WindowCompleted {
		t.Fatalf("window did not complete")
	}
	if res.State.Drift || res.State.ConsecutiveViolations != 0 {
		t.Errorf("on-value window flagged: %+v", res.State)
	}
	if res.Window.OutOfRange != 0 {
		t.Errorf("OutOfRange = %d for on-value window, want 0", res.Window.OutOfRange)
	}

	// Updates elsewhere are clamped into the single bin (never dropped)
	// and surfaced through the out-of-range count.
	for i := 0; i < 10; i++ {
		res, err = m.Update(9.0)
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}
	if res.Window.OutOfRange != 10 {
		t.Errorf("OutOfRange = %d for off-value window, want 10", res.Window.OutOfRange)
	}
}

func TestMonitor_SnapshotRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	baseline := normalSamples(r, 5000, 10, 2)

	m, err := Fit(baseline, Config{WindowSize: 50, MinPerBin: 500, MaxBins: 10, Threshold: 2})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	feed(t, m, normalSamples(r, 150, 10, 2)) // three full windows

	restored, err := FromSnapshot(m.Snapshot())
	if err != nil {
		t.Fatalf("FromSnapshot() error = %v", err)
	}

	if got, want := restored.Status(), m.Status(); got != want {
		t.Errorf("restored state = %+v, want %+v", got, want)
	}
	if restored.Model().Bins() != m.Model().Bins() {
		t.Errorf("restored bins = %d, want %d", restored.Model().Bins(), m.Model().Bins())
	}

	// Both monitors must agree on every subsequent window.
	next := normalSamples(r, 100, 16, 2)
	for _, v := range next {
		r1, err1 := m.Update(v)
		r2, err2 := restored.Update(v)
		if err1 != nil || err2 != nil {
			t.Fatalf("Update() errors: %v, %v", err1, err2)
		}
		if r1.WindowCompleted != r2.WindowCompleted || r1.State != r2.State {
			t.Fatalf("monitors diverged: %+v vs %+v", r1, r2)
		}
	}
}

func TestMonitor_SnapshotValidation(t *testing.T) {
	m, err := Fit(sequence(200), Config{WindowSize: 10})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	s := m.Snapshot()
	s.Model.Edges[1] = s.Model.Edges[0] // break monotonicity
	if _, err := FromSnapshot(s); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("FromSnapshot(broken edges) error = %v, want ErrInvalidConfig", err)
	}

	s = m.Snapshot()
	s.Bounds = s.Bounds[:1]
	if _, err := FromSnapshot(s); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("FromSnapshot(truncated bounds) error = %v, want ErrInvalidConfig", err)
	}
}
