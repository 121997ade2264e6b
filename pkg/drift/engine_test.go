package drift

import "testing"

func TestViolates_MassFraction(t *testing.T) {
	// Four bins at p = 0.25 with hand-set bounds of [0.125, 0.375].
	// The proportions below are binary-exact so the summed excess is too.
	bounds := BoundTable{
		{Lower: 0.125, Upper: 0.375},
		{Lower: 0.125, Upper: 0.375},
		{Lower: 0.125, Upper: 0.375},
		{Lower: 0.125, Upper: 0.375},
	}

	tests := []struct {
		name        string
		proportions []float64
		massLimit   float64
		want        bool
	}{
		{
			name:        "baseline-exact window is clean",
			proportions: []float64{0.25, 0.25, 0.25, 0.25},
			massLimit:   0.25,
			want:        false,
		},
		{
			name:        "fully concentrated window violates",
			proportions: []float64{1, 0, 0, 0},
			massLimit:   0.25,
			want:        true,
		},
		{
			// Excess is measured beyond each bound, not total outside
			// mass: bin 0 overshoots by 0.125 and bin 1 undershoots by
			// 0.125, so the sum is exactly 0.25.
			name:        "summed excess meets the limit",
			proportions: []float64{0.5, 0, 0.25, 0.25},
			massLimit:   0.25,
			want:        true,
		},
		{
			name:        "summed excess below the limit",
			proportions: []float64{0.5, 0, 0.25, 0.25},
			massLimit:   0.3,
			want:        false,
		},
		{
			// Any-bin would flag this window (two bins out of bounds);
			// the mass criterion tolerates it while the excess is small.
			name:        "out-of-bound bins with little excess",
			proportions: []float64{0.4375, 0.0625, 0.25, 0.25},
			massLimit:   0.25,
			want:        false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(bounds, 1, CriterionMassFraction, tt.massLimit, PolicyResetOnClean)
			got := e.violates(&WindowResult{Proportions: tt.proportions, Size: 16})
			if got != tt.want {
				t.Errorf("violates() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonitor_MassFractionCriterion(t *testing.T) {
	// 100 distinct baseline values, 20 per bin: five bins at p = 0.2.
	m, err := Fit(sequence(100), Config{
		WindowSize: 10,
		MinPerBin:  20,
		Threshold:  1,
		Criterion:  CriterionMassFraction,
		MassLimit:  0.3,
	})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if m.Model().Bins() != 5 {
		t.Fatalf("Bins() = %d, want 5", m.Model().Bins())
	}

	// A window concentrated in the first bin carries far more than 0.3
	// excess mass.
	concentrated := make([]float64, 10)
	for i := range concentrated {
		concentrated[i] = float64(i)
	}
	state := feed(t, m, concentrated)
	if !state.Drift {
		t.Fatalf("concentrated window not flagged: %+v", state)
	}
	if state.ConsecutiveViolations != 1 {
		t.Errorf("ConsecutiveViolations = %d, want 1", state.ConsecutiveViolations)
	}

	// A window with two observations per bin matches the baseline
	// proportions exactly: excess mass is zero and the flag clears.
	baselineExact := []float64{5, 15, 25, 35, 45, 55, 65, 75, 85, 95}
	state = feed(t, m, baselineExact)
	if state.Drift || state.ConsecutiveViolations != 0 {
		t.Errorf("baseline-exact window flagged: %+v", state)
	}
}
