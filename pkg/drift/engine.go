package drift

// Criterion selects how a completed window is judged against the bound
// table.
type Criterion string

const (
	// CriterionAnyBin flags the window if any single bin proportion
	// falls outside its bound.
	CriterionAnyBin Criterion = "any_bin"

	// CriterionMassFraction flags the window if the proportion mass in
	// excess of the bounds, summed over all out-of-bound bins, reaches
	// the configured limit. Each bin contributes only its overshoot
	// beyond the violated bound, not its whole proportion.
	CriterionMassFraction Criterion = "mass_fraction"
)

// Policy selects what happens to an active drift flag when a clean
// window arrives.
type Policy string

const (
	// PolicyResetOnClean clears the drift flag on the first clean
	// window. This is the default.
	PolicyResetOnClean Policy = "reset_on_clean"

	// PolicySticky keeps the drift flag raised until Reset is called,
	// even if later windows are clean. The violation counter still
	// resets on a clean window.
	PolicySticky Policy = "sticky"
)

// DriftState is the engine's externally visible state after a window:
// how many consecutive windows have violated their bounds, and whether
// sustained drift has been declared.
type DriftState struct {
	ConsecutiveViolations int  `json:"consecutive_violations"`
	Drift                 bool `json:"drift"`
	WindowsEvaluated      int  `json:"windows_evaluated"`
}

// engine applies the sustained-deviation rule: a single anomalous
// window never declares drift; only a run of `threshold` consecutive
// violating windows does.
type engine struct {
	bounds    BoundTable
	threshold int
	criterion Criterion
	massLimit float64
	policy    Policy
	state     DriftState
}

func newEngine(bounds BoundTable, threshold int, criterion Criterion, massLimit float64, policy Policy) *engine {
	return &engine{
		bounds:    bounds,
		threshold: threshold,
		criterion: criterion,
		massLimit: massLimit,
		policy:    policy,
	}
}

// evaluate scores one completed window and returns the updated state.
func (e *engine) evaluate(w *WindowResult) DriftState {
	e.state.WindowsEvaluated++

	if e.violates(w) {
		e.state.ConsecutiveViolations++
		if e.state.ConsecutiveViolations >= e.threshold {
			e.state.Drift = true
		}
	} else {
		e.state.ConsecutiveViolations = 0
		if e.policy == PolicyResetOnClean {
			e.state.Drift = false
		}
	}
	return e.state
}

func (e *engine) violates(w *WindowResult) bool {
	switch e.criterion {
	case CriterionMassFraction:
		var outside float64
		for i, p := range w.Proportions {
			if !e.bounds.Contains(i, p) {
				outside += excessMass(e.bounds[i], p)
			}
		}
		return outside >= e.massLimit
	default: // CriterionAnyBin
		for i, p := range w.Proportions {
			if !e.bounds.Contains(i, p) {
				return true
			}
		}
		return false
	}
}

// excessMass is how far a bin proportion overshoots its bound.
func excessMass(b Bound, p float64) float64 {
	if p < b.Lower {
		return b.Lower - p
	}
	return p - b.Upper
}

// reset clears the violation counter and the drift flag.
func (e *engine) reset() {
	e.state = DriftState{}
}
