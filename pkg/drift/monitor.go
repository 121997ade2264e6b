package drift

import (
	"fmt"
	"math"
)

// Config holds the fit-time parameters of a Monitor.
type Config struct {
	// WindowSize is the number of observations aggregated into one
	// histogram before comparison.
	WindowSize int `json:"window_size"`

	// MinPerBin is the minimum number of baseline samples per adaptive
	// bin. If zero, it is derived from MinBinMass.
	MinPerBin int `json:"min_per_bin,omitempty"`

	// MinBinMass is the minimum fraction of baseline mass per bin, used
	// when MinPerBin is zero.
	MinBinMass float64 `json:"min_bin_mass,omitempty"`

	// MaxBins caps the number of adaptive bins.
	MaxBins int `json:"max_bins"`

	// Confidence is the confidence level for the per-bin bounds,
	// in (0, 1), e.g. 0.99.
	Confidence float64 `json:"confidence"`

	// Threshold is the number of consecutive violating windows required
	// to declare drift.
	Threshold int `json:"threshold"`

	// Criterion selects the per-window violation test. Defaults to
	// CriterionAnyBin.
	Criterion Criterion `json:"criterion,omitempty"`

	// MassLimit is the out-of-bound mass fraction that flags a window
	// under CriterionMassFraction.
	MassLimit float64 `json:"mass_limit,omitempty"`

	// Policy selects the drift-flag reset behavior. Defaults to
	// PolicyResetOnClean.
	Policy Policy `json:"policy,omitempty"`
}

// DefaultConfig returns the parameters used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		WindowSize: 500,
		MinPerBin:  50,
		MaxBins:    20,
		Confidence: 0.99,
		Threshold:  3,
		Criterion:  CriterionAnyBin,
		MassLimit:  0.05,
		Policy:     PolicyResetOnClean,
	}
}

// validate checks fatal configuration errors. These are raised at fit
// time and never silently coerced.
func (c *Config) validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: window size %d", ErrInvalidConfig, c.WindowSize)
	}
	if c.MaxBins <= 0 {
		return fmt.Errorf("%w: max bins %d", ErrInvalidConfig, c.MaxBins)
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return fmt.Errorf("%w: confidence %g outside (0, 1)", ErrInvalidConfig, c.Confidence)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("%w: threshold %d", ErrInvalidConfig, c.Threshold)
	}
	if c.MinPerBin < 0 || c.MinBinMass < 0 {
		return fmt.Errorf("%w: negative minimum bin mass", ErrInvalidConfig)
	}
	if c.Criterion == CriterionMassFraction && (c.MassLimit <= 0 || c.MassLimit > 1) {
		return fmt.Errorf("%w: mass limit %g outside (0, 1]", ErrInvalidConfig, c.MassLimit)
	}
	return nil
}

// minPerBin resolves the per-bin sample floor from whichever of
// MinPerBin / MinBinMass is set.
func (c *Config) minPerBin(n int) int {
	if c.MinPerBin > 0 {
		return c.MinPerBin
	}
	if c.MinBinMass > 0 {
		return int(math.Ceil(c.MinBinMass * float64(n)))
	}
	return 1
}

// Monitor is a fitted drift detector. The statistical tables (edges,
// baseline proportions, bounds) are immutable after Fit; only the
// window accumulator and drift state mutate at runtime.
//
// A Monitor is not safe for concurrent use. Callers with multiple
// producers must serialize Update externally (one lock per monitor, or
// one monitor per producer).
type Monitor struct {
	cfg    Config
	model  *Model
	bounds BoundTable
	agg    *aggregator
	eng    *engine
}

// UpdateResult reports the outcome of feeding one observation.
type UpdateResult struct {
	// WindowCompleted is true when this observation filled the current
	// window; Window and State are meaningful only in that case.
	WindowCompleted bool `json:"window_completed"`

	// Window is the finalized histogram of the completed window.
	Window *WindowResult `json:"window,omitempty"`

	// State is the drift state after evaluating the completed window.
	State DriftState `json:"state"`
}

// Fit builds a Monitor from baseline samples: adaptive bin edges, the
// baseline model, and the precomputed bound table. Zero-valued config
// fields take their defaults from DefaultConfig.
func Fit(samples []float64, cfg Config) (*Monitor, error) {
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	for _, v := range samples {
		if !isFinite(v) {
			return nil, fmt.Errorf("%w: baseline contains non-finite value", ErrInvalidObservation)
		}
	}

	model, err := FitModel(samples, cfg.minPerBin(len(samples)), cfg.MaxBins)
	if err != nil {
		return nil, err
	}
	bounds := computeBounds(model, cfg.WindowSize, cfg.Confidence)

	return &Monitor{
		cfg:    cfg,
		model:  model,
		bounds: bounds,
		agg:    newAggregator(model.Edges, cfg.WindowSize),
		eng:    newEngine(bounds, cfg.Threshold, cfg.Criterion, cfg.MassLimit, cfg.Policy),
	}, nil
}

// Update feeds one observation. Cost is O(log bins) regardless of how
// many observations have been processed. Non-finite input is rejected
// before any state changes.
func (m *Monitor) Update(v float64) (UpdateResult, error) {
	if !isFinite(v) {
		return UpdateResult{State: m.eng.state}, ErrInvalidObservation
	}

	window := m.agg.add(v)
	if window == nil {
		return UpdateResult{State: m.eng.state}, nil
	}

	state := m.eng.evaluate(window)
	return UpdateResult{
		WindowCompleted: true,
		Window:          window,
		State:           state,
	}, nil
}

// Status returns a snapshot of the violation counter and drift flag.
func (m *Monitor) Status() DriftState { return m.eng.state }

// Reset clears the partial window and the drift state. The baseline
// model and bound table are kept; no re-fit happens.
func (m *Monitor) Reset() {
	m.agg.reset()
	m.eng.reset()
}

// Config returns the fit-time configuration (defaults applied).
func (m *Monitor) Config() Config { return m.cfg }

// Model returns the immutable baseline model.
func (m *Monitor) Model() *Model { return m.model }

// Bounds returns the immutable per-bin bound table.
func (m *Monitor) Bounds() BoundTable { return m.bounds }

// Pending returns how many observations the current window holds.
func (m *Monitor) Pending() int { return m.agg.pending() }

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.WindowSize == 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinPerBin == 0 && cfg.MinBinMass == 0 {
		cfg.MinPerBin = def.MinPerBin
	}
	if cfg.MaxBins == 0 {
		cfg.MaxBins = def.MaxBins
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = def.Confidence
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Criterion == "" {
		cfg.Criterion = def.Criterion
	}
	if cfg.MassLimit == 0 {
		cfg.MassLimit = def.MassLimit
	}
	if cfg.Policy == "" {
		cfg.Policy = def.Policy
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
