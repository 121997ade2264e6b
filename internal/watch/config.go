package watch

import (
	"time"

	"github.com/HerbHall/driftwatch/pkg/drift"
)

// WatchConfig holds configuration for the Watch drift-monitoring plugin.
// The drift.* fields are defaults applied to monitors created without an
// explicit configuration.
type WatchConfig struct {
	WindowSize int     `mapstructure:"window_size"`
	MinPerBin  int     `mapstructure:"min_per_bin"`
	MinBinMass float64 `mapstructure:"min_bin_mass"`
	MaxBins    int     `mapstructure:"max_bins"`
	Confidence float64 `mapstructure:"confidence"`
	Threshold  int     `mapstructure:"threshold"`
	Criterion  string  `mapstructure:"criterion"`
	MassLimit  float64 `mapstructure:"mass_limit"`
	Policy     string  `mapstructure:"policy"`

	// MaxBatch caps the number of observations accepted in a single
	// ingest request.
	MaxBatch int `mapstructure:"max_batch"`

	// EventRetention bounds how long drift events are kept.
	EventRetention      time.Duration `mapstructure:"event_retention"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// DefaultConfig returns sensible defaults for the Watch module.
func DefaultConfig() WatchConfig {
	return WatchConfig{
		WindowSize:          500,
		MinPerBin:           50,
		MaxBins:             20,
		Confidence:          0.99,
		Threshold:           3,
		Criterion:           string(drift.CriterionAnyBin),
		MassLimit:           0.05,
		Policy:              string(drift.PolicyResetOnClean),
		MaxBatch:            10000,
		EventRetention:      30 * 24 * time.Hour,
		MaintenanceInterval: 1 * time.Hour,
	}
}

// driftDefaults converts the module defaults into a drift.Config used
// when a create request omits its own configuration fields.
func (c WatchConfig) driftDefaults() drift.Config {
	return drift.Config{
		WindowSize: c.WindowSize,
		MinPerBin:  c.MinPerBin,
		MinBinMass: c.MinBinMass,
		MaxBins:    c.MaxBins,
		Confidence: c.Confidence,
		Threshold:  c.Threshold,
		Criterion:  drift.Criterion(c.Criterion),
		MassLimit:  c.MassLimit,
		Policy:     drift.Policy(c.Policy),
	}
}
