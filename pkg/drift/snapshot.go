package drift

import "fmt"

// Snapshot is the complete serializable state of a fitted Monitor. It
// carries everything needed to rebuild the monitor after a restart: the
// configuration, the baseline model, the bound table, and the drift
// state. The partially filled window is not included; a restored monitor
// starts its next window empty.
type Snapshot struct {
	Config Config     `json:"config"`
	Model  Model      `json:"model"`
	Bounds BoundTable `json:"bounds"`
	State  DriftState `json:"state"`
}

// Snapshot exports the monitor's persistent state.
func (m *Monitor) Snapshot() Snapshot {
	return Snapshot{
		Config: m.cfg,
		Model:  *m.model,
		Bounds: m.bounds,
		State:  m.eng.state,
	}
}

// FromSnapshot rebuilds a Monitor from a previously exported Snapshot.
// The snapshot's tables are validated before use; the bound table is
// taken as-is rather than recomputed, so a snapshot round-trips exactly.
func FromSnapshot(s Snapshot) (*Monitor, error) {
	applyDefaults(&s.Config)
	if err := s.Config.validate(); err != nil {
		return nil, err
	}
	if err := validateSnapshotModel(&s.Model, s.Bounds); err != nil {
		return nil, err
	}

	model := s.Model
	eng := newEngine(s.Bounds, s.Config.Threshold, s.Config.Criterion, s.Config.MassLimit, s.Config.Policy)
	eng.state = s.State

	return &Monitor{
		cfg:    s.Config,
		model:  &model,
		bounds: s.Bounds,
		agg:    newAggregator(model.Edges, s.Config.WindowSize),
		eng:    eng,
	}, nil
}

func validateSnapshotModel(m *Model, bounds BoundTable) error {
	bins := m.Edges.Bins()
	if bins < 1 {
		return fmt.Errorf("%w: snapshot has no bins", ErrInvalidConfig)
	}
	for i := 1; i < len(m.Edges); i++ {
		if m.Edges[i] <= m.Edges[i-1] {
			return fmt.Errorf("%w: snapshot edges not strictly increasing", ErrInvalidConfig)
		}
	}
	if len(m.Counts) != bins || len(m.Proportions) != bins || len(bounds) != bins {
		return fmt.Errorf("%w: snapshot table sizes disagree with edges", ErrInvalidConfig)
	}
	return nil
}
