package watch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/driftwatch/pkg/drift"
	"github.com/HerbHall/driftwatch/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.HTTPProvider    = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
)

// Module implements the Watch drift-monitoring plugin. It hosts a set
// of fitted drift monitors, feeds them observations from HTTP and the
// event bus, persists their snapshots, and publishes drift transitions.
type Module struct {
	logger   *zap.Logger
	cfg      WatchConfig
	store    *WatchStore
	bus      plugin.EventBus
	monitors *registry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Watch plugin instance.
func New() *Module {
	return &Module{monitors: newRegistry()}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "watch",
		Version:     "0.1.0",
		Description: "Histogram confidence drift detection for scalar streams",
		Roles:       []string{"monitoring"},
		Required:    false,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal watch config: %w", err)
		}
	}

	if deps.Store != nil {
		if err := deps.Store.Migrate(context.Background(), "watch", migrations()); err != nil {
			return fmt.Errorf("watch migrations: %w", err)
		}
		m.store = NewWatchStore(deps.Store.DB())
	}

	m.bus = deps.Bus

	if m.store != nil {
		if err := m.restoreMonitors(context.Background()); err != nil {
			return fmt.Errorf("restore monitors: %w", err)
		}
	}

	m.logger.Info("watch module initialized",
		zap.Int("window_size", m.cfg.WindowSize),
		zap.Float64("confidence", m.cfg.Confidence),
		zap.Int("threshold", m.cfg.Threshold),
		zap.Int("monitors_restored", m.monitors.count()),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.startMaintenance()
	m.logger.Info("watch module started")
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	// Final snapshot flush so drift state survives the restart.
	if m.store != nil {
		m.persistSnapshots(ctx)
	}
	m.logger.Info("watch module stopped")
	return nil
}

// restoreMonitors rebuilds the in-memory registry from stored snapshots.
// A corrupt snapshot is logged and skipped rather than failing startup.
func (m *Module) restoreMonitors(ctx context.Context) error {
	recs, err := m.store.ListMonitors(ctx)
	if err != nil {
		return err
	}
	for i := range recs {
		rec := &recs[i]
		mon, err := drift.FromSnapshot(rec.Snapshot)
		if err != nil {
			m.logger.Warn("skipping monitor with invalid snapshot",
				zap.String("monitor_id", rec.ID),
				zap.String("name", rec.Name),
				zap.Error(err),
			)
			continue
		}
		m.monitors.put(&monitorEntry{
			id:        rec.ID,
			name:      rec.Name,
			metric:    rec.Metric,
			mon:       mon,
			createdAt: rec.CreatedAt,
			updatedAt: rec.UpdatedAt,
		})
		driftActive.WithLabelValues(rec.Name).Set(boolGauge(mon.Status().Drift))
	}
	monitorsActive.Set(float64(m.monitors.count()))
	return nil
}

// -- plugin.HealthChecker --

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	drifting := 0
	for _, e := range m.monitors.list() {
		if e.info().State.Drift {
			drifting++
		}
	}
	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"monitors": strconv.Itoa(m.monitors.count()),
			"drifting": strconv.Itoa(drifting),
		},
	}
}

// -- plugin.EventSubscriber --

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: TopicObservations, Handler: m.handleObservations},
	}
}

// handleObservations feeds an in-process observation batch to a monitor.
func (m *Module) handleObservations(_ context.Context, event plugin.Event) {
	batch, ok := event.Payload.(ObservationBatch)
	if !ok {
		if p, isPtr := event.Payload.(*ObservationBatch); isPtr {
			batch = *p
		} else {
			m.logger.Debug("ignored observations event: unexpected payload type",
				zap.String("source", event.Source))
			return
		}
	}
	if _, err := m.Ingest(batch.MonitorID, batch.Values); err != nil {
		m.logger.Warn("bus observation batch rejected",
			zap.String("monitor_id", batch.MonitorID),
			zap.String("source", event.Source),
			zap.Error(err),
		)
	}
}

// -- Core operations --

// CreateMonitor fits a new monitor from baseline samples and registers
// it. Zero-valued config fields inherit the module defaults.
func (m *Module) CreateMonitor(ctx context.Context, name, metric string, cfg drift.Config, baseline []float64) (MonitorInfo, error) {
	merged := mergeConfig(m.cfg.driftDefaults(), cfg)
	mon, err := drift.Fit(baseline, merged)
	if err != nil {
		return MonitorInfo{}, err
	}

	now := time.Now().UTC()
	e := &monitorEntry{
		id:        uuid.NewString(),
		name:      name,
		metric:    metric,
		mon:       mon,
		createdAt: now,
		updatedAt: now,
	}
	m.monitors.put(e)
	monitorsActive.Set(float64(m.monitors.count()))
	driftActive.WithLabelValues(name).Set(0)

	if m.store != nil {
		if err := m.store.SaveMonitor(ctx, &MonitorRecord{
			ID: e.id, Name: e.name, Metric: e.metric,
			Snapshot: mon.Snapshot(), CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			m.logger.Warn("failed to persist monitor", zap.String("monitor_id", e.id), zap.Error(err))
		}
	}

	m.logger.Info("monitor created",
		zap.String("monitor_id", e.id),
		zap.String("name", name),
		zap.Int("baseline_samples", len(baseline)),
		zap.Int("bins", mon.Model().Bins()),
	)
	return e.info(), nil
}

// IngestResult summarizes one observation batch.
type IngestResult struct {
	Accepted         int              `json:"accepted"`
	WindowsCompleted int              `json:"windows_completed"`
	ViolatingWindows int              `json:"violating_windows"`
	State            drift.DriftState `json:"state"`
	Pending          int              `json:"pending"`
}

// Ingest feeds a batch of observations to a monitor, publishing window
// and drift-transition events for every window the batch completes.
func (m *Module) Ingest(id string, values []float64) (IngestResult, error) {
	e, ok := m.monitors.get(id)
	if !ok {
		return IngestResult{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var res IngestResult
	prevDrift := e.mon.Status().Drift
	for _, v := range values {
		out, err := e.mon.Update(v)
		if err != nil {
			return res, fmt.Errorf("observation %d: %w", res.Accepted, err)
		}
		res.Accepted++

		if !out.WindowCompleted {
			continue
		}
		res.WindowsCompleted++
		violating := out.State.ConsecutiveViolations > 0
		if violating {
			res.ViolatingWindows++
			violatingWindowsTotal.WithLabelValues(e.name).Inc()
		}
		windowsTotal.WithLabelValues(e.name).Inc()
		m.publishWindow(e, out, violating)

		if out.State.Drift != prevDrift {
			m.recordTransition(e, out.State)
			prevDrift = out.State.Drift
		}
	}
	observationsTotal.WithLabelValues(e.name).Add(float64(res.Accepted))
	e.updatedAt = time.Now().UTC()

	res.State = e.mon.Status()
	res.Pending = e.mon.Pending()
	return res, nil
}

// ResetMonitor clears a monitor's partial window and drift state.
func (m *Module) ResetMonitor(ctx context.Context, id string) (MonitorInfo, error) {
	e, ok := m.monitors.get(id)
	if !ok {
		return MonitorInfo{}, ErrNotFound
	}

	e.mu.Lock()
	wasDrifting := e.mon.Status().Drift
	e.mon.Reset()
	e.updatedAt = time.Now().UTC()
	snap := e.mon.Snapshot()
	e.mu.Unlock()

	driftActive.WithLabelValues(e.name).Set(0)
	if wasDrifting {
		m.recordTransition(e, snap.State)
	}

	if m.store != nil {
		if err := m.store.SaveMonitor(ctx, &MonitorRecord{
			ID: e.id, Name: e.name, Metric: e.metric,
			Snapshot: snap, CreatedAt: e.createdAt, UpdatedAt: e.updatedAt,
		}); err != nil {
			m.logger.Warn("failed to persist monitor", zap.String("monitor_id", e.id), zap.Error(err))
		}
	}
	return e.info(), nil
}

// DeleteMonitor removes a monitor from the registry and the store.
func (m *Module) DeleteMonitor(ctx context.Context, id string) error {
	e, ok := m.monitors.get(id)
	if !ok {
		return ErrNotFound
	}
	m.monitors.remove(id)
	monitorsActive.Set(float64(m.monitors.count()))
	driftActive.DeleteLabelValues(e.name)

	if m.store != nil {
		if err := m.store.DeleteMonitor(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	m.logger.Info("monitor deleted", zap.String("monitor_id", id), zap.String("name", e.name))
	return nil
}

// -- Event publication --

func (m *Module) publishWindow(e *monitorEntry, out drift.UpdateResult, violating bool) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(m.busCtx(), plugin.Event{
		Topic:  TopicWindowCompleted,
		Source: "watch",
		Payload: WindowEvent{
			MonitorID:             e.id,
			Monitor:               e.name,
			WindowIndex:           out.State.WindowsEvaluated,
			Violating:             violating,
			OutOfRange:            out.Window.OutOfRange,
			ConsecutiveViolations: out.State.ConsecutiveViolations,
			Drift:                 out.State.Drift,
			CompletedAt:           time.Now().UTC(),
		},
	})
}

// recordTransition stores and publishes a drift flag change.
func (m *Module) recordTransition(e *monitorEntry, state drift.DriftState) {
	eventType := EventDriftCleared
	topic := TopicDriftCleared
	if state.Drift {
		eventType = EventDriftDetected
		topic = TopicDriftDetected
	}
	driftActive.WithLabelValues(e.name).Set(boolGauge(state.Drift))

	ev := &DriftEvent{
		ID:          uuid.NewString(),
		MonitorID:   e.id,
		Monitor:     e.name,
		Type:        eventType,
		WindowIndex: state.WindowsEvaluated,
		Violations:  state.ConsecutiveViolations,
		Description: fmt.Sprintf("drift %s on %s after window %d", eventType, e.name, state.WindowsEvaluated),
		CreatedAt:   time.Now().UTC(),
	}

	m.logger.Info("drift transition",
		zap.String("monitor_id", e.id),
		zap.String("name", e.name),
		zap.String("type", eventType),
		zap.Int("window", state.WindowsEvaluated),
		zap.Int("violations", state.ConsecutiveViolations),
	)

	if m.store != nil {
		ctx, cancel := context.WithTimeout(m.busCtx(), 5*time.Second)
		defer cancel()
		if err := m.store.InsertEvent(ctx, ev); err != nil {
			m.logger.Warn("failed to store drift event", zap.Error(err))
		}
	}

	if m.bus != nil {
		m.bus.PublishAsync(m.busCtx(), plugin.Event{
			Topic:   topic,
			Source:  "watch",
			Payload: *ev,
		})
	}
}

// busCtx returns the module's lifecycle context, falling back to
// Background before Start (monitors can be exercised in tests without
// the full lifecycle).
func (m *Module) busCtx() context.Context {
	if m.ctx != nil {
		return m.ctx
	}
	return context.Background()
}

// mergeConfig overlays non-zero request fields on the module defaults.
func mergeConfig(base, req drift.Config) drift.Config {
	out := base
	if req.WindowSize != 0 {
		out.WindowSize = req.WindowSize
	}
	if req.MinPerBin != 0 {
		out.MinPerBin = req.MinPerBin
	}
	if req.MinBinMass != 0 {
		// An explicit mass fraction replaces the default sample floor,
		// otherwise the inherited MinPerBin would always win.
		out.MinBinMass = req.MinBinMass
		out.MinPerBin = req.MinPerBin
	}
	if req.MaxBins != 0 {
		out.MaxBins = req.MaxBins
	}
	if req.Confidence != 0 {
		out.Confidence = req.Confidence
	}
	if req.Threshold != 0 {
		out.Threshold = req.Threshold
	}
	if req.Criterion != "" {
		out.Criterion = req.Criterion
	}
	if req.MassLimit != 0 {
		out.MassLimit = req.MassLimit
	}
	if req.Policy != "" {
		out.Policy = req.Policy
	}
	return out
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
