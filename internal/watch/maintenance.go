package watch

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startMaintenance launches a background goroutine that periodically:
// 1. Persists monitor snapshots to the database.
// 2. Deletes drift events past the retention window.
func (m *Module) startMaintenance() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.MaintenanceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.runMaintenance()
			}
		}
	}()
}

// runMaintenance executes a single maintenance cycle.
func (m *Module) runMaintenance() {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	m.persistSnapshots(ctx)

	cutoff := time.Now().Add(-m.cfg.EventRetention)
	deleted, err := m.store.DeleteOldEvents(ctx, cutoff)
	if err != nil {
		m.logger.Warn("failed to delete old drift events", zap.Error(err))
	} else if deleted > 0 {
		m.logger.Info("purged old drift events", zap.Int64("count", deleted))
	}
}

// persistSnapshots writes every monitor's snapshot to the database.
func (m *Module) persistSnapshots(ctx context.Context) {
	persisted := 0
	for _, e := range m.monitors.list() {
		e.mu.Lock()
		rec := &MonitorRecord{
			ID: e.id, Name: e.name, Metric: e.metric,
			Snapshot: e.mon.Snapshot(), CreatedAt: e.createdAt, UpdatedAt: e.updatedAt,
		}
		e.mu.Unlock()

		if err := m.store.SaveMonitor(ctx, rec); err != nil {
			m.logger.Warn("failed to persist monitor snapshot",
				zap.String("monitor_id", e.id),
				zap.Error(err),
			)
			continue
		}
		persisted++
	}
	if persisted > 0 {
		m.logger.Debug("persisted monitor snapshots", zap.Int("count", persisted))
	}
}
