package watch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/driftwatch/pkg/drift"
)

// ErrNotFound indicates the requested monitor does not exist.
var ErrNotFound = errors.New("watch: monitor not found")

// MonitorRecord is the durable form of a monitor: identity plus the
// serialized drift.Snapshot.
type MonitorRecord struct {
	ID        string
	Name      string
	Metric    string
	Snapshot  drift.Snapshot
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WatchStore provides database access for the Watch plugin.
type WatchStore struct {
	db *sql.DB
}

// NewWatchStore creates a WatchStore backed by the given database.
func NewWatchStore(db *sql.DB) *WatchStore {
	return &WatchStore{db: db}
}

// -- Monitors --

// SaveMonitor inserts or updates a monitor record with its snapshot.
func (s *WatchStore) SaveMonitor(ctx context.Context, rec *MonitorRecord) error {
	snapJSON, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO watch_monitors (id, name, metric, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Metric, string(snapJSON), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save monitor: %w", err)
	}
	return nil
}

// GetMonitor returns a single monitor record by ID.
func (s *WatchStore) GetMonitor(ctx context.Context, id string) (*MonitorRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, metric, snapshot, created_at, updated_at
		FROM watch_monitors WHERE id = ?`, id)

	rec, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListMonitors returns all monitor records ordered by creation time.
func (s *WatchStore) ListMonitors(ctx context.Context) ([]MonitorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, metric, snapshot, created_at, updated_at
		FROM watch_monitors ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var recs []MonitorRecord
	for rows.Next() {
		rec, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// DeleteMonitor removes a monitor and its drift events.
func (s *WatchStore) DeleteMonitor(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM watch_monitors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM watch_events WHERE monitor_id = ?`, id); err != nil {
		return fmt.Errorf("delete monitor events: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row rowScanner) (*MonitorRecord, error) {
	var rec MonitorRecord
	var snapJSON string
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Metric, &snapJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan monitor row: %w", err)
	}
	if err := json.Unmarshal([]byte(snapJSON), &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &rec, nil
}

// -- Drift events --

// InsertEvent inserts a drift event record.
func (s *WatchStore) InsertEvent(ctx context.Context, e *DriftEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watch_events (id, monitor_id, monitor_name, type, window_index, violations, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MonitorID, e.Monitor, e.Type, e.WindowIndex, e.Violations, e.Description, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert drift event: %w", err)
	}
	return nil
}

// ListEvents returns drift events, optionally filtered by monitor.
// Pass empty monitorID to list all. Results are ordered by created_at
// descending.
func (s *WatchStore) ListEvents(ctx context.Context, monitorID string, limit int) ([]DriftEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if monitorID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, monitor_id, monitor_name, type, window_index, violations, description, created_at
			FROM watch_events ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, monitor_id, monitor_name, type, window_index, violations, description, created_at
			FROM watch_events WHERE monitor_id = ? ORDER BY created_at DESC LIMIT ?`, monitorID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list drift events: %w", err)
	}
	defer rows.Close()

	var events []DriftEvent
	for rows.Next() {
		var e DriftEvent
		if err := rows.Scan(
			&e.ID, &e.MonitorID, &e.Monitor, &e.Type,
			&e.WindowIndex, &e.Violations, &e.Description, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan drift event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteOldEvents deletes drift events older than the given time.
// Returns the number of rows deleted.
func (s *WatchStore) DeleteOldEvents(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM watch_events WHERE created_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("delete old drift events: %w", err)
	}
	return result.RowsAffected()
}
