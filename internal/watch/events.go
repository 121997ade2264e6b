package watch

import "time"

// Event topics consumed by the Watch module.
const (
	// TopicObservations accepts in-process observation batches from
	// other plugins, bypassing the HTTP surface.
	TopicObservations = "watch.observations"
)

// Event topics published by the Watch module.
const (
	TopicDriftDetected   = "watch.drift.detected"
	TopicDriftCleared    = "watch.drift.cleared"
	TopicWindowCompleted = "watch.window.completed"
)

// ObservationBatch is the payload for TopicObservations.
type ObservationBatch struct {
	MonitorID string    `json:"monitor_id"`
	Values    []float64 `json:"values"`
}

// WindowEvent is the payload for TopicWindowCompleted.
type WindowEvent struct {
	MonitorID             string    `json:"monitor_id"`
	Monitor               string    `json:"monitor"`
	WindowIndex           int       `json:"window_index"`
	Violating             bool      `json:"violating"`
	OutOfRange            int       `json:"out_of_range"`
	ConsecutiveViolations int       `json:"consecutive_violations"`
	Drift                 bool      `json:"drift"`
	CompletedAt           time.Time `json:"completed_at"`
}

// DriftEvent is the payload for TopicDriftDetected and
// TopicDriftCleared, and the row shape of the events API.
type DriftEvent struct {
	ID          string    `json:"id"`
	MonitorID   string    `json:"monitor_id"`
	Monitor     string    `json:"monitor"`
	Type        string    `json:"type"` // "detected" or "cleared"
	WindowIndex int       `json:"window_index"`
	Violations  int       `json:"violations"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Drift event types.
const (
	EventDriftDetected = "detected"
	EventDriftCleared  = "cleared"
)
