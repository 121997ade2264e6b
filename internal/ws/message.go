package ws

import (
	"time"

	"github.com/HerbHall/driftwatch/internal/watch"
)

// MessageType tags the kind of event carried in a Message.
type MessageType string

const (
	MessageDriftDetected   MessageType = "drift.detected"
	MessageDriftCleared    MessageType = "drift.cleared"
	MessageWindowCompleted MessageType = "window.completed"
)

// Message is the wire envelope. Data holds a type-specific payload
// matching the Type tag.
type Message struct {
	Type      MessageType `json:"type"`
	MonitorID string      `json:"monitor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// DriftData is the payload for drift.detected and drift.cleared messages.
type DriftData struct {
	Event watch.DriftEvent `json:"event"`
}

// WindowData is the payload for window.completed messages.
type WindowData struct {
	Window watch.WindowEvent `json:"window"`
}
