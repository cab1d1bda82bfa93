// Package events contains the event contracts pushed to websocket clients
// while a report run is in progress.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Primary event type: full state of a report run
	MessageTypeRunSnapshot MessageType = "run:snapshot"

	// Connection messages
	MessageTypeConnect MessageType = "connect"
	MessageTypeError   MessageType = "error"
)

// Run and stage statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// Message is a complete WebSocket message
type Message struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"`
}

// RunSnapshot is the state of one report run. Every update carries the full
// stage list so a client that joins late needs no history.
type RunSnapshot struct {
	RunID        string          `json:"run_id"`
	Source       string          `json:"source,omitempty"`
	Status       string          `json:"status"`
	Progress     int             `json:"progress"` // 0-100
	CurrentStage string          `json:"current_stage,omitempty"`
	Stages       []StageSnapshot `json:"stages"`
	StartedAt    time.Time       `json:"started_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// StageSnapshot is the state of a single pipeline stage
type StageSnapshot struct {
	ID       string                 `json:"id"`
	Status   string                 `json:"status"`
	Duration time.Duration          `json:"duration_ns,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ErrorData is the payload of an error message
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

// IsTerminal reports whether the run has finished
func (s RunSnapshot) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}
