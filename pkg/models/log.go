package models

import "time"

// LogLevel grades execution log entries.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ExecutionLogEntry is one line of a workflow's execution log, kept per
// workflow in a bounded ring by the store.
type ExecutionLogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	ExecutionID string    `json:"execution_id,omitempty"`
	NodeID      string    `json:"node_id,omitempty"`
	NodeLabel   string    `json:"node_label,omitempty"`
	Level       LogLevel  `json:"level"`
	Message     string    `json:"message"`
	Input       any       `json:"input,omitempty"`
	Output      any       `json:"output,omitempty"`
	Error       string    `json:"error,omitempty"`
}
