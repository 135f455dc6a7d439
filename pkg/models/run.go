// Package models defines the core domain models for command execution and
// node-based workflow orchestration.
package models

import (
	"reflect"
	"time"
)

// RunStatus represents the lifecycle state of a command run.
type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"  // Opened, not yet dispatched
	RunStatusRunning  RunStatus = "running"  // Handler in flight
	RunStatusResolved RunStatus = "resolved" // Settled with an output
	RunStatusRejected RunStatus = "rejected" // Settled with an error
)

// Terminal reports whether the status can no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunStatusResolved || s == RunStatusRejected
}

// OutputType classifies a run's output for display purposes.
type OutputType string

const (
	OutputTypeString OutputType = "string"
	OutputTypeObject OutputType = "object"
	OutputTypeList   OutputType = "list"
	OutputTypeVoid   OutputType = "void"
	OutputTypeError  OutputType = "error"
)

// ClassifyOutput derives the display classification of a resolved value.
// Scalars render as text.
func ClassifyOutput(v any) OutputType {
	if v == nil {
		return OutputTypeVoid
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Struct, reflect.Pointer:
		return OutputTypeObject
	case reflect.Slice, reflect.Array:
		return OutputTypeList
	default:
		return OutputTypeString
	}
}

// RunSource identifies who invoked a command.
type RunSource string

const (
	RunSourceHuman     RunSource = "human"     // Typed into the shell prompt
	RunSourceWidget    RunSource = "widget"    // Triggered from a UI widget
	RunSourceScheduler RunSource = "scheduler" // Fired by a schedule trigger
	RunSourceWorkflow  RunSource = "workflow"  // Issued by a workflow node
	RunSourceSystem    RunSource = "system"    // Internal bookkeeping
)

// CommandRun is one record per command invocation. A run transitions
// pending -> running -> resolved|rejected and is never mutated after settling.
type CommandRun struct {
	ID          string     `json:"id"`
	Command     string     `json:"command"` // Raw text as invoked
	Path        string     `json:"path"`    // Resolved command path
	Status      RunStatus  `json:"status"`
	Output      any        `json:"output,omitempty"`
	OutputType  OutputType `json:"output_type,omitempty"`
	Error       string     `json:"error,omitempty"`
	Source      RunSource  `json:"source"`
	StartedAt   time.Time  `json:"started_at"`
	DurationMS  int64      `json:"duration_ms,omitempty"` // Set on settlement
	ChainID     string     `json:"chain_id,omitempty"`    // Shared by all stages of a piped chain
	ChainIndex  int        `json:"chain_index,omitempty"` // Zero-based stage position
	ChainTotal  int        `json:"chain_total,omitempty"` // Stage count of the chain
	ParentRunID string     `json:"parent_run_id,omitempty"`
}

// Settled reports whether the run reached a terminal status.
func (r *CommandRun) Settled() bool {
	return r.Status.Terminal()
}

// Chained reports whether the run is one stage of a piped chain.
func (r *CommandRun) Chained() bool {
	return r.ChainID != ""
}

// Clone returns a shallow copy safe to hand out of the tracker.
func (r *CommandRun) Clone() *CommandRun {
	if r == nil {
		return nil
	}

	c := *r

	return &c
}

// RunStats aggregates run counts by status.
type RunStats struct {
	Pending  int `json:"pending"`
	Running  int `json:"running"`
	Resolved int `json:"resolved"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}
