package model

import (
	"encoding/json"
	"time"
)

// RunStatus is the state of a reconciliation run. A finished run ends in one
// of the three outcome states.
type RunStatus string

const (
	RunStatusRunning             RunStatus = "running"
	RunStatusSuccess             RunStatus = "success"
	RunStatusSuccessWithWarnings RunStatus = "success_with_warnings"
	RunStatusFailure             RunStatus = "failure"
)

// Publishable reports whether output produced under this status may be
// written as authoritative.
func (s RunStatus) Publishable() bool {
	return s == RunStatusSuccess || s == RunStatusSuccessWithWarnings
}

// Run is one recorded reconciliation run.
type Run struct {
	ID             string     `json:"id"`
	InputPath      string     `json:"input_path"`
	RegistryDigest string     `json:"registry_digest"`
	Status         RunStatus  `json:"status"`
	Result         *RunResult `json:"result,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RunResult is what a finished run reports back to the run history.
type RunResult struct {
	Status     RunStatus       `json:"status"`
	OutputPath string          `json:"output_path,omitempty"`
	InputRows  int             `json:"input_rows"`
	OutputRows int             `json:"output_rows"`
	MappedRows int             `json:"mapped_rows"`
	Warnings   int             `json:"warnings"`
	Errors     int             `json:"errors"`
	Report     json.RawMessage `json:"report,omitempty"`
}
