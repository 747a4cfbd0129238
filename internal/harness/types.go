package harness

import (
	"github.com/roach88/persist/internal/command"
)

// LogEntry is one statement that reached a driver.
type LogEntry struct {
	Seq        int            `json:"seq"`
	Step       int            `json:"step"` // 1-based
	Database   string         `json:"database"`
	Op         command.Op     `json:"op"`
	Table      string         `json:"table"`
	Values     map[string]any `json:"values,omitempty"`
	Where      map[string]any `json:"where,omitempty"`
	RolledBack bool           `json:"rolled_back,omitempty"`
}

// Label returns "op table", the form write_order assertions use.
func (e LogEntry) Label() string {
	return string(e.Op) + " " + e.Table
}

// canonical converts the entry for canonical JSON.
func (e LogEntry) canonical() map[string]any {
	m := map[string]any{
		"seq":      e.Seq,
		"step":     e.Step,
		"database": e.Database,
		"op":       string(e.Op),
		"table":    e.Table,
	}
	if len(e.Values) > 0 {
		m["values"] = e.Values
	}
	if len(e.Where) > 0 {
		m["where"] = e.Where
	}
	if e.RolledBack {
		m["rolled_back"] = true
	}
	return m
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index  int    `json:"step"`
	Writes int    `json:"writes"`
	Passes int    `json:"passes,omitempty"`
	Error  string `json:"error,omitempty"` // error code of a failed run
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Log contains every statement in execution order, including those
	// rolled back.
	Log []LogEntry `json:"log"`

	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Log:    []LogEntry{},
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Committed returns the log without rolled back statements.
func (r *Result) Committed() []LogEntry {
	out := make([]LogEntry, 0, len(r.Log))
	for _, e := range r.Log {
		if !e.RolledBack {
			out = append(out, e)
		}
	}
	return out
}
