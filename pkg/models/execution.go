package models

import "time"

// Ingestion sources.
const (
	SourceCTGov = "ctgov"
	SourceFDA   = "fda"
	SourceEdgar = "edgar"
)

// Execution statuses. Running is the only non-terminal status; a run that
// crashes before finishing stays running until inspected.
const (
	ExecutionStatusRunning = "running"
	ExecutionStatusSuccess = "success"
	ExecutionStatusFailed  = "failed"
)

// ValidSource reports whether s names a known ingestion source.
func ValidSource(s string) bool {
	switch s {
	case SourceCTGov, SourceFDA, SourceEdgar:
		return true
	}
	return false
}

// Execution is one tracked ingestion run.
type Execution struct {
	ID               string     `json:"id" db:"id"`
	Source           string     `json:"source" db:"source"`
	Status           string     `json:"status" db:"status"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ExecutedBy       string     `json:"executed_by" db:"executed_by"`
	RecordsProcessed int        `json:"records_processed" db:"records_processed"`
	RecordsSkipped   int        `json:"records_skipped" db:"records_skipped"`
	RecordsFailed    int        `json:"records_failed" db:"records_failed"`
	Error            *string    `json:"error,omitempty" db:"error"`
}

// IsTerminal reports whether the execution has finished, successfully or not.
func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionStatusSuccess || e.Status == ExecutionStatusFailed
}
