// Package task defines the per-run result contract shared by all monitoring
// tasks and the scheduler glue that runs them on fixed intervals.
package task

import "time"

// Status is the overall outcome of one task run.
type Status string

const (
	// StatusOK means every monitored symbol was processed successfully.
	StatusOK Status = "ok"
	// StatusPartial means some symbols failed while others succeeded.
	StatusPartial Status = "partial"
	// StatusError means the run produced no usable result.
	StatusError Status = "error"
)

// Counts carries the machine-readable tallies of one run, sufficient to
// reconstruct what happened without reading logs.
type Counts struct {
	Processed      int `json:"processed"`
	Successful     int `json:"successful"`
	Failed         int `json:"failed"`
	Filtered       int `json:"filtered"`
	NewAlerts      int `json:"newAlerts"`
	Duplicates     int `json:"duplicates"`
	HistoryRecords int `json:"historyRecords"`
}

// Result is produced once per run and consumed by the scheduler for
// observability; it is never persisted.
type Result struct {
	Status   Status
	Duration time.Duration
	Counts   Counts
	Message  string
	Err      error
}

// OK builds a successful result.
func OK(counts Counts, message string) Result {
	return Result{Status: StatusOK, Counts: counts, Message: message}
}

// Partial builds a mixed-outcome result.
func Partial(counts Counts, message string) Result {
	return Result{Status: StatusPartial, Counts: counts, Message: message}
}

// Error builds a failed result.
func Error(counts Counts, err error) Result {
	return Result{Status: StatusError, Counts: counts, Err: err}
}
