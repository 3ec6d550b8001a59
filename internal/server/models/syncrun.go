package models

import "time"

// RunStatus is the outcome of a sync run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
)

// SyncRun is an append-only ledger row, one per executed sync invocation.
type SyncRun struct {
	ID               int64
	Source           string
	Status           RunStatus
	RecordsProcessed int
	RecordsSkipped   int
	ErrorMessage     *string
	SyncedAt         time.Time
}
