package models

import "time"

// JobStatus is the lifecycle state of a queued strategy-execution job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobClaimed   JobStatus = "claimed"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one queued strategy execution. A job is claimed by exactly one
// worker via an atomic claim that sets the lease expiry; a lease that is not
// renewed within its window becomes claimable again.
type Job struct {
	ID             string
	StrategyID     string
	Status         JobStatus
	Tier           string
	WorkerID       string
	LeaseExpiresAt time.Time
	Progress       float64
	Message        string
	Processed      int
	Total          int
	Result         string
	Error          string
	CreatedAt      time.Time
	ClaimedAt      time.Time
	FinishedAt     time.Time
}
