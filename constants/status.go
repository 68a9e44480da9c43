package constants

// JobStatus is the canonical status for rows in upload_jobs.
type JobStatus string

// Stable values (store these exact strings in DB; they are client-visible).
const (
	JobStatusQueued     JobStatus = "queued"     // accepted, waiting for a worker
	JobStatusProcessing JobStatus = "processing" // a worker owns the job
	JobStatusCompleted  JobStatus = "completed"  // terminal: receipt created
	JobStatusFailed     JobStatus = "failed"     // terminal: error message captured
)

// Terminal reports whether the status is one of the two end states.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Tier is a cost/accuracy level of a recognition invocation.
type Tier string

const (
	TierFast Tier = "fast" // single cheap pass
	TierFull Tier = "full" // multi-variant pass, higher accuracy
)
