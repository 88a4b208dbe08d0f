package common

const (
	// AppName is the name of the application
	AppName = "kintone-http-service"
)

// JobStatus represents the lifecycle state of a tracked deploy job.
type JobStatus string

const (
	// JobStatusPending means the job is queued but not yet running
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning means the deployment has been started and is being polled
	JobStatusRunning JobStatus = "running"
	// JobStatusSucceeded means the deployment reached SUCCESS
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusFailed means the deployment reached FAIL or the remote call errored
	JobStatusFailed JobStatus = "failed"
	// JobStatusCanceled means the deployment reached CANCEL
	JobStatusCanceled JobStatus = "canceled"
	// JobStatusTimedOut means the polling budget ran out while still processing
	JobStatusTimedOut JobStatus = "timed_out"
)
