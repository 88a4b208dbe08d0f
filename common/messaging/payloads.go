package messaging

import "time"

// Constants for NATS subjects
const (
	SubjectDeployRequest  = "kintone.deploy.request"
	SubjectDeployStarted  = "kintone.deploy.started"
	SubjectDeployFinished = "kintone.deploy.finished"

	// DeployStreamName is the JetStream stream covering all deploy subjects.
	DeployStreamName = "KINTONE_DEPLOY"
)

// DeployRequestMessage asks the gateway to deploy an app. Consumed from
// SubjectDeployRequest.
type DeployRequestMessage struct {
	AppID    string `json:"app_id"`
	Revision string `json:"revision,omitempty"`
	Revert   bool   `json:"revert,omitempty"`
}

// DeployStartedEvent is published when a tracked deployment begins.
type DeployStartedEvent struct {
	JobID     string    `json:"job_id"`
	AppID     string    `json:"app_id"`
	StartedAt time.Time `json:"started_at"`
}

// DeployFinishedEvent is published when a tracked deployment reaches a
// final state, including timeout and transport failure.
type DeployFinishedEvent struct {
	JobID      string    `json:"job_id"`
	AppID      string    `json:"app_id"`
	Status     string    `json:"status"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}
