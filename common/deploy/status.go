package deploy

// Status represents the deployment state of an app as reported by kintone.
type Status string

const (
	// StatusProcessing indicates the deployment is still being applied.
	StatusProcessing Status = "PROCESSING"
	// StatusSuccess indicates the deployment completed successfully.
	StatusSuccess Status = "SUCCESS"
	// StatusFail indicates the deployment failed on the remote side.
	StatusFail Status = "FAIL"
	// StatusCancel indicates the deployment was cancelled on the remote side.
	StatusCancel Status = "CANCEL"

	// StatusTimeout is produced locally when the attempt budget runs out
	// while the deployment is still in progress. The remote API never
	// reports this value.
	StatusTimeout Status = "TIMEOUT"
)

// IsTerminal reports whether no further state transition is expected
// from the remote system after observing s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFail, StatusCancel:
		return true
	}
	return false
}

// Outcome is the final verdict of a bounded wait for one deployment.
type Outcome struct {
	Success bool   `json:"success"`
	Status  Status `json:"status"`
}
