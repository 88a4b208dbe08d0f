package repository

import (
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// DeployJob is one tracked deployment run.
type DeployJob struct {
	ID           string             `json:"id"`
	AppID        string             `json:"app_id"`
	Revision     pgtype.Text        `json:"revision"`
	Revert       bool               `json:"revert"`
	Status       string             `json:"status"`
	Outcome      pgtype.Text        `json:"outcome"`
	Attempts     int32              `json:"attempts"`
	ErrorMessage pgtype.Text        `json:"error_message"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	FinishedAt   pgtype.Timestamptz `json:"finished_at"`
}

// DeployLog is one lifecycle event attached to a deploy job.
type DeployLog struct {
	ID        string          `json:"id"`
	JobID     pgtype.Text     `json:"job_id"`
	EventType string          `json:"event_type"`
	Message   pgtype.Text     `json:"message"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}
