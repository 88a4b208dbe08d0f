package logger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lexicara/kintone-http-service/common/db"
	"github.com/lexicara/kintone-http-service/repository"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DeployLogHook mirrors warning-and-above log events into the
// deploy_logs table so operational problems show up next to the deploy
// history they belong to.
type DeployLogHook struct {
	db *db.DB
}

// NewDeployLogHook creates a new log hook
func NewDeployLogHook(db *db.DB) *DeployLogHook {
	return &DeployLogHook{
		db: db,
	}
}

// Run implements zerolog.Hook.Run
func (h *DeployLogHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.WarnLevel {
		return
	}

	// Written asynchronously so logging never blocks on the database.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.logToDatabase(ctx, level.String(), msg); err != nil {
			// Plain Error here, not through the hook, to avoid recursion.
			log.Error().Err(err).Msg("Failed to log to database via hook")
		}
	}()
}

func (h *DeployLogHook) logToDatabase(ctx context.Context, eventType, message string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}

	return h.db.Queries.CreateDeployLog(ctx, repository.CreateDeployLogParams{
		ID:        id.String(),
		EventType: "log." + eventType,
		Message:   pgtype.Text{String: message, Valid: message != ""},
		Details:   []byte("{}"),
		CreatedAt: time.Now(),
	})
}

// InitializeLogging attaches the database hook to the global logger.
func InitializeLogging(dbConn *db.DB) {
	if dbConn == nil || dbConn.Queries == nil {
		return
	}
	log.Logger = log.Logger.Hook(NewDeployLogHook(dbConn))
}
