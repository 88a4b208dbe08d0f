package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lexicara/kintone-http-service/common"
	"github.com/lexicara/kintone-http-service/common/db"
	"github.com/lexicara/kintone-http-service/common/services"
	"github.com/lexicara/kintone-http-service/common/utils"
)

type HealthHandler struct {
	db     *db.DB
	svc    *services.DeployService
	router *chi.Mux
}

func NewHealthHandler(db *db.DB) *HealthHandler {
	h := &HealthHandler{
		db: db,
	}

	r := chi.NewRouter()
	r.Get("/", h.handleHealthCheck)
	r.Get("/database", h.handleDatabaseHealth)
	r.Get("/workers", h.handleWorkersHealth)

	h.router = r
	return h
}

func (h *HealthHandler) SetDeployService(svc *services.DeployService) {
	h.svc = svc
}

func (h *HealthHandler) Router() *chi.Mux {
	return h.router
}

func (h *HealthHandler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   common.AppName,
	}

	utils.WriteJSON(w, http.StatusOK, response)
}

func (h *HealthHandler) handleDatabaseHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	healthy := true

	dbState := map[string]interface{}{"status": "healthy"}
	if h.db == nil {
		dbState["status"] = "unconfigured"
	} else {
		if err := h.db.Ping(ctx); err != nil {
			healthy = false
			dbState["status"] = "unhealthy"
			dbState["error"] = err.Error()
		} else {
			stats := h.db.Pool.Stat()
			dbState["stats"] = map[string]interface{}{
				"total_conns":    stats.TotalConns(),
				"idle_conns":     stats.IdleConns(),
				"acquired_conns": stats.AcquiredConns(),
				"max_conns":      stats.MaxConns(),
			}
		}
	}
	response["database"] = dbState

	redisState := map[string]interface{}{"status": "healthy"}
	if h.db == nil || h.db.Redis == nil {
		redisState["status"] = "unconfigured"
	} else if err := h.db.Redis.Ping(ctx); err != nil {
		healthy = false
		redisState["status"] = "unhealthy"
		redisState["error"] = err.Error()
	}
	response["redis"] = redisState

	if !healthy {
		response["status"] = "unhealthy"
		utils.WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	utils.WriteJSON(w, http.StatusOK, response)
}

func (h *HealthHandler) handleWorkersHealth(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "Deploy service is not configured")
		return
	}

	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"pool":      h.svc.PoolStats(),
	}

	utils.WriteJSON(w, http.StatusOK, response)
}
