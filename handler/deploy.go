package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/lexicara/kintone-http-service/common"
	"github.com/lexicara/kintone-http-service/common/services"
	"github.com/lexicara/kintone-http-service/common/utils"
	"github.com/lexicara/kintone-http-service/repository"
)

// DeployHandler exposes deployment orchestration: starting deploys,
// checking live deploy status, and inspecting tracked deploy jobs.
type DeployHandler struct {
	svc    *services.DeployService
	jobs   services.DeployJobService
	router *chi.Mux
}

func NewDeployHandler(svc *services.DeployService) *DeployHandler {
	h := &DeployHandler{
		svc: svc,
	}

	r := chi.NewRouter()
	r.Post("/", h.handleStartDeploy)
	r.Get("/status/{appID}", h.handleDeployStatus)
	r.Get("/jobs", h.handleListJobs)
	r.Get("/jobs/{jobID}", h.handleGetJob)

	h.router = r
	return h
}

func (h *DeployHandler) SetJobs(jobs services.DeployJobService) {
	h.jobs = jobs
}

func (h *DeployHandler) Router() *chi.Mux {
	return h.router
}

type startDeployRequest struct {
	AppID    string `json:"app_id"`
	Revision string `json:"revision,omitempty"`
	Revert   bool   `json:"revert,omitempty"`
	Async    bool   `json:"async,omitempty"`
}

type deployJobResponse struct {
	ID           string     `json:"id"`
	AppID        string     `json:"app_id"`
	Revision     string     `json:"revision,omitempty"`
	Revert       bool       `json:"revert"`
	Status       string     `json:"status"`
	Outcome      string     `json:"outcome,omitempty"`
	Attempts     int32      `json:"attempts"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func toDeployJobResponse(job repository.DeployJob) deployJobResponse {
	resp := deployJobResponse{
		ID:           job.ID,
		AppID:        job.AppID,
		Revision:     job.Revision.String,
		Revert:       job.Revert,
		Status:       job.Status,
		Outcome:      job.Outcome.String,
		Attempts:     job.Attempts,
		ErrorMessage: job.ErrorMessage.String,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
	if job.FinishedAt.Valid {
		finished := job.FinishedAt.Time
		resp.FinishedAt = &finished
	}
	return resp
}

func (h *DeployHandler) handleStartDeploy(w http.ResponseWriter, r *http.Request) {
	var p startDeployRequest
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if p.AppID == "" {
		utils.WriteError(w, http.StatusBadRequest, "app_id is required")
		return
	}

	req := services.DeployRequest{
		AppID:    p.AppID,
		Revision: p.Revision,
		Revert:   p.Revert,
	}

	if p.Async {
		job, err := h.svc.RunAsync(r.Context(), req)
		if err != nil {
			h.writeDeployError(w, err)
			return
		}
		utils.WriteJSON(w, http.StatusAccepted, toDeployJobResponse(job))
		return
	}

	job, err := h.svc.Run(r.Context(), req)
	if err != nil {
		h.writeDeployError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, toDeployJobResponse(job))
}

func (h *DeployHandler) writeDeployError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrDeployInProgress):
		utils.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, common.ErrInvalidConfig):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		utils.WriteUpstreamError(w, err)
	}
}

func (h *DeployHandler) handleDeployStatus(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	status, err := h.svc.DeployStatus(r.Context(), appID)
	if err != nil {
		utils.WriteUpstreamError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{"app": appID, "status": status})
}

func (h *DeployHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "Job tracking is not configured")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	status := r.URL.Query().Get("status")
	appID := r.URL.Query().Get("app_id")

	jobs, err := h.jobs.List(r.Context(), status, appID, perPage, (page-1)*perPage)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to list deploy jobs")
		return
	}

	total, err := h.jobs.Count(r.Context(), status, appID)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to count deploy jobs")
		return
	}

	responses := lo.Map(jobs, func(job repository.DeployJob, _ int) deployJobResponse {
		return toDeployJobResponse(job)
	})

	utils.WritePagination(w, http.StatusOK, responses, page, perPage, total)
}

func (h *DeployHandler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "Job tracking is not configured")
		return
	}

	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, common.ErrJobNotFound) {
			utils.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Failed to fetch deploy job")
		return
	}

	logs, err := h.jobs.Logs(r.Context(), jobID)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to fetch deploy logs")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"job":  toDeployJobResponse(job),
		"logs": logs,
	})
}
