package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lexicara/kintone-http-service/common/kintone"
	"github.com/lexicara/kintone-http-service/common/redis"
	"github.com/lexicara/kintone-http-service/common/utils"
)

// AppHandler proxies app metadata lookups to kintone, with a Redis-backed
// cache in front of the form field schema endpoint.
type AppHandler struct {
	client *kintone.Client
	cache  *redis.SchemaCache
	router *chi.Mux
}

func NewAppHandler(client *kintone.Client) *AppHandler {
	h := &AppHandler{
		client: client,
	}

	r := chi.NewRouter()
	r.Get("/", h.handleListApps)
	r.Get("/{appID}", h.handleGetApp)
	r.Get("/{appID}/form/fields", h.handleGetFormFields)

	h.router = r
	return h
}

func (h *AppHandler) SetSchemaCache(cache *redis.SchemaCache) {
	h.cache = cache
}

func (h *AppHandler) Router() *chi.Mux {
	return h.router
}

func (h *AppHandler) handleListApps(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	apps, err := h.client.GetApps(r.Context(), offset, limit)
	if err != nil {
		utils.WriteUpstreamError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{"apps": apps})
}

func (h *AppHandler) handleGetApp(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	app, err := h.client.GetApp(r.Context(), appID)
	if err != nil {
		utils.WriteUpstreamError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, app)
}

func (h *AppHandler) handleGetFormFields(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	preview := r.URL.Query().Get("preview") == "true"

	if h.cache != nil {
		if cached, ok := h.cache.GetFormFields(r.Context(), appID, preview).Get(); ok {
			utils.WriteJSON(w, http.StatusOK, cached)
			return
		}
	}

	fields, err := h.client.GetFormFields(r.Context(), appID, preview)
	if err != nil {
		utils.WriteUpstreamError(w, err)
		return
	}

	if h.cache != nil {
		h.cache.SetFormFields(r.Context(), appID, preview, fields)
	}

	utils.WriteJSON(w, http.StatusOK, fields)
}
