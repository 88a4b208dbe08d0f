package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lexicara/kintone-http-service/common/kintone"
	"github.com/lexicara/kintone-http-service/common/utils"
)

// RecordHandler proxies record CRUD operations to kintone.
type RecordHandler struct {
	client *kintone.Client
	router *chi.Mux
}

func NewRecordHandler(client *kintone.Client) *RecordHandler {
	h := &RecordHandler{
		client: client,
	}

	r := chi.NewRouter()
	r.Get("/{appID}", h.handleListRecords)
	r.Get("/{appID}/{recordID}", h.handleGetRecord)
	r.Post("/{appID}", h.handleAddRecords)
	r.Put("/{appID}/{recordID}", h.handleUpdateRecord)
	r.Delete("/{appID}", h.handleDeleteRecords)

	h.router = r
	return h
}

func (h *RecordHandler) Router() *chi.Mux {
	return h.router
}

func (h *RecordHandler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	query := r.URL.Query().Get("query")

	var fields []string
	if raw := r.URL.Query()["field"]; len(raw) > 0 {
		fields = raw
	}

	list, err := h.client.GetRecords(r.Context(), appID, query, fields)
	if err != nil {
		utils.WriteUpstreamError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, list)
}

func (h *RecordHandler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	recordID := chi.URLParam(r, "recordID")

	record, err := h.client.GetRecord(r.Context(), appID, recordID)
	if err != nil {
		utils.WriteUpstreamError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, record)
}

type addRecordsRequest struct {
	Record  kintone.Record   `json:"record,omitempty"`
	Records []kintone.Record `json:"records,omitempty"`
}

func (h *RecordHandler) handleAddRecords(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	var p addRecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if len(p.Records) > 0 {
		ids, err := h.client.AddRecords(r.Context(), appID, p.Records)
		if err != nil {
			utils.WriteUpstreamError(w, err)
			return
		}
		utils.WriteJSON(w, http.StatusCreated, map[string]any{"ids": ids})
		return
	}

	if p.Record == nil {
		utils.WriteError(w, http.StatusBadRequest, "Either record or records is required")
		return
	}

	id, revision, err := h.client.AddRecord(r.Context(), appID, p.Record)
	if err != nil {
		utils.WriteUpstreamError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]any{"id": id, "revision": revision})
}

type updateRecordRequest struct {
	Record   kintone.Record `json:"record"`
	Revision string         `json:"revision,omitempty"`
}

func (h *RecordHandler) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	recordID := chi.URLParam(r, "recordID")

	var p updateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if p.Record == nil {
		utils.WriteError(w, http.StatusBadRequest, "record is required")
		return
	}

	revision, err := h.client.UpdateRecord(r.Context(), appID, recordID, p.Revision, p.Record)
	if err != nil {
		utils.WriteUpstreamError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"revision": revision})
}

type deleteRecordsRequest struct {
	IDs []string `json:"ids"`
}

func (h *RecordHandler) handleDeleteRecords(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	var p deleteRecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if len(p.IDs) == 0 {
		utils.WriteError(w, http.StatusBadRequest, "ids is required")
		return
	}

	if err := h.client.DeleteRecords(r.Context(), appID, p.IDs); err != nil {
		utils.WriteUpstreamError(w, err)
		return
	}
	utils.WriteMessage(w, http.StatusOK, "records deleted")
}
