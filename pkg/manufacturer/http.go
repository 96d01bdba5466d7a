package manufacturer

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/msc-platform/ivr/pkg/common/logger"
	"github.com/msc-platform/ivr/pkg/esign"
	"github.com/msc-platform/ivr/pkg/extraction"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/ivr/map", h.handleMap).Methods(http.MethodPost)
	r.HandleFunc("/ivr/submit", h.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/episodes/{id}/cache", h.handleClearCache).Methods(http.MethodDelete)
	r.HandleFunc("/episodes/{id}/mapping-logs", h.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/manufacturers", h.handleManufacturers).Methods(http.MethodGet)
	r.HandleFunc("/manufacturers/by-product/{code}", h.handleByProduct).Methods(http.MethodGet)
}

func (h *Handler) handleMap(w http.ResponseWriter, r *http.Request) {
	var req MapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	assembly, err := h.service.Map(r.Context(), req)
	if err != nil {
		writeError(w, err, req.EpisodeID)
		return
	}
	respondJSON(w, http.StatusOK, assembly)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.SubmitterEmail == "" {
		http.Error(w, "submitter_email required", http.StatusBadRequest)
		return
	}

	result, err := h.service.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err, req.EpisodeID)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleClearCache(w http.ResponseWriter, r *http.Request) {
	episodeID := mux.Vars(r)["id"]
	if err := h.service.ClearEpisodeCache(r.Context(), episodeID); err != nil {
		logger.Log.WithError(err).WithField("episode_id", episodeID).Error("failed to clear episode cache")
		http.Error(w, "failed to clear cache", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	episodeID := mux.Vars(r)["id"]
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.service.History(r.Context(), episodeID, limit)
	if err != nil {
		writeError(w, err, episodeID)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": logs})
}

func (h *Handler) handleManufacturers(w http.ResponseWriter, _ *http.Request) {
	cat := h.service.Catalog()
	items := make([]*Manufacturer, 0, len(cat.Manufacturers))
	for _, name := range cat.Names() {
		m, _ := cat.ByName(name)
		items = append(items, m)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) handleByProduct(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	m, ok := h.service.Catalog().ByProductCode(code)
	if !ok {
		http.Error(w, "no manufacturer for product "+code, http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func writeError(w http.ResponseWriter, err error, episodeID string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, extraction.ErrNoApprovedRequest):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, extraction.ErrEpisodeNotFound), errors.Is(err, esign.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrUnknownManufacturer), errors.Is(err, ErrMissingTemplate), errors.Is(err, ErrNoFacts):
		status = http.StatusBadRequest
	}

	entry := logger.Log.WithError(err).WithField("episode_id", episodeID)
	if status >= http.StatusInternalServerError {
		entry.Error("IVR request failed")
		http.Error(w, "internal error", status)
		return
	}
	entry.Warn("IVR request rejected")
	http.Error(w, err.Error(), status)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
