package kitchen

import (
	"net/http"
	"time"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/web"
)

// Handler handles HTTP requests for the kitchen service
type Handler struct {
	service *Service
	logger  *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// Register mounts the kitchen routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders/{id}/kots", h.GenerateKOT)
	mux.HandleFunc("GET /kots/{id}", h.GetKOT)
	mux.HandleFunc("PATCH /kots/{id}/status", h.UpdateKOTStatus)
	mux.HandleFunc("PATCH /kots/{id}/items/{itemId}/status", h.UpdateKOTItemStatus)
	mux.HandleFunc("POST /kots/{id}/assign", h.AssignKOT)
	mux.HandleFunc("PATCH /kots/{id}/preparation-time", h.UpdatePreparationTime)
	mux.HandleFunc("GET /kitchen/display", h.GetKitchenDisplay)
	mux.HandleFunc("GET /kitchen/overdue", h.GetOverdueKOTs)
	mux.HandleFunc("GET /kitchen/statistics", h.GetStatistics)
}

func (h *Handler) GenerateKOT(w http.ResponseWriter, r *http.Request) {
	var req GenerateKOTRequest
	if r.ContentLength != 0 {
		if err := web.DecodeJSON(r, &req); err != nil {
			web.WriteError(w, r, h.logger, err)
			return
		}
	}
	k, err := h.service.GenerateKOT(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, k, "KOT generated")
}

func (h *Handler) GetKOT(w http.ResponseWriter, r *http.Request) {
	k, err := h.service.GetKOT(r.Context(), r.PathValue("id"))
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, k, "")
}

func (h *Handler) UpdateKOTStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	k, err := h.service.UpdateKOTStatus(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, k, "KOT status updated")
}

func (h *Handler) UpdateKOTItemStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	k, err := h.service.UpdateKOTItemStatus(r.Context(), r.PathValue("id"), r.PathValue("itemId"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, k, "KOT item status updated")
}

func (h *Handler) AssignKOT(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	k, err := h.service.AssignKOT(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, k, "KOT assigned")
}

func (h *Handler) UpdatePreparationTime(w http.ResponseWriter, r *http.Request) {
	var req PreparationTimeRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	k, err := h.service.UpdatePreparationTime(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, k, "Preparation time updated")
}

// GetKitchenDisplay handles GET /kitchen/display?outlet_id=&status=&order_by=&desc=&limit=
func (h *Handler) GetKitchenDisplay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := DisplayFilter{
		OutletID: q.Get("outlet_id"),
		Status:   q.Get("status"),
		OrderBy:  q.Get("order_by"),
	}

	limit, _, err := web.QueryInt(r, "limit")
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	filter.Limit = limit
	if filter.Desc, err = web.QueryBool(r, "desc"); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}

	kots, err := h.service.GetKitchenDisplay(r.Context(), filter)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, kots, "")
}

func (h *Handler) GetOverdueKOTs(w http.ResponseWriter, r *http.Request) {
	kots, err := h.service.GetOverdueKOTs(r.Context(), r.URL.Query().Get("outlet_id"))
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, kots, "")
}

// GetStatistics handles GET /kitchen/statistics?outlet_id=&since=RFC3339
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			web.WriteError(w, r, h.logger, apperr.FieldValidation("since", "since must be an RFC3339 timestamp"))
			return
		}
		since = &t
	}
	stats, err := h.service.GetStatistics(r.Context(), r.URL.Query().Get("outlet_id"), since)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, stats, "")
}
