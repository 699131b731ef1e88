package table

import (
	"net/http"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/web"
)

// Handler handles HTTP requests for the table coordinator
type Handler struct {
	service *Service
	logger  *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// Register mounts the table routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /tables", h.CreateTable)
	mux.HandleFunc("GET /tables", h.ListTables)
	mux.HandleFunc("GET /tables/statistics", h.GetStatistics)
	mux.HandleFunc("POST /tables/merge", h.MergeTables)
	mux.HandleFunc("GET /tables/{id}", h.GetTable)
	mux.HandleFunc("PUT /tables/{id}", h.UpdateTable)
	mux.HandleFunc("DELETE /tables/{id}", h.DeleteTable)
	mux.HandleFunc("PATCH /tables/{id}/status", h.UpdateTableStatus)
	mux.HandleFunc("POST /tables/{id}/assign", h.AssignTable)
	mux.HandleFunc("POST /tables/{id}/release", h.ReleaseTable)
}

func (h *Handler) CreateTable(w http.ResponseWriter, r *http.Request) {
	var req CreateTableRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	t, err := h.service.CreateTable(r.Context(), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, t, "Table created")
}

func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tables, err := h.service.ListTables(r.Context(), q.Get("outlet_id"), q.Get("status"))
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, tables, "")
}

func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStatistics(r.Context(), r.URL.Query().Get("outlet_id"))
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, stats, "")
}

func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.GetTable(r.Context(), r.PathValue("id"))
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, t, "")
}

func (h *Handler) UpdateTable(w http.ResponseWriter, r *http.Request) {
	var req UpdateTableRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	t, err := h.service.UpdateTable(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, t, "Table updated")
}

func (h *Handler) DeleteTable(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTable(r.Context(), r.PathValue("id")); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, nil, "Table deleted")
}

func (h *Handler) UpdateTableStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	t, err := h.service.UpdateTableStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, t, "Table status updated")
}

func (h *Handler) AssignTable(w http.ResponseWriter, r *http.Request) {
	var req AssignTableRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	t, err := h.service.AssignTable(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, t, "Table assigned")
}

func (h *Handler) ReleaseTable(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.ReleaseTable(r.Context(), r.PathValue("id"))
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, t, "Table released")
}

func (h *Handler) MergeTables(w http.ResponseWriter, r *http.Request) {
	var req MergeTablesRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	result, err := h.service.MergeTables(r.Context(), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, result, "Tables merged")
}
