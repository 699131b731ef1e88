package order

import (
	"context"
	"net/http"
	"time"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/web"
)

const requestTimeout = 30 * time.Second

// Handler handles HTTP requests for the order service
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new order handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// Register mounts the order routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.CreateOrder)
	mux.HandleFunc("GET /orders/{id}", h.GetOrder)
	mux.HandleFunc("PATCH /orders/{id}/status", h.UpdateOrderStatus)
	mux.HandleFunc("POST /orders/{id}/split", h.SplitOrder)
	mux.HandleFunc("GET /orders/{id}/history", h.GetOrderHistory)
}

// CreateOrder handles POST /orders requests
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}

	h.logger.Debug("order_received", "Received order creation request", logger.RequestIDFromContext(r.Context()),
		map[string]any{
			"outlet_id":  req.OutletID,
			"order_type": req.OrderType,
			"items":      len(req.Items),
		})

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	o, err := h.service.CreateOrder(ctx, &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, o, "Order created")
}

// GetOrder handles GET /orders/{id} requests
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, o, "")
}

// UpdateOrderStatus handles PATCH /orders/{id}/status requests
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	o, err := h.service.UpdateOrderStatus(ctx, r.PathValue("id"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, o, "Order status updated")
}

// SplitOrder handles POST /orders/{id}/split requests
func (h *Handler) SplitOrder(w http.ResponseWriter, r *http.Request) {
	var req SplitRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}

	result, err := h.service.SplitOrder(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, result, "")
}

// GetOrderHistory handles GET /orders/{id}/history requests
func (h *Handler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.GetOrderHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, history, "")
}
