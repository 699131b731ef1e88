package billing

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/web"
)

const paymentTimeout = 30 * time.Second

// Handler handles HTTP requests for the billing service
type Handler struct {
	service  *Service
	logger   *logger.Logger
	language language.Tag
	currency currency.Unit
}

// NewHandler creates a billing handler that renders text receipts in the
// given language and currency.
func NewHandler(service *Service, log *logger.Logger, tag language.Tag, cur currency.Unit) *Handler {
	return &Handler{service: service, logger: log, language: tag, currency: cur}
}

// Register mounts the billing routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders/{id}/bills", h.GenerateBill)
	mux.HandleFunc("POST /orders/{id}/payments", h.ProcessOrderPayment)
	mux.HandleFunc("GET /bills/{id}", h.GetBill)
	mux.HandleFunc("POST /bills/{id}/split", h.SplitBill)
	mux.HandleFunc("POST /bills/{id}/payments", h.ProcessBillPayment)
	mux.HandleFunc("GET /bills/{id}/receipt", h.GetReceipt)
}

func (h *Handler) GenerateBill(w http.ResponseWriter, r *http.Request) {
	var req GenerateBillRequest
	if r.ContentLength != 0 {
		if err := web.DecodeJSON(r, &req); err != nil {
			web.WriteError(w, r, h.logger, err)
			return
		}
	}
	b, err := h.service.GenerateBill(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, b, "Bill generated")
}

func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.GetBill(r.Context(), r.PathValue("id"))
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, b, "")
}

func (h *Handler) SplitBill(w http.ResponseWriter, r *http.Request) {
	var req SplitBillRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	result, err := h.service.SplitBill(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, result, "Bill split")
}

func (h *Handler) ProcessOrderPayment(w http.ResponseWriter, r *http.Request) {
	var req ProcessPaymentRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), paymentTimeout)
	defer cancel()

	result, err := h.service.ProcessOrderPayment(ctx, r.PathValue("id"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, result, "Payment processed")
}

func (h *Handler) ProcessBillPayment(w http.ResponseWriter, r *http.Request) {
	var req ProcessPaymentRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), paymentTimeout)
	defer cancel()

	result, err := h.service.ProcessBillPayment(ctx, r.PathValue("id"), &req)
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, result, "Payment processed")
}

// GetReceipt handles GET /bills/{id}/receipt; ?format=text returns the printable form.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.service.GenerateReceipt(r.Context(), r.PathValue("id"))
	if err != nil {
		web.WriteError(w, r, h.logger, err)
		return
	}

	if r.URL.Query().Get("format") != "text" {
		web.WriteJSON(w, http.StatusOK, receipt, "")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := receipt.Render(w, h.language, h.currency); err != nil {
		h.logger.Error("receipt_render_failed", "Failed to write receipt", logger.RequestIDFromContext(r.Context()), err,
			map[string]any{"bill_id": receipt.BillID})
	}
}
