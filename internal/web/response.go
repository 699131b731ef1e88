// Package web holds the HTTP plumbing shared by every service: the response
// envelope, error mapping, request decoding and middleware.
package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/auth"
	"restaurant-pos/internal/logger"
)

const maxBodyBytes = 1 << 20

// Envelope wraps every response body.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code      string            `json:"code"`
	Field     string            `json:"field,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

const codeUnauthorized = "UNAUTHORIZED"

// WriteJSON writes a successful envelope.
func WriteJSON(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Success: true, Data: data, Message: message})
}

// StatusOf maps an error to its HTTP status code.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, auth.ErrNoIdentity):
		return http.StatusUnauthorized
	case apperr.IsValidation(err):
		return http.StatusBadRequest
	case apperr.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteError maps err onto an error envelope. Internal failures are logged
// and reported without their cause.
func WriteError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	requestID := logger.RequestIDFromContext(r.Context())
	status := StatusOf(err)

	body := &ErrorBody{RequestID: requestID}
	message := err.Error()

	var appErr *apperr.Error
	switch {
	case status == http.StatusUnauthorized:
		body.Code = codeUnauthorized
	case errors.As(err, &appErr) && status != http.StatusInternalServerError:
		body.Code = string(appErr.Kind)
		body.Field = appErr.Field
		body.Metadata = appErr.Metadata
	default:
		body.Code = string(apperr.KindDatabase)
		message = "Internal server error"
		log.Error("request_failed", "Request failed", requestID, err, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Success: false, Message: message, Error: body})
}

// DecodeJSON reads a JSON body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return apperr.Validation("Content-Type must be application/json")
		}
	}

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid JSON format: %v", err)
	}
	return nil
}

// QueryInt parses an optional integer query parameter.
func QueryInt(r *http.Request, name string) (int, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, apperr.FieldValidation(name, "must be an integer")
	}
	return n, true, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.FieldValidation(name, "must be true or false")
	}
	return b, nil
}

// Actor returns the audit label of the caller.
func Actor(r *http.Request) string {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		return "system"
	}
	return id.Actor()
}
