package common

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/guestgate/guestgate/internal/middleware"
	"github.com/guestgate/guestgate/internal/netops"
	"github.com/guestgate/guestgate/internal/policy"
	"github.com/guestgate/guestgate/internal/store"
)

// SendJSON sends a JSON response
func SendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// SendError sends a standardized error response
func SendError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	requestID, _ := r.Context().Value(middleware.RequestIDKey).(string)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := middleware.ErrorResponse{
		Error: middleware.ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// ParseUUIDParam extracts and validates a UUID from URL params
func ParseUUIDParam(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, param)
	id, err := uuid.Parse(idStr)
	if err != nil {
		SendError(w, r, http.StatusBadRequest, "INVALID_ID", "Invalid UUID format", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// DecodeJSON decodes request body with error handling
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var input T
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		SendError(w, r, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body", err.Error())
		return input, false
	}
	return input, true
}

// ValidateStruct runs validator tags and reports failures as a 400.
func ValidateStruct(w http.ResponseWriter, r *http.Request, v *validator.Validate, input any) bool {
	if err := v.Struct(input); err != nil {
		SendError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error())
		return false
	}
	return true
}

// HandleOperationError maps the error taxonomy to HTTP status codes
// and reports whether an error response was written.
func HandleOperationError(w http.ResponseWriter, r *http.Request, err error, entityName string) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, store.ErrNotFound) {
		SendError(w, r, http.StatusNotFound, "NOT_FOUND", entityName+" not found", nil)
		return true
	}

	var conflict *policy.ConflictError
	if errors.As(err, &conflict) {
		SendError(w, r, http.StatusConflict, "CONFLICT", conflict.Msg, nil)
		return true
	}

	var validation *netops.ValidationError
	if errors.As(err, &validation) {
		SendError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", validation.Msg, nil)
		return true
	}

	var unsupported *netops.UnsupportedBrandError
	var notSupported *netops.NotSupportedError
	if errors.As(err, &unsupported) || errors.As(err, &notSupported) {
		SendError(w, r, http.StatusUnprocessableEntity, "NOT_SUPPORTED", err.Error(), nil)
		return true
	}

	var authErr *netops.AuthError
	if errors.As(err, &authErr) {
		SendError(w, r, http.StatusBadGateway, "DEVICE_AUTH_FAILED", err.Error(), nil)
		return true
	}

	var transient *netops.TransientError
	var protocol *netops.ProtocolError
	if errors.As(err, &transient) || errors.As(err, &protocol) {
		SendError(w, r, http.StatusBadGateway, "DEVICE_UNREACHABLE", err.Error(), nil)
		return true
	}

	SendError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", err.Error())
	return true
}

// SendListResponse sends a standardized list response
func SendListResponse(w http.ResponseWriter, data interface{}, total int) {
	SendJSON(w, http.StatusOK, map[string]interface{}{
		"data":  data,
		"total": total,
	})
}
