// Package handler contains the HTTP handlers for the voxwatch API.
//
// All responses are JSON with a success flag, matching what SDK callers
// expect: {"success":true,...} or {"success":false,"error":...}.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/voxwatch/voxwatch/internal/domain"
)

// errorBody is the JSON envelope for failed requests.
type errorBody struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse writes a JSON error response, mapping domain error codes
// to HTTP status codes.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		logger.Info("validation error",
			"op", ve.Op,
			"field_count", len(ve.Fields),
			"path", r.URL.Path,
		)
		writeJSON(w, http.StatusBadRequest, errorBody{
			Success: false,
			Error:   "validation failed",
			Code:    domain.EINVALID,
			Fields:  ve.Fields,
		})
		return
	}

	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	status := errorCodeToHTTPStatus(code)

	if status >= 500 {
		logger.Error("request failed",
			"op", domain.ErrorOp(err),
			"code", code,
			"path", r.URL.Path,
			"error", err,
		)
		// Do not leak internals to the client.
		message = "internal error"
	} else {
		logger.Info("request rejected",
			"op", domain.ErrorOp(err),
			"code", code,
			"status", status,
			"path", r.URL.Path,
		)
	}

	writeJSON(w, status, errorBody{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// errorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EPAYMENT:
		return http.StatusPaymentRequired
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
