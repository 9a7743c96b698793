package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/voxwatch/voxwatch/internal/auth"
	"github.com/voxwatch/voxwatch/internal/domain"
	"github.com/voxwatch/voxwatch/internal/service"
)

// maxUploadBodyBytes bounds the JSON request body, not the audio itself.
const maxUploadBodyBytes = 1 << 20

// UploadHandler accepts call submissions.
type UploadHandler struct {
	calls  service.CallService
	logger *slog.Logger
}

// NewUploadHandler creates the upload handler.
func NewUploadHandler(calls service.CallService, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		calls:  calls,
		logger: logger,
	}
}

// UploadCall handles POST /upload-call.
//
// The owner comes from the authenticated account when one is present;
// an ownerId in the body is only honored for unauthenticated internal
// callers. Admission is synchronous, processing is not: a success
// response means the call is on the queue, nothing more.
func (h *UploadHandler) UploadCall(w http.ResponseWriter, r *http.Request) {
	var req domain.UploadRequest

	body := http.MaxBytesReader(w, r.Body, maxUploadBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("upload.decode", "request body must be valid JSON"))
		return
	}

	if account := auth.GetAccountFromRequest(r); account != nil {
		req.OwnerID = account.ID
	}

	if err := h.calls.Submit(r.Context(), &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
