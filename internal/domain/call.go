// Package domain contains the core types for call ingestion: upload
// requests, call recordings, agents, and accounts. Types here carry no
// dependencies on transport, storage, or queue concerns.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UploadRequest is a single call submission. The CallID is supplied by the
// caller and acts as the idempotency key for everything downstream: queue
// redelivery, recording upserts, and transcript writes all key off it.
// Once enqueued a request is immutable.
type UploadRequest struct {
	CallID        string         `json:"callId"`
	AudioURL      string         `json:"audioUrl"`
	AgentID       string         `json:"agentId"` // customer-supplied agent identifier
	OwnerID       string         `json:"ownerId"` // account the call belongs to
	RegionID      string         `json:"regionId,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	SaveRecording bool           `json:"saveRecording"`
	Language      string         `json:"language,omitempty"`
}

// UnmarshalJSON accepts the alternate field spellings callers use:
// "location" or "stereoRecordingUrl" for the audio location and
// "accountId" for the owner. The canonical names win when both are set.
func (r *UploadRequest) UnmarshalJSON(data []byte) error {
	type plain UploadRequest
	aux := struct {
		*plain
		Location           string `json:"location"`
		StereoRecordingURL string `json:"stereoRecordingUrl"`
		AccountID          string `json:"accountId"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.AudioURL == "" {
		r.AudioURL = aux.Location
	}
	if r.AudioURL == "" {
		r.AudioURL = aux.StereoRecordingURL
	}
	if r.OwnerID == "" {
		r.OwnerID = aux.AccountID
	}
	return nil
}

// ValidateForSubmit checks the fields a caller must provide at admission
// time. CreatedAt is not required here; the admission path defaults it.
func (r *UploadRequest) ValidateForSubmit() *ValidationError {
	ve := NewValidationError("call.submit")
	if r.CallID == "" {
		ve.Add("callId", "callId is required")
	}
	if r.AudioURL == "" {
		ve.Add("location", "audio location is required")
	}
	if r.OwnerID == "" {
		ve.Add("ownerId", "account identity is required")
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// ValidateForProcessing checks the fields the consumer requires before it
// will touch any downstream capability. A queue message failing this check
// is malformed and is left un-acknowledged.
func (r *UploadRequest) ValidateForProcessing() *ValidationError {
	ve := NewValidationError("call.process")
	if r.CallID == "" {
		ve.Add("callId", "callId is required")
	}
	if r.AudioURL == "" {
		ve.Add("audioUrl", "audio location is required")
	}
	if r.OwnerID == "" {
		ve.Add("ownerId", "account identity is required")
	}
	if r.CreatedAt.IsZero() {
		ve.Add("createdAt", "creation timestamp is required")
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// MergeRegion folds the region identifier into the open metadata map so it
// travels with the queue message.
func (r *UploadRequest) MergeRegion() {
	if r.RegionID == "" {
		return
	}
	if r.Metadata == nil {
		r.Metadata = make(map[string]any, 1)
	}
	r.Metadata["regionId"] = r.RegionID
}

// CallRecording is the persisted record of an ingested call. The primary
// key is the caller-supplied CallID, which makes replays of the same
// message a no-op at the persistence layer.
type CallRecording struct {
	ID              string
	AudioURL        string
	DurationSeconds float64
	AgentID         uuid.UUID
	OwnerID         string
	RegionID        string
	Language        string
	CreatedAt       time.Time
}

// Transcript is the transcription output for a call, stored alongside the
// recording row and upserted by call ID.
type Transcript struct {
	CallID    string
	Text      string
	Language  string
	CreatedAt time.Time
}
