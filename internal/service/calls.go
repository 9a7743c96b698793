// Package service contains the business logic layer.
//
// CallService covers both ends of the ingestion pipeline: admitting
// submissions onto the queue and processing queue messages into
// persisted recordings and transcripts.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/voxwatch/voxwatch/internal/audio"
	"github.com/voxwatch/voxwatch/internal/domain"
	"github.com/voxwatch/voxwatch/internal/metrics"
	"github.com/voxwatch/voxwatch/internal/queue"
	"github.com/voxwatch/voxwatch/internal/quota"
	"github.com/voxwatch/voxwatch/internal/storage"
	"github.com/voxwatch/voxwatch/internal/transcribe"
)

// =============================================================================
// Interface Definitions
// =============================================================================

// CallStore defines the persistence operations the call service needs.
type CallStore interface {
	// UpsertAgent finds or creates the agent row for a customer-supplied
	// agent identifier scoped to the owning account.
	UpsertAgent(ctx context.Context, customerAgentID, ownerID string) (*domain.Agent, error)

	// UpsertCallRecording persists the recording, ignoring replays of an
	// already-stored call ID.
	UpsertCallRecording(ctx context.Context, rec *domain.CallRecording, metadata map[string]any) error

	// UpsertTranscript persists the transcript keyed by call ID.
	UpsertTranscript(ctx context.Context, t *domain.Transcript) error
}

// Admitter decides whether an account may submit a call.
type Admitter interface {
	Admit(ctx context.Context, accountID string) quota.Decision
}

// CallService defines the ingestion operations.
type CallService interface {
	// Submit validates and admits an upload request, then enqueues it
	// for asynchronous processing.
	Submit(ctx context.Context, req *domain.UploadRequest) error

	// ProcessUpload handles one queue message body end to end. A nil
	// return means the message may be acknowledged; any error leaves it
	// on the queue for redelivery.
	ProcessUpload(ctx context.Context, body []byte) error
}

// =============================================================================
// Implementation
// =============================================================================

// CallServiceConfig holds the dependencies and tunables for the call service.
type CallServiceConfig struct {
	Store       CallStore
	Gate        Admitter
	Queue       queue.Queue
	Storage     storage.Storage
	Transcriber transcribe.Transcriber
	Logger      *slog.Logger

	// AudioFetchMaxBytes bounds how much audio is downloaded per call.
	AudioFetchMaxBytes int64

	// HTTPClient fetches call audio from the submitted URL. Optional;
	// defaults to a client with a 60s timeout.
	HTTPClient *http.Client
}

type callService struct {
	store         CallStore
	gate          Admitter
	queue         queue.Queue
	storage       storage.Storage
	transcriber   transcribe.Transcriber
	httpClient    *http.Client
	maxAudioBytes int64
	logger        *slog.Logger
}

// NewCallService creates a new CallService.
func NewCallService(cfg CallServiceConfig) CallService {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	maxBytes := cfg.AudioFetchMaxBytes
	if maxBytes <= 0 {
		maxBytes = 512 << 20
	}

	return &callService{
		store:         cfg.Store,
		gate:          cfg.Gate,
		queue:         cfg.Queue,
		storage:       cfg.Storage,
		transcriber:   cfg.Transcriber,
		httpClient:    httpClient,
		maxAudioBytes: maxBytes,
		logger:        cfg.Logger,
	}
}

// Submit validates the request, runs the quota gate, and enqueues the
// call for processing.
//
// Quota denial is the only business rejection; infrastructure failures
// in the admission path surface as internal errors so the caller can
// retry. The request is finalized (timestamp defaulted, region folded
// into metadata) before it is serialized, so the queue message is
// self-contained.
func (s *callService) Submit(ctx context.Context, req *domain.UploadRequest) error {
	const op = "calls.submit"

	if ve := req.ValidateForSubmit(); ve != nil {
		metrics.CallsSubmittedTotal.WithLabelValues("invalid").Inc()
		return ve
	}

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.MergeRegion()

	decision := s.gate.Admit(ctx, req.OwnerID)
	if !decision.Admitted {
		metrics.CallsSubmittedTotal.WithLabelValues("denied").Inc()
		return domain.Forbidden(op, decision.Reason)
	}

	body, err := json.Marshal(req)
	if err != nil {
		metrics.CallsSubmittedTotal.WithLabelValues("error").Inc()
		return domain.Internal(err, op, "failed to serialize upload request")
	}

	msgID, err := s.queue.Send(ctx, body)
	if err != nil {
		metrics.CallsSubmittedTotal.WithLabelValues("error").Inc()
		return domain.Internal(err, op, "failed to enqueue call")
	}

	metrics.CallsSubmittedTotal.WithLabelValues("admitted").Inc()
	metrics.QueueMessagesSentTotal.Inc()

	s.logger.Info("call admitted",
		"call_id", req.CallID,
		"owner_id", req.OwnerID,
		"message_id", msgID,
		"bypassed", decision.Bypassed,
	)

	return nil
}

// ProcessUpload runs the full pipeline for one queue message: parse and
// validate, resolve the agent, fetch and archive the audio, transcribe,
// and persist. Every step is idempotent or upsert-based, so a message
// redelivered after a partial failure converges on the same final state.
func (s *callService) ProcessUpload(ctx context.Context, body []byte) error {
	const op = "calls.process"

	var req domain.UploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return domain.Invalid(op, fmt.Sprintf("malformed message body: %v", err))
	}
	if ve := req.ValidateForProcessing(); ve != nil {
		return ve
	}

	logger := s.logger.With("call_id", req.CallID, "owner_id", req.OwnerID)

	rec := &domain.CallRecording{
		ID:        req.CallID,
		AudioURL:  req.AudioURL,
		OwnerID:   req.OwnerID,
		RegionID:  req.RegionID,
		Language:  req.Language,
		CreatedAt: req.CreatedAt,
	}

	if req.AgentID != "" {
		agent, err := s.store.UpsertAgent(ctx, req.AgentID, req.OwnerID)
		if err != nil {
			return domain.Internal(err, op, "failed to upsert agent")
		}
		rec.AgentID = agent.ID
	}

	audioData, err := s.fetchAudio(ctx, req.AudioURL)
	if err != nil {
		return domain.Internal(err, op, "failed to fetch call audio")
	}

	filename := audioFilename(req.AudioURL)
	if strings.HasSuffix(filename, ".wav") {
		if info, err := audio.ProbeWAV(audioData); err == nil {
			rec.DurationSeconds = info.DurationSeconds
		} else {
			logger.Warn("failed to probe audio duration", "error", err)
		}
	}

	if req.SaveRecording {
		key := storage.CallAudioKey(req.OwnerID, req.CallID, req.AudioURL)
		err := s.storage.Put(ctx, key, bytes.NewReader(audioData), storage.PutOptions{
			MaxSize:   s.maxAudioBytes,
			Overwrite: true,
		})
		if err != nil {
			return domain.Internal(err, op, "failed to archive call audio")
		}
		storedURL, err := s.storage.URL(ctx, key, 0)
		if err != nil {
			return domain.Internal(err, op, "failed to resolve archived audio URL")
		}
		rec.AudioURL = storedURL
	}

	transcribeStart := time.Now()
	result, err := s.transcriber.Transcribe(ctx, bytes.NewReader(audioData), filename, req.Language)
	if err != nil {
		metrics.TranscriptionsTotal.WithLabelValues("error").Inc()
		return domain.Internal(err, op, "transcription failed")
	}
	metrics.TranscriptionsTotal.WithLabelValues("success").Inc()
	metrics.TranscriptionDuration.Observe(time.Since(transcribeStart).Seconds())

	if err := s.store.UpsertCallRecording(ctx, rec, req.Metadata); err != nil {
		return domain.Internal(err, op, "failed to persist call recording")
	}

	transcript := &domain.Transcript{
		CallID:    req.CallID,
		Text:      result.Text,
		Language:  result.Language,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.UpsertTranscript(ctx, transcript); err != nil {
		return domain.Internal(err, op, "failed to persist transcript")
	}

	logger.Info("call processed",
		"duration_seconds", rec.DurationSeconds,
		"transcript_chars", len(result.Text),
		"archived", req.SaveRecording,
	)

	return nil
}

// fetchAudio downloads the call audio, bounded by the configured size limit.
func (s *callService) fetchAudio(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid audio URL: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio body: %w", err)
	}
	if int64(len(data)) > s.maxAudioBytes {
		return nil, fmt.Errorf("audio exceeds %d byte limit", s.maxAudioBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("audio body is empty")
	}

	return data, nil
}

// audioFilename derives a filename hint for the transcription backend
// from the source URL.
func audioFilename(rawURL string) string {
	trimmed := rawURL
	if idx := strings.IndexAny(trimmed, "?#"); idx != -1 {
		trimmed = trimmed[:idx]
	}
	name := path.Base(trimmed)
	if name == "." || name == "/" || path.Ext(name) == "" {
		return "audio.wav"
	}
	return name
}
