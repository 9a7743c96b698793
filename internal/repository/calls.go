package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/voxwatch/voxwatch/internal/domain"
)

// UpsertCallRecording inserts a recording row keyed by the caller-supplied
// call id. Redelivery of an already-persisted call is a no-op: the conflict
// arm deliberately updates nothing, mirroring create-only upsert semantics.
func (s *Store) UpsertCallRecording(ctx context.Context, rec *domain.CallRecording, metadata map[string]any) error {
	meta := []byte("{}")
	if metadata != nil {
		var err error
		meta, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	var agentID any
	if rec.AgentID != uuid.Nil {
		agentID = rec.AgentID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_recordings
		   (id, audio_url, duration_seconds, agent_id, owner_id, region_id, language, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.AudioURL, rec.DurationSeconds, agentID, rec.OwnerID,
		rec.RegionID, rec.Language, meta, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert call recording: %w", err)
	}
	return nil
}

// GetCallRecording fetches a recording row by call id.
func (s *Store) GetCallRecording(ctx context.Context, id string) (*domain.CallRecording, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, audio_url, duration_seconds, agent_id, owner_id, region_id, language, created_at
		 FROM call_recordings WHERE id = $1`, id)

	var rec domain.CallRecording
	var agentID sql.Null[uuid.UUID]
	err := row.Scan(&rec.ID, &rec.AudioURL, &rec.DurationSeconds, &agentID,
		&rec.OwnerID, &rec.RegionID, &rec.Language, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan call recording: %w", err)
	}
	if agentID.Valid {
		rec.AgentID = agentID.V
	}
	return &rec, nil
}

// UpsertTranscript stores the transcript for a call. A redelivered message
// that re-transcribes simply overwrites with the same content.
func (s *Store) UpsertTranscript(ctx context.Context, t *domain.Transcript) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (call_id, text, language)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (call_id)
		 DO UPDATE SET text = excluded.text, language = excluded.language`,
		t.CallID, t.Text, t.Language)
	if err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}
