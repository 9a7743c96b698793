package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/voxwatch/voxwatch/internal/domain"
	"github.com/voxwatch/voxwatch/internal/queue"
	"github.com/voxwatch/voxwatch/internal/quota"
	"github.com/voxwatch/voxwatch/internal/storage"
	"github.com/voxwatch/voxwatch/internal/transcribe"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeStore struct {
	agents      map[string]*domain.Agent
	recordings  map[string]*domain.CallRecording
	transcripts map[string]*domain.Transcript
	upsertErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agents:      make(map[string]*domain.Agent),
		recordings:  make(map[string]*domain.CallRecording),
		transcripts: make(map[string]*domain.Transcript),
	}
}

func (f *fakeStore) UpsertAgent(_ context.Context, customerAgentID, ownerID string) (*domain.Agent, error) {
	key := customerAgentID + "/" + ownerID
	if agent, ok := f.agents[key]; ok {
		return agent, nil
	}
	agent := &domain.Agent{
		ID:              uuid.New(),
		CustomerAgentID: customerAgentID,
		OwnerID:         ownerID,
	}
	f.agents[key] = agent
	return agent, nil
}

func (f *fakeStore) UpsertCallRecording(_ context.Context, rec *domain.CallRecording, _ map[string]any) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if _, exists := f.recordings[rec.ID]; exists {
		return nil // replay is a no-op
	}
	f.recordings[rec.ID] = rec
	return nil
}

func (f *fakeStore) UpsertTranscript(_ context.Context, t *domain.Transcript) error {
	f.transcripts[t.CallID] = t
	return nil
}

type fakeGate struct {
	decision quota.Decision
}

func (f *fakeGate) Admit(_ context.Context, _ string) quota.Decision {
	return f.decision
}

type fakeQueue struct {
	sent    [][]byte
	sendErr error
}

func (f *fakeQueue) Send(_ context.Context, body []byte) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, body)
	return uuid.NewString(), nil
}

func (f *fakeQueue) Receive(_ context.Context, _ int, _ time.Duration) ([]queue.Message, error) {
	return nil, nil
}

func (f *fakeQueue) Delete(_ context.Context, _ string) error {
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildWAV constructs a minimal one-second mono PCM WAV file.
func buildWAV(t *testing.T) []byte {
	t.Helper()

	sampleRate := 8000
	byteRate := sampleRate * 2
	dataSize := uint32(byteRate)

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))

	return buf.Bytes()
}

func newTestService(t *testing.T, store *fakeStore, gate Admitter, q queue.Queue, audioSrv *httptest.Server) CallService {
	t.Helper()

	localStorage, err := storage.NewLocalStorage(storage.LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8080/files",
	}, testLogger())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}

	var httpClient *http.Client
	if audioSrv != nil {
		httpClient = audioSrv.Client()
	}

	return NewCallService(CallServiceConfig{
		Store:              store,
		Gate:               gate,
		Queue:              q,
		Storage:            localStorage,
		Transcriber:        &transcribe.MockTranscriber{Text: "hello world"},
		Logger:             testLogger(),
		AudioFetchMaxBytes: 1 << 20,
		HTTPClient:         httpClient,
	})
}

// =============================================================================
// Submit
// =============================================================================

func TestSubmitEnqueuesFinalizedRequest(t *testing.T) {
	q := &fakeQueue{}
	svc := newTestService(t, newFakeStore(), &fakeGate{decision: quota.Decision{Admitted: true}}, q, nil)

	req := &domain.UploadRequest{
		CallID:   "call-1",
		AudioURL: "https://example.com/audio.wav",
		OwnerID:  "acct_1",
		RegionID: "us-east",
	}

	if err := svc.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if len(q.sent) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(q.sent))
	}

	var enqueued domain.UploadRequest
	if err := json.Unmarshal(q.sent[0], &enqueued); err != nil {
		t.Fatalf("message body is not valid JSON: %v", err)
	}
	if enqueued.CreatedAt.IsZero() {
		t.Error("CreatedAt was not defaulted before enqueue")
	}
	if got := enqueued.Metadata["regionId"]; got != "us-east" {
		t.Errorf("metadata regionId = %v, want us-east", got)
	}
}

func TestSubmitDeniedWhenQuotaExhausted(t *testing.T) {
	q := &fakeQueue{}
	gate := &fakeGate{decision: quota.Decision{Admitted: false, Reason: "no free calls left"}}
	svc := newTestService(t, newFakeStore(), gate, q, nil)

	req := &domain.UploadRequest{
		CallID:   "call-1",
		AudioURL: "https://example.com/audio.wav",
		OwnerID:  "acct_1",
	}

	err := svc.Submit(context.Background(), req)
	if err == nil {
		t.Fatal("Submit() expected error, got nil")
	}
	if code := domain.ErrorCode(err); code != domain.EFORBIDDEN {
		t.Errorf("error code = %v, want %v", code, domain.EFORBIDDEN)
	}
	if msg := domain.ErrorMessage(err); msg != "no free calls left" {
		t.Errorf("error message = %q, want %q", msg, "no free calls left")
	}
	if len(q.sent) != 0 {
		t.Errorf("denied submission was enqueued")
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	q := &fakeQueue{}
	svc := newTestService(t, newFakeStore(), &fakeGate{decision: quota.Decision{Admitted: true}}, q, nil)

	req := &domain.UploadRequest{AudioURL: "https://example.com/audio.wav"}

	err := svc.Submit(context.Background(), req)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Submit() error = %v, want ValidationError", err)
	}
	if len(q.sent) != 0 {
		t.Errorf("invalid submission was enqueued")
	}
}

func TestSubmitEnqueueFailureIsInternal(t *testing.T) {
	q := &fakeQueue{sendErr: errors.New("queue down")}
	svc := newTestService(t, newFakeStore(), &fakeGate{decision: quota.Decision{Admitted: true}}, q, nil)

	req := &domain.UploadRequest{
		CallID:   "call-1",
		AudioURL: "https://example.com/audio.wav",
		OwnerID:  "acct_1",
	}

	err := svc.Submit(context.Background(), req)
	if code := domain.ErrorCode(err); code != domain.EINTERNAL {
		t.Errorf("error code = %v, want %v", code, domain.EINTERNAL)
	}
}

// =============================================================================
// ProcessUpload
// =============================================================================

func messageBody(t *testing.T, req *domain.UploadRequest) []byte {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestProcessUpload(t *testing.T) {
	wav := buildWAV(t)
	audioSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	}))
	defer audioSrv.Close()

	store := newFakeStore()
	svc := newTestService(t, store, &fakeGate{}, &fakeQueue{}, audioSrv)

	req := &domain.UploadRequest{
		CallID:        "call-1",
		AudioURL:      audioSrv.URL + "/recordings/call-1.wav",
		AgentID:       "agent-7",
		OwnerID:       "acct_1",
		CreatedAt:     time.Now().UTC(),
		SaveRecording: true,
		Language:      "en",
	}

	if err := svc.ProcessUpload(context.Background(), messageBody(t, req)); err != nil {
		t.Fatalf("ProcessUpload() error = %v", err)
	}

	rec, ok := store.recordings["call-1"]
	if !ok {
		t.Fatal("call recording was not persisted")
	}
	if rec.AgentID == uuid.Nil {
		t.Error("agent was not resolved")
	}
	if rec.DurationSeconds < 0.9 || rec.DurationSeconds > 1.1 {
		t.Errorf("DurationSeconds = %v, want ~1.0", rec.DurationSeconds)
	}
	if rec.AudioURL == req.AudioURL {
		t.Error("archived recording should point at owned storage, not the source URL")
	}

	transcript, ok := store.transcripts["call-1"]
	if !ok {
		t.Fatal("transcript was not persisted")
	}
	if transcript.Text != "hello world" {
		t.Errorf("transcript text = %q, want %q", transcript.Text, "hello world")
	}
}

func TestProcessUploadWithoutArchivingKeepsSourceURL(t *testing.T) {
	wav := buildWAV(t)
	audioSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(wav)
	}))
	defer audioSrv.Close()

	store := newFakeStore()
	svc := newTestService(t, store, &fakeGate{}, &fakeQueue{}, audioSrv)

	sourceURL := audioSrv.URL + "/recordings/call-2.wav"
	req := &domain.UploadRequest{
		CallID:    "call-2",
		AudioURL:  sourceURL,
		OwnerID:   "acct_1",
		CreatedAt: time.Now().UTC(),
	}

	if err := svc.ProcessUpload(context.Background(), messageBody(t, req)); err != nil {
		t.Fatalf("ProcessUpload() error = %v", err)
	}

	if store.recordings["call-2"].AudioURL != sourceURL {
		t.Errorf("AudioURL = %q, want source URL %q", store.recordings["call-2"].AudioURL, sourceURL)
	}
}

func TestProcessUploadMalformedBody(t *testing.T) {
	svc := newTestService(t, newFakeStore(), &fakeGate{}, &fakeQueue{}, nil)

	err := svc.ProcessUpload(context.Background(), []byte("{not json"))
	if code := domain.ErrorCode(err); code != domain.EINVALID {
		t.Errorf("error code = %v, want %v", code, domain.EINVALID)
	}
}

func TestProcessUploadMissingFields(t *testing.T) {
	svc := newTestService(t, newFakeStore(), &fakeGate{}, &fakeQueue{}, nil)

	req := &domain.UploadRequest{CallID: "call-3"}

	err := svc.ProcessUpload(context.Background(), messageBody(t, req))
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("ProcessUpload() error = %v, want ValidationError", err)
	}
}

func TestProcessUploadAudioFetchFailure(t *testing.T) {
	audioSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer audioSrv.Close()

	store := newFakeStore()
	svc := newTestService(t, store, &fakeGate{}, &fakeQueue{}, audioSrv)

	req := &domain.UploadRequest{
		CallID:    "call-4",
		AudioURL:  audioSrv.URL + "/missing.wav",
		OwnerID:   "acct_1",
		CreatedAt: time.Now().UTC(),
	}

	if err := svc.ProcessUpload(context.Background(), messageBody(t, req)); err == nil {
		t.Fatal("ProcessUpload() expected error for missing audio")
	}
	if len(store.recordings) != 0 {
		t.Error("recording persisted despite fetch failure")
	}
}

func TestProcessUploadTranscriptionFailureLeavesNothingPersisted(t *testing.T) {
	wav := buildWAV(t)
	audioSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(wav)
	}))
	defer audioSrv.Close()

	store := newFakeStore()

	localStorage, err := storage.NewLocalStorage(storage.LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8080/files",
	}, testLogger())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}

	svc := NewCallService(CallServiceConfig{
		Store:              store,
		Gate:               &fakeGate{},
		Queue:              &fakeQueue{},
		Storage:            localStorage,
		Transcriber:        &transcribe.MockTranscriber{Err: errors.New("model overloaded")},
		Logger:             testLogger(),
		AudioFetchMaxBytes: 1 << 20,
		HTTPClient:         audioSrv.Client(),
	})

	req := &domain.UploadRequest{
		CallID:    "call-5",
		AudioURL:  audioSrv.URL + "/recordings/call-5.wav",
		OwnerID:   "acct_1",
		CreatedAt: time.Now().UTC(),
	}

	if err := svc.ProcessUpload(context.Background(), messageBody(t, req)); err == nil {
		t.Fatal("ProcessUpload() expected error for transcription failure")
	}
	if len(store.recordings) != 0 {
		t.Error("recording persisted despite transcription failure")
	}
	if len(store.transcripts) != 0 {
		t.Error("transcript persisted despite transcription failure")
	}
}

func TestProcessUploadIsReplaySafe(t *testing.T) {
	wav := buildWAV(t)
	audioSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(wav)
	}))
	defer audioSrv.Close()

	store := newFakeStore()
	svc := newTestService(t, store, &fakeGate{}, &fakeQueue{}, audioSrv)

	req := &domain.UploadRequest{
		CallID:        "call-6",
		AudioURL:      audioSrv.URL + "/recordings/call-6.wav",
		AgentID:       "agent-1",
		OwnerID:       "acct_1",
		CreatedAt:     time.Now().UTC(),
		SaveRecording: true,
	}
	body := messageBody(t, req)

	if err := svc.ProcessUpload(context.Background(), body); err != nil {
		t.Fatalf("first ProcessUpload() error = %v", err)
	}
	if err := svc.ProcessUpload(context.Background(), body); err != nil {
		t.Fatalf("replayed ProcessUpload() error = %v", err)
	}

	if len(store.recordings) != 1 {
		t.Errorf("recordings = %d, want 1", len(store.recordings))
	}
	if len(store.agents) != 1 {
		t.Errorf("agents = %d, want 1", len(store.agents))
	}
}
