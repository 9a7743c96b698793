package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newTestLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewLocalStorage(LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8080/files",
	}, logger)
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	return s
}

func TestLocalStoragePutGet(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()

	content := "fake audio bytes"
	key := "calls/acct_1/call-1/audio.wav"

	err := s.Put(ctx, key, strings.NewReader(content), PutOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	reader, info, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("reading object: %v", err)
	}
	if string(data) != content {
		t.Errorf("content = %q, want %q", data, content)
	}
	if info.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", info.Size, len(content))
	}
}

func TestLocalStoragePutRespectsOverwriteFlag(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	key := "calls/acct_1/call-2/audio.wav"

	if err := s.Put(ctx, key, strings.NewReader("first"), PutOptions{}); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}

	err := s.Put(ctx, key, strings.NewReader("second"), PutOptions{})
	if !errors.Is(err, ErrKeyExists) {
		t.Errorf("Put() error = %v, want ErrKeyExists", err)
	}

	if err := s.Put(ctx, key, strings.NewReader("second"), PutOptions{Overwrite: true}); err != nil {
		t.Errorf("overwriting Put() error = %v", err)
	}
}

func TestLocalStoragePutEnforcesMaxSize(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()

	err := s.Put(ctx, "calls/a/b/audio.wav", strings.NewReader("0123456789"), PutOptions{MaxSize: 4})
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Put() error = %v, want ErrTooLarge", err)
	}

	// An oversized upload must not leave a partial file behind.
	exists, err := s.Exists(ctx, "calls/a/b/audio.wav")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("partial file left behind after rejected upload")
	}
}

func TestLocalStorageRejectsTraversalKeys(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "calls/../../etc/passwd"} {
		if err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{}); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestLocalStorageDeleteIsIdempotent(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	key := "calls/acct_1/call-3/audio.wav"

	if err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestLocalStorageURL(t *testing.T) {
	s := newTestLocalStorage(t)

	url, err := s.URL(context.Background(), "calls/acct_1/call-4/audio.wav", 0)
	if err != nil {
		t.Fatalf("URL() error = %v", err)
	}
	want := "http://localhost:8080/files/calls/acct_1/call-4/audio.wav"
	if url != want {
		t.Errorf("URL() = %q, want %q", url, want)
	}
}

func TestCallAudioKey(t *testing.T) {
	tests := []struct {
		name      string
		sourceURL string
		want      string
	}{
		{
			name:      "plain wav",
			sourceURL: "https://example.com/recordings/abc.wav",
			want:      "calls/acct_1/call-1/audio.wav",
		},
		{
			name:      "presigned url with query",
			sourceURL: "https://bucket.s3.amazonaws.com/rec.mp3?X-Amz-Signature=deadbeef",
			want:      "calls/acct_1/call-1/audio.mp3",
		},
		{
			name:      "no extension defaults to wav",
			sourceURL: "https://example.com/stream/12345",
			want:      "calls/acct_1/call-1/audio.wav",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CallAudioKey("acct_1", "call-1", tt.sourceURL)
			if got != tt.want {
				t.Errorf("CallAudioKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
