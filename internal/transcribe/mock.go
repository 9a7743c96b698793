package transcribe

import (
	"context"
	"fmt"
	"io"
)

// MockTranscriber returns canned transcripts without calling any API.
// Used in development and tests.
type MockTranscriber struct {
	// Text overrides the default canned transcript when set.
	Text string
	// Err makes every call fail when set.
	Err error
}

// NewMockTranscriber creates a mock transcriber.
func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{}
}

func (t *MockTranscriber) Transcribe(_ context.Context, audio io.Reader, _, language string) (*Result, error) {
	if t.Err != nil {
		return nil, &TranscribeError{Op: "mock.transcribe", Err: t.Err}
	}

	// Drain the stream so callers see realistic reader behavior.
	n, err := io.Copy(io.Discard, audio)
	if err != nil {
		return nil, &TranscribeError{Op: "mock.transcribe", Err: err}
	}

	text := t.Text
	if text == "" {
		text = fmt.Sprintf("[mock transcript of %d audio bytes]", n)
	}

	return &Result{
		Text:     text,
		Language: language,
	}, nil
}
