// Package transcribe converts call audio into text transcripts.
package transcribe

import (
	"context"
	"fmt"
	"io"
)

// Result is the outcome of a transcription.
type Result struct {
	Text     string
	Language string
}

// Transcriber produces transcripts from audio streams.
type Transcriber interface {
	// Transcribe reads the audio stream and returns its transcript.
	// filename hints the container format to the backend (extension
	// matters for some providers). language is an optional ISO-639-1
	// hint; empty means auto-detect.
	Transcribe(ctx context.Context, audio io.Reader, filename, language string) (*Result, error)
}

// Provider identifies a transcription backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderMock   Provider = "mock"
)

// TranscribeError wraps provider failures with operation context.
type TranscribeError struct {
	Op  string
	Err error
}

func (e *TranscribeError) Error() string {
	return fmt.Sprintf("transcribe: %s: %v", e.Op, e.Err)
}

func (e *TranscribeError) Unwrap() error {
	return e.Err
}
