package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const openAIDefaultModel = openai.AudioModelWhisper1

// OpenAIConfig holds configuration for the OpenAI transcription client.
type OpenAIConfig struct {
	APIKey     string
	Model      string        // "whisper-1" (default)
	MaxRetries int           // Retry attempts on transient failures
	RetryDelay time.Duration // Base retry delay
	Timeout    time.Duration // HTTP timeout per attempt
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAITranscriber implements Transcriber using the official OpenAI SDK.
type OpenAITranscriber struct {
	model      string
	maxRetries uint
	retryDelay time.Duration
	client     openai.Client
	logger     *slog.Logger
}

// NewOpenAITranscriber creates a transcriber backed by the OpenAI audio API.
func NewOpenAITranscriber(cfg OpenAIConfig, logger *slog.Logger) (*OpenAITranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// Transport retries handled here, app-level retries below.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAITranscriber{
		model:      cfg.Model,
		maxRetries: uint(cfg.MaxRetries),
		retryDelay: cfg.RetryDelay,
		client:     openai.NewClient(opts...),
		logger:     logger,
	}, nil
}

// Transcribe sends the audio to the OpenAI transcription endpoint.
//
// The audio stream is buffered into memory so that failed attempts can
// be retried; callers already bound upload size before reaching here.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (*Result, error) {
	const op = "openai.transcribe"

	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, &TranscribeError{Op: op, Err: fmt.Errorf("failed to read audio: %w", err)}
	}
	if len(data) == 0 {
		return nil, &TranscribeError{Op: op, Err: fmt.Errorf("empty audio stream")}
	}

	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(t.model),
		// verbose_json includes the detected language in the response.
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	var transcription *openai.AudioTranscriptionNewResponseUnion
	err = retry.Do(
		func() error {
			params.File = openai.File(bytes.NewReader(data), filename, "application/octet-stream")
			resp, err := t.client.Audio.Transcriptions.New(ctx, params)
			if err != nil {
				return err
			}
			transcription = resp
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(t.maxRetries),
		retry.Delay(t.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			t.logger.Warn("transcription attempt failed, retrying",
				"attempt", n+1,
				"error", err,
			)
		}),
	)
	if err != nil {
		return nil, &TranscribeError{Op: op, Err: err}
	}

	detected := transcription.Language
	if detected == "" {
		detected = language
	}

	return &Result{
		Text:     transcription.Text,
		Language: detected,
	}, nil
}
