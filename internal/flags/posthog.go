package flags

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostHogHost = "https://app.posthog.com"

// PostHogClient evaluates flags against the PostHog decide API.
type PostHogClient struct {
	apiKey     string
	host       string
	httpClient *http.Client
	logger     *slog.Logger
}

// PostHogConfig holds configuration for the PostHog flags client.
type PostHogConfig struct {
	APIKey string
	Host   string // Optional, defaults to app.posthog.com
}

// NewPostHogClient creates a PostHog-backed flags client.
func NewPostHogClient(cfg PostHogConfig, logger *slog.Logger) (*PostHogClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("posthog API key is required")
	}

	host := cfg.Host
	if host == "" {
		host = defaultPostHogHost
	}

	return &PostHogClient{
		apiKey: cfg.APIKey,
		host:   strings.TrimSuffix(host, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}, nil
}

type decideRequest struct {
	APIKey     string `json:"api_key"`
	DistinctID string `json:"distinct_id"`
}

type decideResponse struct {
	FeatureFlags map[string]any `json:"featureFlags"`
}

// IsEnabled reports whether the flag is enabled for the given account.
//
// PostHog returns flag values as booleans or variant strings. Any
// non-false, non-empty value counts as enabled.
func (c *PostHogClient) IsEnabled(ctx context.Context, flag, accountID string) (bool, error) {
	body, err := json.Marshal(decideRequest{
		APIKey:     c.apiKey,
		DistinctID: accountID,
	})
	if err != nil {
		return false, &FlagError{Op: "IsEnabled", Flag: flag, Err: err}
	}

	url := c.host + "/decide?v=3"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, &FlagError{Op: "IsEnabled", Flag: flag, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, &FlagError{Op: "IsEnabled", Flag: flag, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, &FlagError{
			Op:   "IsEnabled",
			Flag: flag,
			Err:  fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var decoded decideResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, &FlagError{Op: "IsEnabled", Flag: flag, Err: err}
	}

	value, ok := decoded.FeatureFlags[flag]
	if !ok {
		return false, nil
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return v != "" && v != "false", nil
	default:
		c.logger.Warn("unexpected flag value type", "flag", flag, "value", value)
		return false, nil
	}
}
