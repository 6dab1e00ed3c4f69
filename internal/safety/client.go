// Package safety wraps the sensitive-content detection service.
package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SensitivitySafe is the verdict the detection service returns for benign
// text; anything else is treated as unsafe.
const SensitivitySafe = "SAFE"

// Config drives the detection client behaviour.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Verdict is the classification result for one text.
type Verdict struct {
	Sensitivity string `json:"sensitivity"`
	ModelName   string `json:"model_name"`
}

// Safe reports whether the verdict allows the text through.
func (v Verdict) Safe() bool {
	return v.Sensitivity == SensitivitySafe
}

// Client calls the sensitive-content detection service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// ErrMissingEndpoint is returned when the client has no service URL.
var ErrMissingEndpoint = errors.New("safety client missing base url")

// NewClient constructs a detection client if configuration is valid.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}, nil
}

type classifyRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
}

// Classify asks the detection service whether the supplied text is safe.
// Any transport or service failure is returned to the caller; the pipeline
// treats it as fatal.
func (c *Client) Classify(ctx context.Context, text string, userID string) (Verdict, error) {
	body, err := json.Marshal(classifyRequest{Query: text, UserID: userID})
	if err != nil {
		return Verdict{}, fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("create classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("sensitive content detection request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("sensitive content detection status %d", resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return Verdict{}, fmt.Errorf("decode classify response: %w", err)
	}
	if strings.TrimSpace(verdict.Sensitivity) == "" {
		return Verdict{}, errors.New("sensitive content detection returned empty verdict")
	}
	return verdict, nil
}
