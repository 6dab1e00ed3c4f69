// Package inference wraps the question-answering model service.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"course-qa/backend/internal/qa"
	"course-qa/backend/internal/retrieval"
)

// Config drives the QA model client behaviour.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// ModelContext carries metadata about the model that produced an answer.
type ModelContext struct {
	ModelName string `json:"model_name"`
}

// Result is a generated answer plus model metadata.
type Result struct {
	Answer       string       `json:"answer"`
	ModelContext ModelContext `json:"model_context"`
}

// Client calls the QA model service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// ErrMissingEndpoint is returned when the client has no service URL.
var ErrMissingEndpoint = errors.New("inference client missing base url")

// NewClient constructs a QA model client if configuration is valid.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}, nil
}

type inferRequest struct {
	Query    string              `json:"query"`
	Doc      *retrieval.Document `json:"doc"`
	UserID   string              `json:"user_id"`
	Language qa.Language         `json:"language"`
}

// Infer generates an answer for the query grounded in the supplied document.
// Any failure is surfaced to the caller; the pipeline treats it as fatal.
func (c *Client) Infer(ctx context.Context, query string, doc *retrieval.Document, userID string, language qa.Language) (Result, error) {
	body, err := json.Marshal(inferRequest{Query: query, Doc: doc, UserID: userID, Language: language})
	if err != nil {
		return Result{}, fmt.Errorf("marshal infer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/infer", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create infer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("qa service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("qa service status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode infer response: %w", err)
	}
	return result, nil
}
