// Package paraphrase wraps the paraphrase store that serves previously
// vetted gold-standard answers for semantically equivalent questions.
package paraphrase

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

// Config drives the paraphrase client behaviour.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Match is a gold-standard answer found for an equivalent question.
type Match struct {
	QuestionContentStr string `json:"question_content_str"`
	GSAnswerContentStr string `json:"gs_answer_content_str"`
	CourseID           string `json:"course_id"`
}

// Client queries the paraphrase service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// ErrMissingEndpoint is returned when the client has no service URL.
var ErrMissingEndpoint = errors.New("paraphrase client missing base url")

// NewClient constructs a paraphrase client if configuration is valid.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}, nil
}

type findRequest struct {
	QuestionContentStr string `json:"question_content_str"`
	CourseID           string `json:"course_id"`
}

// Find returns the stored gold-standard match for the question within the
// course, or nil when the service knows no equivalent question. Errors are
// surfaced to the caller; the pipeline swallows them and continues without
// a match.
func (c *Client) Find(ctx context.Context, question string, courseID string) (*Match, error) {
	body, err := json.Marshal(findRequest{QuestionContentStr: question, CourseID: courseID})
	if err != nil {
		return nil, fmt.Errorf("marshal paraphrase request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/find", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create paraphrase request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paraphrase request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("paraphrase status %d", resp.StatusCode)
	}

	var match Match
	if err := json.NewDecoder(resp.Body).Decode(&match); err != nil {
		return nil, fmt.Errorf("decode paraphrase response: %w", err)
	}
	if strings.TrimSpace(match.GSAnswerContentStr) == "" {
		return nil, nil
	}
	return &match, nil
}
