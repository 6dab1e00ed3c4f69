// Package retrieval wraps the prefiltering service that narrows a course's
// material to the document most relevant to a question.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"course-qa/backend/internal/qa"
)

// Config drives the retrieval client behaviour.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Document is the best-matching course document for a question.
type Document struct {
	DocID   string `json:"doc_id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// Client queries the prefiltering service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// ErrMissingEndpoint is returned when the client has no service URL.
var ErrMissingEndpoint = errors.New("retrieval client missing base url")

// NewClient constructs a retrieval client if configuration is valid.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}, nil
}

type retrieveRequest struct {
	Query         string      `json:"query"`
	Language      qa.Language `json:"language"`
	CoursebookIDs []string    `json:"coursebook_ids"`
}

// Retrieve returns the best matching document for the query within the
// listed coursebooks, or nil when the service finds nothing. A nil document
// is a normal outcome; only transport or service failures return an error,
// which the pipeline treats as fatal.
func (c *Client) Retrieve(ctx context.Context, query string, language qa.Language, courseIDs []string) (*Document, error) {
	body, err := json.Marshal(retrieveRequest{Query: query, Language: language, CoursebookIDs: courseIDs})
	if err != nil {
		return nil, fmt.Errorf("marshal retrieve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/retrieve", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create retrieve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prefiltering request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("prefiltering status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read retrieve response: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 || string(bytes.TrimSpace(payload)) == "null" {
		return nil, nil
	}

	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode retrieve response: %w", err)
	}
	if strings.TrimSpace(doc.DocID) == "" {
		return nil, nil
	}
	return &doc, nil
}
