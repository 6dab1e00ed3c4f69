package api

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"course-qa/backend/internal/qa"
	"course-qa/backend/internal/store"
)

// UserInfo identifies the asking user.
type UserInfo struct {
	ID string `json:"id"`
}

// InferRequest is the body of POST /infer.
type InferRequest struct {
	Query           string         `json:"query"`
	CourseID        string         `json:"course_id"`
	User            UserInfo       `json:"user"`
	Language        string         `json:"language"`
	AllowAnnotation bool           `json:"allow_annotation"`
	Client          map[string]any `json:"client"`
}

// Validate checks required fields and resolves the request language.
func (r InferRequest) Validate() (qa.Language, error) {
	if strings.TrimSpace(r.Query) == "" {
		return "", errors.New("query is required")
	}
	if strings.TrimSpace(r.CourseID) == "" {
		return "", errors.New("course_id is required")
	}
	if strings.TrimSpace(r.User.ID) == "" {
		return "", errors.New("user.id is required")
	}
	switch qa.Language(strings.ToUpper(strings.TrimSpace(r.Language))) {
	case qa.LanguageEN:
		return qa.LanguageEN, nil
	case qa.LanguageDE:
		return qa.LanguageDE, nil
	default:
		return "", errors.New("language must be one of EN, DE")
	}
}

// InferResponse is the 200 body of POST /infer.
type InferResponse struct {
	Answer         string `json:"answer"`
	Question       string `json:"question"`
	AnswerValidity string `json:"answer_validity"`
	TransactionID  string `json:"transaction_id"`
	IsGSAnswer     bool   `json:"is_gs_answer"`
	QuestionUUID   string `json:"question_uuid"`
}

// TransactionDTO is the API representation of a stored trace.
type TransactionDTO struct {
	TransactionID string         `json:"transaction_id"`
	QuestionUUID  string         `json:"question_uuid"`
	CourseID      string         `json:"course_id"`
	Question      string         `json:"question"`
	Language      string         `json:"language"`
	ResponseType  string         `json:"response_type"`
	Answered      bool           `json:"answered"`
	DurationMs    int64          `json:"duration_ms"`
	Trace         map[string]any `json:"trace,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TransactionsResponse is the paginated transaction listing.
type TransactionsResponse struct {
	Items []TransactionDTO `json:"items"`
	Total int64            `json:"total"`
}

// TransactionFromModel converts a stored record into the DTO representation.
// The persisted payload is unpacked only when includeTrace is set; the list
// endpoint returns summaries.
func TransactionFromModel(r store.TransactionRecord, includeTrace bool) TransactionDTO {
	dto := TransactionDTO{
		TransactionID: r.TransactionID,
		QuestionUUID:  r.QuestionUUID,
		CourseID:      r.CourseID,
		Question:      r.Question,
		Language:      r.Language,
		ResponseType:  r.ResponseType,
		Answered:      r.Answered,
		DurationMs:    r.DurationMs,
		CreatedAt:     r.CreatedAt,
	}
	if includeTrace && strings.TrimSpace(r.PayloadJSON) != "" {
		var trace map[string]any
		if err := json.Unmarshal([]byte(r.PayloadJSON), &trace); err == nil {
			dto.Trace = trace
		}
	}
	return dto
}
