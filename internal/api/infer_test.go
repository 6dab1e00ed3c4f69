package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"course-qa/backend/internal/inference"
	"course-qa/backend/internal/paraphrase"
	"course-qa/backend/internal/pipeline"
	"course-qa/backend/internal/qa"
	"course-qa/backend/internal/retrieval"
	"course-qa/backend/internal/safety"
	"course-qa/backend/internal/store"
)

type stubGuard struct {
	fn func(call int) (safety.Verdict, error)

	calls int
}

func (s *stubGuard) Classify(ctx context.Context, text string, userID string) (safety.Verdict, error) {
	call := s.calls
	s.calls++
	if s.fn != nil {
		return s.fn(call)
	}
	return safety.Verdict{Sensitivity: safety.SensitivitySafe, ModelName: "guard-v1"}, nil
}

type stubParaphrase struct {
	match *paraphrase.Match
	err   error
}

func (s *stubParaphrase) Find(ctx context.Context, question string, courseID string) (*paraphrase.Match, error) {
	return s.match, s.err
}

type stubRetriever struct {
	doc *retrieval.Document
	err error
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, language qa.Language, courseIDs []string) (*retrieval.Document, error) {
	return s.doc, s.err
}

type stubInvoker struct {
	result inference.Result
	err    error
}

func (s *stubInvoker) Infer(ctx context.Context, query string, doc *retrieval.Document, userID string, language qa.Language) (inference.Result, error) {
	return s.result, s.err
}

func newTestServer(t *testing.T, guard pipeline.SensitivityGuard, lookup pipeline.ParaphraseLookup, retriever pipeline.DocumentRetriever, invoker pipeline.InferenceInvoker) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.Open(filepath.Join(t.TempDir(), "traces.db"), true)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	server := &Server{
		db:         db,
		controller: pipeline.NewController(guard, lookup, retriever, invoker),
		notifier:   NewTransactionNotifier(),
		endpoints:  map[string]string{},
	}
	router, err := server.Router()
	if err != nil {
		t.Fatalf("configure router: %v", err)
	}
	return server, router
}

func postInfer(t *testing.T, router *gin.Engine, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/infer", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func inferBody() map[string]any {
	return map[string]any{
		"query":     " What is the capital of France? ",
		"course_id": "geo-101",
		"user":      map[string]any{"id": "user-7"},
		"language":  "EN",
	}
}

func TestInferGoldStandardAnswer(t *testing.T) {
	_, router := newTestServer(t,
		&stubGuard{},
		&stubParaphrase{match: &paraphrase.Match{GSAnswerContentStr: "Paris"}},
		&stubRetriever{},
		&stubInvoker{},
	)

	rec := postInfer(t, router, inferBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp InferResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "Paris" || !resp.IsGSAnswer {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.AnswerValidity != "valid" {
		t.Fatalf("expected valid answer, got %q", resp.AnswerValidity)
	}
	if resp.Question != "What is the capital of France?" {
		t.Fatalf("question not cleaned: %q", resp.Question)
	}
	if resp.TransactionID == "" || resp.QuestionUUID == "" {
		t.Fatal("response missing correlation ids")
	}
}

func TestInferModelAnswer(t *testing.T) {
	_, router := newTestServer(t,
		&stubGuard{},
		&stubParaphrase{},
		&stubRetriever{doc: &retrieval.Document{DocID: "doc-1"}},
		&stubInvoker{result: inference.Result{
			Answer:       "The mitochondria is the powerhouse of the cell",
			ModelContext: inference.ModelContext{ModelName: "qa-v2"},
		}},
	)

	rec := postInfer(t, router, inferBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp InferResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.IsGSAnswer {
		t.Fatal("model answer must not be flagged as gold standard")
	}
	if resp.Answer != "The mitochondria is the powerhouse of the cell" {
		t.Fatalf("unexpected answer %q", resp.Answer)
	}
}

func TestInferStatusMapping(t *testing.T) {
	boom := errors.New("downstream unavailable")
	doc := &retrieval.Document{DocID: "doc-1"}

	tests := []struct {
		name      string
		guard     *stubGuard
		lookup    *stubParaphrase
		retriever *stubRetriever
		invoker   *stubInvoker
		status    int
		emptyBody bool
	}{
		{
			name: "sensitive question",
			guard: &stubGuard{fn: func(int) (safety.Verdict, error) {
				return safety.Verdict{Sensitivity: "UNSAFE", ModelName: "guard-v1"}, nil
			}},
			lookup:    &stubParaphrase{},
			retriever: &stubRetriever{},
			invoker:   &stubInvoker{},
			status:    http.StatusBadRequest,
			emptyBody: true,
		},
		{
			name:      "no document",
			guard:     &stubGuard{},
			lookup:    &stubParaphrase{},
			retriever: &stubRetriever{},
			invoker:   &stubInvoker{},
			status:    http.StatusNotFound,
			emptyBody: true,
		},
		{
			name:      "invalid model answer",
			guard:     &stubGuard{},
			lookup:    &stubParaphrase{},
			retriever: &stubRetriever{doc: doc},
			invoker:   &stubInvoker{result: inference.Result{Answer: "Unknown."}},
			status:    http.StatusNotFound,
			emptyBody: true,
		},
		{
			name: "sensitivity failure",
			guard: &stubGuard{fn: func(int) (safety.Verdict, error) {
				return safety.Verdict{}, boom
			}},
			lookup:    &stubParaphrase{},
			retriever: &stubRetriever{},
			invoker:   &stubInvoker{},
			status:    http.StatusInternalServerError,
		},
		{
			name:      "retrieval failure",
			guard:     &stubGuard{},
			lookup:    &stubParaphrase{},
			retriever: &stubRetriever{err: boom},
			invoker:   &stubInvoker{},
			status:    http.StatusPreconditionFailed,
		},
		{
			name:      "inference failure",
			guard:     &stubGuard{},
			lookup:    &stubParaphrase{},
			retriever: &stubRetriever{doc: doc},
			invoker:   &stubInvoker{err: boom},
			status:    http.StatusBadRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, router := newTestServer(t, tc.guard, tc.lookup, tc.retriever, tc.invoker)
			rec := postInfer(t, router, inferBody())
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.emptyBody && rec.Body.Len() != 0 {
				t.Fatalf("expected empty body, got %s", rec.Body.String())
			}
			if !tc.emptyBody && rec.Code >= 400 {
				var errBody map[string]any
				if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
					t.Fatalf("error body not json: %v", err)
				}
				if errBody["error"] == "" {
					t.Fatal("error detail missing")
				}
			}
		})
	}
}

func TestInferValidation(t *testing.T) {
	_, router := newTestServer(t, &stubGuard{}, &stubParaphrase{}, &stubRetriever{}, &stubInvoker{})

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing query", func(b map[string]any) { delete(b, "query") }},
		{"missing course", func(b map[string]any) { delete(b, "course_id") }},
		{"missing user", func(b map[string]any) { b["user"] = map[string]any{} }},
		{"bad language", func(b map[string]any) { b["language"] = "FR" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := inferBody()
			tc.mutate(body)
			rec := postInfer(t, router, body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", rec.Code)
			}
		})
	}
}

func TestInferPersistsTransaction(t *testing.T) {
	server, router := newTestServer(t,
		&stubGuard{},
		&stubParaphrase{match: &paraphrase.Match{GSAnswerContentStr: "Paris"}},
		&stubRetriever{},
		&stubInvoker{},
	)

	rec := postInfer(t, router, inferBody())
	var resp InferResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	record, err := server.db.GetTransaction(resp.TransactionID)
	if err != nil {
		t.Fatalf("stored transaction not found: %v", err)
	}
	if record.ResponseType != string(pipeline.KindGoldStandardAnswer) {
		t.Fatalf("unexpected response type %q", record.ResponseType)
	}
	if !record.Answered {
		t.Fatal("gold standard outcome must be marked answered")
	}
	if record.PayloadJSON == "" {
		t.Fatal("trace payload not persisted")
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list transactions: %d", listRec.Code)
	}
	var listing TransactionsResponse
	if err := json.Unmarshal(listRec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if listing.Total != 1 || len(listing.Items) != 1 {
		t.Fatalf("expected one stored transaction, got %+v", listing)
	}

	event := server.notifier.LastEvent()
	if event == nil || event.TransactionID != resp.TransactionID {
		t.Fatalf("transaction event not broadcast: %+v", event)
	}
}
