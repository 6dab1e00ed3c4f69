package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"course-qa/backend/internal/pipeline"
	"course-qa/backend/internal/qa"
	"course-qa/backend/internal/store"
	"course-qa/backend/internal/transaction"
	"course-qa/backend/internal/util"
)

// Short, non-sensitive detail strings for fatal upstream failures. Internal
// causes stay in the transaction trace and never cross the boundary.
const (
	detailSensitivity = "Sensitive Content Detection Exception."
	detailRetrieval   = "Failed to fetch prefiltered document."
	detailInference   = "QAService Exception"
)

func (s *Server) handleInfer(c *gin.Context) {
	var body InferRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	language, err := body.Validate()
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	tx := transaction.New()
	tx.MarkForStorage()
	timer := util.StartTimer()

	outcome := s.controller.Run(c.Request.Context(), pipeline.Request{
		Query:           body.Query,
		CourseID:        body.CourseID,
		UserID:          body.User.ID,
		Language:        language,
		AllowAnnotation: body.AllowAnnotation,
		Client:          body.Client,
	}, tx)

	s.renderOutcome(c, outcome)
	s.flushTransaction(tx, body, language, outcome, timer.ElapsedMs())
}

// renderOutcome is the single place the pipeline's terminal decision becomes
// an HTTP response.
func (s *Server) renderOutcome(c *gin.Context, outcome pipeline.Outcome) {
	switch outcome.Kind {
	case pipeline.KindGoldStandardAnswer, pipeline.KindModelAnswer:
		c.JSON(http.StatusOK, InferResponse{
			Answer:         outcome.Answer,
			Question:       outcome.Question,
			AnswerValidity: "valid",
			TransactionID:  outcome.TransactionID,
			IsGSAnswer:     outcome.Kind == pipeline.KindGoldStandardAnswer,
			QuestionUUID:   outcome.QuestionUUID,
		})
	case pipeline.KindRejectedSensitiveQuestion, pipeline.KindRejectedSensitiveAnswer:
		c.Status(http.StatusBadRequest)
	case pipeline.KindNoDocumentFound, pipeline.KindInvalidModelAnswer:
		c.Status(http.StatusNotFound)
	case pipeline.KindUpstreamFailure:
		status, detail := upstreamFailureResponse(outcome.FailedStage)
		c.JSON(status, gin.H{"error": detail})
	default:
		c.Status(http.StatusInternalServerError)
	}
}

// upstreamFailureResponse maps the failed stage to the boundary status. The
// retrieval and inference mappings (412 and 400) are inherited behaviour;
// the inference one in particular treats model-service outages as
// request-attributable.
func upstreamFailureResponse(stage pipeline.Stage) (int, string) {
	switch stage {
	case pipeline.StageRetrieval:
		return http.StatusPreconditionFailed, detailRetrieval
	case pipeline.StageInference:
		return http.StatusBadRequest, detailInference
	default:
		return http.StatusInternalServerError, detailSensitivity
	}
}

// flushTransaction persists the trace and notifies stream subscribers after
// the response is rendered.
func (s *Server) flushTransaction(tx *transaction.Transaction, body InferRequest, language qa.Language, outcome pipeline.Outcome, durationMs int64) {
	event := TransactionEvent{
		Type:          "transaction",
		TransactionID: tx.ID(),
		QuestionUUID:  outcome.QuestionUUID,
		CourseID:      body.CourseID,
		ResponseType:  string(outcome.Kind),
		Answered:      outcome.Answered(),
		DurationMs:    durationMs,
	}
	s.notifier.Broadcast(event)

	logrus.WithFields(logrus.Fields{
		"transaction_id": tx.ID(),
		"course_id":      body.CourseID,
		"response_type":  outcome.Kind,
		"duration_ms":    durationMs,
	}).Debug("transaction finished")

	if !tx.ShouldStore() {
		return
	}

	payload, err := json.Marshal(tx.Snapshot())
	if err != nil {
		logrus.WithError(err).WithField("transaction_id", tx.ID()).Warn("marshal transaction payload")
		payload = nil
	}
	record := &store.TransactionRecord{
		TransactionID: tx.ID(),
		QuestionUUID:  outcome.QuestionUUID,
		CourseID:      body.CourseID,
		Question:      outcome.Question,
		Language:      string(language),
		ResponseType:  string(outcome.Kind),
		Answered:      outcome.Answered(),
		DurationMs:    durationMs,
		PayloadJSON:   string(payload),
	}
	if err := s.db.SaveTransaction(record); err != nil {
		logrus.WithError(err).WithField("transaction_id", tx.ID()).Warn("store transaction")
	}
}
