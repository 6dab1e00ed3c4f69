// Package pipeline implements the inference pipeline controller: the state
// machine that sequences the sensitive-content, paraphrase, retrieval and QA
// model services into one terminal decision per question.
package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"course-qa/backend/internal/inference"
	"course-qa/backend/internal/paraphrase"
	"course-qa/backend/internal/qa"
	"course-qa/backend/internal/retrieval"
	"course-qa/backend/internal/safety"
	"course-qa/backend/internal/transaction"
	"course-qa/backend/internal/util"
)

// Request carries the validated fields of one /infer call.
type Request struct {
	Query           string
	CourseID        string
	UserID          string
	Language        qa.Language
	AllowAnnotation bool
	Client          map[string]any
}

// SensitivityGuard classifies a text as safe or unsafe.
type SensitivityGuard interface {
	Classify(ctx context.Context, text string, userID string) (safety.Verdict, error)
}

// ParaphraseLookup returns a vetted answer for an equivalent question.
type ParaphraseLookup interface {
	Find(ctx context.Context, question string, courseID string) (*paraphrase.Match, error)
}

// DocumentRetriever narrows course material to the best matching document.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, query string, language qa.Language, courseIDs []string) (*retrieval.Document, error)
}

// InferenceInvoker generates an answer from a question and a document.
type InferenceInvoker interface {
	Infer(ctx context.Context, query string, doc *retrieval.Document, userID string, language qa.Language) (inference.Result, error)
}

// Controller composes the downstream services into the per-request decision
// procedure. It holds only read-only client handles and is safe for
// concurrent use across requests.
type Controller struct {
	guard      SensitivityGuard
	paraphrase ParaphraseLookup
	retriever  DocumentRetriever
	invoker    InferenceInvoker
}

// NewController wires the controller with its downstream services.
func NewController(guard SensitivityGuard, lookup ParaphraseLookup, retriever DocumentRetriever, invoker InferenceInvoker) *Controller {
	return &Controller{
		guard:      guard,
		paraphrase: lookup,
		retriever:  retriever,
		invoker:    invoker,
	}
}

// Run executes the pipeline for one request and returns its terminal
// outcome. Every stage's result and duration is recorded on tx regardless
// of the branch taken. The controller imposes no deadline of its own and
// never retries; each wrapper enforces its own timeout.
func (c *Controller) Run(ctx context.Context, req Request, tx *transaction.Transaction) Outcome {
	questionUUID := uuid.NewString()
	cleanedQuestion := qa.Clean(req.Query)

	tx.Record(transaction.Facts{
		"question_uuid":    questionUUID,
		"question":         cleanedQuestion,
		"course_id":        req.CourseID,
		"user":             req.UserID,
		"language":         req.Language,
		"allow_annotation": req.AllowAnnotation,
		"client":           req.Client,
	})

	terminal := func(kind Kind) Outcome {
		tx.Record(transaction.Facts{"response_type": string(kind)})
		return Outcome{
			Kind:          kind,
			Question:      cleanedQuestion,
			QuestionUUID:  questionUUID,
			TransactionID: tx.ID(),
		}
	}
	failed := func(stage Stage, cause error) Outcome {
		out := terminal(KindUpstreamFailure)
		out.FailedStage = stage
		out.Cause = cause
		return out
	}

	// The question-sensitivity check and the paraphrase lookup are
	// independent; run both before branching. Fixed fan-out of two, joined
	// here - not a worker pool.
	var (
		wg           sync.WaitGroup
		questionSafe bool
		guardErr     error
		match        *paraphrase.Match
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		questionSafe, guardErr = c.classifyQuestion(ctx, tx, req.UserID, cleanedQuestion)
	}()
	go func() {
		defer wg.Done()
		match = c.findParaphrase(ctx, tx, req.CourseID, cleanedQuestion)
	}()
	wg.Wait()

	if guardErr != nil {
		return failed(StageSensitivity, guardErr)
	}
	if !questionSafe {
		return terminal(KindRejectedSensitiveQuestion)
	}
	if match != nil {
		out := terminal(KindGoldStandardAnswer)
		out.Answer = match.GSAnswerContentStr
		return out
	}

	doc, err := c.retrieveDocument(ctx, tx, req, cleanedQuestion)
	if err != nil {
		return failed(StageRetrieval, err)
	}
	if doc == nil {
		return terminal(KindNoDocumentFound)
	}

	result, err := c.runInference(ctx, tx, req, cleanedQuestion, doc)
	if err != nil {
		return failed(StageInference, err)
	}

	cleanedAnswer := qa.Clean(result.Answer)
	if !qa.CheckAnswerValidity(cleanedAnswer, req.Language) {
		logrus.WithFields(logrus.Fields{
			"transaction_id": tx.ID(),
			"model_name":     result.ModelContext.ModelName,
		}).Info("model answer rejected as invalid")
		return terminal(KindInvalidModelAnswer)
	}

	answerSafe, err := c.classifyAnswer(ctx, tx, req.UserID, cleanedAnswer)
	if err != nil {
		return failed(StageSensitivity, err)
	}
	if !answerSafe {
		return terminal(KindRejectedSensitiveAnswer)
	}

	out := terminal(KindModelAnswer)
	out.Answer = cleanedAnswer
	return out
}

func (c *Controller) classifyQuestion(ctx context.Context, tx *transaction.Transaction, userID string, question string) (bool, error) {
	timer := util.StartTimer()
	v, err := c.guard.Classify(ctx, question, userID)
	if err != nil {
		tx.Record(transaction.Facts{"error": "Exception in Sensitive Content Detection.", "cause": err.Error()})
		logrus.WithError(err).Error("sensitive content detection failed for question")
		return false, err
	}
	tx.Record(transaction.Facts{
		"question_sensitivity": v.Sensitivity,
		"pipeline_steps": transaction.Facts{
			"sensitive_content_detection_question": transaction.Facts{
				"sensitivity": v.Sensitivity,
				"model_name":  v.ModelName,
				"duration":    timer.ElapsedMs(),
			},
		},
	})
	logrus.WithFields(logrus.Fields{
		"sensitivity": v.Sensitivity,
		"model_name":  v.ModelName,
		"duration_ms": timer.ElapsedMs(),
	}).Info("classified question")
	return v.Safe(), nil
}

func (c *Controller) classifyAnswer(ctx context.Context, tx *transaction.Transaction, userID string, answer string) (bool, error) {
	timer := util.StartTimer()
	v, err := c.guard.Classify(ctx, answer, userID)
	if err != nil {
		tx.Record(transaction.Facts{"error": "Exception in Sensitive Content Detection.", "cause": err.Error()})
		logrus.WithError(err).Error("sensitive content detection failed for answer")
		return false, err
	}
	tx.Record(transaction.Facts{
		"answer_sensitivity": v.Sensitivity,
		"pipeline_steps": transaction.Facts{
			"sensitive_content_detection_answer": transaction.Facts{
				"sensitivity": v.Sensitivity,
				"model_name":  v.ModelName,
				"duration":    timer.ElapsedMs(),
			},
		},
	})
	logrus.WithFields(logrus.Fields{
		"sensitivity": v.Sensitivity,
		"model_name":  v.ModelName,
		"duration_ms": timer.ElapsedMs(),
	}).Info("classified answer")
	return v.Safe(), nil
}

// findParaphrase fails open: a paraphrase service failure is logged and
// recorded but treated as "no match", since the lookup is a latency
// optimization rather than a correctness requirement.
func (c *Controller) findParaphrase(ctx context.Context, tx *transaction.Transaction, courseID string, question string) *paraphrase.Match {
	timer := util.StartTimer()
	match, err := c.paraphrase.Find(ctx, question, courseID)
	if err != nil {
		tx.Record(transaction.Facts{"error": "Exception in Paraphrasing.", "cause": err.Error()})
		logrus.WithError(err).Error("paraphrase lookup failed; continuing without gold standard answer")
		return nil
	}
	if match == nil {
		return nil
	}
	tx.Record(transaction.Facts{
		"pipeline_steps": transaction.Facts{
			"paraphrase": transaction.Facts{
				"result":   match,
				"duration": timer.ElapsedMs(),
			},
		},
	})
	logrus.WithField("course_id", courseID).Info("gold standard answer retrieved from paraphrase service")
	return match
}

func (c *Controller) retrieveDocument(ctx context.Context, tx *transaction.Transaction, req Request, question string) (*retrieval.Document, error) {
	timer := util.StartTimer()
	doc, err := c.retriever.Retrieve(ctx, question, req.Language, []string{req.CourseID})
	if err != nil {
		tx.Record(transaction.Facts{"error": "Exception in Prefiltering.", "cause": err.Error()})
		logrus.WithError(err).Error("prefiltering failed")
		return nil, err
	}
	result := transaction.Facts{}
	if doc != nil {
		result["doc_id"] = doc.DocID
	}
	tx.Record(transaction.Facts{
		"pipeline_steps": transaction.Facts{
			"preselection": transaction.Facts{
				"result":   result,
				"duration": timer.ElapsedMs(),
			},
		},
	})
	if doc == nil {
		logrus.Info("no relevant data found while prefiltering")
	}
	return doc, nil
}

func (c *Controller) runInference(ctx context.Context, tx *transaction.Transaction, req Request, question string, doc *retrieval.Document) (inference.Result, error) {
	timer := util.StartTimer()
	result, err := c.invoker.Infer(ctx, question, doc, req.UserID, req.Language)
	if err != nil {
		tx.Record(transaction.Facts{"error": "Exception in QAService.", "cause": err.Error()})
		logrus.WithError(err).Error("qa service failed")
		return inference.Result{}, err
	}
	tx.Record(transaction.Facts{
		"model_name": result.ModelContext.ModelName,
		"answer":     result.Answer,
		"pipeline_steps": transaction.Facts{
			"inference": transaction.Facts{
				"model_name":     result.ModelContext.ModelName,
				"inference_body": result,
				"duration":       timer.ElapsedMs(),
			},
		},
	})
	logrus.WithFields(logrus.Fields{
		"model_name":  result.ModelContext.ModelName,
		"duration_ms": timer.ElapsedMs(),
	}).Info("qa service result")
	return result, nil
}
