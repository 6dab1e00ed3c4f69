package pipeline

// Stage names the downstream call a fatal failure is attributed to.
type Stage string

const (
	StageSensitivity Stage = "sensitivity"
	StageRetrieval   Stage = "retrieval"
	StageInference   Stage = "inference"
)

// Kind enumerates the terminal decisions the pipeline can reach.
type Kind string

const (
	KindGoldStandardAnswer        Kind = "gs_answer"
	KindModelAnswer               Kind = "base_answer"
	KindRejectedSensitiveQuestion Kind = "sensitive_content_question"
	KindRejectedSensitiveAnswer   Kind = "sensitive_content_answer"
	KindNoDocumentFound           Kind = "invalid_no_docs_found"
	KindInvalidModelAnswer        Kind = "invalid_model_answer"
	KindUpstreamFailure           Kind = "upstream_failure"
)

// Outcome is the single terminal result of one pipeline run. Exactly one
// Outcome is produced per request; the API layer renders it to HTTP in one
// place.
type Outcome struct {
	Kind          Kind
	Answer        string
	Question      string
	QuestionUUID  string
	TransactionID string

	// FailedStage and Cause are set only for KindUpstreamFailure.
	FailedStage Stage
	Cause       error
}

// Answered reports whether the outcome carries an answer for the client.
func (o Outcome) Answered() bool {
	return o.Kind == KindGoldStandardAnswer || o.Kind == KindModelAnswer
}
