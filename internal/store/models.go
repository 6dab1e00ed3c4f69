package store

import "time"

// TransactionRecord is the persisted form of a completed request trace.
// The full fact map is stored as JSON; the indexed columns exist so the
// observability endpoints can list and filter without unpacking payloads.
type TransactionRecord struct {
	ID            uint   `gorm:"primaryKey"`
	TransactionID string `gorm:"uniqueIndex;size:64"`
	QuestionUUID  string `gorm:"index;size:64"`
	CourseID      string `gorm:"index;size:128"`
	Question      string
	Language      string `gorm:"size:8"`
	ResponseType  string `gorm:"index;size:64"`
	Answered      bool
	DurationMs    int64
	PayloadJSON   string `gorm:"type:text"`
	CreatedAt     time.Time
}
