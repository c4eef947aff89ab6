package models

import (
	"time"
)

// DocumentStatus tracks a document through the processing pipeline.
// Transitions are validated by CanTransition; anything else is a bug.
type DocumentStatus string

const (
	StatusPending        DocumentStatus = "pending"
	StatusExtracting     DocumentStatus = "extracting"
	StatusSummarizing    DocumentStatus = "summarizing"
	StatusRiskExtraction DocumentStatus = "risk_extraction"
	StatusChunking       DocumentStatus = "chunking"
	StatusEmbedding      DocumentStatus = "embedding"
	StatusCompleted      DocumentStatus = "completed"
	StatusFailed         DocumentStatus = "failed"
)

// statusTransitions enumerates the legal forward edges of the pipeline
// state machine. "failed" is reachable from any non-terminal state and
// is handled in CanTransition directly.
var statusTransitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:        {StatusExtracting},
	StatusExtracting:     {StatusSummarizing, StatusChunking},
	StatusSummarizing:    {StatusRiskExtraction, StatusChunking},
	StatusRiskExtraction: {StatusChunking},
	StatusChunking:       {StatusEmbedding, StatusCompleted},
	StatusEmbedding:      {StatusCompleted},
}

// Terminal reports whether no further transitions are allowed.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal
// pipeline transition.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	for _, t := range statusTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status value.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusExtracting, StatusSummarizing, StatusRiskExtraction,
		StatusChunking, StatusEmbedding, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Document is one uploaded file and its processing state.
// Documents are never hard-deleted; DeletedAt flips the soft-delete flag.
type Document struct {
	ID          string         `json:"id" db:"id"`
	OwnerID     string         `json:"owner_id" db:"owner_id"`
	SessionID   string         `json:"session_id" db:"session_id"`
	Filename    string         `json:"filename" db:"filename"`
	FileSize    int64          `json:"file_size" db:"file_size"`
	FileType    string         `json:"file_type" db:"file_type"`
	RawKey      string         `json:"-" db:"raw_key"`
	TextKey     string         `json:"-" db:"text_key"`
	Summary     *string        `json:"summary,omitempty" db:"summary"`
	RiskFactors *string        `json:"risk_factors,omitempty" db:"risk_factors"`
	Status      DocumentStatus `json:"status" db:"status"`
	ErrorDetail *string        `json:"error_detail,omitempty" db:"error_detail"`
	DeletedAt   *time.Time     `json:"-" db:"deleted_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Chunk is a contiguous slice of a document's extracted text.
// Chunks are immutable once written; the ID is derived from
// (document id, ordinal) so concurrent pipelines never collide.
type Chunk struct {
	ID          string    `json:"id" db:"id"`
	DocumentID  string    `json:"document_id" db:"document_id"`
	Ordinal     int       `json:"ordinal" db:"ordinal"`
	StartOffset int       `json:"start_offset" db:"start_offset"`
	EndOffset   int       `json:"end_offset" db:"end_offset"`
	Namespace   string    `json:"namespace" db:"namespace"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
