package models

import "time"

// Feature tags for usage events.
const (
	FeatureSummarization = "summarization"
	FeatureEmbedding     = "embedding"
	FeatureChat          = "chat"
)

// UsageEvent records token consumption attributable to one AI
// operation. The core only emits these; aggregation belongs to the
// analytics collaborator.
type UsageEvent struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Feature   string    `json:"feature" db:"feature"`
	Tokens    int       `json:"tokens" db:"tokens"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
