package vectorstore

import (
	"context"
	"errors"

	"github.com/docuchat/docuchat-backend/internal/models"
)

// ErrInvalidQuery means the query parameters can never match anything,
// such as a non-positive result count.
var ErrInvalidQuery = errors.New("invalid vector query")

// Record is one embedded chunk ready for indexing. ID is stable per
// chunk, so re-upserting after a retry overwrites rather than
// duplicates.
type Record struct {
	ID         string
	DocumentID string
	Ordinal    int
	Text       string
	Vector     []float32
}

// Result is one retrieval hit, highest similarity first.
type Result struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Score      float32
	Text       string
}

// Store indexes chunk vectors per namespace and answers similarity
// queries. Namespaces are fully isolated; a query never crosses into
// another namespace's records.
type Store interface {
	Upsert(ctx context.Context, ns models.Namespace, records []Record) error
	Query(ctx context.Context, ns models.Namespace, vector []float32, topK int) ([]Result, error)
	DeleteDocument(ctx context.Context, ns models.Namespace, documentID string) error
	DeleteNamespace(ctx context.Context, ns models.Namespace) error
}
