package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/docuchat/docuchat-backend/internal/models"
	"github.com/docuchat/docuchat-backend/internal/utils"
)

// ChromemStore keeps one chromem collection per namespace. Vectors are
// computed upstream, so the collection's embedding func is never
// invoked; it exists only because the chromem API requires one.
type ChromemStore struct {
	db     *chromem.DB
	mu     sync.Mutex
	logger *utils.Logger
}

// NewChromemStore opens a persistent store rooted at dataDir. An empty
// dataDir keeps everything in memory, which the tests rely on.
func NewChromemStore(dataDir string, logger *utils.Logger) (*ChromemStore, error) {
	var db *chromem.DB
	var err error
	if dataDir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dataDir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
	}
	return &ChromemStore{db: db, logger: logger}, nil
}

// noEmbed rejects any attempt to embed inside the store. All vectors
// arrive precomputed.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("vector store does not embed text")
}

func (s *ChromemStore) collection(ns models.Namespace) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.GetOrCreateCollection(ns.Key(), nil, noEmbed)
}

// Upsert writes the records into the namespace's collection. Records
// with IDs already present are overwritten, so replaying a failed
// embedding stage is safe.
func (s *ChromemStore) Upsert(ctx context.Context, ns models.Namespace, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	col, err := s.collection(ns)
	if err != nil {
		return fmt.Errorf("failed to open collection %s: %w", ns.Key(), err)
	}
	for _, r := range records {
		doc := chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Embedding: r.Vector,
			Metadata: map[string]string{
				"document_id": r.DocumentID,
				"ordinal":     strconv.Itoa(r.Ordinal),
			},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", r.ID, err)
		}
	}
	return nil
}

// Query returns up to topK records of the namespace ranked by cosine
// similarity, best first. Ties break on ordinal, lowest first. An
// unknown or empty namespace yields zero results, not an error.
func (s *ChromemStore) Query(ctx context.Context, ns models.Namespace, vector []float32, topK int) ([]Result, error) {
	if topK < 1 {
		return nil, ErrInvalidQuery
	}
	if len(vector) == 0 {
		return nil, ErrInvalidQuery
	}

	s.mu.Lock()
	col := s.db.GetCollection(ns.Key(), noEmbed)
	s.mu.Unlock()
	if col == nil {
		return nil, nil
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	hits, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		ordinal, _ := strconv.Atoi(h.Metadata["ordinal"])
		results = append(results, Result{
			ChunkID:    h.ID,
			DocumentID: h.Metadata["document_id"],
			Ordinal:    ordinal,
			Score:      h.Similarity,
			Text:       h.Content,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Ordinal < results[j].Ordinal
	})
	return results, nil
}

// DeleteDocument removes every record of one document from the
// namespace. Used when a single document is deleted while its session
// lives on.
func (s *ChromemStore) DeleteDocument(ctx context.Context, ns models.Namespace, documentID string) error {
	s.mu.Lock()
	col := s.db.GetCollection(ns.Key(), noEmbed)
	s.mu.Unlock()
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}
	return nil
}

// DeleteNamespace drops the namespace's collection and every record in
// it. Deleting a namespace that was never written is a no-op.
func (s *ChromemStore) DeleteNamespace(ctx context.Context, ns models.Namespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db.GetCollection(ns.Key(), noEmbed) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(ns.Key()); err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", ns.Key(), err)
	}
	return nil
}
