package pipeline

import (
	"context"
	"fmt"

	"github.com/docuchat/docuchat-backend/internal/analytics"
	"github.com/docuchat/docuchat-backend/internal/chunker"
	"github.com/docuchat/docuchat-backend/internal/completion"
	"github.com/docuchat/docuchat-backend/internal/embedding"
	"github.com/docuchat/docuchat-backend/internal/extractor"
	"github.com/docuchat/docuchat-backend/internal/models"
	"github.com/docuchat/docuchat-backend/internal/storage"
	"github.com/docuchat/docuchat-backend/internal/utils"
	"github.com/docuchat/docuchat-backend/internal/vectorstore"
)

// DocumentStore is the slice of the document repository the pipeline
// needs. Satisfied by repository.DocumentRepository.
type DocumentStore interface {
	TransitionStatus(ctx context.Context, id string, current, next models.DocumentStatus) error
	SetFailure(ctx context.Context, id, detail string) error
	SetTextKey(ctx context.Context, id, textKey string) error
	SetSummary(ctx context.Context, id, summary string) error
	SetRiskFactors(ctx context.Context, id, riskFactors string) error
	ReplaceChunks(ctx context.Context, documentID string, chunks []models.Chunk) error
}

// Options toggles the optional stages.
type Options struct {
	SummarizationEnabled  bool
	RiskExtractionEnabled bool
}

// Pipeline drives one document from pending to completed, persisting
// each status transition before starting the next stage. Stages run
// strictly in order; a stage failure marks the document failed with a
// diagnostic and stops the run. A context cancellation stops the run
// without marking the document failed, leaving it at the last
// committed stage.
type Pipeline struct {
	docs      DocumentStore
	blobs     storage.Storage
	extractor extractor.Extractor
	completer completion.Completer
	embedder  embedding.Embedder
	vectors   vectorstore.Store
	chunker   *chunker.Chunker
	usage     analytics.Emitter
	opts      Options
	logger    *utils.Logger
}

func New(
	docs DocumentStore,
	blobs storage.Storage,
	ex extractor.Extractor,
	completer completion.Completer,
	embedder embedding.Embedder,
	vectors vectorstore.Store,
	ck *chunker.Chunker,
	usage analytics.Emitter,
	opts Options,
	logger *utils.Logger,
) *Pipeline {
	return &Pipeline{
		docs:      docs,
		blobs:     blobs,
		extractor: ex,
		completer: completer,
		embedder:  embedder,
		vectors:   vectors,
		chunker:   ck,
		usage:     usage,
		opts:      opts,
		logger:    logger,
	}
}

// Run processes one uploaded document. The document row must already
// exist in status pending with its raw bytes stored. Returns the error
// that stopped the run, nil on completion.
func (p *Pipeline) Run(ctx context.Context, doc *models.Document, raw []byte) error {
	log := p.logger.Component("pipeline")

	text, err := p.extract(ctx, doc, raw)
	if err != nil {
		return p.fail(ctx, doc, "extraction", err)
	}

	current := models.StatusExtracting

	if p.opts.SummarizationEnabled {
		if err := p.transition(ctx, doc.ID, current, models.StatusSummarizing); err != nil {
			return err
		}
		current = models.StatusSummarizing

		summary, usage, err := p.completer.Summarize(ctx, text)
		if err != nil {
			return p.fail(ctx, doc, "summarization", err)
		}
		if err := p.docs.SetSummary(ctx, doc.ID, summary); err != nil {
			return p.fail(ctx, doc, "summarization", err)
		}
		p.emitUsage(ctx, doc.OwnerID, models.FeatureSummarization, usage.TotalTokens)

		if p.opts.RiskExtractionEnabled {
			if err := p.transition(ctx, doc.ID, current, models.StatusRiskExtraction); err != nil {
				return err
			}
			current = models.StatusRiskExtraction

			risks, riskUsage, err := p.completer.RiskFactors(ctx, text)
			if err != nil {
				return p.fail(ctx, doc, "risk extraction", err)
			}
			if err := p.docs.SetRiskFactors(ctx, doc.ID, risks); err != nil {
				return p.fail(ctx, doc, "risk extraction", err)
			}
			p.emitUsage(ctx, doc.OwnerID, models.FeatureSummarization, riskUsage.TotalTokens)
		}
	}

	if err := p.transition(ctx, doc.ID, current, models.StatusChunking); err != nil {
		return err
	}

	spans := p.chunker.Chunk(text)
	if len(spans) == 0 {
		// Nothing to index; the document is still queryable by summary.
		log.Info("document produced no chunks", "document_id", doc.ID)
		return p.transition(ctx, doc.ID, models.StatusChunking, models.StatusCompleted)
	}

	ns := models.Namespace{OwnerID: doc.OwnerID, SessionID: doc.SessionID}
	chunks := make([]models.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = models.Chunk{
			ID:          fmt.Sprintf("%s:%d", doc.ID, span.Ordinal),
			DocumentID:  doc.ID,
			Ordinal:     span.Ordinal,
			StartOffset: span.Start,
			EndOffset:   span.End,
			Namespace:   ns.Key(),
		}
	}
	if err := p.docs.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return p.fail(ctx, doc, "chunking", err)
	}

	if err := p.transition(ctx, doc.ID, models.StatusChunking, models.StatusEmbedding); err != nil {
		return err
	}

	if err := p.embedAndIndex(ctx, doc, ns, spans); err != nil {
		return p.fail(ctx, doc, "embedding", err)
	}

	if err := p.transition(ctx, doc.ID, models.StatusEmbedding, models.StatusCompleted); err != nil {
		return err
	}
	log.Info("document completed", "document_id", doc.ID, "chunks", len(spans))
	return nil
}

// extract moves the document into extracting, pulls text out of the
// raw bytes and persists the normalized result. Extraction is never
// retried; a corrupt file stays corrupt.
func (p *Pipeline) extract(ctx context.Context, doc *models.Document, raw []byte) (string, error) {
	if err := p.transition(ctx, doc.ID, models.StatusPending, models.StatusExtracting); err != nil {
		return "", err
	}

	text, err := p.extractor.Extract(raw, doc.FileType)
	if err != nil {
		return "", err
	}
	text = extractor.NormalizeText(text)

	textKey := storage.TextKey(doc.ID)
	if err := p.blobs.Upload(ctx, textKey, []byte(text), "text/plain; charset=utf-8"); err != nil {
		return "", fmt.Errorf("failed to store extracted text: %w", err)
	}
	if err := p.docs.SetTextKey(ctx, doc.ID, textKey); err != nil {
		return "", err
	}
	return text, nil
}

// embedAndIndex embeds every chunk and upserts the vectors. The stage
// is one retryable unit: chunk IDs are stable, so a second attempt
// after a partial upsert overwrites instead of duplicating.
func (p *Pipeline) embedAndIndex(ctx context.Context, doc *models.Document, ns models.Namespace, spans []chunker.Span) error {
	texts := make([]string, len(spans))
	for i, span := range spans {
		texts[i] = span.Text
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		vectors, tokens, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		records := make([]vectorstore.Record, len(spans))
		for i, span := range spans {
			records[i] = vectorstore.Record{
				ID:         fmt.Sprintf("%s:%d", doc.ID, span.Ordinal),
				DocumentID: doc.ID,
				Ordinal:    span.Ordinal,
				Text:       span.Text,
				Vector:     vectors[i],
			}
		}
		if err := p.vectors.Upsert(ctx, ns, records); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		p.emitUsage(ctx, doc.OwnerID, models.FeatureEmbedding, tokens)
		return nil
	}
	return lastErr
}

// transition persists a status change. Context errors pass through
// untouched so Run can stop without failing the document.
func (p *Pipeline) transition(ctx context.Context, id string, current, next models.DocumentStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.docs.TransitionStatus(ctx, id, current, next)
}

// fail records the diagnostic and marks the document failed, unless
// the run was cancelled, in which case the status stays where the last
// transition left it.
func (p *Pipeline) fail(ctx context.Context, doc *models.Document, stage string, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	detail := fmt.Sprintf("%s failed: %v", stage, cause)
	if err := p.docs.SetFailure(context.WithoutCancel(ctx), doc.ID, detail); err != nil {
		p.logger.Error("failed to record document failure", "document_id", doc.ID, "error", err)
	}
	p.logger.Error("document processing failed",
		"document_id", doc.ID, "stage", stage, "error", cause)
	return fmt.Errorf("%s: %w", stage, cause)
}

func (p *Pipeline) emitUsage(ctx context.Context, ownerID, feature string, tokens int) {
	if p.usage == nil {
		return
	}
	if err := p.usage.Emit(context.WithoutCancel(ctx), ownerID, feature, tokens); err != nil {
		p.logger.Warn("failed to emit usage event", "feature", feature, "error", err)
	}
}
