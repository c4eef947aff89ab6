package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docuchat/docuchat-backend/internal/analytics"
	"github.com/docuchat/docuchat-backend/internal/completion"
	"github.com/docuchat/docuchat-backend/internal/models"
	"github.com/docuchat/docuchat-backend/internal/pipeline"
	"github.com/docuchat/docuchat-backend/internal/repository"
	"github.com/docuchat/docuchat-backend/internal/storage"
	"github.com/docuchat/docuchat-backend/internal/utils"
	"github.com/docuchat/docuchat-backend/internal/vectorstore"
)

type DocumentService interface {
	Upload(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error)
	GetDocument(ctx context.Context, ownerID, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, ownerID, sessionID string) ([]models.Document, error)
	RegenerateSummary(ctx context.Context, ownerID, id string) (*models.SummaryResponse, error)
	DeleteDocument(ctx context.Context, ownerID, id string) error
}

// Limits bounds what the upload boundary accepts.
type Limits struct {
	MaxFileSize       int64
	UploadConcurrency int
}

type documentService struct {
	docs      *repository.DocumentRepository
	chats     *repository.ChatRepository
	blobs     storage.Storage
	pipeline  *pipeline.Pipeline
	completer completion.Completer
	vectors   vectorstore.Store
	usage     analytics.Emitter
	limits    Limits
	logger    *utils.Logger
}

func NewDocumentService(
	docs *repository.DocumentRepository,
	chats *repository.ChatRepository,
	blobs storage.Storage,
	pl *pipeline.Pipeline,
	completer completion.Completer,
	vectors vectorstore.Store,
	usage analytics.Emitter,
	limits Limits,
	logger *utils.Logger,
) DocumentService {
	if limits.UploadConcurrency <= 0 {
		limits.UploadConcurrency = 4
	}
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = 10 * 1024 * 1024
	}
	return &documentService{
		docs:      docs,
		chats:     chats,
		blobs:     blobs,
		pipeline:  pl,
		completer: completer,
		vectors:   vectors,
		usage:     usage,
		limits:    limits,
		logger:    logger,
	}
}

// Upload ingests a batch of files into one session, creating the
// session first when none was given. Files are processed concurrently
// and independently; the response carries a per-file report and a
// sibling's failure never aborts the rest.
func (s *documentService) Upload(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error) {
	if req.OwnerID == "" {
		return nil, utils.NewBadRequestError("owner id is required")
	}
	if len(req.Files) == 0 {
		return nil, utils.NewBadRequestError("no files provided")
	}

	session, err := s.resolveSession(ctx, req.OwnerID, req.SessionID)
	if err != nil {
		return nil, err
	}
	ns := models.Namespace{OwnerID: session.OwnerID, SessionID: session.ID}

	reports := make([]models.FileReport, len(req.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limits.UploadConcurrency)
	for i, file := range req.Files {
		i, file := i, file
		g.Go(func() error {
			reports[i] = s.processFile(gctx, session, file)
			return nil
		})
	}
	// Workers only report; the group never carries an error.
	_ = g.Wait()

	return &models.UploadResponse{
		SessionID: session.ID,
		Namespace: ns.Key(),
		Files:     reports,
	}, nil
}

// processFile validates one file, persists its document row and runs
// the pipeline. All failures are folded into the report.
func (s *documentService) processFile(ctx context.Context, session *models.ChatSession, file models.UploadFile) models.FileReport {
	report := models.FileReport{Filename: file.Filename, Status: models.StatusFailed}

	format, err := normalizeFormat(file.Filename, file.FileType)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	if int64(len(file.Content)) > s.limits.MaxFileSize {
		report.Error = fmt.Sprintf("file exceeds the %d byte limit", s.limits.MaxFileSize)
		return report
	}
	if len(file.Content) == 0 {
		report.Error = "file is empty"
		return report
	}

	exists, err := s.docs.ExistsInSession(ctx, session.ID, file.Filename)
	if err != nil {
		report.Error = "failed to check for duplicates"
		s.logger.Error("duplicate check failed", "filename", file.Filename, "error", err)
		return report
	}
	if exists {
		report.Error = fmt.Sprintf("a document named %q already exists in this session", file.Filename)
		return report
	}

	doc := &models.Document{
		ID:        utils.GenerateID(),
		OwnerID:   session.OwnerID,
		SessionID: session.ID,
		Filename:  file.Filename,
		FileSize:  int64(len(file.Content)),
		FileType:  format,
		Status:    models.StatusPending,
	}
	doc.RawKey = storage.RawKey(doc.ID, file.Filename)

	if err := s.blobs.Upload(ctx, doc.RawKey, file.Content, file.FileType); err != nil {
		report.Error = "failed to store file"
		s.logger.Error("raw upload failed", "filename", file.Filename, "error", err)
		return report
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		report.Error = "failed to register document"
		s.logger.Error("document insert failed", "filename", file.Filename, "error", err)
		return report
	}
	report.DocumentID = doc.ID

	if err := s.pipeline.Run(ctx, doc, file.Content); err != nil {
		report.Error = err.Error()
		return report
	}
	report.Status = models.StatusCompleted
	report.Error = ""
	return report
}

func (s *documentService) resolveSession(ctx context.Context, ownerID, sessionID string) (*models.ChatSession, error) {
	if sessionID == "" {
		session := &models.ChatSession{
			ID:      utils.GenerateID(),
			OwnerID: ownerID,
		}
		session.Namespace = models.Namespace{OwnerID: ownerID, SessionID: session.ID}.Key()
		if err := s.chats.CreateSession(ctx, session); err != nil {
			return nil, utils.NewInternalError("failed to create session")
		}
		return session, nil
	}

	session, err := s.chats.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.NewNotFoundError("session not found")
	}
	if err != nil {
		return nil, utils.NewInternalError("failed to load session")
	}
	if session.OwnerID != ownerID {
		return nil, utils.NewNotFoundError("session not found")
	}
	return session, nil
}

func (s *documentService) GetDocument(ctx context.Context, ownerID, id string) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.NewNotFoundError("document not found")
	}
	if err != nil {
		return nil, utils.NewInternalError("failed to load document")
	}
	if doc.OwnerID != ownerID {
		return nil, utils.NewNotFoundError("document not found")
	}
	return doc, nil
}

func (s *documentService) ListDocuments(ctx context.Context, ownerID, sessionID string) ([]models.Document, error) {
	session, err := s.resolveSessionStrict(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	docs, err := s.docs.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, utils.NewInternalError("failed to list documents")
	}
	return docs, nil
}

func (s *documentService) resolveSessionStrict(ctx context.Context, ownerID, sessionID string) (*models.ChatSession, error) {
	if sessionID == "" {
		return nil, utils.NewBadRequestError("session id is required")
	}
	return s.resolveSession(ctx, ownerID, sessionID)
}

// RegenerateSummary re-runs summarization for a completed document
// from its stored extracted text.
func (s *documentService) RegenerateSummary(ctx context.Context, ownerID, id string) (*models.SummaryResponse, error) {
	doc, err := s.GetDocument(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusCompleted {
		return nil, utils.NewConflictError(fmt.Sprintf("document is %s, not completed", doc.Status))
	}
	if doc.TextKey == "" {
		return nil, utils.NewConflictError("document has no extracted text")
	}

	text, err := s.blobs.Download(ctx, doc.TextKey)
	if err != nil {
		s.logger.Error("failed to download extracted text", "document_id", doc.ID, "error", err)
		return nil, utils.NewInternalError("failed to load document text")
	}

	summary, usage, err := s.completer.Summarize(ctx, string(text))
	if err != nil {
		s.logger.Error("summary regeneration failed", "document_id", doc.ID, "error", err)
		return nil, utils.NewInternalError("failed to generate summary")
	}
	if err := s.docs.SetSummary(ctx, doc.ID, summary); err != nil {
		return nil, utils.NewInternalError("failed to store summary")
	}
	if s.usage != nil {
		if err := s.usage.Emit(context.WithoutCancel(ctx), ownerID, models.FeatureSummarization, usage.TotalTokens); err != nil {
			s.logger.Warn("failed to emit usage event", "error", err)
		}
	}

	return &models.SummaryResponse{
		DocumentID:  doc.ID,
		SessionID:   doc.SessionID,
		Summary:     summary,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// DeleteDocument soft-deletes the row and releases the document's
// blobs and vectors. Blob and vector cleanup is best effort; the row
// is already hidden when they run.
func (s *documentService) DeleteDocument(ctx context.Context, ownerID, id string) error {
	doc, err := s.GetDocument(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.docs.SoftDelete(ctx, id); err != nil {
		return utils.NewInternalError("failed to delete document")
	}

	ns := models.Namespace{OwnerID: doc.OwnerID, SessionID: doc.SessionID}
	if err := s.vectors.DeleteDocument(ctx, ns, doc.ID); err != nil {
		s.logger.Warn("failed to delete document vectors", "document_id", doc.ID, "error", err)
	}
	if err := s.blobs.Delete(ctx, doc.RawKey); err != nil {
		s.logger.Warn("failed to delete raw object", "document_id", doc.ID, "error", err)
	}
	if doc.TextKey != "" {
		if err := s.blobs.Delete(ctx, doc.TextKey); err != nil {
			s.logger.Warn("failed to delete text object", "document_id", doc.ID, "error", err)
		}
	}
	return nil
}

// normalizeFormat maps the declared content type, or failing that the
// filename extension, onto one of the supported formats.
func normalizeFormat(filename, contentType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "application/pdf":
		return "pdf", nil
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx", nil
	case "application/msword":
		return "doc", nil
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf", nil
	case ".docx":
		return "docx", nil
	case ".doc":
		return "doc", nil
	}
	return "", fmt.Errorf("unsupported file type %q, only PDF, DOCX and DOC are allowed", contentType)
}
