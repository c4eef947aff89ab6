package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat-backend/internal/chunker"
	"github.com/docuchat/docuchat-backend/internal/completion"
	"github.com/docuchat/docuchat-backend/internal/db"
	"github.com/docuchat/docuchat-backend/internal/models"
	"github.com/docuchat/docuchat-backend/internal/pipeline"
	"github.com/docuchat/docuchat-backend/internal/repository"
	"github.com/docuchat/docuchat-backend/internal/utils"
	"github.com/docuchat/docuchat-backend/internal/vectorstore"
)

type fakeBlobs struct {
	objects map[string][]byte
}

func (f *fakeBlobs) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = data
	return nil
}

func (f *fakeBlobs) Download(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeBlobs) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(data []byte, format string) (string, error) {
	return string(data), nil
}

type fakeCompleter struct{}

func (fakeCompleter) Summarize(ctx context.Context, text string) (string, completion.TokenUsage, error) {
	return "a summary", completion.TokenUsage{TotalTokens: 9}, nil
}

func (fakeCompleter) RiskFactors(ctx context.Context, text string) (string, completion.TokenUsage, error) {
	return `{"risk_factors": []}`, completion.TokenUsage{}, nil
}

func (fakeCompleter) Complete(ctx context.Context, contextText string, history []completion.Message, userMessage string) (string, completion.TokenUsage, error) {
	return "an answer", completion.TokenUsage{TotalTokens: 5}, nil
}

func (fakeCompleter) SuggestTitle(ctx context.Context, firstMessage string) (string, error) {
	return "a title", nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, len(texts) * 2, nil
}

type docFixture struct {
	service DocumentService
	docs    *repository.DocumentRepository
	chats   *repository.ChatRepository
	blobs   *fakeBlobs
	vectors *vectorstore.ChromemStore
}

func newDocFixture(t *testing.T) *docFixture {
	t.Helper()
	logger := utils.NewLogger("error")

	dbFile := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, db.RunMigrations(dbFile, "../db/migrations"))
	database, err := db.NewSQLiteDB(dbFile)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	vectors, err := vectorstore.NewChromemStore("", logger)
	require.NoError(t, err)

	ck, err := chunker.New(chunker.Config{MaxChunkSize: 50, OverlapSize: 10})
	require.NoError(t, err)

	docs := repository.NewDocumentRepository(database)
	chats := repository.NewChatRepository(database)
	blobs := &fakeBlobs{}

	pl := pipeline.New(
		docs, blobs, fakeExtractor{}, fakeCompleter{}, fakeEmbedder{},
		vectors, ck, nil,
		pipeline.Options{SummarizationEnabled: true}, logger,
	)

	service := NewDocumentService(
		docs, chats, blobs, pl, fakeCompleter{}, vectors, nil,
		Limits{MaxFileSize: 1 << 20, UploadConcurrency: 2}, logger,
	)
	return &docFixture{service: service, docs: docs, chats: chats, blobs: blobs, vectors: vectors}
}

func pdfFile(name, content string) models.UploadFile {
	return models.UploadFile{
		Filename: name,
		Content:  []byte(content),
		FileType: "application/pdf",
	}
}

func TestUploadCreatesSessionAndProcesses(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	resp, err := f.service.Upload(ctx, &models.UploadRequest{
		OwnerID: "owner-1",
		Files:   []models.UploadFile{pdfFile("report.pdf", "The quick brown fox jumps over the lazy dog repeatedly.")},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.SessionID)
	assert.Contains(t, resp.Namespace, "user_owner_1_session_")
	require.Len(t, resp.Files, 1)
	assert.Equal(t, models.StatusCompleted, resp.Files[0].Status)
	assert.Empty(t, resp.Files[0].Error)

	doc, err := f.service.GetDocument(ctx, "owner-1", resp.Files[0].DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, doc.Status)
	require.NotNil(t, doc.Summary)
	assert.Equal(t, "a summary", *doc.Summary)

	// Retrieval works against the session's namespace.
	ns := models.Namespace{OwnerID: "owner-1", SessionID: resp.SessionID}
	results, err := f.vectors.Query(ctx, ns, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestUploadPerFileReports(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	resp, err := f.service.Upload(ctx, &models.UploadRequest{
		OwnerID: "owner-1",
		Files: []models.UploadFile{
			pdfFile("good.pdf", "Valid document text for processing."),
			{Filename: "bad.xlsx", Content: []byte("data"), FileType: "application/vnd.ms-excel"},
			{Filename: "huge.pdf", Content: []byte(strings.Repeat("x", 2<<20)), FileType: "application/pdf"},
			{Filename: "empty.pdf", Content: nil, FileType: "application/pdf"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Files, 4)

	byName := map[string]models.FileReport{}
	for _, report := range resp.Files {
		byName[report.Filename] = report
	}

	assert.Equal(t, models.StatusCompleted, byName["good.pdf"].Status)
	assert.Contains(t, byName["bad.xlsx"].Error, "unsupported file type")
	assert.Contains(t, byName["huge.pdf"].Error, "byte limit")
	assert.Contains(t, byName["empty.pdf"].Error, "empty")
}

func TestUploadRejectsDuplicateFilename(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	first, err := f.service.Upload(ctx, &models.UploadRequest{
		OwnerID: "owner-1",
		Files:   []models.UploadFile{pdfFile("report.pdf", "Original upload content.")},
	})
	require.NoError(t, err)

	second, err := f.service.Upload(ctx, &models.UploadRequest{
		OwnerID:   "owner-1",
		SessionID: first.SessionID,
		Files:     []models.UploadFile{pdfFile("report.pdf", "Duplicate upload content.")},
	})
	require.NoError(t, err)
	require.Len(t, second.Files, 1)
	assert.Equal(t, models.StatusFailed, second.Files[0].Status)
	assert.Contains(t, second.Files[0].Error, "already exists")
}

func TestUploadValidation(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	_, err := f.service.Upload(ctx, &models.UploadRequest{OwnerID: "", Files: []models.UploadFile{pdfFile("a.pdf", "x")}})
	assertStatus(t, err, 400)

	_, err = f.service.Upload(ctx, &models.UploadRequest{OwnerID: "owner-1"})
	assertStatus(t, err, 400)

	_, err = f.service.Upload(ctx, &models.UploadRequest{
		OwnerID:   "owner-1",
		SessionID: "missing-session",
		Files:     []models.UploadFile{pdfFile("a.pdf", "x")},
	})
	assertStatus(t, err, 404)
}

func TestGetDocumentScopedToOwner(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	resp, err := f.service.Upload(ctx, &models.UploadRequest{
		OwnerID: "owner-1",
		Files:   []models.UploadFile{pdfFile("report.pdf", "content")},
	})
	require.NoError(t, err)

	_, err = f.service.GetDocument(ctx, "owner-2", resp.Files[0].DocumentID)
	assertStatus(t, err, 404)
}

func TestRegenerateSummary(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	resp, err := f.service.Upload(ctx, &models.UploadRequest{
		OwnerID: "owner-1",
		Files:   []models.UploadFile{pdfFile("report.pdf", "Document text to summarize again.")},
	})
	require.NoError(t, err)

	summary, err := f.service.RegenerateSummary(ctx, "owner-1", resp.Files[0].DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "a summary", summary.Summary)
	assert.Equal(t, resp.SessionID, summary.SessionID)
}

func TestDeleteDocumentReleasesBlobsAndVectors(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	resp, err := f.service.Upload(ctx, &models.UploadRequest{
		OwnerID: "owner-1",
		Files:   []models.UploadFile{pdfFile("report.pdf", "Text that will be indexed and then deleted.")},
	})
	require.NoError(t, err)
	docID := resp.Files[0].DocumentID

	require.NoError(t, f.service.DeleteDocument(ctx, "owner-1", docID))

	_, err = f.service.GetDocument(ctx, "owner-1", docID)
	assertStatus(t, err, 404)
	assert.Empty(t, f.blobs.objects)

	ns := models.Namespace{OwnerID: "owner-1", SessionID: resp.SessionID}
	results, err := f.vectors.Query(ctx, ns, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, status, appErr.StatusCode)
}
