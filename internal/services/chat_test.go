package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat-backend/internal/db"
	"github.com/docuchat/docuchat-backend/internal/models"
	"github.com/docuchat/docuchat-backend/internal/rag"
	"github.com/docuchat/docuchat-backend/internal/repository"
	"github.com/docuchat/docuchat-backend/internal/utils"
	"github.com/docuchat/docuchat-backend/internal/vectorstore"
)

type chatFixture struct {
	service ChatService
	vectors *vectorstore.ChromemStore
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	logger := utils.NewLogger("error")

	dbFile := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, db.RunMigrations(dbFile, "../db/migrations"))
	database, err := db.NewSQLiteDB(dbFile)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	vectors, err := vectorstore.NewChromemStore("", logger)
	require.NoError(t, err)

	chats := repository.NewChatRepository(database)
	engine := rag.NewEngine(chats, fakeEmbedder{}, vectors, fakeCompleter{}, nil, rag.Options{
		TopK:          3,
		ContextBudget: 1000,
		HistoryWindow: 10,
	}, logger)

	service := NewChatService(chats, engine, vectors, logger)
	return &chatFixture{service: service, vectors: vectors}
}

func TestCreateAndGetSession(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx, "owner-1", "Contract review")
	require.NoError(t, err)
	assert.Equal(t, "Contract review", session.Title)
	assert.Contains(t, session.Namespace, "user_owner_1_session_")

	got, err := f.service.GetSession(ctx, "owner-1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	_, err = f.service.GetSession(ctx, "owner-2", session.ID)
	assertStatus(t, err, 404)
}

func TestCreateSessionRequiresOwner(t *testing.T) {
	f := newChatFixture(t)
	_, err := f.service.CreateSession(context.Background(), "", "title")
	assertStatus(t, err, 400)
}

func TestChatExchange(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx, "owner-1", "")
	require.NoError(t, err)

	answer, err := f.service.Chat(ctx, models.ChatRequest{
		OwnerID:   "owner-1",
		SessionID: session.ID,
		Message:   "what are the key terms?",
	})
	require.NoError(t, err)
	assert.Equal(t, "an answer", answer.AssistantMessage.Content)
	assert.Equal(t, 1, answer.UserMessage.Ordinal)
	assert.Equal(t, 2, answer.AssistantMessage.Ordinal)

	history, err := f.service.History(ctx, "owner-1", session.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)

	// The first exchange picks up a suggested title.
	got, err := f.service.GetSession(ctx, "owner-1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, "a title", got.Title)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx, "owner-1", "")
	require.NoError(t, err)

	_, err = f.service.Chat(ctx, models.ChatRequest{
		OwnerID:   "owner-1",
		SessionID: session.ID,
		Message:   "   ",
	})
	assertStatus(t, err, 400)
}

func TestDeleteSessionReleasesNamespace(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx, "owner-1", "")
	require.NoError(t, err)

	ns := models.Namespace{OwnerID: "owner-1", SessionID: session.ID}
	require.NoError(t, f.vectors.Upsert(ctx, ns, []vectorstore.Record{
		{ID: "d1:0", DocumentID: "d1", Ordinal: 0, Text: "chunk", Vector: []float32{1, 0, 0}},
	}))

	require.NoError(t, f.service.DeleteSession(ctx, "owner-1", session.ID))

	_, err = f.service.GetSession(ctx, "owner-1", session.ID)
	assertStatus(t, err, 404)

	results, err := f.vectors.Query(ctx, ns, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteSessionScopedToOwner(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx, "owner-1", "")
	require.NoError(t, err)

	err = f.service.DeleteSession(ctx, "owner-2", session.ID)
	assertStatus(t, err, 404)
}
