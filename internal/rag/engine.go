package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/docuchat/docuchat-backend/internal/analytics"
	"github.com/docuchat/docuchat-backend/internal/completion"
	"github.com/docuchat/docuchat-backend/internal/embedding"
	"github.com/docuchat/docuchat-backend/internal/models"
	"github.com/docuchat/docuchat-backend/internal/utils"
	"github.com/docuchat/docuchat-backend/internal/vectorstore"
)

// fallbackAnswer is returned when the completion provider is
// unavailable. The exchange is still persisted so the conversation
// stays consistent.
const fallbackAnswer = "I'm sorry, I couldn't generate a response right now. Please try again in a moment."

// ChatStore is the slice of the chat repository the engine needs.
// Satisfied by repository.ChatRepository.
type ChatStore interface {
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	SetTitle(ctx context.Context, id, title string) error
	MessageCount(ctx context.Context, sessionID string) (int, error)
	AppendExchange(ctx context.Context, sessionID, userContent, assistantContent string) (models.ChatMessage, models.ChatMessage, error)
	History(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
}

// Options bounds retrieval and context assembly.
type Options struct {
	TopK          int
	ContextBudget int
	HistoryWindow int
}

// Engine answers a user message from the session's document namespace:
// embed the query, retrieve the nearest chunks, assemble a bounded
// context and complete. Retrieval failures degrade to an uncontexted
// answer rather than erroring; completion failures degrade to a canned
// apology. Both are flagged on the response.
type Engine struct {
	chats     ChatStore
	embedder  embedding.Embedder
	vectors   vectorstore.Store
	completer completion.Completer
	usage     analytics.Emitter
	opts      Options
	logger    *utils.Logger

	// one mutex per session serializes exchanges so ordinals stay
	// strictly alternating under concurrent requests
	sessionLocks sync.Map
}

func NewEngine(
	chats ChatStore,
	embedder embedding.Embedder,
	vectors vectorstore.Store,
	completer completion.Completer,
	usage analytics.Emitter,
	opts Options,
	logger *utils.Logger,
) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 6000
	}
	if opts.HistoryWindow < 0 {
		opts.HistoryWindow = 0
	}
	return &Engine{
		chats:     chats,
		embedder:  embedder,
		vectors:   vectors,
		completer: completer,
		usage:     usage,
		opts:      opts,
		logger:    logger,
	}
}

func (e *Engine) lockSession(sessionID string) *sync.Mutex {
	mu, _ := e.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Answer runs one chat exchange for the session. The returned answer
// always contains both persisted messages; Degraded marks answers
// produced without document context or from the fallback text.
func (e *Engine) Answer(ctx context.Context, req models.ChatRequest) (*models.ChatAnswer, error) {
	log := e.logger.Component("rag")

	session, err := e.chats.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != req.OwnerID {
		return nil, utils.NewNotFoundError("session not found")
	}

	mu := e.lockSession(session.ID)
	mu.Lock()
	defer mu.Unlock()

	firstExchange := false
	if count, err := e.chats.MessageCount(ctx, session.ID); err == nil {
		firstExchange = count == 0
	}

	ns := models.Namespace{OwnerID: session.OwnerID, SessionID: session.ID}
	contextText, matches, degraded := e.retrieve(ctx, ns, req.Message, log)

	history, err := e.chats.History(ctx, session.ID, e.opts.HistoryWindow)
	if err != nil {
		log.Warn("failed to load history, answering without it", "session_id", session.ID, "error", err)
		history = nil
	}
	turns := make([]completion.Message, 0, len(history))
	for _, msg := range history {
		turns = append(turns, completion.Message{Role: msg.Role, Content: msg.Content})
	}

	answer, usage, err := e.completer.Complete(ctx, contextText, turns, req.Message)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error("completion failed, using fallback answer", "session_id", session.ID, "error", err)
		answer = fallbackAnswer
		degraded = true
		usage = completion.TokenUsage{}
	}

	userMsg, assistantMsg, err := e.chats.AppendExchange(ctx, session.ID, req.Message, answer)
	if err != nil {
		return nil, fmt.Errorf("failed to persist exchange: %w", err)
	}

	if usage.TotalTokens > 0 && e.usage != nil {
		if err := e.usage.Emit(context.WithoutCancel(ctx), session.OwnerID, models.FeatureChat, usage.TotalTokens); err != nil {
			log.Warn("failed to emit usage event", "error", err)
		}
	}

	if firstExchange {
		e.suggestTitle(ctx, session.ID, req.Message, log)
	}

	return &models.ChatAnswer{
		SessionID:        session.ID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Degraded:         degraded,
		TotalTokens:      usage.TotalTokens,
		Matches:          matches,
	}, nil
}

// retrieve embeds the query and assembles the context block from the
// nearest chunks, best match first, stopping before the budget is
// exceeded. Chunks are included whole or not at all. Any failure on
// this path returns empty context and degraded=true.
func (e *Engine) retrieve(ctx context.Context, ns models.Namespace, query string, log *utils.Logger) (string, []models.RetrievalMatch, bool) {
	vectors, _, err := e.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		log.Warn("query embedding failed, answering without context", "namespace", ns.Key(), "error", err)
		return "", nil, true
	}

	results, err := e.vectors.Query(ctx, ns, vectors[0], e.opts.TopK)
	if err != nil {
		log.Warn("retrieval failed, answering without context", "namespace", ns.Key(), "error", err)
		return "", nil, true
	}
	// No stored chunks means the answer is not grounded in documents;
	// that is a degraded answer even though nothing failed.
	if len(results) == 0 {
		return "", nil, true
	}

	var sb strings.Builder
	matches := make([]models.RetrievalMatch, 0, len(results))
	used := 0
	for _, res := range results {
		cost := len(res.Text)
		if used > 0 {
			cost += 2 // separator
		}
		if used+cost > e.opts.ContextBudget {
			continue
		}
		if used > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(res.Text)
		used += cost
		matches = append(matches, models.RetrievalMatch{
			ChunkID:    res.ChunkID,
			DocumentID: res.DocumentID,
			Ordinal:    res.Ordinal,
			Score:      res.Score,
		})
	}
	return sb.String(), matches, false
}

// suggestTitle asks the provider for a session title after the first
// exchange. On failure the title falls back to the first words of the
// message. Never fails the exchange.
func (e *Engine) suggestTitle(ctx context.Context, sessionID, firstMessage string, log *utils.Logger) {
	title, err := e.completer.SuggestTitle(ctx, firstMessage)
	if err != nil || strings.TrimSpace(title) == "" {
		title = fallbackTitle(firstMessage)
	}
	if err := e.chats.SetTitle(ctx, sessionID, title); err != nil {
		log.Warn("failed to set session title", "session_id", sessionID, "error", err)
	}
}

// fallbackTitle takes the first five words of the message, capped at
// 50 characters.
func fallbackTitle(message string) string {
	words := strings.Fields(message)
	if len(words) > 5 {
		words = words[:5]
	}
	title := strings.Join(words, " ")
	if len(title) > 50 {
		title = title[:50]
	}
	if title == "" {
		title = "New chat"
	} else if len(words) < len(strings.Fields(message)) {
		title += "..."
	}
	return title
}
