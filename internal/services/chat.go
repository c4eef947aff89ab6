package services

import (
	"context"
	"errors"
	"strings"

	"github.com/docuchat/docuchat-backend/internal/models"
	"github.com/docuchat/docuchat-backend/internal/rag"
	"github.com/docuchat/docuchat-backend/internal/repository"
	"github.com/docuchat/docuchat-backend/internal/utils"
	"github.com/docuchat/docuchat-backend/internal/vectorstore"
)

type ChatService interface {
	CreateSession(ctx context.Context, ownerID, title string) (*models.ChatSession, error)
	GetSession(ctx context.Context, ownerID, id string) (*models.ChatSession, error)
	History(ctx context.Context, ownerID, sessionID string, limit int) ([]models.ChatMessage, error)
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatAnswer, error)
	DeleteSession(ctx context.Context, ownerID, id string) error
}

type chatService struct {
	chats   *repository.ChatRepository
	engine  *rag.Engine
	vectors vectorstore.Store
	logger  *utils.Logger
}

func NewChatService(
	chats *repository.ChatRepository,
	engine *rag.Engine,
	vectors vectorstore.Store,
	logger *utils.Logger,
) ChatService {
	return &chatService{
		chats:   chats,
		engine:  engine,
		vectors: vectors,
		logger:  logger,
	}
}

func (s *chatService) CreateSession(ctx context.Context, ownerID, title string) (*models.ChatSession, error) {
	if ownerID == "" {
		return nil, utils.NewBadRequestError("owner id is required")
	}
	session := &models.ChatSession{
		ID:      utils.GenerateID(),
		OwnerID: ownerID,
		Title:   strings.TrimSpace(title),
	}
	session.Namespace = models.Namespace{OwnerID: ownerID, SessionID: session.ID}.Key()
	if err := s.chats.CreateSession(ctx, session); err != nil {
		s.logger.Error("failed to create session", "owner_id", ownerID, "error", err)
		return nil, utils.NewInternalError("failed to create session")
	}
	return session, nil
}

func (s *chatService) GetSession(ctx context.Context, ownerID, id string) (*models.ChatSession, error) {
	session, err := s.chats.GetSession(ctx, id)
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

func (s *chatService) History(ctx context.Context, ownerID, sessionID string, limit int) ([]models.ChatMessage, error) {
	if _, err := s.GetSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	messages, err := s.chats.History(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.NewInternalError("failed to load history")
	}
	return messages, nil
}

func (s *chatService) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatAnswer, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, utils.NewBadRequestError("message is required")
	}
	return s.engine.Answer(ctx, req)
}

// DeleteSession soft-deletes the session and releases its vector
// namespace. Documents attached to the session stay readable through
// the document endpoints until deleted themselves.
func (s *chatService) DeleteSession(ctx context.Context, ownerID, id string) error {
	session, err := s.GetSession(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.chats.SoftDelete(ctx, id); err != nil {
		return utils.NewInternalError("failed to delete session")
	}

	ns := models.Namespace{OwnerID: session.OwnerID, SessionID: session.ID}
	if err := s.vectors.DeleteNamespace(ctx, ns); err != nil {
		s.logger.Warn("failed to release vector namespace", "session_id", id, "error", err)
	}
	return nil
}
