package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/docuchat/docuchat-backend/internal/models"
	"github.com/docuchat/docuchat-backend/internal/services"
	"github.com/docuchat/docuchat-backend/internal/utils"
)

type ChatHandler struct {
	service services.ChatService
	logger  *utils.Logger
}

func NewChatHandler(service services.ChatService, logger *utils.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger,
	}
}

type createSessionRequest struct {
	Title string `json:"title"`
}

type chatRequestBody struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		respondError(w, h.logger, utils.NewBadRequestError("X-User-ID header is required"))
		return
	}

	var body createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, h.logger, utils.NewBadRequestError("Invalid request body"))
			return
		}
	}

	session, err := h.service.CreateSession(r.Context(), owner, body.Title)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, session)
}

func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	session, err := h.service.GetSession(r.Context(), ownerID(r), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, session)
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := h.service.History(r.Context(), ownerID(r), id, limit)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		respondError(w, h.logger, utils.NewBadRequestError("X-User-ID header is required"))
		return
	}

	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, h.logger, utils.NewBadRequestError("Invalid request body"))
		return
	}
	if body.SessionID == "" {
		respondError(w, h.logger, utils.NewBadRequestError("session_id is required"))
		return
	}

	answer, err := h.service.Chat(r.Context(), models.ChatRequest{
		OwnerID:   owner,
		SessionID: body.SessionID,
		Message:   body.Message,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, answer)
}

func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.DeleteSession(r.Context(), ownerID(r), id); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
