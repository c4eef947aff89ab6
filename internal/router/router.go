package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docuchat/docuchat-backend/internal/handlers"
	"github.com/docuchat/docuchat-backend/internal/middleware"
	"github.com/docuchat/docuchat-backend/internal/services"
	"github.com/docuchat/docuchat-backend/internal/utils"
)

func NewRouter(docService services.DocumentService, chatService services.ChatService, maxFileSize int64, logger *utils.Logger) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Recovery(logger))

	docHandler := handlers.NewDocumentHandler(docService, maxFileSize, logger)
	chatHandler := handlers.NewChatHandler(chatService, logger)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	// Document endpoints
	api.HandleFunc("/documents/upload", docHandler.UploadDocuments).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/summary", docHandler.RegenerateSummary).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}", docHandler.GetDocument).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", docHandler.DeleteDocument).Methods(http.MethodDelete)

	// Chat endpoints
	api.HandleFunc("/sessions", chatHandler.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", chatHandler.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", chatHandler.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/messages", chatHandler.History).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/documents", docHandler.ListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/chat", chatHandler.Chat).Methods(http.MethodPost)

	return r
}
