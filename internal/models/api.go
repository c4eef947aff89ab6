package models

import "time"

// UploadFile is one file submitted through the upload boundary.
type UploadFile struct {
	Filename string
	Content  []byte
	FileType string
}

// UploadRequest carries a bulk upload: each file is processed as an
// independent pipeline instance.
type UploadRequest struct {
	OwnerID   string
	SessionID string // optional; a new session is created when empty
	Files     []UploadFile
}

// FileReport is the per-file outcome of a bulk upload. One file's
// failure never aborts its siblings.
type FileReport struct {
	DocumentID string         `json:"document_id,omitempty"`
	Filename   string         `json:"filename"`
	Status     DocumentStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
}

// UploadResponse is returned by the upload boundary.
type UploadResponse struct {
	SessionID string       `json:"session_id"`
	Namespace string       `json:"namespace"`
	Files     []FileReport `json:"files"`
}

// ChatRequest carries one user message into the chat boundary.
type ChatRequest struct {
	OwnerID   string
	SessionID string
	Message   string
}

// RetrievalMatch describes one retrieved chunk, for diagnostics.
type RetrievalMatch struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
	Score      float32 `json:"score"`
}

// ChatAnswer is the chat boundary response. Degraded is true when the
// answer was produced without document context because retrieval or
// embedding failed.
type ChatAnswer struct {
	SessionID        string           `json:"session_id"`
	UserMessage      ChatMessage      `json:"user_message"`
	AssistantMessage ChatMessage      `json:"assistant_message"`
	Degraded         bool             `json:"degraded"`
	TotalTokens      int              `json:"total_tokens"`
	Matches          []RetrievalMatch `json:"matches,omitempty"`
}

// SummaryResponse is returned when a summary is (re)generated for an
// already completed document.
type SummaryResponse struct {
	DocumentID  string    `json:"document_id"`
	SessionID   string    `json:"session_id"`
	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generated_at"`
}
