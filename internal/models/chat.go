package models

import (
	"fmt"
	"strings"
	"time"
)

// Namespace is the isolation key scoping vector storage and retrieval
// to one owner/session pair. All documents uploaded into a session
// share exactly one namespace.
type Namespace struct {
	OwnerID   string
	SessionID string
}

// Key returns the stable partition key used by the vector store.
// UUID dashes are flattened so the key is safe as a collection name.
func (n Namespace) Key() string {
	return fmt.Sprintf("user_%s_session_%s",
		strings.ReplaceAll(n.OwnerID, "-", "_"),
		strings.ReplaceAll(n.SessionID, "-", "_"))
}

// Message roles. User and assistant messages alternate within a session.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatSession groups chat exchanges and associated documents under one
// vector namespace. Lifetime of the namespace is bound to the session.
type ChatSession struct {
	ID        string     `json:"id" db:"id"`
	OwnerID   string     `json:"owner_id" db:"owner_id"`
	Title     string     `json:"title" db:"title"`
	Namespace string     `json:"namespace" db:"namespace"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ChatMessage is one turn in a session. Ordinal is the only ordering
// clients may rely on; timestamps are informational.
type ChatMessage struct {
	ID         string    `json:"id" db:"id"`
	SessionID  string    `json:"session_id" db:"session_id"`
	Role       string    `json:"role" db:"role"`
	Content    string    `json:"content" db:"content"`
	TokenCount int       `json:"token_count" db:"token_count"`
	Ordinal    int       `json:"ordinal" db:"ordinal"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
