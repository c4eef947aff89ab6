package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/docuchat/docuchat-backend/internal/models"
	"github.com/docuchat/docuchat-backend/internal/utils"
)

// Emitter records token usage attributable to one AI operation.
// Emission failures are logged and swallowed by callers; usage
// accounting never blocks the pipeline or a chat exchange.
type Emitter interface {
	Emit(ctx context.Context, ownerID, feature string, tokens int) error
}

// SQLEmitter appends usage events to the usage_events table.
type SQLEmitter struct {
	db *sqlx.DB
}

func NewSQLEmitter(db *sqlx.DB) *SQLEmitter {
	return &SQLEmitter{db: db}
}

func (e *SQLEmitter) Emit(ctx context.Context, ownerID, feature string, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	event := models.UsageEvent{
		ID:        utils.GenerateID(),
		OwnerID:   ownerID,
		Feature:   feature,
		Tokens:    tokens,
		CreatedAt: time.Now().UTC(),
	}
	query := `INSERT INTO usage_events (id, owner_id, feature, tokens, created_at)
		VALUES (:id, :owner_id, :feature, :tokens, :created_at)`
	if _, err := e.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("failed to record usage event: %w", err)
	}
	return nil
}
