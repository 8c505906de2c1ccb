package sessionstore

import (
	"context"
	"time"
)

// Record is one minted ephemeral-key grant. Only broker metadata is kept; the
// key itself and the conversation are never persisted.
type Record struct {
	ID        string    `json:"id"`
	Voice     string    `json:"voice"`
	MintedAt  time.Time `json:"minted_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store tracks minted sessions for the broker's diagnostic endpoint.
type Store interface {
	Save(ctx context.Context, record Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
