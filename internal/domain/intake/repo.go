package intake

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, n *VoiceNote) error
	GetByID(ctx context.Context, id uuid.UUID) (*VoiceNote, error)
	// FindByContentHash returns the note with the given dedupe key, or
	// nil when none exists.
	FindByContentHash(ctx context.Context, hash string) (*VoiceNote, error)
	MarkExtracted(ctx context.Context, id uuid.UUID, raw any, summary *string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorLog any) error
	ListRecent(ctx context.Context, status, mrn string, limit int) ([]*VoiceNote, error)
	Ping(ctx context.Context) error
}
