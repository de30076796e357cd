package facts

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists the fact ledger.
type Repository interface {
	Create(ctx context.Context, f *Fact) error
	GetByID(ctx context.Context, id uuid.UUID) (*Fact, error)
	// ListLive returns non-superseded facts for a case, every type included.
	ListLive(ctx context.Context, caseID uuid.UUID) ([]*Fact, error)
	// ListHistory returns all facts for a case newest first, optionally
	// filtered by fact type. Superseded rows are included.
	ListHistory(ctx context.Context, caseID uuid.UUID, factType string) ([]*Fact, error)
	Supersede(ctx context.Context, factID uuid.UUID, newFactID *uuid.UUID) error
	Verify(ctx context.Context, factID uuid.UUID, verifiedBy string) error
}
