package tasks

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	// List returns tasks ordered by priority (urgent first), then due
	// date with null due dates last, then creation time descending.
	List(ctx context.Context, filter Filter) ([]*Task, error)
	Update(ctx context.Context, id uuid.UUID, u Update) error
	Delete(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, completedBy, notes *string) error
	Stats(ctx context.Context) (*Stats, error)
}
