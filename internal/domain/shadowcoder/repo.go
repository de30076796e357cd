package shadowcoder

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists prompt instances. The at-most-one-active-prompt
// invariant per (case, rule) is enforced by storage, not by callers.
type Repository interface {
	// InsertActive creates an active prompt. Returns false without error
	// when an active prompt for the same (case, rule) already exists.
	InsertActive(ctx context.Context, p *PromptInstance) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*PromptInstance, error)
	// FindSnoozed returns the snoozed prompt for a (case, rule), or nil.
	FindSnoozed(ctx context.Context, caseID uuid.UUID, ruleID string) (*PromptInstance, error)
	// Reactivate moves a snoozed prompt back to active.
	Reactivate(ctx context.Context, id uuid.UUID) error
	// ListActive returns active prompts ordered by severity precedence
	// (block, warn, info) then first_surfaced_at ascending.
	ListActive(ctx context.Context, caseID uuid.UUID) ([]*PromptInstance, error)
	CountActive(ctx context.Context, caseID uuid.UUID) (Summary, error)
	// ResolveActive resolves the active prompt for a (case, rule) if one
	// exists. Returns true when a prompt was resolved.
	ResolveActive(ctx context.Context, caseID uuid.UUID, ruleID, resolutionType string) (bool, error)
	Dismiss(ctx context.Context, id uuid.UUID, note, by *string) error
	Snooze(ctx context.Context, id uuid.UUID, hours int) error
	Resolve(ctx context.Context, id uuid.UUID, resolutionType string, note, by *string) error
}
