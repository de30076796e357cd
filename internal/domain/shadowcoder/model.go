// Package shadowcoder evaluates coding-compliance rules against the
// fact ledger and manages the documentation prompts those rules raise.
package shadowcoder

import (
	"time"

	"github.com/google/uuid"
)

// Prompt severities, in precedence order.
const (
	SeverityBlock = "block"
	SeverityWarn  = "warn"
	SeverityInfo  = "info"
)

// Prompt statuses. Resolved and dismissed are terminal; snoozed prompts
// reactivate once snoozed_until elapses.
const (
	StatusActive    = "active"
	StatusResolved  = "resolved"
	StatusDismissed = "dismissed"
	StatusSnoozed   = "snoozed"
)

// Resolution types recorded when a prompt leaves the active state.
const (
	ResolutionFactAdded     = "fact_added"
	ResolutionAttestation   = "attestation"
	ResolutionManualDismiss = "manual_dismiss"
)

// ActionChoice is one button offered to the clinician on a prompt.
type ActionChoice struct {
	ActionID      string `json:"action_id"`
	Label         string `json:"label"`
	Type          string `json:"type"`
	DurationHours int    `json:"duration_hours,omitempty"`
}

// PromptInstance is a surfaced documentation gap for one (case, rule).
type PromptInstance struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	CaseID          uuid.UUID      `db:"case_id" json:"case_id"`
	RuleID          string         `db:"rule_id" json:"rule_id"`
	Status          string         `db:"status" json:"status"`
	Severity        string         `db:"severity" json:"severity"`
	Message         string         `db:"message" json:"message"`
	Details         *string        `db:"details" json:"details,omitempty"`
	GuidelineRef    *string        `db:"guideline_ref" json:"guideline_ref,omitempty"`
	ActionChoices   []ActionChoice `db:"action_choices" json:"action_choices"`
	SnoozedUntil    *time.Time     `db:"snoozed_until" json:"snoozed_until,omitempty"`
	FirstSurfacedAt time.Time      `db:"first_surfaced_at" json:"first_surfaced_at"`
	ViewCount       int            `db:"view_count" json:"view_count"`
	SnoozeCount     int            `db:"snooze_count" json:"snooze_count"`
	ResolutionType  *string        `db:"resolution_type" json:"resolution_type,omitempty"`
	ResolutionNote  *string        `db:"resolution_note" json:"resolution_note,omitempty"`
	ResolvedBy      *string        `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the prompt can no longer change state.
func (p *PromptInstance) Terminal() bool {
	return p.Status == StatusResolved || p.Status == StatusDismissed
}

// Violation describes one rule the case currently fails.
type Violation struct {
	RuleID       string   `json:"rule_id"`
	Severity     string   `json:"severity"`
	Message      string   `json:"message"`
	MissingFacts []string `json:"missing_facts"`
}

// EvalResult summarizes one evaluation pass over a case.
type EvalResult struct {
	RulesEvaluated  int         `json:"rules_evaluated"`
	PromptsCreated  int         `json:"prompts_created"`
	PromptsResolved int         `json:"prompts_resolved"`
	Violations      []Violation `json:"violations"`
	Passed          []string    `json:"passed"`
}

// Summary is the per-severity count of active prompts on a case.
type Summary struct {
	Block int `json:"block"`
	Warn  int `json:"warn"`
	Info  int `json:"info"`
	Total int `json:"total"`
}

// severityRank orders severities for prompt listing: block first.
func severityRank(severity string) int {
	switch severity {
	case SeverityBlock:
		return 1
	case SeverityWarn:
		return 2
	case SeverityInfo:
		return 3
	default:
		return 4
	}
}

// defaultActionChoices are offered on every generated prompt.
func defaultActionChoices() []ActionChoice {
	return []ActionChoice{
		{ActionID: "DOCUMENT", Label: "Document Now", Type: "note"},
		{ActionID: "SNOOZE_24H", Label: "Remind Tomorrow", Type: "snooze", DurationHours: 24},
		{ActionID: "DISMISS", Label: "Not Applicable", Type: "dismiss"},
	}
}
