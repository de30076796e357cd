package shadowcoder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scc/scc/internal/platform/websocket"
)

var (
	ErrNotFound      = errors.New("prompt not found")
	ErrTerminal      = errors.New("prompt already resolved or dismissed")
	ErrUnknownAction = errors.New("unknown prompt action")
)

// FactSource supplies the current fact snapshot for a case.
type FactSource interface {
	GetFactValues(ctx context.Context, caseID uuid.UUID) (map[string]any, error)
}

// Engine evaluates the rule table against a case's facts and keeps the
// prompt instances in sync with the outcome.
type Engine struct {
	repo      Repository
	facts     FactSource
	rules     []Rule
	publisher websocket.EventPublisher
	logger    zerolog.Logger
}

// NewEngine builds an engine over the standard rule table. The
// publisher is optional.
func NewEngine(repo Repository, facts FactSource, publisher websocket.EventPublisher, logger zerolog.Logger) *Engine {
	return &Engine{
		repo:      repo,
		facts:     facts,
		rules:     PADRules,
		publisher: publisher,
		logger:    logger.With().Str("component", "shadowcoder").Logger(),
	}
}

// EvaluateRules runs every rule against the case's current facts,
// creating prompts for new violations and resolving prompts whose
// requirements are now met.
func (e *Engine) EvaluateRules(ctx context.Context, caseID uuid.UUID) (*EvalResult, error) {
	facts, err := e.facts.GetFactValues(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}

	result := &EvalResult{Violations: []Violation{}, Passed: []string{}}
	for _, rule := range e.rules {
		result.RulesEvaluated++

		if rule.Condition != nil {
			matched, err := rule.Condition.Matches(facts)
			if err != nil {
				e.logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("rule condition not evaluable, skipping")
				continue
			}
			if !matched {
				result.Passed = append(result.Passed, rule.ID)
				continue
			}
		}

		missing := missingFacts(rule, facts)
		if len(missing) == 0 {
			result.Passed = append(result.Passed, rule.ID)
			resolved, err := e.repo.ResolveActive(ctx, caseID, rule.ID, ResolutionFactAdded)
			if err != nil {
				return nil, fmt.Errorf("resolve prompt for %s: %w", rule.ID, err)
			}
			if resolved {
				result.PromptsResolved++
				e.publishPromptEvent(ctx, caseID, rule.ID, "resolved")
			}
			continue
		}

		result.Violations = append(result.Violations, Violation{
			RuleID:       rule.ID,
			Severity:     rule.Severity,
			Message:      rule.Message,
			MissingFacts: missing,
		})
		created, err := e.surfacePrompt(ctx, caseID, rule, missing)
		if err != nil {
			return nil, fmt.Errorf("surface prompt for %s: %w", rule.ID, err)
		}
		if created {
			result.PromptsCreated++
			e.publishPromptEvent(ctx, caseID, rule.ID, "created")
		}
	}
	return result, nil
}

// missingFacts returns the rule's required facts absent from the
// snapshot, or nothing when an alternative fact covers the gap.
func missingFacts(rule Rule, facts map[string]any) []string {
	var missing []string
	for _, f := range rule.RequiredFacts {
		if v, ok := facts[f]; !ok || v == nil {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	for _, alt := range rule.AlternativeFacts {
		if v, ok := facts[alt]; ok && v != nil {
			return nil
		}
	}
	return missing
}

// surfacePrompt ensures a violation is visible: a snoozed prompt past
// its snooze window is reactivated in place, otherwise a new active
// prompt is inserted. Reactivation does not count as a creation.
func (e *Engine) surfacePrompt(ctx context.Context, caseID uuid.UUID, rule Rule, missing []string) (bool, error) {
	snoozed, err := e.repo.FindSnoozed(ctx, caseID, rule.ID)
	if err != nil {
		return false, err
	}
	if snoozed != nil {
		if snoozed.SnoozedUntil != nil && snoozed.SnoozedUntil.After(time.Now()) {
			return false, nil
		}
		if err := e.repo.Reactivate(ctx, snoozed.ID); err != nil {
			return false, err
		}
		e.publishPromptEvent(ctx, caseID, rule.ID, "reactivated")
		return false, nil
	}

	details := "Missing documentation: " + strings.Join(missing, ", ")
	guideline := rule.GuidelineRef
	p := &PromptInstance{
		CaseID:        caseID,
		RuleID:        rule.ID,
		Severity:      rule.Severity,
		Message:       rule.Message,
		Details:       &details,
		GuidelineRef:  &guideline,
		ActionChoices: defaultActionChoices(),
	}
	return e.repo.InsertActive(ctx, p)
}

// GetActivePrompts lists the case's active prompts, highest severity
// first. Ordering is enforced here so every Repository implementation
// yields the same listing.
func (e *Engine) GetActivePrompts(ctx context.Context, caseID uuid.UUID) ([]*PromptInstance, error) {
	prompts, err := e.repo.ListActive(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if prompts == nil {
		prompts = []*PromptInstance{}
	}
	sort.SliceStable(prompts, func(i, j int) bool {
		ri, rj := severityRank(prompts[i].Severity), severityRank(prompts[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return prompts[i].FirstSurfacedAt.Before(prompts[j].FirstSurfacedAt)
	})
	return prompts, nil
}

// GetPromptSummary returns the per-severity active prompt counts.
func (e *Engine) GetPromptSummary(ctx context.Context, caseID uuid.UUID) (Summary, error) {
	return e.repo.CountActive(ctx, caseID)
}

// ApplyPromptAction executes a clinician action against a prompt.
// Actions: DISMISS, SNOOZE_<N>H (default 24 hours), DOCUMENT, RESOLVE.
func (e *Engine) ApplyPromptAction(ctx context.Context, promptID uuid.UUID, action string, note, actedBy *string) (*PromptInstance, error) {
	p, err := e.repo.GetByID(ctx, promptID)
	if err != nil {
		return nil, ErrNotFound
	}
	if p.Terminal() {
		return nil, ErrTerminal
	}

	switch {
	case action == "DISMISS":
		err = e.repo.Dismiss(ctx, promptID, note, actedBy)
	case strings.HasPrefix(action, "SNOOZE"):
		err = e.repo.Snooze(ctx, promptID, snoozeHours(action))
	case action == "DOCUMENT" || action == "RESOLVE":
		err = e.repo.Resolve(ctx, promptID, ResolutionAttestation, note, actedBy)
	default:
		return nil, ErrUnknownAction
	}
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", action, err)
	}

	updated, err := e.repo.GetByID(ctx, promptID)
	if err != nil {
		return nil, err
	}
	e.publishPromptEvent(ctx, updated.CaseID, updated.RuleID, updated.Status)
	return updated, nil
}

// snoozeHours parses SNOOZE_<N>H, falling back to 24.
func snoozeHours(action string) int {
	s := strings.TrimSuffix(strings.TrimPrefix(action, "SNOOZE_"), "H")
	if hours, err := strconv.Atoi(s); err == nil && hours > 0 {
		return hours
	}
	return 24
}

func (e *Engine) publishPromptEvent(ctx context.Context, caseID uuid.UUID, ruleID, state string) {
	if e.publisher == nil {
		return
	}
	ev := websocket.NewEvent(websocket.EventPromptUpdate, websocket.CaseTopic(caseID.String()),
		"prompt", ruleID, map[string]string{"case_id": caseID.String(), "state": state})
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn().Err(err).Str("rule_id", ruleID).Msg("prompt event publish failed")
	}
}
