package shadowcoder

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scc/scc/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const promptCols = `id, case_id, rule_id, status, severity, message, details, guideline_ref,
	action_choices, snoozed_until, first_surfaced_at, view_count, snooze_count,
	resolution_type, resolution_note, resolved_by, resolved_at, created_at, updated_at`

func (r *repoPG) scanPrompt(row pgx.Row) (*PromptInstance, error) {
	var p PromptInstance
	err := row.Scan(&p.ID, &p.CaseID, &p.RuleID, &p.Status, &p.Severity, &p.Message, &p.Details, &p.GuidelineRef,
		&p.ActionChoices, &p.SnoozedUntil, &p.FirstSurfacedAt, &p.ViewCount, &p.SnoozeCount,
		&p.ResolutionType, &p.ResolutionNote, &p.ResolvedBy, &p.ResolvedAt, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) InsertActive(ctx context.Context, p *PromptInstance) (bool, error) {
	p.ID = uuid.New()
	p.Status = StatusActive
	// The partial unique index on (case_id, rule_id) WHERE status='active'
	// makes the losing insert of a concurrent evaluation a no-op.
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO scc_prompt_instances (id, case_id, rule_id, status, severity,
			message, details, guideline_ref, action_choices)
		VALUES ($1,$2,$3,'active',$4,$5,$6,$7,$8)
		ON CONFLICT (case_id, rule_id) WHERE status = 'active'
		DO NOTHING
		RETURNING first_surfaced_at, created_at, updated_at`,
		p.ID, p.CaseID, p.RuleID, p.Severity,
		p.Message, p.Details, p.GuidelineRef, p.ActionChoices).
		Scan(&p.FirstSurfacedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*PromptInstance, error) {
	return r.scanPrompt(r.conn(ctx).QueryRow(ctx, `SELECT `+promptCols+` FROM scc_prompt_instances WHERE id = $1`, id))
}

func (r *repoPG) FindSnoozed(ctx context.Context, caseID uuid.UUID, ruleID string) (*PromptInstance, error) {
	p, err := r.scanPrompt(r.conn(ctx).QueryRow(ctx, `
		SELECT `+promptCols+` FROM scc_prompt_instances
		WHERE case_id = $1 AND rule_id = $2 AND status = 'snoozed'
		ORDER BY updated_at DESC LIMIT 1`, caseID, ruleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repoPG) Reactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE scc_prompt_instances
		SET status = 'active', snoozed_until = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'snoozed'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) ListActive(ctx context.Context, caseID uuid.UUID) ([]*PromptInstance, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+promptCols+` FROM scc_prompt_instances
		WHERE case_id = $1 AND status = 'active'
		ORDER BY
			CASE severity WHEN 'block' THEN 1 WHEN 'warn' THEN 2 WHEN 'info' THEN 3 ELSE 4 END,
			first_surfaced_at ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PromptInstance
	for rows.Next() {
		p, err := r.scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) CountActive(ctx context.Context, caseID uuid.UUID) (Summary, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT severity, COUNT(*) FROM scc_prompt_instances
		WHERE case_id = $1 AND status = 'active'
		GROUP BY severity`, caseID)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	var s Summary
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return Summary{}, err
		}
		switch severity {
		case SeverityBlock:
			s.Block = count
		case SeverityWarn:
			s.Warn = count
		case SeverityInfo:
			s.Info = count
		}
		s.Total += count
	}
	return s, rows.Err()
}

func (r *repoPG) ResolveActive(ctx context.Context, caseID uuid.UUID, ruleID, resolutionType string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE scc_prompt_instances
		SET status = 'resolved', resolution_type = $3, resolved_at = NOW(), updated_at = NOW()
		WHERE case_id = $1 AND rule_id = $2 AND status = 'active'`,
		caseID, ruleID, resolutionType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Dismiss(ctx context.Context, id uuid.UUID, note, by *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE scc_prompt_instances
		SET status = 'dismissed', resolution_type = 'manual_dismiss',
			resolution_note = $2, resolved_by = $3, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('active','snoozed')`, id, note, by)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Snooze(ctx context.Context, id uuid.UUID, hours int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE scc_prompt_instances
		SET status = 'snoozed', snoozed_until = NOW() + ($2 * INTERVAL '1 hour'),
			snooze_count = snooze_count + 1, updated_at = NOW()
		WHERE id = $1 AND status IN ('active','snoozed')`, id, hours)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Resolve(ctx context.Context, id uuid.UUID, resolutionType string, note, by *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE scc_prompt_instances
		SET status = 'resolved', resolution_type = $2,
			resolution_note = $3, resolved_by = $4, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('active','snoozed')`, id, resolutionType, note, by)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
