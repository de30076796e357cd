package facts

import (
	"context"

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

const factCols = `id, case_id, patient_id, fact_type, value, confidence,
	source_type, voice_note_id, source_ref, verified, verified_by, verified_at,
	superseded_by, superseded_at, created_at`

func (r *repoPG) scanFact(row pgx.Row) (*Fact, error) {
	var f Fact
	err := row.Scan(&f.ID, &f.CaseID, &f.PatientID, &f.FactType, &f.Value, &f.Confidence,
		&f.SourceType, &f.VoiceNoteID, &f.SourceRef, &f.Verified, &f.VerifiedBy, &f.VerifiedAt,
		&f.SupersededBy, &f.SupersededAt, &f.CreatedAt)
	return &f, err
}

func (r *repoPG) Create(ctx context.Context, f *Fact) error {
	f.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO scc_case_facts (id, case_id, patient_id, fact_type, value,
			confidence, source_type, voice_note_id, source_ref)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		f.ID, f.CaseID, f.PatientID, f.FactType, f.Value,
		f.Confidence, f.SourceType, f.VoiceNoteID, f.SourceRef).Scan(&f.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Fact, error) {
	return r.scanFact(r.conn(ctx).QueryRow(ctx, `SELECT `+factCols+` FROM scc_case_facts WHERE id = $1`, id))
}

func (r *repoPG) ListLive(ctx context.Context, caseID uuid.UUID) ([]*Fact, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+factCols+` FROM scc_case_facts
		WHERE case_id = $1 AND superseded_at IS NULL
		ORDER BY fact_type, created_at DESC, confidence DESC NULLS LAST`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Fact
	for rows.Next() {
		f, err := r.scanFact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

func (r *repoPG) ListHistory(ctx context.Context, caseID uuid.UUID, factType string) ([]*Fact, error) {
	query := `SELECT ` + factCols + ` FROM scc_case_facts WHERE case_id = $1`
	args := []interface{}{caseID}
	if factType != "" {
		query += ` AND fact_type = $2`
		args = append(args, factType)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Fact
	for rows.Next() {
		f, err := r.scanFact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

func (r *repoPG) Supersede(ctx context.Context, factID uuid.UUID, newFactID *uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE scc_case_facts SET superseded_by = $2, superseded_at = NOW()
		WHERE id = $1 AND superseded_at IS NULL`, factID, newFactID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Verify(ctx context.Context, factID uuid.UUID, verifiedBy string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE scc_case_facts SET verified = TRUE, verified_by = $2, verified_at = NOW()
		WHERE id = $1`, factID, verifiedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
