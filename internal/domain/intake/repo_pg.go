package intake

import (
	"context"
	"errors"
	"fmt"

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

const noteCols = `id, transcript, summary, content_hash, audio_ref, mrn, patient_name,
	captured_at, status, provenance, extracted_facts_raw, error_log, created_at, updated_at`

func scanNote(row pgx.Row) (*VoiceNote, error) {
	var n VoiceNote
	err := row.Scan(&n.ID, &n.Transcript, &n.Summary, &n.ContentHash, &n.AudioRef, &n.MRN, &n.PatientName,
		&n.CapturedAt, &n.Status, &n.Provenance, &n.ExtractedFactsRaw, &n.ErrorLog, &n.CreatedAt, &n.UpdatedAt)
	return &n, err
}

func (r *repoPG) Create(ctx context.Context, n *VoiceNote) error {
	n.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO scc_voice_notes (id, transcript, summary, content_hash, audio_ref,
			mrn, patient_name, captured_at, status, provenance)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		n.ID, n.Transcript, n.Summary, n.ContentHash, n.AudioRef,
		n.MRN, n.PatientName, n.CapturedAt, n.Status, n.Provenance).
		Scan(&n.CreatedAt, &n.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*VoiceNote, error) {
	return scanNote(r.conn(ctx).QueryRow(ctx,
		`SELECT `+noteCols+` FROM scc_voice_notes WHERE id = $1`, id))
}

func (r *repoPG) FindByContentHash(ctx context.Context, hash string) (*VoiceNote, error) {
	n, err := scanNote(r.conn(ctx).QueryRow(ctx,
		`SELECT `+noteCols+` FROM scc_voice_notes WHERE content_hash = $1`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *repoPG) MarkExtracted(ctx context.Context, id uuid.UUID, raw any, summary *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE scc_voice_notes
		SET status = 'extracted', extracted_facts_raw = $2,
			summary = COALESCE($3, summary), updated_at = NOW()
		WHERE id = $1`, id, raw, summary)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) MarkFailed(ctx context.Context, id uuid.UUID, errorLog any) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE scc_voice_notes
		SET status = 'failed', error_log = $2, updated_at = NOW()
		WHERE id = $1`, id, errorLog)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) ListRecent(ctx context.Context, status, mrn string, limit int) ([]*VoiceNote, error) {
	sql := `SELECT ` + noteCols + ` FROM scc_voice_notes WHERE 1=1`
	args := []interface{}{}
	if status != "" {
		args = append(args, status)
		sql += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if mrn != "" {
		args = append(args, mrn)
		sql += fmt.Sprintf(` AND mrn = $%d`, len(args))
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit)
	sql += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*VoiceNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *repoPG) Ping(ctx context.Context) error {
	var one int
	return r.conn(ctx).QueryRow(ctx, `SELECT 1`).Scan(&one)
}
