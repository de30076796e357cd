package tasks

import (
	"context"
	"fmt"
	"strings"

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

const taskCols = `id, title, description, patient_mrn, procedure_id, task_type, status,
	priority, due_date, assigned_to, created_by, completed_at, completed_by, notes,
	metadata, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.PatientMRN, &t.ProcedureID, &t.TaskType, &t.Status,
		&t.Priority, &t.DueDate, &t.AssignedTo, &t.CreatedBy, &t.CompletedAt, &t.CompletedBy, &t.Notes,
		&t.Metadata, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *repoPG) Create(ctx context.Context, t *Task) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO scc_tasks (id, title, description, patient_mrn, procedure_id,
			task_type, status, priority, due_date, assigned_to, created_by, notes, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		t.ID, t.Title, t.Description, t.PatientMRN, t.ProcedureID,
		t.TaskType, t.Status, t.Priority, t.DueDate, t.AssignedTo, t.CreatedBy, t.Notes, t.Metadata).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	return scanTask(r.conn(ctx).QueryRow(ctx,
		`SELECT `+taskCols+` FROM scc_tasks WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, filter Filter) ([]*Task, error) {
	sql := `SELECT ` + taskCols + ` FROM scc_tasks WHERE 1=1`
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		sql += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		sql += fmt.Sprintf(` AND priority = $%d`, len(args))
	}
	if filter.TaskType != "" {
		args = append(args, filter.TaskType)
		sql += fmt.Sprintf(` AND task_type = $%d`, len(args))
	}
	if filter.PatientMRN != "" {
		args = append(args, filter.PatientMRN)
		sql += fmt.Sprintf(` AND patient_mrn = $%d`, len(args))
	}
	if filter.ProcedureID != nil {
		args = append(args, *filter.ProcedureID)
		sql += fmt.Sprintf(` AND procedure_id = $%d`, len(args))
	}
	if filter.AssignedTo != "" {
		args = append(args, "%"+filter.AssignedTo+"%")
		sql += fmt.Sprintf(` AND assigned_to ILIKE $%d`, len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	sql += fmt.Sprintf(`
		ORDER BY
			CASE priority WHEN 'urgent' THEN 1 WHEN 'high' THEN 2 WHEN 'normal' THEN 3 WHEN 'low' THEN 4 ELSE 5 END,
			due_date ASC NULLS LAST,
			created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, id uuid.UUID, u Update) error {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.Title != nil {
		add("title", *u.Title)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.TaskType != nil {
		add("task_type", *u.TaskType)
	}
	if u.Status != nil {
		add("status", *u.Status)
		if *u.Status == StatusCompleted {
			sets = append(sets, "completed_at = NOW()")
		}
	}
	if u.Priority != nil {
		add("priority", *u.Priority)
	}
	if u.DueDate != nil {
		add("due_date", *u.DueDate)
	}
	if u.AssignedTo != nil {
		add("assigned_to", *u.AssignedTo)
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}
	if u.Metadata != nil {
		add("metadata", u.Metadata)
	}

	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE scc_tasks SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM scc_tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Complete(ctx context.Context, id uuid.UUID, completedBy, notes *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE scc_tasks
		SET status = 'completed', completed_at = NOW(), completed_by = $2,
			notes = COALESCE($3, notes), updated_at = NOW()
		WHERE id = $1`, id, completedBy, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Stats(ctx context.Context) (*Stats, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT status, priority, COUNT(*) FROM scc_tasks GROUP BY status, priority`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &Stats{
		ByStatus:   map[string]int{StatusPending: 0, StatusInProgress: 0, StatusCompleted: 0, StatusCancelled: 0},
		ByPriority: map[string]int{PriorityLow: 0, PriorityNormal: 0, PriorityHigh: 0, PriorityUrgent: 0},
	}
	for rows.Next() {
		var status, priority string
		var count int
		if err := rows.Scan(&status, &priority, &count); err != nil {
			return nil, err
		}
		if _, ok := stats.ByStatus[status]; ok {
			stats.ByStatus[status] += count
		}
		if _, ok := stats.ByPriority[priority]; ok {
			stats.ByPriority[priority] += count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM scc_tasks
		WHERE status NOT IN ('completed','cancelled') AND due_date < NOW()`).Scan(&stats.Overdue)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
