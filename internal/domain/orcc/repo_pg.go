package orcc

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

const patientCols = `id, mrn, first_name, last_name, date_of_birth, gender,
	phone_primary, email, primary_physician, active, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.PhonePrimary, &p.Email, &p.PrimaryPhysician, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

const procedureCols = `id, mrn, patient_id, patient_name, procedure_name, laterality,
	surgeon, surgical_status, scheduled_location, scheduled_date, notes, created_at, updated_at`

func scanProcedure(row pgx.Row) (*Procedure, error) {
	var p Procedure
	err := row.Scan(&p.ID, &p.MRN, &p.PatientID, &p.PatientName, &p.ProcedureName, &p.Laterality,
		&p.Surgeon, &p.SurgicalStatus, &p.ScheduledLocation, &p.ScheduledDate, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.Active = true
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO scc_patients (id, mrn, first_name, last_name, date_of_birth,
			gender, phone_primary, email, primary_physician, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE)
		RETURNING created_at, updated_at`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.DateOfBirth,
		p.Gender, p.PhonePrimary, p.Email, p.PrimaryPhysician).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetPatientByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM scc_patients WHERE mrn = $1`, mrn))
}

func (r *repoPG) ListPatients(ctx context.Context, search string, active *bool, limit, offset int) ([]*Patient, error) {
	sql := `SELECT ` + patientCols + ` FROM scc_patients WHERE 1=1`
	args := []interface{}{}
	if search != "" {
		args = append(args, "%"+search+"%")
		n := fmt.Sprintf("$%d", len(args))
		sql += ` AND (mrn ILIKE ` + n + ` OR first_name ILIKE ` + n + ` OR last_name ILIKE ` + n +
			` OR (first_name || ' ' || last_name) ILIKE ` + n + `)`
	}
	if active != nil {
		args = append(args, *active)
		sql += fmt.Sprintf(` AND active = $%d`, len(args))
	}
	args = append(args, limit, offset)
	sql += fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) CountPatients(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM scc_patients`).Scan(&n)
	return n, err
}

func (r *repoPG) CreateProcedure(ctx context.Context, p *Procedure) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO scc_procedures (id, mrn, patient_id, patient_name, procedure_name,
			laterality, surgeon, surgical_status, scheduled_location, scheduled_date, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		p.ID, p.MRN, p.PatientID, p.PatientName, p.ProcedureName,
		p.Laterality, p.Surgeon, p.SurgicalStatus, p.ScheduledLocation, p.ScheduledDate, p.Notes).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	return scanProcedure(r.conn(ctx).QueryRow(ctx,
		`SELECT `+procedureCols+` FROM scc_procedures WHERE id = $1`, id))
}

func (r *repoPG) LatestProcedureByMRN(ctx context.Context, mrn string) (*Procedure, error) {
	p, err := scanProcedure(r.conn(ctx).QueryRow(ctx, `
		SELECT `+procedureCols+` FROM scc_procedures
		WHERE mrn = $1 ORDER BY created_at DESC LIMIT 1`, mrn))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repoPG) ListProcedures(ctx context.Context, filter ProcedureFilter) ([]*Procedure, error) {
	sql := `SELECT ` + procedureCols + ` FROM scc_procedures WHERE 1=1`
	args := []interface{}{}
	if filter.SurgicalStatus != "" {
		args = append(args, filter.SurgicalStatus)
		sql += fmt.Sprintf(` AND surgical_status = $%d`, len(args))
	}
	if filter.MRN != "" {
		args = append(args, filter.MRN)
		sql += fmt.Sprintf(` AND mrn = $%d`, len(args))
	}
	if filter.ScheduledLocation != "" {
		args = append(args, filter.ScheduledLocation)
		sql += fmt.Sprintf(` AND scheduled_location = $%d`, len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	sql += fmt.Sprintf(` ORDER BY scheduled_date DESC NULLS LAST, created_at DESC LIMIT $%d OFFSET $%d`,
		len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Procedure
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) ListProceduresByMRN(ctx context.Context, mrn string, limit int) ([]*Procedure, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+procedureCols+` FROM scc_procedures
		WHERE mrn = $1 ORDER BY scheduled_date DESC NULLS LAST, created_at DESC LIMIT $2`, mrn, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Procedure
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) UpdateProcedure(ctx context.Context, id uuid.UUID, u ProcedureUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.ProcedureName != nil {
		add("procedure_name", *u.ProcedureName)
	}
	if u.Laterality != nil {
		add("laterality", *u.Laterality)
	}
	if u.Surgeon != nil {
		add("surgeon", *u.Surgeon)
	}
	if u.SurgicalStatus != nil {
		add("surgical_status", *u.SurgicalStatus)
	}
	if u.ScheduledLocation != nil {
		add("scheduled_location", *u.ScheduledLocation)
	}
	if u.ScheduledDate != nil {
		add("scheduled_date", *u.ScheduledDate)
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}

	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE scc_procedures SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) CountProceduresByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT surgical_status, COUNT(*) FROM scc_procedures GROUP BY surgical_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
