package orcc

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatientByMRN(ctx context.Context, mrn string) (*Patient, error)
	ListPatients(ctx context.Context, search string, active *bool, limit, offset int) ([]*Patient, error)
	CountPatients(ctx context.Context) (int, error)

	CreateProcedure(ctx context.Context, p *Procedure) error
	GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error)
	// LatestProcedureByMRN returns the newest procedure for an MRN, or
	// nil when the patient has none.
	LatestProcedureByMRN(ctx context.Context, mrn string) (*Procedure, error)
	ListProcedures(ctx context.Context, filter ProcedureFilter) ([]*Procedure, error)
	ListProceduresByMRN(ctx context.Context, mrn string, limit int) ([]*Procedure, error)
	UpdateProcedure(ctx context.Context, id uuid.UUID, u ProcedureUpdate) error
	CountProceduresByStatus(ctx context.Context) (map[string]int, error)
}
