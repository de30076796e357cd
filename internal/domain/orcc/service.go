package orcc

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/scc/scc/internal/platform/websocket"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateMRN = errors.New("patient with this MRN already exists")
)

// Case resolution sources, most to least specific.
const (
	CaseSourceProcedure = "procedure"
	CaseSourcePatient   = "patient"
	CaseSourceDerived   = "derived"
)

type Service struct {
	repo      Repository
	publisher websocket.EventPublisher
	logger    zerolog.Logger
}

func NewService(repo Repository, publisher websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With().Str("component", "orcc").Logger(),
	}
}

// ---- patients ----

func (s *Service) CreatePatient(ctx context.Context, p *Patient) (*Patient, error) {
	if p.MRN == "" || p.FirstName == "" || p.LastName == "" {
		return nil, fmt.Errorf("mrn, first_name and last_name are required")
	}
	existing, err := s.repo.GetPatientByMRN(ctx, p.MRN)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if existing != nil && err == nil {
		return nil, ErrDuplicateMRN
	}
	// The unique constraint on mrn backstops the check under races.
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("mrn", p.MRN).Str("patient_id", p.ID.String()).Msg("patient created")
	return p, nil
}

func (s *Service) GetPatientByMRN(ctx context.Context, mrn string) (*Patient, error) {
	p, err := s.repo.GetPatientByMRN(ctx, mrn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Service) SearchPatients(ctx context.Context, search string, active *bool, limit, offset int) ([]*Patient, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	patients, err := s.repo.ListPatients(ctx, search, active, limit, offset)
	if err != nil {
		return nil, err
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return patients, nil
}

func (s *Service) CountPatients(ctx context.Context) (int, error) {
	return s.repo.CountPatients(ctx)
}

// ---- procedures ----

func (s *Service) CreateProcedure(ctx context.Context, p *Procedure) (*Procedure, error) {
	if p.MRN == "" || p.ProcedureName == "" {
		return nil, fmt.Errorf("mrn and procedure_name are required")
	}
	if p.SurgicalStatus == "" {
		p.SurgicalStatus = StatusWorkup
	}
	if err := validateProcedureFields(p.SurgicalStatus, p.Laterality, p.ScheduledLocation); err != nil {
		return nil, err
	}

	// Link the board row to the patient record when one exists.
	if patient, err := s.repo.GetPatientByMRN(ctx, p.MRN); err == nil {
		p.PatientID = &patient.ID
		if p.PatientName == nil {
			name := patient.DisplayName()
			p.PatientName = &name
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if p.PatientName == nil {
		name := "Unknown (" + p.MRN + ")"
		p.PatientName = &name
	}

	if err := s.repo.CreateProcedure(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("mrn", p.MRN).Str("procedure_id", p.ID.String()).
		Str("surgical_status", p.SurgicalStatus).Msg("procedure created")
	s.publishProcedureEvent(ctx, p, "created")
	return p, nil
}

func (s *Service) GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	p, err := s.repo.GetProcedure(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Service) ListProcedures(ctx context.Context, filter ProcedureFilter) ([]*Procedure, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	procedures, err := s.repo.ListProcedures(ctx, filter)
	if err != nil {
		return nil, err
	}
	if procedures == nil {
		procedures = []*Procedure{}
	}
	return procedures, nil
}

func (s *Service) ListProceduresByMRN(ctx context.Context, mrn string, limit int) ([]*Procedure, error) {
	procedures, err := s.repo.ListProceduresByMRN(ctx, mrn, limit)
	if err != nil {
		return nil, err
	}
	if procedures == nil {
		procedures = []*Procedure{}
	}
	return procedures, nil
}

func (s *Service) UpdateProcedure(ctx context.Context, id uuid.UUID, u ProcedureUpdate) (*Procedure, error) {
	if u.Empty() {
		return nil, fmt.Errorf("no fields to update")
	}
	status := ""
	if u.SurgicalStatus != nil {
		status = *u.SurgicalStatus
	}
	if err := validateProcedureFields(status, u.Laterality, u.ScheduledLocation); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProcedure(ctx, id, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p, err := s.repo.GetProcedure(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishProcedureEvent(ctx, p, "updated")
	return p, nil
}

func validateProcedureFields(status string, laterality, location *string) error {
	if status != "" && !validSurgicalStatuses[status] {
		return fmt.Errorf("invalid surgical_status %q", status)
	}
	if laterality != nil && !validLateralities[*laterality] {
		return fmt.Errorf("invalid laterality %q", *laterality)
	}
	if location != nil && !validLocations[*location] {
		return fmt.Errorf("invalid scheduled_location %q", *location)
	}
	return nil
}

// ---- case resolution ----

// ResolveCase maps an MRN to the case id intake and rule evaluation
// key on: the latest procedure id, else the patient id, else a
// deterministic id derived from the MRN so repeated notes for an
// unknown patient land on the same case.
func (s *Service) ResolveCase(ctx context.Context, mrn string) (uuid.UUID, string, error) {
	proc, err := s.repo.LatestProcedureByMRN(ctx, mrn)
	if err != nil {
		return uuid.Nil, "", err
	}
	if proc != nil {
		return proc.ID, CaseSourceProcedure, nil
	}

	patient, err := s.repo.GetPatientByMRN(ctx, mrn)
	if err == nil {
		return patient.ID, CaseSourcePatient, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, "", err
	}

	return DeterministicCaseID(mrn), CaseSourceDerived, nil
}

// DeterministicCaseID derives a stable UUID-shaped id from an MRN with
// version and variant nibbles fixed, so unmatched notes accumulate
// under one case.
func DeterministicCaseID(mrn string) uuid.UUID {
	sum := md5.Sum([]byte("case-mrn-" + mrn))
	h := hex.EncodeToString(sum[:])
	id, err := uuid.Parse(fmt.Sprintf("%s-%s-4%s-8%s-%s",
		h[:8], h[8:12], h[13:16], h[17:20], h[20:32]))
	if err != nil {
		// Unreachable: the string above is always a well-formed UUID.
		return uuid.NewMD5(uuid.NameSpaceOID, []byte(mrn))
	}
	return id
}

// ---- status ----

func (s *Service) Status(ctx context.Context) (*BoardStatus, error) {
	procCounts, err := s.repo.CountProceduresByStatus(ctx)
	if err != nil {
		return nil, err
	}
	patients, err := s.repo.CountPatients(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range procCounts {
		total += n
	}
	return &BoardStatus{
		Procedures:      total,
		Patients:        patients,
		StatusBreakdown: procCounts,
	}, nil
}

func (s *Service) publishProcedureEvent(ctx context.Context, p *Procedure, state string) {
	if s.publisher == nil {
		return
	}
	ev := websocket.NewEvent(websocket.EventProcedureUpdate, websocket.MRNTopic(p.MRN),
		"procedure", p.ID.String(), map[string]string{
			"mrn":             p.MRN,
			"surgical_status": p.SurgicalStatus,
			"state":           state,
		})
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("procedure_id", p.ID.String()).Msg("procedure event publish failed")
	}
}
