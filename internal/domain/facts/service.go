package facts

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var validSourceTypes = map[string]bool{
	SourceManual:    true,
	SourceVoiceNote: true,
	SourceEMR:       true,
}

// Service owns fact ledger semantics: validation on write and
// current-value resolution on read.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "facts").Logger()}
}

// AddFactInput carries the caller-supplied fields of a new fact.
type AddFactInput struct {
	FactType    string     `json:"fact_type"`
	Value       any        `json:"value"`
	Confidence  *float64   `json:"confidence,omitempty"`
	SourceType  string     `json:"source_type,omitempty"`
	VoiceNoteID *uuid.UUID `json:"voice_note_id,omitempty"`
	SourceRef   any        `json:"source_ref,omitempty"`
	PatientID   *uuid.UUID `json:"patient_id,omitempty"`
}

// AddFact appends a fact to the ledger. It never supersedes earlier
// facts of the same type; resolution happens at read time.
func (s *Service) AddFact(ctx context.Context, caseID uuid.UUID, in AddFactInput) (*Fact, error) {
	if in.FactType == "" {
		return nil, fmt.Errorf("fact_type is required")
	}
	if in.SourceType == "" {
		in.SourceType = SourceManual
	}
	if !validSourceTypes[in.SourceType] {
		return nil, fmt.Errorf("invalid source_type: %s", in.SourceType)
	}
	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		return nil, fmt.Errorf("confidence must be in [0,1], got %v", *in.Confidence)
	}

	f := &Fact{
		CaseID:      caseID,
		PatientID:   in.PatientID,
		FactType:    in.FactType,
		Value:       in.Value,
		Confidence:  in.Confidence,
		SourceType:  in.SourceType,
		VoiceNoteID: in.VoiceNoteID,
		SourceRef:   in.SourceRef,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		s.logger.Error().Err(err).
			Str("case_id", caseID.String()).
			Str("fact_type", in.FactType).
			Msg("failed to add fact")
		return nil, fmt.Errorf("adding fact %s: %w", in.FactType, err)
	}
	return f, nil
}

// AddFactsBatch stores an extraction result. Individual failures are
// logged and skipped so one bad fact does not lose the rest.
func (s *Service) AddFactsBatch(ctx context.Context, caseID uuid.UUID, voiceNoteID, patientID *uuid.UUID, candidates []AddFactInput) []*Fact {
	created := make([]*Fact, 0, len(candidates))
	for _, c := range candidates {
		c.SourceType = SourceVoiceNote
		c.VoiceNoteID = voiceNoteID
		c.PatientID = patientID
		f, err := s.AddFact(ctx, caseID, c)
		if err != nil {
			s.logger.Error().Err(err).
				Str("case_id", caseID.String()).
				Str("fact_type", c.FactType).
				Msg("skipping fact in batch")
			continue
		}
		created = append(created, f)
	}
	return created
}

// GetFactMap returns the resolved current entry per fact type.
func (s *Service) GetFactMap(ctx context.Context, caseID uuid.UUID) (map[string]Entry, error) {
	live, err := s.repo.ListLive(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("listing live facts: %w", err)
	}
	return resolveCurrent(live), nil
}

// GetFactValues returns the simplified fact_type -> value map the rule
// engine evaluates against.
func (s *Service) GetFactValues(ctx context.Context, caseID uuid.UUID) (map[string]any, error) {
	m, err := s.GetFactMap(ctx, caseID)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(m))
	for t, e := range m {
		values[t] = e.Value
	}
	return values, nil
}

// GetFactHistory returns the full ledger for a case newest first,
// optionally filtered by fact type. Superseded rows are included.
func (s *Service) GetFactHistory(ctx context.Context, caseID uuid.UUID, factType string) ([]*Fact, error) {
	items, err := s.repo.ListHistory(ctx, caseID, factType)
	if err != nil {
		return nil, fmt.Errorf("listing fact history: %w", err)
	}
	if items == nil {
		items = []*Fact{}
	}
	return items, nil
}

// SupersedeFact soft-deletes a fact, optionally linking its replacement.
func (s *Service) SupersedeFact(ctx context.Context, factID uuid.UUID, newFactID *uuid.UUID) bool {
	if err := s.repo.Supersede(ctx, factID, newFactID); err != nil {
		s.logger.Error().Err(err).Str("fact_id", factID.String()).Msg("failed to supersede fact")
		return false
	}
	return true
}

// VerifyFact records physician attestation on a fact.
func (s *Service) VerifyFact(ctx context.Context, factID uuid.UUID, verifiedBy string) bool {
	if err := s.repo.Verify(ctx, factID, verifiedBy); err != nil {
		s.logger.Error().Err(err).Str("fact_id", factID.String()).Msg("failed to verify fact")
		return false
	}
	return true
}

// HasFact reports whether the case currently has a fact of the given
// type, optionally requiring the value to pass a validator.
func (s *Service) HasFact(ctx context.Context, caseID uuid.UUID, factType string, validator func(any) bool) (bool, error) {
	values, err := s.GetFactValues(ctx, caseID)
	if err != nil {
		return false, err
	}
	v, ok := values[factType]
	if !ok {
		return false, nil
	}
	if validator != nil {
		return validator(v), nil
	}
	return true, nil
}

// resolveCurrent picks the winning live fact per type: latest created_at
// first, ties broken by highest confidence, null confidence last.
func resolveCurrent(live []*Fact) map[string]Entry {
	sorted := make([]*Fact, len(live))
	copy(sorted, live)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.FactType != b.FactType {
			return a.FactType < b.FactType
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return confidenceRank(a.Confidence) > confidenceRank(b.Confidence)
	})

	out := make(map[string]Entry)
	for _, f := range sorted {
		if _, seen := out[f.FactType]; seen {
			continue
		}
		out[f.FactType] = Entry{
			Value:      f.Value,
			Confidence: f.Confidence,
			Verified:   f.Verified,
			FactID:     f.ID,
			RecordedAt: f.CreatedAt,
		}
	}
	return out
}

func confidenceRank(c *float64) float64 {
	if c == nil {
		return -1
	}
	return *c
}
