package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/scc/scc/internal/domain/facts"
	"github.com/scc/scc/internal/domain/orcc"
	"github.com/scc/scc/internal/domain/shadowcoder"
	"github.com/scc/scc/internal/platform/extract"
	"github.com/scc/scc/internal/platform/websocket"
)

var (
	ErrNotFound              = errors.New("voice note not found")
	ErrEmptyTranscript       = errors.New("transcript is required")
	ErrExtractionUnavailable = errors.New("extraction not configured")
)

// CaseResolver maps MRNs onto case and patient ids.
type CaseResolver interface {
	ResolveCase(ctx context.Context, mrn string) (uuid.UUID, string, error)
	GetPatientByMRN(ctx context.Context, mrn string) (*orcc.Patient, error)
}

// FactWriter stores extracted fact candidates on a case.
type FactWriter interface {
	AddFactsBatch(ctx context.Context, caseID uuid.UUID, voiceNoteID, patientID *uuid.UUID, candidates []facts.AddFactInput) []*facts.Fact
}

// RuleEvaluator re-checks the coding rules after new facts land.
type RuleEvaluator interface {
	EvaluateRules(ctx context.Context, caseID uuid.UUID) (*shadowcoder.EvalResult, error)
}

// TranscriptExtractor is the LLM extraction surface the pipeline uses.
type TranscriptExtractor interface {
	Available() bool
	ExtractFacts(ctx context.Context, transcript string, nc extract.NoteContext) (*extract.Result, error)
	ExtractProcedureDetails(ctx context.Context, transcript string) (*extract.ProcedureDetails, error)
}

type Service struct {
	repo      Repository
	resolver  CaseResolver
	facts     FactWriter
	engine    RuleEvaluator
	extractor TranscriptExtractor
	publisher websocket.EventPublisher
	logger    zerolog.Logger
}

func NewService(repo Repository, resolver CaseResolver, factWriter FactWriter,
	engine RuleEvaluator, extractor TranscriptExtractor,
	publisher websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		resolver:  resolver,
		facts:     factWriter,
		engine:    engine,
		extractor: extractor,
		publisher: publisher,
		logger:    logger.With().Str("component", "intake").Logger(),
	}
}

// Ingest runs the full pipeline for one voice note: dedupe, case
// resolution, persistence, extraction, fact storage, rule evaluation.
// Extraction failure marks the note failed but does not fail the
// ingestion; rules still run against whatever facts the case has.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	start := time.Now()

	transcript := strings.TrimSpace(in.Transcript)
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}

	hash := ContentHash(transcript, in.CapturedAt)
	existing, err := s.repo.FindByContentHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Debug().Str("content_hash", hash[:16]).Msg("duplicate note suppressed")
		result := &IngestResult{
			Duplicate:        true,
			VoiceNoteID:      existing.ID,
			ProcessingTimeMS: time.Since(start).Milliseconds(),
		}
		if existing.Provenance != nil {
			if raw, ok := existing.Provenance["resolved_case_id"].(string); ok {
				if caseID, err := uuid.Parse(raw); err == nil {
					result.CaseID = &caseID
				}
			}
		}
		return result, nil
	}

	caseID, source, err := s.resolveCase(ctx, in)
	if err != nil {
		return nil, err
	}
	patientID := s.resolvePatient(ctx, in)

	now := time.Now().UTC()
	capturedAt := in.CapturedAt
	if capturedAt == nil {
		capturedAt = &now
	}

	provenance := map[string]any{}
	for k, v := range in.Provenance {
		provenance[k] = v
	}
	if _, ok := provenance["source"]; !ok {
		provenance["source"] = "plaud"
	}
	provenance["ingested_at"] = now.Format(time.RFC3339)
	provenance["resolved_case_id"] = caseID.String()
	provenance["case_resolution_source"] = source

	note := &VoiceNote{
		Transcript:  transcript,
		Summary:     in.Summary,
		ContentHash: hash,
		AudioRef:    in.AudioRef,
		PatientName: in.PatientName,
		CapturedAt:  capturedAt,
		Status:      StatusProcessing,
		Provenance:  provenance,
	}
	if in.MRN != "" {
		mrn := in.MRN
		note.MRN = &mrn
	}
	if err := s.repo.Create(ctx, note); err != nil {
		return nil, err
	}
	s.logger.Info().Str("voice_note_id", note.ID.String()).Str("case_id", caseID.String()).
		Str("case_resolution", source).Msg("voice note ingested")
	s.publishEvent(ctx, websocket.EventIntakeReceived, in.MRN, caseID, note.ID.String(),
		map[string]string{"status": StatusProcessing})

	result := &IngestResult{
		VoiceNoteID:    note.ID,
		CaseID:         &caseID,
		PatientID:      patientID,
		CaseResolution: source,
		Extraction:     ExtractionSummary{MissingForCoding: []string{}},
	}

	s.runExtraction(ctx, transcript, in, note.ID, caseID, patientID, result)
	s.runRules(ctx, caseID, result)

	result.ProcessingTimeMS = time.Since(start).Milliseconds()
	return result, nil
}

func (s *Service) resolveCase(ctx context.Context, in IngestInput) (uuid.UUID, string, error) {
	if in.CaseID != nil {
		return *in.CaseID, "provided", nil
	}
	if in.MRN == "" {
		return uuid.New(), "generated", nil
	}
	return s.resolver.ResolveCase(ctx, in.MRN)
}

func (s *Service) resolvePatient(ctx context.Context, in IngestInput) *uuid.UUID {
	if in.PatientID != nil {
		return in.PatientID
	}
	if in.MRN == "" {
		return nil
	}
	patient, err := s.resolver.GetPatientByMRN(ctx, in.MRN)
	if err != nil {
		return nil
	}
	return &patient.ID
}

func (s *Service) runExtraction(ctx context.Context, transcript string, in IngestInput,
	noteID, caseID uuid.UUID, patientID *uuid.UUID, result *IngestResult) {
	if s.extractor == nil || !s.extractor.Available() {
		return
	}

	nc := extract.NoteContext{MRN: in.MRN}
	if in.PatientName != nil {
		nc.PatientName = *in.PatientName
	}
	res, err := s.extractor.ExtractFacts(ctx, transcript, nc)
	if err != nil {
		s.logger.Error().Err(err).Str("voice_note_id", noteID.String()).Msg("extraction failed")
		if mErr := s.repo.MarkFailed(ctx, noteID, map[string]string{"extraction_error": err.Error()}); mErr != nil {
			s.logger.Error().Err(mErr).Str("voice_note_id", noteID.String()).Msg("mark failed update failed")
		}
		return
	}

	var summary *string
	if res.Summary != "" {
		summary = &res.Summary
	}
	if err := s.repo.MarkExtracted(ctx, noteID, res, summary); err != nil {
		s.logger.Error().Err(err).Str("voice_note_id", noteID.String()).Msg("mark extracted update failed")
	}

	candidates := make([]facts.AddFactInput, 0, len(res.Facts))
	for _, f := range res.Facts {
		in := facts.AddFactInput{
			FactType:   f.FactType,
			Value:      f.Value,
			Confidence: f.Confidence,
		}
		if f.SourceSnippet != "" {
			in.SourceRef = map[string]string{"snippet": f.SourceSnippet}
		}
		candidates = append(candidates, in)
	}
	stored := s.facts.AddFactsBatch(ctx, caseID, &noteID, patientID, candidates)

	result.Extraction = ExtractionSummary{
		Success:          true,
		FactsExtracted:   len(res.Facts),
		FactsStored:      len(stored),
		Summary:          summary,
		MissingForCoding: res.MissingForCoding,
	}
	if result.Extraction.MissingForCoding == nil {
		result.Extraction.MissingForCoding = []string{}
	}
	if len(stored) > 0 {
		s.publishEvent(ctx, websocket.EventFactAdded, in.MRN, caseID, noteID.String(),
			map[string]any{"facts_stored": len(stored)})
	}
}

func (s *Service) runRules(ctx context.Context, caseID uuid.UUID, result *IngestResult) {
	if s.engine == nil {
		return
	}
	eval, err := s.engine.EvaluateRules(ctx, caseID)
	if err != nil {
		s.logger.Error().Err(err).Str("case_id", caseID.String()).Msg("rules evaluation failed")
		result.Rules.Error = err.Error()
		return
	}
	result.Rules = RulesSummary{
		Evaluated:       eval.RulesEvaluated,
		PromptsCreated:  eval.PromptsCreated,
		PromptsResolved: eval.PromptsResolved,
	}
}

// AnalyzeResult is the one-shot analysis response: nothing is stored.
type AnalyzeResult struct {
	Success           bool                      `json:"success"`
	Facts             []extract.FactCandidate   `json:"facts"`
	Summary           string                    `json:"summary,omitempty"`
	MissingForCoding  []string                  `json:"missing_for_coding"`
	ProcedureAnalysis *extract.ProcedureDetails `json:"procedure_analysis,omitempty"`
	ProcessingTimeMS  int64                     `json:"processing_time_ms"`
}

// Analyze runs extraction on a transcript without persisting anything.
func (s *Service) Analyze(ctx context.Context, transcript string, nc extract.NoteContext) (*AnalyzeResult, error) {
	if s.extractor == nil || !s.extractor.Available() {
		return nil, ErrExtractionUnavailable
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrEmptyTranscript
	}
	start := time.Now()

	res, err := s.extractor.ExtractFacts(ctx, transcript, nc)
	if err != nil {
		return nil, err
	}
	procedures, err := s.extractor.ExtractProcedureDetails(ctx, transcript)
	if err != nil {
		s.logger.Warn().Err(err).Msg("procedure detail extraction failed")
		procedures = nil
	}

	out := &AnalyzeResult{
		Success:           true,
		Facts:             res.Facts,
		Summary:           res.Summary,
		MissingForCoding:  res.MissingForCoding,
		ProcedureAnalysis: procedures,
		ProcessingTimeMS:  time.Since(start).Milliseconds(),
	}
	if out.Facts == nil {
		out.Facts = []extract.FactCandidate{}
	}
	if out.MissingForCoding == nil {
		out.MissingForCoding = []string{}
	}
	return out, nil
}

func (s *Service) GetNote(ctx context.Context, id uuid.UUID) (*VoiceNote, error) {
	n, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

func (s *Service) Recent(ctx context.Context, status, mrn string, limit int) ([]*VoiceNote, error) {
	notes, err := s.repo.ListRecent(ctx, status, mrn, limit)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []*VoiceNote{}
	}
	return notes, nil
}

// ServiceStatus is the pipeline health snapshot.
type ServiceStatus struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	ClaudeAPI string `json:"claude_api"`
}

func (s *Service) Status(ctx context.Context) *ServiceStatus {
	st := &ServiceStatus{Status: "healthy", Database: "connected", ClaudeAPI: "not_configured"}
	if err := s.repo.Ping(ctx); err != nil {
		st.Status = "degraded"
		st.Database = "disconnected"
	}
	if s.extractor != nil && s.extractor.Available() {
		st.ClaudeAPI = "configured"
	}
	return st
}

func (s *Service) publishEvent(ctx context.Context, eventType, mrn string, caseID uuid.UUID, resourceID string, payload any) {
	if s.publisher == nil {
		return
	}
	topic := websocket.CaseTopic(caseID.String())
	if mrn != "" {
		topic = websocket.MRNTopic(mrn)
	}
	ev := websocket.NewEvent(eventType, topic, "voice_note", resourceID, payload)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("intake event publish failed")
	}
}
