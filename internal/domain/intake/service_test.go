package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scc/scc/internal/domain/facts"
	"github.com/scc/scc/internal/domain/orcc"
	"github.com/scc/scc/internal/domain/shadowcoder"
	"github.com/scc/scc/internal/platform/extract"
	"github.com/scc/scc/internal/platform/websocket"
)

type mockRepo struct {
	mu      sync.Mutex
	notes   map[uuid.UUID]*VoiceNote
	pingErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{notes: make(map[uuid.UUID]*VoiceNote)}
}

func (m *mockRepo) Create(_ context.Context, n *VoiceNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	n.UpdatedAt = n.CreatedAt
	cp := *n
	m.notes[n.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*VoiceNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *n
	return &cp, nil
}

func (m *mockRepo) FindByContentHash(_ context.Context, hash string) (*VoiceNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.ContentHash == hash {
			cp := *n
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) MarkExtracted(_ context.Context, id uuid.UUID, raw any, summary *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return pgx.ErrNoRows
	}
	n.Status = StatusExtracted
	n.ExtractedFactsRaw = raw
	if summary != nil {
		n.Summary = summary
	}
	return nil
}

func (m *mockRepo) MarkFailed(_ context.Context, id uuid.UUID, errorLog any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return pgx.ErrNoRows
	}
	n.Status = StatusFailed
	n.ErrorLog = errorLog
	return nil
}

func (m *mockRepo) ListRecent(_ context.Context, status, mrn string, limit int) ([]*VoiceNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*VoiceNote
	for _, n := range m.notes {
		if status != "" && n.Status != status {
			continue
		}
		if mrn != "" && (n.MRN == nil || *n.MRN != mrn) {
			continue
		}
		cp := *n
		items = append(items, &cp)
	}
	return items, nil
}

func (m *mockRepo) Ping(_ context.Context) error { return m.pingErr }

type fakeResolver struct {
	caseID  uuid.UUID
	source  string
	patient *orcc.Patient
	err     error
	calls   int
}

func (f *fakeResolver) ResolveCase(_ context.Context, _ string) (uuid.UUID, string, error) {
	f.calls++
	if f.err != nil {
		return uuid.Nil, "", f.err
	}
	return f.caseID, f.source, nil
}

func (f *fakeResolver) GetPatientByMRN(_ context.Context, _ string) (*orcc.Patient, error) {
	if f.patient == nil {
		return nil, orcc.ErrNotFound
	}
	return f.patient, nil
}

type fakeFactWriter struct {
	mu     sync.Mutex
	stored []facts.AddFactInput
	caseID uuid.UUID
	noteID *uuid.UUID
}

func (f *fakeFactWriter) AddFactsBatch(_ context.Context, caseID uuid.UUID, voiceNoteID, patientID *uuid.UUID, candidates []facts.AddFactInput) []*facts.Fact {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caseID = caseID
	f.noteID = voiceNoteID
	f.stored = append(f.stored, candidates...)
	out := make([]*facts.Fact, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, &facts.Fact{ID: uuid.New(), CaseID: caseID, PatientID: patientID, FactType: c.FactType, Value: c.Value})
	}
	return out
}

type fakeEngine struct {
	result *shadowcoder.EvalResult
	err    error
	calls  int
	caseID uuid.UUID
}

func (f *fakeEngine) EvaluateRules(_ context.Context, caseID uuid.UUID) (*shadowcoder.EvalResult, error) {
	f.calls++
	f.caseID = caseID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeExtractor struct {
	available  bool
	result     *extract.Result
	err        error
	procedures *extract.ProcedureDetails
	procErr    error
}

func (f *fakeExtractor) Available() bool { return f.available }

func (f *fakeExtractor) ExtractFacts(_ context.Context, _ string, _ extract.NoteContext) (*extract.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeExtractor) ExtractProcedureDetails(_ context.Context, _ string) (*extract.ProcedureDetails, error) {
	if f.procErr != nil {
		return nil, f.procErr
	}
	return f.procedures, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (c *capturePublisher) Publish(_ context.Context, ev websocket.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

type testDeps struct {
	repo      *mockRepo
	resolver  *fakeResolver
	facts     *fakeFactWriter
	engine    *fakeEngine
	extractor *fakeExtractor
	pub       *capturePublisher
}

func newTestService() (*Service, *testDeps) {
	conf := 0.9
	deps := &testDeps{
		repo:     newMockRepo(),
		resolver: &fakeResolver{caseID: uuid.New(), source: "procedure"},
		facts:    &fakeFactWriter{},
		engine: &fakeEngine{result: &shadowcoder.EvalResult{
			RulesEvaluated: 9, PromptsCreated: 2, PromptsResolved: 1,
		}},
		extractor: &fakeExtractor{
			available: true,
			result: &extract.Result{
				Facts: []extract.FactCandidate{
					{FactType: "abi_value", Value: 0.6, Confidence: &conf, SourceSnippet: "ABI on the right was 0.6"},
					{FactType: "pad_symptom_class", Value: "claudication"},
				},
				Summary:          "Right leg claudication, ABI 0.6.",
				MissingForCoding: []string{"toe_pressure"},
			},
		},
		pub: &capturePublisher{},
	}
	svc := NewService(deps.repo, deps.resolver, deps.facts, deps.engine, deps.extractor, deps.pub, zerolog.Nop())
	return svc, deps
}

func strPtr(s string) *string { return &s }

func TestContentHash(t *testing.T) {
	ts := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	h1 := ContentHash("patient seen today", &ts)
	h2 := ContentHash("patient seen today", &ts)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	later := ts.Add(time.Hour)
	assert.NotEqual(t, h1, ContentHash("patient seen today", &later))
	assert.NotEqual(t, h1, ContentHash("different note", &ts))
}

func TestIngest_FullPipeline(t *testing.T) {
	svc, deps := newTestService()
	captured := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	result, err := svc.Ingest(context.Background(), IngestInput{
		Transcript:  "  Saw the patient for right leg claudication. ABI 0.6. ",
		MRN:         "M100",
		PatientName: strPtr("Luis Vega"),
		CapturedAt:  &captured,
	})
	require.NoError(t, err)

	assert.False(t, result.Duplicate)
	assert.Equal(t, "procedure", result.CaseResolution)
	require.NotNil(t, result.CaseID)
	assert.Equal(t, deps.resolver.caseID, *result.CaseID)

	assert.True(t, result.Extraction.Success)
	assert.Equal(t, 2, result.Extraction.FactsExtracted)
	assert.Equal(t, 2, result.Extraction.FactsStored)
	assert.Equal(t, []string{"toe_pressure"}, result.Extraction.MissingForCoding)

	assert.Equal(t, 9, result.Rules.Evaluated)
	assert.Equal(t, 2, result.Rules.PromptsCreated)
	assert.Equal(t, 1, result.Rules.PromptsResolved)
	assert.Empty(t, result.Rules.Error)
	assert.Equal(t, deps.resolver.caseID, deps.engine.caseID)

	note, err := deps.repo.GetByID(context.Background(), result.VoiceNoteID)
	require.NoError(t, err)
	assert.Equal(t, StatusExtracted, note.Status)
	assert.Equal(t, "Saw the patient for right leg claudication. ABI 0.6.", note.Transcript)
	require.NotNil(t, note.Summary)
	assert.Equal(t, "Right leg claudication, ABI 0.6.", *note.Summary)
	assert.Equal(t, "plaud", note.Provenance["source"])
	assert.Equal(t, deps.resolver.caseID.String(), note.Provenance["resolved_case_id"])
	assert.Equal(t, "procedure", note.Provenance["case_resolution_source"])

	require.Len(t, deps.facts.stored, 2)
	assert.Equal(t, "abi_value", deps.facts.stored[0].FactType)
	assert.Equal(t, map[string]string{"snippet": "ABI on the right was 0.6"}, deps.facts.stored[0].SourceRef)
	assert.Nil(t, deps.facts.stored[1].SourceRef)
	require.NotNil(t, deps.facts.noteID)
	assert.Equal(t, result.VoiceNoteID, *deps.facts.noteID)

	require.Len(t, deps.pub.events, 2)
	assert.Equal(t, websocket.EventIntakeReceived, deps.pub.events[0].Type)
	assert.Equal(t, websocket.MRNTopic("M100"), deps.pub.events[0].Topic)
	assert.Equal(t, websocket.EventFactAdded, deps.pub.events[1].Type)
}

func TestIngest_EmptyTranscript(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Ingest(context.Background(), IngestInput{Transcript: "   "})
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestIngest_DuplicateSuppressed(t *testing.T) {
	svc, deps := newTestService()
	captured := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	in := IngestInput{Transcript: "post-op check, incision clean", MRN: "M100", CapturedAt: &captured}

	first, err := svc.Ingest(context.Background(), in)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := svc.Ingest(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.VoiceNoteID, second.VoiceNoteID)
	require.NotNil(t, second.CaseID)
	assert.Equal(t, *first.CaseID, *second.CaseID)

	// pipeline does not re-run for the duplicate
	assert.Equal(t, 1, deps.engine.calls)
	assert.Len(t, deps.repo.notes, 1)
}

func TestIngest_ProvidedCaseIDWins(t *testing.T) {
	svc, deps := newTestService()
	caseID := uuid.New()

	result, err := svc.Ingest(context.Background(), IngestInput{
		Transcript: "note for an existing case",
		MRN:        "M100",
		CaseID:     &caseID,
	})
	require.NoError(t, err)
	assert.Equal(t, caseID, *result.CaseID)
	assert.Equal(t, "provided", result.CaseResolution)
	assert.Equal(t, 0, deps.resolver.calls)
}

func TestIngest_NoMRNGeneratesCase(t *testing.T) {
	svc, deps := newTestService()

	result, err := svc.Ingest(context.Background(), IngestInput{Transcript: "anonymous dictation"})
	require.NoError(t, err)
	assert.Equal(t, "generated", result.CaseResolution)
	require.NotNil(t, result.CaseID)
	assert.NotEqual(t, uuid.Nil, *result.CaseID)
	assert.Equal(t, 0, deps.resolver.calls)

	// no MRN means the event lands on the case topic
	require.NotEmpty(t, deps.pub.events)
	assert.Equal(t, websocket.CaseTopic(result.CaseID.String()), deps.pub.events[0].Topic)
}

func TestIngest_PatientIDFromResolver(t *testing.T) {
	svc, deps := newTestService()
	deps.resolver.patient = &orcc.Patient{ID: uuid.New(), MRN: "M100"}

	result, err := svc.Ingest(context.Background(), IngestInput{Transcript: "clinic note", MRN: "M100"})
	require.NoError(t, err)
	require.NotNil(t, result.PatientID)
	assert.Equal(t, deps.resolver.patient.ID, *result.PatientID)
}

func TestIngest_ExtractionFailureDoesNotFailIngest(t *testing.T) {
	svc, deps := newTestService()
	deps.extractor.err = errors.New("model overloaded")

	result, err := svc.Ingest(context.Background(), IngestInput{Transcript: "note that will not extract", MRN: "M100"})
	require.NoError(t, err)

	assert.False(t, result.Extraction.Success)
	assert.Equal(t, 0, result.Extraction.FactsExtracted)
	// rules still run against whatever facts the case already has
	assert.Equal(t, 1, deps.engine.calls)
	assert.Equal(t, 9, result.Rules.Evaluated)

	note, err := deps.repo.GetByID(context.Background(), result.VoiceNoteID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, note.Status)
	assert.Equal(t, map[string]string{"extraction_error": "model overloaded"}, note.ErrorLog)
}

func TestIngest_ExtractorUnavailable(t *testing.T) {
	svc, deps := newTestService()
	deps.extractor.available = false

	result, err := svc.Ingest(context.Background(), IngestInput{Transcript: "note without extraction", MRN: "M100"})
	require.NoError(t, err)
	assert.False(t, result.Extraction.Success)
	assert.Empty(t, deps.facts.stored)

	note, err := deps.repo.GetByID(context.Background(), result.VoiceNoteID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, note.Status)
}

func TestIngest_RulesErrorIsCaptured(t *testing.T) {
	svc, deps := newTestService()
	deps.engine.err = errors.New("rules db timeout")

	result, err := svc.Ingest(context.Background(), IngestInput{Transcript: "note with failing rules", MRN: "M100"})
	require.NoError(t, err)
	assert.Equal(t, "rules db timeout", result.Rules.Error)
	assert.Equal(t, 0, result.Rules.Evaluated)
	assert.True(t, result.Extraction.Success)
}

func TestIngest_ZapierProvenancePreserved(t *testing.T) {
	svc, deps := newTestService()

	result, err := svc.Ingest(context.Background(), IngestInput{
		Transcript: "zapier forwarded note",
		MRN:        "M100",
		Provenance: map[string]any{"source": "zapier", "zap_id": "z-123"},
	})
	require.NoError(t, err)

	note, err := deps.repo.GetByID(context.Background(), result.VoiceNoteID)
	require.NoError(t, err)
	assert.Equal(t, "zapier", note.Provenance["source"])
	assert.Equal(t, "z-123", note.Provenance["zap_id"])
	assert.NotEmpty(t, note.Provenance["ingested_at"])
}

func TestAnalyze(t *testing.T) {
	svc, deps := newTestService()
	deps.extractor.procedures = &extract.ProcedureDetails{}

	result, err := svc.Analyze(context.Background(), "angioplasty of the SFA", extract.NoteContext{MRN: "M100"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Facts, 2)
	assert.NotNil(t, result.ProcedureAnalysis)

	deps.extractor.available = false
	_, err = svc.Analyze(context.Background(), "angioplasty of the SFA", extract.NoteContext{})
	assert.ErrorIs(t, err, ErrExtractionUnavailable)
}

func TestAnalyze_ProcedureDetailFailureIsNonFatal(t *testing.T) {
	svc, deps := newTestService()
	deps.extractor.procErr = errors.New("timeout")

	result, err := svc.Analyze(context.Background(), "angioplasty of the SFA", extract.NoteContext{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.ProcedureAnalysis)
}

func TestGetNote_NotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.GetNote(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatus(t *testing.T) {
	svc, deps := newTestService()

	st := svc.Status(context.Background())
	assert.Equal(t, "healthy", st.Status)
	assert.Equal(t, "connected", st.Database)
	assert.Equal(t, "configured", st.ClaudeAPI)

	deps.repo.pingErr = errors.New("connection refused")
	deps.extractor.available = false
	st = svc.Status(context.Background())
	assert.Equal(t, "degraded", st.Status)
	assert.Equal(t, "disconnected", st.Database)
	assert.Equal(t, "not_configured", st.ClaudeAPI)
}
