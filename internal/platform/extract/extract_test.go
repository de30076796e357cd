package extract

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/rs/zerolog"
)

func TestParseResult_PlainJSON(t *testing.T) {
	content := `{
		"facts": [
			{"fact_type": "laterality", "value": "left", "confidence": 0.95, "source_snippet": "left leg claudication"}
		],
		"summary": "Left leg claudication",
		"missing_for_coding": ["abi_value"]
	}`

	result, err := ParseResult(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(result.Facts))
	}
	if result.Facts[0].FactType != "laterality" {
		t.Errorf("expected laterality, got %s", result.Facts[0].FactType)
	}
	if result.Facts[0].Value != "left" {
		t.Errorf("expected value left, got %v", result.Facts[0].Value)
	}
	if result.Facts[0].Confidence == nil || *result.Facts[0].Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %v", result.Facts[0].Confidence)
	}
	if result.Summary != "Left leg claudication" {
		t.Errorf("unexpected summary: %s", result.Summary)
	}
	if len(result.MissingForCoding) != 1 || result.MissingForCoding[0] != "abi_value" {
		t.Errorf("unexpected missing_for_coding: %v", result.MissingForCoding)
	}
}

func TestParseResult_FencedJSON(t *testing.T) {
	content := "Here is the extraction:\n```json\n{\"facts\": [{\"fact_type\": \"wound_present\", \"value\": true}], \"summary\": \"s\", \"missing_for_coding\": []}\n```\nDone."

	result, err := ParseResult(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(result.Facts))
	}
	if result.Facts[0].FactType != "wound_present" {
		t.Errorf("expected wound_present, got %s", result.Facts[0].FactType)
	}
	if result.Facts[0].Value != true {
		t.Errorf("expected value true, got %v", result.Facts[0].Value)
	}
}

func TestParseResult_BareFence(t *testing.T) {
	content := "```\n{\"facts\": [], \"summary\": \"nothing\", \"missing_for_coding\": []}\n```"

	result, err := ParseResult(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary != "nothing" {
		t.Errorf("expected summary nothing, got %s", result.Summary)
	}
}

func TestParseResult_ProseAroundObject(t *testing.T) {
	content := `The result is {"facts": [], "summary": "ok", "missing_for_coding": ["laterality"]} as requested.`

	result, err := ParseResult(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.MissingForCoding) != 1 {
		t.Errorf("expected 1 missing element, got %v", result.MissingForCoding)
	}
}

func TestParseResult_Invalid(t *testing.T) {
	if _, err := ParseResult("not json at all"); err == nil {
		t.Fatal("expected error for non-JSON content")
	}
}

func TestParseResult_NilSlicesNormalized(t *testing.T) {
	result, err := ParseResult(`{"summary": "s"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Facts == nil {
		t.Error("expected non-nil facts slice")
	}
	if result.MissingForCoding == nil {
		t.Error("expected non-nil missing_for_coding slice")
	}
}

func TestBuildUserPrompt_WithContext(t *testing.T) {
	prompt := buildUserPrompt("left leg pain", NoteContext{
		PatientName:   "John Smith",
		MRN:           "MRN001",
		ProcedureType: "SFA angioplasty",
	})

	for _, want := range []string{"left leg pain", "Known patient: John Smith", "Known MRN: MRN001", "Procedure context: SFA angioplasty"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildUserPrompt_NoContext(t *testing.T) {
	prompt := buildUserPrompt("note text", NoteContext{})
	if strings.Contains(prompt, "Known patient") || strings.Contains(prompt, "Known MRN") {
		t.Errorf("prompt should omit unset context: %s", prompt)
	}
}

func TestExtractor_Unavailable(t *testing.T) {
	e := New("", "", zerolog.Nop())
	if e.Available() {
		t.Fatal("expected extractor without API key to be unavailable")
	}
	if _, err := e.ExtractFacts(context.Background(), "note", NoteContext{}); err == nil {
		t.Error("expected error from ExtractFacts when unavailable")
	}
	if _, err := e.ClassifyPADSymptoms(context.Background(), "note"); err == nil {
		t.Error("expected error from ClassifyPADSymptoms when unavailable")
	}
}

func TestExtractor_DefaultModel(t *testing.T) {
	e := New("sk-test", "", zerolog.Nop())
	if e.model != DefaultModel {
		t.Errorf("expected default model %s, got %s", DefaultModel, e.model)
	}
	if !e.Available() {
		t.Error("expected extractor with API key to be available")
	}
}

type fakeMessagesAPI struct {
	response string
	err      error
	lastReq  anthropic.MessagesRequest
}

func (f *fakeMessagesAPI) CreateMessages(_ context.Context, req anthropic.MessagesRequest) (anthropic.MessagesResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return anthropic.MessagesResponse{}, f.err
	}
	text := f.response
	return anthropic.MessagesResponse{
		Content: []anthropic.MessageContent{
			{Type: "text", Text: &text},
		},
	}, nil
}

func TestExtractFacts_ParsesModelResponse(t *testing.T) {
	fake := &fakeMessagesAPI{
		response: "```json\n{\"facts\": [{\"fact_type\": \"pad_symptom_class\", \"value\": \"claudication\", \"confidence\": 0.9}], \"summary\": \"Claudication note\", \"missing_for_coding\": [\"abi_value\"]}\n```",
	}
	e := &Extractor{client: fake, model: DefaultModel, logger: zerolog.Nop()}

	result, err := e.ExtractFacts(context.Background(), "patient reports calf pain walking two blocks", NoteContext{MRN: "MRN42"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Facts) != 1 || result.Facts[0].FactType != "pad_symptom_class" {
		t.Fatalf("unexpected facts: %+v", result.Facts)
	}
	if result.RawResponse == "" {
		t.Error("expected raw response to be recorded")
	}

	if fake.lastReq.System == "" {
		t.Error("expected system prompt in request")
	}
	if fake.lastReq.MaxTokens != extractMaxTokens {
		t.Errorf("expected max tokens %d, got %d", extractMaxTokens, fake.lastReq.MaxTokens)
	}
	if len(fake.lastReq.Messages) != 1 || fake.lastReq.Messages[0].Role != anthropic.RoleUser {
		t.Fatalf("unexpected messages: %+v", fake.lastReq.Messages)
	}
}

func TestExtractFacts_APIError(t *testing.T) {
	fake := &fakeMessagesAPI{err: fmt.Errorf("rate limited")}
	e := &Extractor{client: fake, model: DefaultModel, logger: zerolog.Nop()}

	if _, err := e.ExtractFacts(context.Background(), "note", NoteContext{}); err == nil {
		t.Fatal("expected error when API call fails")
	}
}

func TestClassifyPADSymptoms_TruncatesLongTranscript(t *testing.T) {
	fake := &fakeMessagesAPI{
		response: `{"class": "rest_pain", "confidence": 0.8, "evidence": "pain at night"}`,
	}
	e := &Extractor{client: fake, model: DefaultModel, logger: zerolog.Nop()}

	long := strings.Repeat("x", 5000)
	out, err := e.ClassifyPADSymptoms(context.Background(), long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Class != "rest_pain" {
		t.Errorf("expected rest_pain, got %s", out.Class)
	}

	sent := *fake.lastReq.Messages[0].Content[0].Text
	if len(sent) > 2200 {
		t.Errorf("expected transcript truncation, prompt length %d", len(sent))
	}
}

func TestExtractProcedureDetails(t *testing.T) {
	fake := &fakeMessagesAPI{
		response: `{"procedures": [{"description": "SFA angioplasty", "vessel": "sfa", "laterality": "left", "techniques": ["angioplasty", "stent"], "suggested_cpt": ["37226"], "confidence": 0.85}], "modifiers_needed": [], "bundling_concerns": []}`,
	}
	e := &Extractor{client: fake, model: DefaultModel, logger: zerolog.Nop()}

	out, err := e.ExtractProcedureDetails(context.Background(), "performed left SFA angioplasty with stent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Procedures) != 1 {
		t.Fatalf("expected 1 procedure, got %d", len(out.Procedures))
	}
	if out.Procedures[0].Vessel != "sfa" {
		t.Errorf("expected vessel sfa, got %s", out.Procedures[0].Vessel)
	}
}
