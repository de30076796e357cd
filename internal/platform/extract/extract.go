// Package extract turns free-text vascular surgery voice notes into
// structured clinical facts using the Anthropic Messages API.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/rs/zerolog"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

const extractMaxTokens = 2000

// FactCandidate is a single extracted fact before persistence.
type FactCandidate struct {
	FactType      string   `json:"fact_type"`
	Value         any      `json:"value"`
	Confidence    *float64 `json:"confidence,omitempty"`
	SourceSnippet string   `json:"source_snippet,omitempty"`
}

// Result is the structured output of a transcript extraction.
type Result struct {
	Facts            []FactCandidate `json:"facts"`
	Summary          string          `json:"summary"`
	MissingForCoding []string        `json:"missing_for_coding"`
	RawResponse      string          `json:"-"`
}

// NoteContext carries optional case context that sharpens extraction.
type NoteContext struct {
	PatientName   string
	MRN           string
	ProcedureType string
}

// SymptomClassification is the output of the quick PAD symptom triage call.
type SymptomClassification struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// ProcedureDetail describes one procedure found in a note, with CPT hints.
type ProcedureDetail struct {
	Description  string   `json:"description"`
	Vessel       string   `json:"vessel"`
	Laterality   string   `json:"laterality"`
	Approach     string   `json:"approach"`
	Techniques   []string `json:"techniques"`
	SuggestedCPT []string `json:"suggested_cpt"`
	Confidence   float64  `json:"confidence"`
}

// ProcedureDetails is the output of the coding-focused extraction call.
type ProcedureDetails struct {
	Procedures       []ProcedureDetail `json:"procedures"`
	ModifiersNeeded  []string          `json:"modifiers_needed"`
	BundlingConcerns []string          `json:"bundling_concerns"`
}

// messagesAPI is the slice of the Anthropic client the extractor needs.
type messagesAPI interface {
	CreateMessages(ctx context.Context, request anthropic.MessagesRequest) (anthropic.MessagesResponse, error)
}

// Extractor calls Claude to pull structured facts out of transcripts.
// A zero API key produces an extractor that reports unavailable and
// returns errors from every extraction call.
type Extractor struct {
	client messagesAPI
	model  string
	logger zerolog.Logger
}

// New builds an Extractor. With an empty apiKey the extractor is disabled.
func New(apiKey, model string, logger zerolog.Logger) *Extractor {
	e := &Extractor{
		model:  model,
		logger: logger.With().Str("component", "extract").Logger(),
	}
	if e.model == "" {
		e.model = DefaultModel
	}
	if apiKey != "" {
		e.client = anthropic.NewClient(apiKey)
		e.logger.Info().Str("model", e.model).Msg("transcript extraction enabled")
	} else {
		e.logger.Warn().Msg("no API key configured, transcript extraction disabled")
	}
	return e
}

// Available reports whether the extractor can make API calls.
func (e *Extractor) Available() bool {
	return e.client != nil
}

const extractSystemPrompt = `You are a clinical documentation specialist extracting structured data from vascular surgery voice notes for coding compliance.

Extract ONLY facts that are explicitly stated or strongly implied. Do not infer or assume.

Return a JSON object with these possible fields (omit if not mentioned):

PATIENT INFO:
- "patient_name": string
- "mrn": string
- "encounter_date": string

SYMPTOM CLASSIFICATION:
- "pad_symptom_class": "asymptomatic" | "claudication" | "rest_pain" | "tissue_loss"
- "claudication_distance": { "value": number, "unit": "blocks" | "feet" | "meters" }
- "activity_limitation_documented": boolean (true if lifestyle-limiting symptoms described)
- "limb_threatening_documented": boolean (true if limb threat/amputation risk mentioned)

HEMODYNAMICS:
- "abi_value": { "left": number, "right": number }
- "tbi_value": { "left": number, "right": number }
- "toe_pressure": { "left": number, "right": number }
- "tcpo2": { "left": number, "right": number }

ANATOMY:
- "laterality": "left" | "right" | "bilateral"
- "target_territory": "iliac" | "femoral_popliteal" | "tibial_peroneal" | "inframalleolar" | "renal" | "carotid"
- "target_vessel": string[] (e.g., ["sfa", "popliteal", "anterior_tibial"])
- "lesion_complexity": "straightforward" | "complex" (complex = CTO, heavy calcification, long segment)

WOUND/TISSUE LOSS:
- "wound_present": boolean
- "wound_location": string
- "wound_stage": string (WIfI or Wagner if mentioned)
- "gangrene_present": boolean
- "infection_present": boolean

MEDICAL MANAGEMENT (for claudication):
- "antiplatelet_documented": boolean
- "statin_documented": boolean
- "exercise_program_documented": boolean
- "smoking_cessation_documented": boolean

PROCEDURE:
- "procedure_planned": "angioplasty" | "stent" | "atherectomy" | "bypass" | "angiogram"
- "procedure_technique": "pta_only" | "stent" | "atherectomy" | "atherectomy_stent" | "lithotripsy"
- "stent_justification": "calcified_lesion" | "total_occlusion" | "eccentric_lesion" | "high_embolization_risk"

COMORBIDITIES:
- "diabetes_status": boolean
- "smoking_status": "current" | "former" | "never"
- "renal_status": "normal" | "ckd" | "esrd_dialysis"
- "egfr": number
- "creatinine": number

PRIOR HISTORY:
- "prior_intervention_documented": boolean
- "prior_intervention": [{ "type": string, "date": string, "vessel": string }]

CAROTID-SPECIFIC (if carotid procedure):
- "carotid_stenosis_degree": number (percent)
- "carotid_symptom_status": "symptomatic" | "asymptomatic"
- "nihss_documented": boolean
- "shared_decision_documented": boolean

For each extracted fact, also provide a confidence score (0.0-1.0) and the relevant text snippet.

Respond ONLY with valid JSON in this format:
{
  "facts": [
    {
      "fact_type": "laterality",
      "value": "left",
      "confidence": 0.95,
      "source_snippet": "left leg claudication"
    }
  ],
  "summary": "Brief clinical summary",
  "missing_for_coding": ["list of important missing elements for PAD coding"]
}`

// ExtractFacts runs the full fact extraction over a transcript.
func (e *Extractor) ExtractFacts(ctx context.Context, transcript string, nc NoteContext) (*Result, error) {
	if !e.Available() {
		return nil, fmt.Errorf("extraction not available: API key not configured")
	}

	prompt := buildUserPrompt(transcript, nc)

	resp, err := e.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(e.model),
		MaxTokens: extractMaxTokens,
		System:    extractSystemPrompt,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calling extraction model: %w", err)
	}

	content := firstTextBlock(resp)
	result, err := ParseResult(content)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to parse extraction response")
		return nil, err
	}
	result.RawResponse = content

	e.logger.Info().
		Int("facts", len(result.Facts)).
		Int("missing", len(result.MissingForCoding)).
		Msg("transcript extraction complete")

	return result, nil
}

// ClassifyPADSymptoms performs a quick symptom-class triage without full
// extraction. Long transcripts are truncated.
func (e *Extractor) ClassifyPADSymptoms(ctx context.Context, transcript string) (*SymptomClassification, error) {
	if !e.Available() {
		return nil, fmt.Errorf("extraction not available: API key not configured")
	}

	if len(transcript) > 2000 {
		transcript = transcript[:2000]
	}
	prompt := fmt.Sprintf(`Classify the PAD symptom severity in this note. Reply with JSON only:
{"class": "asymptomatic|claudication|rest_pain|tissue_loss", "confidence": 0.0-1.0, "evidence": "brief quote"}

Note: %s`, transcript)

	resp, err := e.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(e.model),
		MaxTokens: 500,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calling classification model: %w", err)
	}

	var out SymptomClassification
	if err := json.Unmarshal([]byte(extractJSONBlock(firstTextBlock(resp))), &out); err != nil {
		return nil, fmt.Errorf("parsing classification response: %w", err)
	}
	return &out, nil
}

const procedureSystemPrompt = `You are a vascular surgery coding specialist. Extract procedure details for CPT coding.

Return JSON:
{
  "procedures": [
    {
      "description": "procedure name",
      "vessel": "target vessel",
      "laterality": "left|right|bilateral",
      "approach": "percutaneous|open|hybrid",
      "techniques": ["angioplasty", "stent", "atherectomy", etc],
      "suggested_cpt": ["code1", "code2"],
      "confidence": 0.0-1.0
    }
  ],
  "modifiers_needed": ["59", "XE", etc],
  "bundling_concerns": ["potential bundling issues"]
}`

// ExtractProcedureDetails pulls CPT-relevant procedure details from a note.
func (e *Extractor) ExtractProcedureDetails(ctx context.Context, transcript string) (*ProcedureDetails, error) {
	if !e.Available() {
		return nil, fmt.Errorf("extraction not available: API key not configured")
	}

	prompt := fmt.Sprintf("Extract procedure coding details:\n\n%s", transcript)

	resp, err := e.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(e.model),
		MaxTokens: 1500,
		System:    procedureSystemPrompt,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calling procedure model: %w", err)
	}

	var out ProcedureDetails
	if err := json.Unmarshal([]byte(extractJSONBlock(firstTextBlock(resp))), &out); err != nil {
		return nil, fmt.Errorf("parsing procedure response: %w", err)
	}
	return &out, nil
}

func buildUserPrompt(transcript string, nc NoteContext) string {
	var b strings.Builder
	b.WriteString("Extract clinical facts from this vascular surgery voice note:\n\n---\n")
	b.WriteString(transcript)
	b.WriteString("\n---\n")
	if nc.PatientName != "" {
		fmt.Fprintf(&b, "\nKnown patient: %s", nc.PatientName)
	}
	if nc.MRN != "" {
		fmt.Fprintf(&b, "\nKnown MRN: %s", nc.MRN)
	}
	if nc.ProcedureType != "" {
		fmt.Fprintf(&b, "\nProcedure context: %s", nc.ProcedureType)
	}
	return b.String()
}

func firstTextBlock(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}

// ParseResult parses a model response into a Result, tolerating markdown
// code fences around the JSON body.
func ParseResult(content string) (*Result, error) {
	jsonStr := extractJSONBlock(content)

	var result Result
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("parsing extraction result: %w", err)
	}
	if result.Facts == nil {
		result.Facts = []FactCandidate{}
	}
	if result.MissingForCoding == nil {
		result.MissingForCoding = []string{}
	}
	return &result, nil
}

// extractJSONBlock strips markdown fences and surrounding prose, returning
// the first JSON object found in the text.
func extractJSONBlock(content string) string {
	s := content
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	} else {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
