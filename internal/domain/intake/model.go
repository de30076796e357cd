// Package intake ingests voice note transcripts: dedupe, case
// resolution, fact extraction, and rule evaluation in one pipeline.
package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Voice note processing statuses.
const (
	StatusReceived   = "received"
	StatusProcessing = "processing"
	StatusExtracted  = "extracted"
	StatusFailed     = "failed"
)

type VoiceNote struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	Transcript        string     `db:"transcript" json:"transcript"`
	Summary           *string    `db:"summary" json:"summary,omitempty"`
	ContentHash       string     `db:"content_hash" json:"content_hash"`
	AudioRef          *string    `db:"audio_ref" json:"audio_ref,omitempty"`
	MRN               *string    `db:"mrn" json:"mrn,omitempty"`
	PatientName       *string    `db:"patient_name" json:"patient_name,omitempty"`
	CapturedAt        *time.Time `db:"captured_at" json:"captured_at,omitempty"`
	Status            string     `db:"status" json:"status"`
	Provenance        map[string]any `db:"provenance" json:"provenance,omitempty"`
	ExtractedFactsRaw any        `db:"extracted_facts_raw" json:"extracted_facts_raw,omitempty"`
	ErrorLog          any        `db:"error_log" json:"error_log,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// ContentHash derives the dedupe key for a transcript. The capture
// time is part of the key so the same dictation recorded twice on
// different days is not suppressed.
func ContentHash(transcript string, capturedAt *time.Time) string {
	ts := time.Now().UTC()
	if capturedAt != nil {
		ts = *capturedAt
	}
	sum := sha256.Sum256([]byte(transcript + ts.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}

// IngestInput is the normalized intake payload.
type IngestInput struct {
	Transcript  string         `json:"transcript"`
	Summary     *string        `json:"summary,omitempty"`
	MRN         string         `json:"mrn,omitempty"`
	PatientName *string        `json:"patient_name,omitempty"`
	CapturedAt  *time.Time     `json:"captured_at,omitempty"`
	AudioRef    *string        `json:"audio_ref,omitempty"`
	CaseID      *uuid.UUID     `json:"case_id,omitempty"`
	PatientID   *uuid.UUID     `json:"patient_id,omitempty"`
	Provenance  map[string]any `json:"provenance,omitempty"`
}

// ExtractionSummary reports what the extraction step produced.
type ExtractionSummary struct {
	Success          bool     `json:"success"`
	FactsExtracted   int      `json:"facts_extracted"`
	FactsStored      int      `json:"facts_stored"`
	Summary          *string  `json:"summary,omitempty"`
	MissingForCoding []string `json:"missing_for_coding"`
}

// RulesSummary reports the rule evaluation outcome.
type RulesSummary struct {
	Evaluated       int    `json:"evaluated"`
	PromptsCreated  int    `json:"prompts_created"`
	PromptsResolved int    `json:"prompts_resolved"`
	Error           string `json:"error,omitempty"`
}

// IngestResult is the intake pipeline outcome for one note.
type IngestResult struct {
	Duplicate        bool              `json:"duplicate"`
	VoiceNoteID      uuid.UUID         `json:"voice_note_id"`
	CaseID           *uuid.UUID        `json:"case_id,omitempty"`
	PatientID        *uuid.UUID        `json:"patient_id,omitempty"`
	CaseResolution   string            `json:"case_resolution,omitempty"`
	Extraction       ExtractionSummary `json:"extraction"`
	Rules            RulesSummary      `json:"rules"`
	ProcessingTimeMS int64             `json:"processing_time_ms"`
}
