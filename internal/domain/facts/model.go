// Package facts maintains the clinical truth map for each case: an
// append-only ledger of extracted and manually entered facts, resolved
// at read time to the current value per fact type.
package facts

import (
	"time"

	"github.com/google/uuid"
)

// Source types recorded on a fact.
const (
	SourceManual    = "manual"
	SourceVoiceNote = "voice_note"
	SourceEMR       = "emr"
)

// Fact is one row of the ledger. Rows are immutable once written except
// for the verified* and superseded* fields.
type Fact struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	CaseID       uuid.UUID  `db:"case_id" json:"case_id"`
	PatientID    *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	FactType     string     `db:"fact_type" json:"fact_type"`
	Value        any        `db:"value" json:"value"`
	Confidence   *float64   `db:"confidence" json:"confidence,omitempty"`
	SourceType   string     `db:"source_type" json:"source_type"`
	VoiceNoteID  *uuid.UUID `db:"voice_note_id" json:"voice_note_id,omitempty"`
	SourceRef    any        `db:"source_ref" json:"source_ref,omitempty"`
	Verified     bool       `db:"verified" json:"verified"`
	VerifiedBy   *string    `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt   *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	SupersededBy *uuid.UUID `db:"superseded_by" json:"superseded_by,omitempty"`
	SupersededAt *time.Time `db:"superseded_at" json:"superseded_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Entry is the resolved current value of one fact type within a case.
type Entry struct {
	Value      any       `json:"value"`
	Confidence *float64  `json:"confidence,omitempty"`
	Verified   bool      `json:"verified"`
	FactID     uuid.UUID `json:"fact_id"`
	RecordedAt time.Time `json:"recorded_at"`
}
