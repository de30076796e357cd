// Package orcc integrates with the OR Command Center board: patients,
// procedures, and the case-id resolution intake depends on.
package orcc

import (
	"time"

	"github.com/google/uuid"
)

// Surgical workup statuses, from board-ready to on-hold.
const (
	StatusReady     = "ready"
	StatusNearReady = "near_ready"
	StatusWorkup    = "workup"
	StatusHold      = "hold"
	StatusScheduled = "scheduled"
)

var validSurgicalStatuses = map[string]bool{
	StatusReady:     true,
	StatusNearReady: true,
	StatusWorkup:    true,
	StatusHold:      true,
	StatusScheduled: true,
}

var validLocations = map[string]bool{
	"CRH":  true,
	"ASC":  true,
	"AUMC": true,
}

var validLateralities = map[string]bool{
	"left":      true,
	"right":     true,
	"bilateral": true,
}

type Patient struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	MRN              string     `db:"mrn" json:"mrn"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	DateOfBirth      *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender           *string    `db:"gender" json:"gender,omitempty"`
	PhonePrimary     *string    `db:"phone_primary" json:"phone_primary,omitempty"`
	Email            *string    `db:"email" json:"email,omitempty"`
	PrimaryPhysician *string    `db:"primary_physician" json:"primary_physician,omitempty"`
	Active           bool       `db:"active" json:"active"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// DisplayName is the board's "Last, First" form.
func (p *Patient) DisplayName() string {
	return p.LastName + ", " + p.FirstName
}

type Procedure struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	MRN               string     `db:"mrn" json:"mrn"`
	PatientID         *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	PatientName       *string    `db:"patient_name" json:"patient_name,omitempty"`
	ProcedureName     string     `db:"procedure_name" json:"procedure_name"`
	Laterality        *string    `db:"laterality" json:"laterality,omitempty"`
	Surgeon           *string    `db:"surgeon" json:"surgeon,omitempty"`
	SurgicalStatus    string     `db:"surgical_status" json:"surgical_status"`
	ScheduledLocation *string    `db:"scheduled_location" json:"scheduled_location,omitempty"`
	ScheduledDate     *time.Time `db:"scheduled_date" json:"scheduled_date,omitempty"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// ProcedureFilter narrows procedure listings.
type ProcedureFilter struct {
	SurgicalStatus    string
	MRN               string
	ScheduledLocation string
	Limit             int
	Offset            int
}

// ProcedureUpdate carries the PATCH-able fields; nil means unchanged.
type ProcedureUpdate struct {
	ProcedureName     *string    `json:"procedure_name,omitempty"`
	Laterality        *string    `json:"laterality,omitempty"`
	Surgeon           *string    `json:"surgeon,omitempty"`
	SurgicalStatus    *string    `json:"surgical_status,omitempty"`
	ScheduledLocation *string    `json:"scheduled_location,omitempty"`
	ScheduledDate     *time.Time `json:"scheduled_date,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u *ProcedureUpdate) Empty() bool {
	return u.ProcedureName == nil && u.Laterality == nil && u.Surgeon == nil &&
		u.SurgicalStatus == nil && u.ScheduledLocation == nil &&
		u.ScheduledDate == nil && u.Notes == nil
}

// BoardStatus is the integration status snapshot.
type BoardStatus struct {
	Procedures      int            `json:"procedures_count"`
	Patients        int            `json:"patients_count"`
	StatusBreakdown map[string]int `json:"surgical_status_breakdown"`
}
