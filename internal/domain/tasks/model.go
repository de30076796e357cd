// Package tasks tracks surgical workflow to-dos tied to patients and
// procedures.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeWorkup     = "workup"
	TypeClearance  = "clearance"
	TypeScheduling = "scheduling"
	TypeFollowUp   = "follow_up"
	TypeGeneral    = "general"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var validTypes = map[string]bool{
	TypeWorkup:     true,
	TypeClearance:  true,
	TypeScheduling: true,
	TypeFollowUp:   true,
	TypeGeneral:    true,
}

var validStatuses = map[string]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusCancelled:  true,
}

var validPriorities = map[string]bool{
	PriorityLow:    true,
	PriorityNormal: true,
	PriorityHigh:   true,
	PriorityUrgent: true,
}

// priorityRank orders priorities for listing: urgent first.
func priorityRank(priority string) int {
	switch priority {
	case PriorityUrgent:
		return 1
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 3
	case PriorityLow:
		return 4
	default:
		return 5
	}
}

type Task struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	PatientMRN  *string    `db:"patient_mrn" json:"patient_mrn,omitempty"`
	ProcedureID *uuid.UUID `db:"procedure_id" json:"procedure_id,omitempty"`
	TaskType    string     `db:"task_type" json:"task_type"`
	Status      string     `db:"status" json:"status"`
	Priority    string     `db:"priority" json:"priority"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`
	AssignedTo  *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	CreatedBy   *string    `db:"created_by" json:"created_by,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CompletedBy *string    `db:"completed_by" json:"completed_by,omitempty"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	Metadata    any        `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Filter narrows task listings.
type Filter struct {
	Status      string
	Priority    string
	TaskType    string
	PatientMRN  string
	ProcedureID *uuid.UUID
	AssignedTo  string
	Limit       int
	Offset      int
}

// Update carries the PATCH-able fields; nil means unchanged.
type Update struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	TaskType    *string    `json:"task_type,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	AssignedTo  *string    `json:"assigned_to,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	Metadata    any        `json:"metadata,omitempty"`
}

func (u *Update) Empty() bool {
	return u.Title == nil && u.Description == nil && u.TaskType == nil &&
		u.Status == nil && u.Priority == nil && u.DueDate == nil &&
		u.AssignedTo == nil && u.Notes == nil && u.Metadata == nil
}

// Stats is the board-level task summary.
type Stats struct {
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
	Total      int            `json:"total"`
	Overdue    int            `json:"overdue"`
}
