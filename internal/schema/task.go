// Package schema provides the local entity types of the task manager.
package schema

import (
	"fmt"
	"time"

	"github.com/gtdsync/gtd/internal/apperr"
	"github.com/gtdsync/gtd/internal/priority"
)

// TaskType is the GTD lifecycle bucket a task lives in.
type TaskType string

const (
	TaskTypeInbox      TaskType = "inbox"
	TaskTypeNextAction TaskType = "next_action"
	TaskTypeProject    TaskType = "project"
	TaskTypeWaiting    TaskType = "waiting"
	TaskTypeSomeday    TaskType = "someday"
	TaskTypeReference  TaskType = "reference"
)

// IsValid reports whether t is one of the known lifecycle types.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeInbox, TaskTypeNextAction, TaskTypeProject,
		TaskTypeWaiting, TaskTypeSomeday, TaskTypeReference:
		return true
	}
	return false
}

// Energy is the optional energy-level tag of a task.
type Energy string

const (
	EnergyNone   Energy = ""
	EnergyLow    Energy = "low"
	EnergyMedium Energy = "medium"
	EnergyHigh   Energy = "high"
)

// IsValid reports whether e is empty or a known energy level.
func (e Energy) IsValid() bool {
	switch e {
	case EnergyNone, EnergyLow, EnergyMedium, EnergyHigh:
		return true
	}
	return false
}

// MaxTitleLength bounds task titles.
const MaxTitleLength = 500

// Task is a single to-do item owned by one user.
type Task struct {
	// ===== Identity =====
	ID        string  `json:"id" yaml:"id"`
	TodoistID *string `json:"todoist_id,omitempty" yaml:"todoist_id,omitempty"`
	UserID    string  `json:"user_id" yaml:"user_id"`

	// ===== Content =====
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Completed   bool   `json:"completed" yaml:"completed"`
	Priority    int    `json:"priority" yaml:"priority"` // 1 (most urgent) .. 4

	// ===== Placement =====
	ProjectID *string  `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	SectionID *string  `json:"section_id,omitempty" yaml:"section_id,omitempty"`
	Position  int      `json:"position" yaml:"position"`
	Labels    []string `json:"labels" yaml:"labels"`

	// ===== GTD metadata =====
	Type         TaskType `json:"type" yaml:"type"`
	WaitingFor   string   `json:"waiting_for,omitempty" yaml:"waiting_for,omitempty"`
	Energy       Energy   `json:"energy,omitempty" yaml:"energy,omitempty"`
	TimeEstimate *int     `json:"time_estimate,omitempty" yaml:"time_estimate,omitempty"` // minutes
	Context      string   `json:"context,omitempty" yaml:"context,omitempty"`

	// ===== Timestamps =====
	DueDate   *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	SyncedAt  *time.Time `json:"synced_at,omitempty" yaml:"synced_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}
	if len(t.Title) > MaxTitleLength {
		return fmt.Errorf("%w: title must be %d characters or less (got %d)", apperr.ErrValidation, MaxTitleLength, len(t.Title))
	}
	if !priority.Valid(t.Priority) {
		return fmt.Errorf("%w: priority must be between 1 and 4 (got %d)", apperr.ErrValidation, t.Priority)
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: unknown task type %q", apperr.ErrValidation, t.Type)
	}
	if !t.Energy.IsValid() {
		return fmt.Errorf("%w: unknown energy level %q", apperr.ErrValidation, t.Energy)
	}
	if t.TimeEstimate != nil && *t.TimeEstimate < 0 {
		return fmt.Errorf("%w: time estimate must not be negative", apperr.ErrValidation)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.Priority == 0 {
		t.Priority = priority.Lowest
	}
	if t.Type == "" {
		t.Type = TaskTypeInbox
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
}

// IsLinked reports whether the task carries a Todoist id.
func (t *Task) IsLinked() bool {
	return t.TodoistID != nil && *t.TodoistID != ""
}

// DueDateString returns the due date as an ISO calendar date, or "" if unset.
func (t *Task) DueDateString() string {
	return FormatDate(t.DueDate)
}

// UpdateTimestamp sets UpdatedAt to current time.
func (t *Task) UpdateTimestamp() {
	t.UpdatedAt = time.Now().UTC()
}

// DateLayout is the ISO calendar date layout used for due dates.
const DateLayout = "2006-01-02"

// FormatDate truncates a time to its calendar date.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses an ISO calendar date into a UTC midnight time.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return &d, nil
}
