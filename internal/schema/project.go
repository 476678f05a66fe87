package schema

import (
	"fmt"
	"time"

	"github.com/gtdsync/gtd/internal/apperr"
)

// Project groups tasks. Projects may nest through ParentID.
type Project struct {
	ID         string     `json:"id" yaml:"id"`
	TodoistID  *string    `json:"todoist_id,omitempty" yaml:"todoist_id,omitempty"`
	UserID     string     `json:"user_id" yaml:"user_id"`
	Name       string     `json:"name" yaml:"name"`
	Color      string     `json:"color,omitempty" yaml:"color,omitempty"`
	IsFavorite bool       `json:"is_favorite" yaml:"is_favorite"`
	IsInbox    bool       `json:"is_inbox" yaml:"is_inbox"`
	ViewStyle  string     `json:"view_style,omitempty" yaml:"view_style,omitempty"`
	Position   int        `json:"position" yaml:"position"`
	ParentID   *string    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	SyncedAt   *time.Time `json:"synced_at,omitempty" yaml:"synced_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" yaml:"updated_at"`
}

// Validate checks if the Project has valid field values.
func (p *Project) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: project name is required", apperr.ErrValidation)
	}
	if len(p.Name) > MaxTitleLength {
		return fmt.Errorf("%w: project name must be %d characters or less", apperr.ErrValidation, MaxTitleLength)
	}
	return nil
}

// IsLinked reports whether the project carries a Todoist id.
func (p *Project) IsLinked() bool {
	return p.TodoistID != nil && *p.TodoistID != ""
}

// Section is an ordered subdivision of a project.
type Section struct {
	ID        string     `json:"id" yaml:"id"`
	TodoistID *string    `json:"todoist_id,omitempty" yaml:"todoist_id,omitempty"`
	ProjectID string     `json:"project_id" yaml:"project_id"`
	Name      string     `json:"name" yaml:"name"`
	Position  int        `json:"position" yaml:"position"`
	SyncedAt  *time.Time `json:"synced_at,omitempty" yaml:"synced_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
}

// Validate checks if the Section has valid field values.
func (s *Section) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: section name is required", apperr.ErrValidation)
	}
	if s.ProjectID == "" {
		return fmt.Errorf("%w: section project is required", apperr.ErrValidation)
	}
	return nil
}

// IsLinked reports whether the section carries a Todoist id.
func (s *Section) IsLinked() bool {
	return s.TodoistID != nil && *s.TodoistID != ""
}

// Label is a globally unique tag name shared across tasks.
type Label struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// User owns tasks and projects and optionally a Todoist credential.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	APIKey       string    `json:"-"`
	TodoistToken string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
