package sync

import (
	"context"

	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/todoist"
)

// Engine reconciles local state with a user's Todoist account.
type Engine interface {
	// SyncAll pulls all remote projects, sections and tasks of the user and
	// merges them into the local store.
	//
	// Returns an error wrapping apperr.ErrNoCredential when the user has no
	// Todoist token, and one wrapping apperr.ErrInternal when a remote fetch
	// or local write fails.
	SyncAll(ctx context.Context, userID string) (*Result, error)
}

// Store is the slice of the local store the engine reads and writes.
type Store interface {
	GetTodoistToken(ctx context.Context, userID string) (string, error)

	FindProjectByTodoistID(ctx context.Context, todoistID, userID string) (*schema.Project, error)
	CreateProject(ctx context.Context, p *schema.Project) error
	UpdateProject(ctx context.Context, p *schema.Project) error
	SetProjectParent(ctx context.Context, id string, parentID *string) error

	FindSectionByTodoistID(ctx context.Context, todoistID, projectID string) (*schema.Section, error)
	FindUserSectionByTodoistID(ctx context.Context, todoistID, userID string) (*schema.Section, error)
	CreateSection(ctx context.Context, s *schema.Section) error
	UpdateSection(ctx context.Context, s *schema.Section) error

	ListLinkedTasks(ctx context.Context, userID string) ([]*schema.Task, error)
	CreateTask(ctx context.Context, t *schema.Task) error
	UpdateTask(ctx context.Context, t *schema.Task) error
	ReplaceTaskLabels(ctx context.Context, taskID string, names []string) error
}

// Remote is the read side of the Todoist API used by a reconciliation.
type Remote interface {
	ListProjects(ctx context.Context) ([]todoist.Project, error)
	ListSections(ctx context.Context, projectID string) ([]todoist.Section, error)
	ListTasks(ctx context.Context) ([]todoist.Task, error)
}

// RemoteFactory builds a Remote for a user's token.
type RemoteFactory func(token string) (Remote, error)

// TodoistFactory returns a RemoteFactory backed by todoist.NewClient.
func TodoistFactory(opts ...todoist.Option) RemoteFactory {
	return func(token string) (Remote, error) {
		c, err := todoist.NewClient(token, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Notifier is told about finished reconciliations.
type Notifier interface {
	OnSyncCompleted(userID string, result *Result)
	OnSyncFailed(userID string, err error)
}

// Counts holds per-class reconciliation counters.
type Counts struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
}

// Result aggregates the counters of one reconciliation.
type Result struct {
	Projects Counts `json:"projects"`
	Sections Counts `json:"sections"`
	Tasks    Counts `json:"tasks"`
}
