// Package service implements the caller-facing task, project and section
// operations and mirrors each local mutation to Todoist.
//
// Local state always wins: a remote call that fails is logged and the local
// operation still succeeds. The entity's sync timestamp is the only record
// that the push did not happen, and a later reconciliation repairs it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gtdsync/gtd/internal/db"
	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/sync"
	"github.com/gtdsync/gtd/internal/todoist"
)

// Store is the local store used by the service.
type Store interface {
	GetTodoistToken(ctx context.Context, userID string) (string, error)
	SetTodoistToken(ctx context.Context, userID, token string) error

	GetTask(ctx context.Context, id, userID string) (*schema.Task, error)
	ListTasks(ctx context.Context, userID string, filter db.TaskFilter) ([]*schema.Task, error)
	CreateTask(ctx context.Context, t *schema.Task) error
	UpdateTask(ctx context.Context, t *schema.Task) error
	DeleteTask(ctx context.Context, id, userID string) error
	ReplaceTaskLabels(ctx context.Context, taskID string, names []string) error

	GetProject(ctx context.Context, id, userID string) (*schema.Project, error)
	ListProjects(ctx context.Context, userID string) ([]*schema.Project, error)
	CreateProject(ctx context.Context, p *schema.Project) error
	UpdateProject(ctx context.Context, p *schema.Project) error
	DeleteProject(ctx context.Context, id, userID string) error

	GetSection(ctx context.Context, id, userID string) (*schema.Section, error)
	ListSections(ctx context.Context, projectID string) ([]*schema.Section, error)
	CreateSection(ctx context.Context, s *schema.Section) error
	UpdateSection(ctx context.Context, s *schema.Section) error
	DeleteSection(ctx context.Context, id, userID string) error

	ListLabels(ctx context.Context) ([]schema.Label, error)
}

// Remote is the write side of the Todoist API used for single-entity pushes.
type Remote interface {
	CreateTask(ctx context.Context, args todoist.CreateTaskArgs) (*todoist.Task, error)
	UpdateTask(ctx context.Context, id string, args todoist.UpdateTaskArgs) (*todoist.Task, error)
	DeleteTask(ctx context.Context, id string) error
	CloseTask(ctx context.Context, id string) error
	ReopenTask(ctx context.Context, id string) error

	CreateProject(ctx context.Context, args todoist.CreateProjectArgs) (*todoist.Project, error)
	UpdateProject(ctx context.Context, id string, args todoist.UpdateProjectArgs) (*todoist.Project, error)
	DeleteProject(ctx context.Context, id string) error

	CreateSection(ctx context.Context, args todoist.CreateSectionArgs) (*todoist.Section, error)
	UpdateSection(ctx context.Context, id string, args todoist.UpdateSectionArgs) (*todoist.Section, error)
	DeleteSection(ctx context.Context, id string) error

	ListLabels(ctx context.Context) ([]todoist.Label, error)
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

// Action names a kind of change reported to the Notifier.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Notifier is told about every successful local mutation.
type Notifier interface {
	OnTaskChanged(userID string, action Action, task *schema.Task)
	OnTaskDeleted(userID, taskID string)
	OnProjectChanged(userID string, action Action, project *schema.Project)
	OnProjectDeleted(userID, projectID string)
	OnSectionChanged(userID string, action Action, section *schema.Section)
	OnSectionDeleted(userID, sectionID string)
}

// Service implements the task manager operations for authenticated users.
type Service struct {
	store     Store
	newRemote RemoteFactory
	engine    sync.Engine
	notifier  Notifier
	logger    *log.Logger
	now       func() time.Time
}

// New creates a Service.
//
// engine and notifier may be nil. If logger is nil, a default logger
// writing to stderr is used.
func New(store Store, newRemote RemoteFactory, engine sync.Engine, notifier Notifier, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[service] ", log.LstdFlags)
	}
	return &Service{
		store:     store,
		newRemote: newRemote,
		engine:    engine,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// remoteFor returns a Remote for the user, or nil when the user has no
// token or no client can be built.
func (s *Service) remoteFor(ctx context.Context, userID string) (Remote, error) {
	token, err := s.store.GetTodoistToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve todoist token: %w", err)
	}
	if token == "" || s.newRemote == nil {
		return nil, nil
	}
	remote, err := s.newRemote(token)
	if err != nil {
		if !errors.Is(err, todoist.ErrNoToken) {
			s.logger.Printf("WARNING: Failed to create todoist client for user %s: %v", userID, err)
		}
		return nil, nil
	}
	return remote, nil
}

// attemptRemote runs one remote call. A failure is logged and reported as
// false; it is never returned to the caller.
func (s *Service) attemptRemote(ctx context.Context, op string, fn func(context.Context) error) bool {
	if err := fn(ctx); err != nil {
		switch {
		case todoist.IsUnauthorized(err):
			s.logger.Printf("WARNING: todoist rejected the stored token on %s, keeping local change: %v", op, err)
		case todoist.IsRateLimited(err):
			s.logger.Printf("WARNING: todoist rate limited %s, keeping local change: %v", op, err)
		default:
			s.logger.Printf("WARNING: todoist %s failed, keeping local change: %v", op, err)
		}
		return false
	}
	return true
}

// pushOutcome tracks the remote calls made for one local mutation.
type pushOutcome struct {
	attempted bool
	failed    bool
}

func (p *pushOutcome) record(ok bool) {
	p.attempted = true
	if !ok {
		p.failed = true
	}
}

// syncedAt returns the sync timestamp an entity should carry after the push.
// prev is kept when nothing needed pushing.
func (p *pushOutcome) syncedAt(prev *time.Time, now time.Time) *time.Time {
	switch {
	case p.failed:
		return nil
	case p.attempted:
		return &now
	default:
		return prev
	}
}
