package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/gtdsync/gtd/internal/apperr"
	"github.com/gtdsync/gtd/internal/db"
	"github.com/gtdsync/gtd/internal/priority"
	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/todoist"
)

// CreateTaskInput describes a new task.
type CreateTaskInput struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Priority     int             `json:"priority"` // 0 means the default
	Due          string          `json:"due"`
	ProjectID    string          `json:"project_id"`
	SectionID    string          `json:"section_id"`
	Position     int             `json:"position"`
	Labels       []string        `json:"labels"`
	Type         schema.TaskType `json:"type"`
	WaitingFor   string          `json:"waiting_for"`
	Energy       schema.Energy   `json:"energy"`
	TimeEstimate *int            `json:"time_estimate"`
	Context      string          `json:"context"`

	SyncToTodoist bool `json:"sync_to_todoist"`
}

// TaskPatch lists the fields to change on a task. Nil fields are kept.
// An empty Due, ProjectID or SectionID clears the field; a zero
// TimeEstimate clears the estimate.
type TaskPatch struct {
	Title        *string          `json:"title"`
	Description  *string          `json:"description"`
	Completed    *bool            `json:"completed"`
	Priority     *int             `json:"priority"`
	Due          *string          `json:"due"`
	ProjectID    *string          `json:"project_id"`
	SectionID    *string          `json:"section_id"`
	Position     *int             `json:"position"`
	Labels       *[]string        `json:"labels"`
	Type         *schema.TaskType `json:"type"`
	WaitingFor   *string          `json:"waiting_for"`
	Energy       *schema.Energy   `json:"energy"`
	TimeEstimate *int             `json:"time_estimate"`
	Context      *string          `json:"context"`
}

// GetTask returns one of the user's tasks.
func (s *Service) GetTask(ctx context.Context, userID, id string) (*schema.Task, error) {
	return s.store.GetTask(ctx, id, userID)
}

// ListTasks returns the user's tasks matching the filter.
func (s *Service) ListTasks(ctx context.Context, userID string, filter db.TaskFilter) ([]*schema.Task, error) {
	tasks, err := s.store.ListTasks(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*schema.Task{}
	}
	return tasks, nil
}

// CreateTask validates and stores a new task. When in.SyncToTodoist is set
// and the user is connected, the task is first created in Todoist; a
// failure there leaves the task local-only.
func (s *Service) CreateTask(ctx context.Context, userID string, in CreateTaskInput) (*schema.Task, error) {
	task := &schema.Task{
		UserID:       userID,
		Title:        in.Title,
		Description:  in.Description,
		Priority:     in.Priority,
		ProjectID:    schema.StringPtr(in.ProjectID),
		SectionID:    schema.StringPtr(in.SectionID),
		Position:     in.Position,
		Labels:       dedupe(in.Labels),
		Type:         in.Type,
		WaitingFor:   in.WaitingFor,
		Energy:       in.Energy,
		TimeEstimate: in.TimeEstimate,
		Context:      in.Context,
	}
	task.SetDefaults()

	due, err := ParseDue(in.Due, s.now())
	if err != nil {
		return nil, err
	}
	task.DueDate = due

	if err := task.Validate(); err != nil {
		return nil, err
	}
	project, section, err := s.resolvePlacement(ctx, task)
	if err != nil {
		return nil, err
	}

	if in.SyncToTodoist {
		remote, err := s.remoteFor(ctx, userID)
		if err != nil {
			return nil, err
		}
		if remote != nil {
			args := todoist.CreateTaskArgs{
				Content:     task.Title,
				Description: task.Description,
				Priority:    priority.ToRemote(task.Priority),
				DueDate:     task.DueDateString(),
				Labels:      task.Labels,
			}
			if project != nil {
				args.ProjectID = schema.Deref(project.TodoistID)
			}
			if section != nil {
				args.SectionID = schema.Deref(section.TodoistID)
			}

			s.attemptRemote(ctx, "create task", func(ctx context.Context) error {
				rt, err := remote.CreateTask(ctx, args)
				if err != nil {
					return err
				}
				now := s.now()
				task.TodoistID = &rt.ID
				task.SyncedAt = &now
				return nil
			})
		}
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	s.logger.Printf("Created task %s for user %s (linked=%v)", task.ID, userID, task.IsLinked())

	if s.notifier != nil {
		s.notifier.OnTaskChanged(userID, ActionCreated, task)
	}
	return task, nil
}

// UpdateTask applies a patch to one of the user's tasks. For linked tasks
// the changed fields are mirrored to Todoist: a completion change becomes a
// close or reopen call and the other fields one update call.
func (s *Service) UpdateTask(ctx context.Context, userID, id string, patch TaskPatch) (*schema.Task, error) {
	existing, err := s.store.GetTask(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Labels = slices.Clone(existing.Labels)
	if err := s.applyTaskPatch(&updated, patch); err != nil {
		return nil, err
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	project, section, err := s.resolvePlacement(ctx, &updated)
	if err != nil {
		return nil, err
	}

	if existing.IsLinked() {
		if err := s.pushTaskUpdate(ctx, userID, existing, &updated, project, section); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateTask(ctx, &updated); err != nil {
		return nil, err
	}
	if patch.Labels != nil {
		if err := s.store.ReplaceTaskLabels(ctx, updated.ID, updated.Labels); err != nil {
			return nil, err
		}
	}

	if s.notifier != nil {
		s.notifier.OnTaskChanged(userID, ActionUpdated, &updated)
	}
	return &updated, nil
}

// pushTaskUpdate mirrors the difference between before and after to
// Todoist and sets after.SyncedAt from the outcome.
func (s *Service) pushTaskUpdate(ctx context.Context, userID string, before, after *schema.Task, project *schema.Project, section *schema.Section) error {
	var args todoist.UpdateTaskArgs
	if after.Title != before.Title {
		args.Content = &after.Title
	}
	if after.Description != before.Description {
		args.Description = &after.Description
	}
	if after.Priority != before.Priority {
		p := priority.ToRemote(after.Priority)
		args.Priority = &p
	}
	if after.DueDateString() != before.DueDateString() {
		args.SetDueDate(after.DueDateString())
	}
	if !sameLabels(before.Labels, after.Labels) {
		labels := slices.Clone(after.Labels)
		args.Labels = &labels
	}
	completionChanged := after.Completed != before.Completed
	// Todoist REST cannot move tasks, so a placement change only marks the task stale
	moved := schema.Deref(after.ProjectID) != schema.Deref(before.ProjectID) ||
		schema.Deref(after.SectionID) != schema.Deref(before.SectionID)

	if args.IsEmpty() && !completionChanged && !moved {
		return nil
	}

	var outcome pushOutcome
	if moved {
		outcome.record(false)
	}

	remote, err := s.remoteFor(ctx, userID)
	if err != nil {
		return err
	}
	if remote == nil {
		outcome.record(false)
		after.SyncedAt = outcome.syncedAt(before.SyncedAt, s.now())
		return nil
	}

	todoistID := schema.Deref(before.TodoistID)
	if !args.IsEmpty() {
		outcome.record(s.attemptRemote(ctx, "update task", func(ctx context.Context) error {
			_, err := remote.UpdateTask(ctx, todoistID, args)
			return err
		}))
	}
	if completionChanged {
		if after.Completed {
			outcome.record(s.attemptRemote(ctx, "close task", func(ctx context.Context) error {
				return remote.CloseTask(ctx, todoistID)
			}))
		} else {
			outcome.record(s.attemptRemote(ctx, "reopen task", func(ctx context.Context) error {
				return remote.ReopenTask(ctx, todoistID)
			}))
		}
	}

	after.SyncedAt = outcome.syncedAt(before.SyncedAt, s.now())
	return nil
}

// DeleteTask removes one of the user's tasks. A linked task is deleted in
// Todoist first; a failure there does not stop the local delete.
func (s *Service) DeleteTask(ctx context.Context, userID, id string) error {
	existing, err := s.store.GetTask(ctx, id, userID)
	if err != nil {
		return err
	}

	if existing.IsLinked() {
		remote, err := s.remoteFor(ctx, userID)
		if err != nil {
			return err
		}
		if remote != nil {
			s.attemptRemote(ctx, "delete task", func(ctx context.Context) error {
				return remote.DeleteTask(ctx, schema.Deref(existing.TodoistID))
			})
		}
	}

	if err := s.store.DeleteTask(ctx, id, userID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.OnTaskDeleted(userID, id)
	}
	return nil
}

func (s *Service) applyTaskPatch(t *schema.Task, p TaskPatch) error {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Due != nil {
		due, err := ParseDue(*p.Due, s.now())
		if err != nil {
			return err
		}
		t.DueDate = due
	}
	if p.ProjectID != nil {
		projectID := schema.StringPtr(*p.ProjectID)
		if p.SectionID == nil && schema.Deref(projectID) != schema.Deref(t.ProjectID) {
			t.SectionID = nil
		}
		t.ProjectID = projectID
	}
	if p.SectionID != nil {
		t.SectionID = schema.StringPtr(*p.SectionID)
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
	if p.Labels != nil {
		t.Labels = dedupe(*p.Labels)
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.WaitingFor != nil {
		t.WaitingFor = *p.WaitingFor
	}
	if p.Energy != nil {
		t.Energy = *p.Energy
	}
	if p.TimeEstimate != nil {
		if *p.TimeEstimate == 0 {
			t.TimeEstimate = nil
		} else {
			v := *p.TimeEstimate
			t.TimeEstimate = &v
		}
	}
	if p.Context != nil {
		t.Context = *p.Context
	}
	return nil
}

// resolvePlacement checks that the task's project and section belong to
// its user and agree with each other. A section without a project pulls
// in the section's project.
func (s *Service) resolvePlacement(ctx context.Context, t *schema.Task) (*schema.Project, *schema.Section, error) {
	var section *schema.Section
	if id := schema.Deref(t.SectionID); id != "" {
		sec, err := s.store.GetSection(ctx, id, t.UserID)
		if err != nil {
			return nil, nil, err
		}
		section = sec
		if t.ProjectID == nil {
			pid := sec.ProjectID
			t.ProjectID = &pid
		} else if *t.ProjectID != sec.ProjectID {
			return nil, nil, fmt.Errorf("%w: section %s does not belong to project %s", apperr.ErrValidation, id, *t.ProjectID)
		}
	}

	var project *schema.Project
	if id := schema.Deref(t.ProjectID); id != "" {
		p, err := s.store.GetProject(ctx, id, t.UserID)
		if err != nil {
			return nil, nil, err
		}
		project = p
	}
	return project, section, nil
}

// dedupe drops empty and repeated label names, keeping first-seen order.
func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

func sameLabels(a, b []string) bool {
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
