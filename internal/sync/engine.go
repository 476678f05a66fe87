package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/gtdsync/gtd/internal/apperr"
	"github.com/gtdsync/gtd/internal/priority"
	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/todoist"
)

// engine implements the Engine interface.
type engine struct {
	store     Store
	newRemote RemoteFactory
	notifier  Notifier
	logger    *log.Logger
	group     singleflight.Group
}

// New creates a new Engine.
//
// notifier may be nil. If logger is nil, a default logger writing to
// stderr is used.
//
// Example:
//
//	engine := sync.New(database, sync.TodoistFactory(), nil, nil)
//	result, err := engine.SyncAll(ctx, user.ID)
func New(store Store, newRemote RemoteFactory, notifier Notifier, logger *log.Logger) Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &engine{
		store:     store,
		newRemote: newRemote,
		notifier:  notifier,
		logger:    logger,
	}
}

// SyncAll implements Engine.SyncAll.
func (e *engine) SyncAll(ctx context.Context, userID string) (*Result, error) {
	v, err, shared := e.group.Do(userID, func() (any, error) {
		return e.syncAll(ctx, userID)
	})
	if shared {
		e.logger.Printf("Joined in-flight sync for user %s", userID)
	}
	if err != nil {
		return nil, err
	}
	result := *v.(*Result)
	return &result, nil
}

func (e *engine) syncAll(ctx context.Context, userID string) (*Result, error) {
	token, err := e.store.GetTodoistToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve todoist token: %w", err)
	}
	if token == "" {
		return nil, apperr.ErrNoCredential
	}

	remote, err := e.newRemote(token)
	if err != nil {
		if errors.Is(err, todoist.ErrNoToken) {
			return nil, fmt.Errorf("%w: %w", apperr.ErrNoCredential, err)
		}
		return nil, fmt.Errorf("%w: failed to create todoist client: %w", apperr.ErrInternal, err)
	}

	start := time.Now()
	e.logger.Printf("Starting sync for user %s", userID)

	r := e.newRun(userID, remote)
	result, err := r.execute(ctx)
	if err != nil {
		e.logger.Printf("ERROR: Sync for user %s aborted after %s: %v", userID, time.Since(start).Round(time.Millisecond), err)
		if e.notifier != nil {
			e.notifier.OnSyncFailed(userID, err)
		}
		return nil, err
	}

	e.logger.Printf("Sync for user %s complete in %s: projects=%+v sections=%+v tasks=%+v",
		userID, time.Since(start).Round(time.Millisecond), result.Projects, result.Sections, result.Tasks)
	if e.notifier != nil {
		e.notifier.OnSyncCompleted(userID, result)
	}
	return result, nil
}

// run holds the state of one reconciliation for one user.
type run struct {
	store  Store
	remote Remote
	logger *log.Logger
	userID string
	now    time.Time

	// remote project id -> local project id, "" when known to be unresolved
	projects map[string]string
	// (remote section id, local project id) -> local section id
	sections map[sectionKey]string
}

type sectionKey struct {
	remoteID  string
	projectID string
}

func (e *engine) newRun(userID string, remote Remote) *run {
	return &run{
		store:    e.store,
		remote:   remote,
		logger:   e.logger,
		userID:   userID,
		now:      time.Now().UTC(),
		projects: make(map[string]string),
		sections: make(map[sectionKey]string),
	}
}

// execute runs the three passes in order.
func (r *run) execute(ctx context.Context) (*Result, error) {
	var result Result
	var err error

	if result.Projects, err = r.syncProjects(ctx); err != nil {
		return nil, fmt.Errorf("%w: projects pass: %w", apperr.ErrInternal, err)
	}
	if result.Sections, err = r.syncSections(ctx); err != nil {
		return nil, fmt.Errorf("%w: sections pass: %w", apperr.ErrInternal, err)
	}
	if result.Tasks, err = r.syncTasks(ctx); err != nil {
		return nil, fmt.Errorf("%w: tasks pass: %w", apperr.ErrInternal, err)
	}
	return &result, nil
}

// syncProjects imports or updates every remote project, then links
// parents that resolve locally.
func (r *run) syncProjects(ctx context.Context) (Counts, error) {
	var counts Counts

	remote, err := r.remote.ListProjects(ctx)
	if err != nil {
		return counts, fmt.Errorf("failed to fetch projects: %w", err)
	}

	nested := make(map[string]bool)
	for _, rp := range remote {
		local, err := r.store.FindProjectByTodoistID(ctx, rp.ID, r.userID)
		switch {
		case apperr.IsNotFound(err):
			todoistID := rp.ID
			local = &schema.Project{TodoistID: &todoistID, UserID: r.userID}
			applyRemoteProject(local, rp, r.now)
			if err := r.store.CreateProject(ctx, local); err != nil {
				return counts, fmt.Errorf("failed to import project %s: %w", rp.ID, err)
			}
			counts.Imported++
		case err != nil:
			return counts, fmt.Errorf("failed to look up project %s: %w", rp.ID, err)
		default:
			nested[rp.ID] = local.ParentID != nil
			applyRemoteProject(local, rp, r.now)
			if err := r.store.UpdateProject(ctx, local); err != nil {
				return counts, fmt.Errorf("failed to update project %s: %w", rp.ID, err)
			}
			counts.Updated++
		}
		r.projects[rp.ID] = local.ID
	}

	for _, rp := range remote {
		if rp.ParentID == "" {
			if !nested[rp.ID] {
				continue
			}
			// Moved back to the top level
			if err := r.store.SetProjectParent(ctx, r.projects[rp.ID], nil); err != nil {
				return counts, fmt.Errorf("failed to detach project %s from its parent: %w", rp.ID, err)
			}
			continue
		}
		parentID, ok := r.projects[rp.ParentID]
		if !ok || parentID == "" {
			continue
		}
		if err := r.store.SetProjectParent(ctx, r.projects[rp.ID], &parentID); err != nil {
			return counts, fmt.Errorf("failed to link project %s to parent %s: %w", rp.ID, rp.ParentID, err)
		}
	}

	r.logger.Printf("Projects pass: fetched=%d imported=%d updated=%d", len(remote), counts.Imported, counts.Updated)
	return counts, nil
}

func applyRemoteProject(p *schema.Project, rp todoist.Project, now time.Time) {
	p.Name = truncate(rp.Name)
	p.Color = rp.Color
	p.IsFavorite = rp.IsFavorite
	p.IsInbox = rp.IsInboxProject
	p.ViewStyle = rp.ViewStyle
	p.Position = rp.Order
	p.SyncedAt = &now
}

// syncSections imports or updates every remote section whose project
// resolves locally.
func (r *run) syncSections(ctx context.Context) (Counts, error) {
	var counts Counts

	remote, err := r.remote.ListSections(ctx, "")
	if err != nil {
		return counts, fmt.Errorf("failed to fetch sections: %w", err)
	}

	skipped := 0
	for _, rs := range remote {
		projectID, err := r.resolveProject(ctx, rs.ProjectID)
		if err != nil {
			return counts, err
		}
		if projectID == "" {
			skipped++
			continue
		}

		local, err := r.store.FindSectionByTodoistID(ctx, rs.ID, projectID)
		if apperr.IsNotFound(err) {
			local, err = r.movedSection(ctx, rs.ID, projectID)
		}
		switch {
		case apperr.IsNotFound(err):
			todoistID := rs.ID
			local = &schema.Section{TodoistID: &todoistID, ProjectID: projectID}
			applyRemoteSection(local, rs, r.now)
			if err := r.store.CreateSection(ctx, local); err != nil {
				return counts, fmt.Errorf("failed to import section %s: %w", rs.ID, err)
			}
			counts.Imported++
		case err != nil:
			return counts, fmt.Errorf("failed to look up section %s: %w", rs.ID, err)
		default:
			applyRemoteSection(local, rs, r.now)
			if err := r.store.UpdateSection(ctx, local); err != nil {
				return counts, fmt.Errorf("failed to update section %s: %w", rs.ID, err)
			}
			counts.Updated++
		}
		r.sections[sectionKey{rs.ID, projectID}] = local.ID
	}

	r.logger.Printf("Sections pass: fetched=%d imported=%d updated=%d skipped=%d",
		len(remote), counts.Imported, counts.Updated, skipped)
	return counts, nil
}

// movedSection finds a section the user already holds under another
// project and re-homes it, so one remote section keeps one local row.
func (r *run) movedSection(ctx context.Context, remoteID, projectID string) (*schema.Section, error) {
	s, err := r.store.FindUserSectionByTodoistID(ctx, remoteID, r.userID)
	if err != nil {
		return nil, err
	}
	r.logger.Printf("Section %s moved from project %s to %s", remoteID, s.ProjectID, projectID)
	s.ProjectID = projectID
	return s, nil
}

func applyRemoteSection(s *schema.Section, rs todoist.Section, now time.Time) {
	s.Name = truncate(rs.Name)
	s.Position = rs.Order
	s.SyncedAt = &now
}

// syncTasks imports or updates every remote task. Unresolved project or
// section references leave the task without them.
func (r *run) syncTasks(ctx context.Context) (Counts, error) {
	var counts Counts

	remote, err := r.remote.ListTasks(ctx)
	if err != nil {
		return counts, fmt.Errorf("failed to fetch tasks: %w", err)
	}

	linked, err := r.store.ListLinkedTasks(ctx, r.userID)
	if err != nil {
		return counts, fmt.Errorf("failed to list linked tasks: %w", err)
	}
	byRemoteID := make(map[string]*schema.Task, len(linked))
	for _, t := range linked {
		byRemoteID[schema.Deref(t.TodoistID)] = t
	}

	orphans := 0
	for _, rt := range remote {
		projectID, err := r.resolveProject(ctx, rt.ProjectID)
		if err != nil {
			return counts, err
		}
		sectionID, err := r.resolveSection(ctx, rt.SectionID, projectID)
		if err != nil {
			return counts, err
		}
		if rt.ProjectID != "" && projectID == "" {
			orphans++
		}

		if local, ok := byRemoteID[rt.ID]; ok {
			r.applyRemoteTask(local, rt, projectID, sectionID)
			if err := r.store.UpdateTask(ctx, local); err != nil {
				return counts, fmt.Errorf("failed to update task %s: %w", rt.ID, err)
			}
			if err := r.store.ReplaceTaskLabels(ctx, local.ID, rt.Labels); err != nil {
				return counts, fmt.Errorf("failed to replace labels of task %s: %w", rt.ID, err)
			}
			local.Labels = rt.Labels
			counts.Updated++
			continue
		}

		todoistID := rt.ID
		local := &schema.Task{
			TodoistID: &todoistID,
			UserID:    r.userID,
			Position:  rt.Order,
			Labels:    rt.Labels,
		}
		r.applyRemoteTask(local, rt, projectID, sectionID)
		if err := r.store.CreateTask(ctx, local); err != nil {
			return counts, fmt.Errorf("failed to import task %s: %w", rt.ID, err)
		}
		byRemoteID[rt.ID] = local
		counts.Imported++
	}

	r.logger.Printf("Tasks pass: fetched=%d imported=%d updated=%d orphans=%d",
		len(remote), counts.Imported, counts.Updated, orphans)
	return counts, nil
}

func (r *run) applyRemoteTask(t *schema.Task, rt todoist.Task, projectID, sectionID string) {
	t.Title = truncate(rt.Content)
	t.Description = rt.Description
	t.Completed = rt.IsCompleted
	t.Priority = priority.Lowest
	if priority.Valid(rt.Priority) {
		t.Priority = priority.ToLocal(rt.Priority)
	}
	t.DueDate = r.parseDue(rt)
	t.ProjectID = schema.StringPtr(projectID)
	t.SectionID = schema.StringPtr(sectionID)
	now := r.now
	t.SyncedAt = &now
}

// parseDue reads the calendar date of a remote due. Datetimes are truncated.
func (r *run) parseDue(rt todoist.Task) *time.Time {
	date := rt.DueDate()
	if len(date) > len(schema.DateLayout) {
		date = date[:len(schema.DateLayout)]
	}
	d, err := schema.ParseDate(date)
	if err != nil {
		r.logger.Printf("WARNING: Ignoring due date of task %s: %v", rt.ID, err)
		return nil
	}
	return d
}

// resolveProject maps a remote project id to the user's local project id,
// or "" when the project is not known locally.
func (r *run) resolveProject(ctx context.Context, remoteID string) (string, error) {
	if remoteID == "" {
		return "", nil
	}
	if id, ok := r.projects[remoteID]; ok {
		return id, nil
	}
	p, err := r.store.FindProjectByTodoistID(ctx, remoteID, r.userID)
	if apperr.IsNotFound(err) {
		r.projects[remoteID] = ""
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve project %s: %w", remoteID, err)
	}
	r.projects[remoteID] = p.ID
	return p.ID, nil
}

// resolveSection maps a remote section id within a local project to the
// local section id, or "" when either is unknown.
func (r *run) resolveSection(ctx context.Context, remoteID, projectID string) (string, error) {
	if remoteID == "" || projectID == "" {
		return "", nil
	}
	key := sectionKey{remoteID, projectID}
	if id, ok := r.sections[key]; ok {
		return id, nil
	}
	s, err := r.store.FindSectionByTodoistID(ctx, remoteID, projectID)
	if apperr.IsNotFound(err) {
		r.sections[key] = ""
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve section %s: %w", remoteID, err)
	}
	r.sections[key] = s.ID
	return s.ID, nil
}

// truncate clips names to the local title limit.
func truncate(s string) string {
	if len(s) <= schema.MaxTitleLength {
		return s
	}
	cut := schema.MaxTitleLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
