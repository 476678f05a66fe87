package service

import (
	"context"
	"fmt"

	"github.com/gtdsync/gtd/internal/apperr"
	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/todoist"
)

// CreateProjectInput describes a new project.
type CreateProjectInput struct {
	Name       string `json:"name"`
	Color      string `json:"color"`
	IsFavorite bool   `json:"is_favorite"`
	ViewStyle  string `json:"view_style"`
	ParentID   string `json:"parent_id"`
	Position   int    `json:"position"`

	SyncToTodoist bool `json:"sync_to_todoist"`
}

// ProjectPatch lists the fields to change on a project. Nil fields are kept;
// an empty ParentID detaches the project from its parent.
type ProjectPatch struct {
	Name       *string `json:"name"`
	Color      *string `json:"color"`
	IsFavorite *bool   `json:"is_favorite"`
	ViewStyle  *string `json:"view_style"`
	ParentID   *string `json:"parent_id"`
	Position   *int    `json:"position"`
}

// GetProject returns one of the user's projects.
func (s *Service) GetProject(ctx context.Context, userID, id string) (*schema.Project, error) {
	return s.store.GetProject(ctx, id, userID)
}

// ListProjects returns the user's projects.
func (s *Service) ListProjects(ctx context.Context, userID string) ([]*schema.Project, error) {
	projects, err := s.store.ListProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []*schema.Project{}
	}
	return projects, nil
}

// CreateProject stores a new project, creating it in Todoist first when
// requested and the user is connected.
func (s *Service) CreateProject(ctx context.Context, userID string, in CreateProjectInput) (*schema.Project, error) {
	p := &schema.Project{
		UserID:     userID,
		Name:       in.Name,
		Color:      in.Color,
		IsFavorite: in.IsFavorite,
		ViewStyle:  in.ViewStyle,
		ParentID:   schema.StringPtr(in.ParentID),
		Position:   in.Position,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var parent *schema.Project
	if in.ParentID != "" {
		var err error
		if parent, err = s.store.GetProject(ctx, in.ParentID, userID); err != nil {
			return nil, err
		}
	}

	if in.SyncToTodoist {
		remote, err := s.remoteFor(ctx, userID)
		if err != nil {
			return nil, err
		}
		if remote != nil {
			args := todoist.CreateProjectArgs{
				Name:       p.Name,
				Color:      p.Color,
				IsFavorite: p.IsFavorite,
				ViewStyle:  p.ViewStyle,
			}
			if parent != nil {
				args.ParentID = schema.Deref(parent.TodoistID)
			}
			s.attemptRemote(ctx, "create project", func(ctx context.Context) error {
				rp, err := remote.CreateProject(ctx, args)
				if err != nil {
					return err
				}
				now := s.now()
				p.TodoistID = &rp.ID
				p.SyncedAt = &now
				return nil
			})
		}
	}

	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.OnProjectChanged(userID, ActionCreated, p)
	}
	return p, nil
}

// UpdateProject applies a patch to one of the user's projects and mirrors
// the changed fields of a linked project to Todoist.
func (s *Service) UpdateProject(ctx context.Context, userID, id string, patch ProjectPatch) (*schema.Project, error) {
	existing, err := s.store.GetProject(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if patch.Name != nil {
		updated.Name = *patch.Name
	}
	if patch.Color != nil {
		updated.Color = *patch.Color
	}
	if patch.IsFavorite != nil {
		updated.IsFavorite = *patch.IsFavorite
	}
	if patch.ViewStyle != nil {
		updated.ViewStyle = *patch.ViewStyle
	}
	if patch.Position != nil {
		updated.Position = *patch.Position
	}
	if patch.ParentID != nil {
		updated.ParentID = schema.StringPtr(*patch.ParentID)
		if pid := schema.Deref(updated.ParentID); pid != "" {
			if err := s.checkAncestry(ctx, userID, updated.ID, pid); err != nil {
				return nil, err
			}
		}
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	if existing.IsLinked() {
		var args todoist.UpdateProjectArgs
		if updated.Name != existing.Name {
			args.Name = &updated.Name
		}
		if updated.Color != existing.Color {
			args.Color = &updated.Color
		}
		if updated.IsFavorite != existing.IsFavorite {
			args.IsFavorite = &updated.IsFavorite
		}
		if updated.ViewStyle != existing.ViewStyle {
			args.ViewStyle = &updated.ViewStyle
		}
		moved := schema.Deref(updated.ParentID) != schema.Deref(existing.ParentID)

		var outcome pushOutcome
		if moved {
			outcome.record(false)
		}
		if !args.IsEmpty() {
			remote, err := s.remoteFor(ctx, userID)
			if err != nil {
				return nil, err
			}
			if remote == nil {
				outcome.record(false)
			} else {
				outcome.record(s.attemptRemote(ctx, "update project", func(ctx context.Context) error {
					_, err := remote.UpdateProject(ctx, schema.Deref(existing.TodoistID), args)
					return err
				}))
			}
		}
		updated.SyncedAt = outcome.syncedAt(existing.SyncedAt, s.now())
	}

	if err := s.store.UpdateProject(ctx, &updated); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.OnProjectChanged(userID, ActionUpdated, &updated)
	}
	return &updated, nil
}

// checkAncestry walks up from parentID and rejects the move when it would
// put id among its own ancestors. Every project on the way must belong to
// the user.
func (s *Service) checkAncestry(ctx context.Context, userID, id, parentID string) error {
	seen := make(map[string]bool)
	for cur := parentID; cur != ""; {
		if cur == id {
			return fmt.Errorf("%w: project %s cannot be nested under itself", apperr.ErrValidation, id)
		}
		if seen[cur] {
			return nil
		}
		seen[cur] = true
		p, err := s.store.GetProject(ctx, cur, userID)
		if err != nil {
			return err
		}
		cur = schema.Deref(p.ParentID)
	}
	return nil
}

// DeleteProject removes one of the user's projects, deleting it in Todoist
// first when linked. Tasks of the project are kept locally.
func (s *Service) DeleteProject(ctx context.Context, userID, id string) error {
	existing, err := s.store.GetProject(ctx, id, userID)
	if err != nil {
		return err
	}

	if existing.IsLinked() {
		remote, err := s.remoteFor(ctx, userID)
		if err != nil {
			return err
		}
		if remote != nil {
			s.attemptRemote(ctx, "delete project", func(ctx context.Context) error {
				return remote.DeleteProject(ctx, schema.Deref(existing.TodoistID))
			})
		}
	}

	if err := s.store.DeleteProject(ctx, id, userID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.OnProjectDeleted(userID, id)
	}
	return nil
}
