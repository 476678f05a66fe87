package service

import (
	"context"

	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/todoist"
)

// CreateSectionInput describes a new section.
type CreateSectionInput struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Position  int    `json:"position"`

	SyncToTodoist bool `json:"sync_to_todoist"`
}

// SectionPatch lists the fields to change on a section.
type SectionPatch struct {
	Name     *string `json:"name"`
	Position *int    `json:"position"`
}

// ListSections returns the sections of one of the user's projects.
func (s *Service) ListSections(ctx context.Context, userID, projectID string) ([]*schema.Section, error) {
	if _, err := s.store.GetProject(ctx, projectID, userID); err != nil {
		return nil, err
	}
	sections, err := s.store.ListSections(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if sections == nil {
		sections = []*schema.Section{}
	}
	return sections, nil
}

// CreateSection stores a new section in one of the user's projects. It is
// created in Todoist first when requested, the user is connected and the
// project is linked.
func (s *Service) CreateSection(ctx context.Context, userID string, in CreateSectionInput) (*schema.Section, error) {
	sec := &schema.Section{ProjectID: in.ProjectID, Name: in.Name, Position: in.Position}
	if err := sec.Validate(); err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, in.ProjectID, userID)
	if err != nil {
		return nil, err
	}

	if in.SyncToTodoist {
		if !project.IsLinked() {
			s.logger.Printf("Project %s is not linked to todoist, creating section %q locally", project.ID, sec.Name)
		} else {
			remote, err := s.remoteFor(ctx, userID)
			if err != nil {
				return nil, err
			}
			if remote != nil {
				args := todoist.CreateSectionArgs{
					Name:      sec.Name,
					ProjectID: schema.Deref(project.TodoistID),
					Order:     sec.Position,
				}
				s.attemptRemote(ctx, "create section", func(ctx context.Context) error {
					rs, err := remote.CreateSection(ctx, args)
					if err != nil {
						return err
					}
					now := s.now()
					sec.TodoistID = &rs.ID
					sec.SyncedAt = &now
					return nil
				})
			}
		}
	}

	if err := s.store.CreateSection(ctx, sec); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.OnSectionChanged(userID, ActionCreated, sec)
	}
	return sec, nil
}

// UpdateSection applies a patch to a section of one of the user's projects.
// A rename of a linked section is mirrored to Todoist.
func (s *Service) UpdateSection(ctx context.Context, userID, id string, patch SectionPatch) (*schema.Section, error) {
	existing, err := s.store.GetSection(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if patch.Name != nil {
		updated.Name = *patch.Name
	}
	if patch.Position != nil {
		updated.Position = *patch.Position
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	if existing.IsLinked() && updated.Name != existing.Name {
		var outcome pushOutcome
		remote, err := s.remoteFor(ctx, userID)
		if err != nil {
			return nil, err
		}
		if remote == nil {
			outcome.record(false)
		} else {
			outcome.record(s.attemptRemote(ctx, "update section", func(ctx context.Context) error {
				_, err := remote.UpdateSection(ctx, schema.Deref(existing.TodoistID), todoist.UpdateSectionArgs{Name: updated.Name})
				return err
			}))
		}
		updated.SyncedAt = outcome.syncedAt(existing.SyncedAt, s.now())
	}

	if err := s.store.UpdateSection(ctx, &updated); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.OnSectionChanged(userID, ActionUpdated, &updated)
	}
	return &updated, nil
}

// DeleteSection removes a section of one of the user's projects, deleting
// it in Todoist first when linked.
func (s *Service) DeleteSection(ctx context.Context, userID, id string) error {
	existing, err := s.store.GetSection(ctx, id, userID)
	if err != nil {
		return err
	}

	if existing.IsLinked() {
		remote, err := s.remoteFor(ctx, userID)
		if err != nil {
			return err
		}
		if remote != nil {
			s.attemptRemote(ctx, "delete section", func(ctx context.Context) error {
				return remote.DeleteSection(ctx, schema.Deref(existing.TodoistID))
			})
		}
	}

	if err := s.store.DeleteSection(ctx, id, userID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.OnSectionDeleted(userID, id)
	}
	return nil
}
