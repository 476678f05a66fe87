package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gtdsync/gtd/internal/schema"
)

const sectionColumns = `s.id, s.todoist_id, s.project_id, s.name, s.position,
	s.synced_at, s.created_at, s.updated_at`

// CreateSection inserts a new section, assigning an ID when unset.
func (db *DB) CreateSection(ctx context.Context, s *schema.Section) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid section: %w", err)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sections (id, todoist_id, project_id, name, position, synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		strToNull(s.TodoistID),
		s.ProjectID,
		s.Name,
		s.Position,
		timeToNullString(s.SyncedAt),
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create section: %w", err)
	}
	return nil
}

// UpdateSection overwrites the mutable columns of an existing section.
func (db *DB) UpdateSection(ctx context.Context, s *schema.Section) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid section: %w", err)
	}
	s.UpdatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE sections SET
			todoist_id = ?, project_id = ?, name = ?, position = ?, synced_at = ?, updated_at = ?
		WHERE id = ?`,
		strToNull(s.TodoistID),
		s.ProjectID,
		s.Name,
		s.Position,
		timeToNullString(s.SyncedAt),
		formatTime(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update section %s: %w", s.ID, err)
	}
	return requireAffected(res, "section", s.ID)
}

// GetSection retrieves a section whose project is owned by userID.
func (db *DB) GetSection(ctx context.Context, id, userID string) (*schema.Section, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+sectionColumns+`
		FROM sections s JOIN projects p ON p.id = s.project_id
		WHERE s.id = ? AND p.user_id = ?`, id, userID)
	s, err := scanSection(row)
	if err != nil {
		return nil, notFound(err, "section", id)
	}
	return s, nil
}

// FindSectionByTodoistID looks up a section of a local project by its Todoist id.
func (db *DB) FindSectionByTodoistID(ctx context.Context, todoistID, projectID string) (*schema.Section, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+sectionColumns+`
		FROM sections s
		WHERE s.todoist_id = ? AND s.project_id = ?`, todoistID, projectID)
	s, err := scanSection(row)
	if err != nil {
		return nil, notFound(err, "section", "todoist:"+todoistID)
	}
	return s, nil
}

// FindUserSectionByTodoistID looks up a section by its Todoist id across
// all of the user's projects.
func (db *DB) FindUserSectionByTodoistID(ctx context.Context, todoistID, userID string) (*schema.Section, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+sectionColumns+`
		FROM sections s JOIN projects p ON p.id = s.project_id
		WHERE s.todoist_id = ? AND p.user_id = ?
		LIMIT 1`, todoistID, userID)
	s, err := scanSection(row)
	if err != nil {
		return nil, notFound(err, "section", "todoist:"+todoistID)
	}
	return s, nil
}

// ListSections returns the sections of a project ordered by position.
func (db *DB) ListSections(ctx context.Context, projectID string) ([]*schema.Section, error) {
	return db.querySections(ctx, `
		SELECT `+sectionColumns+`
		FROM sections s
		WHERE s.project_id = ?
		ORDER BY s.position ASC, s.created_at ASC`, projectID)
}

// ListUserSections returns every section across the user's projects.
func (db *DB) ListUserSections(ctx context.Context, userID string) ([]*schema.Section, error) {
	return db.querySections(ctx, `
		SELECT `+sectionColumns+`
		FROM sections s JOIN projects p ON p.id = s.project_id
		WHERE p.user_id = ?
		ORDER BY p.position ASC, s.position ASC`, userID)
}

// DeleteSection removes a section whose project is owned by userID.
// Tasks in the section are kept and lose their section.
func (db *DB) DeleteSection(ctx context.Context, id, userID string) error {
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM sections
		WHERE id = ? AND project_id IN (SELECT id FROM projects WHERE user_id = ?)`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete section %s: %w", id, err)
	}
	return requireAffected(res, "section", id)
}

func (db *DB) querySections(ctx context.Context, query string, args ...any) ([]*schema.Section, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	defer rows.Close()

	var sections []*schema.Section
	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sections = append(sections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sections: %w", err)
	}
	return sections, nil
}

func scanSection(row rowScanner) (*schema.Section, error) {
	var s schema.Section
	var todoistID, syncedAt sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&s.ID, &todoistID, &s.ProjectID, &s.Name, &s.Position,
		&syncedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.TodoistID = nullToStr(todoistID)
	s.SyncedAt = nullStringToTime(syncedAt)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}
