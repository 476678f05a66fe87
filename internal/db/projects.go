package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gtdsync/gtd/internal/schema"
)

const projectColumns = `id, todoist_id, user_id, name, color, is_favorite, is_inbox,
	view_style, position, parent_id, synced_at, created_at, updated_at`

// CreateProject inserts a new project, assigning an ID when unset.
func (db *DB) CreateProject(ctx context.Context, p *schema.Project) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		strToNull(p.TodoistID),
		p.UserID,
		p.Name,
		p.Color,
		boolToInt(p.IsFavorite),
		boolToInt(p.IsInbox),
		p.ViewStyle,
		p.Position,
		strToNull(p.ParentID),
		timeToNullString(p.SyncedAt),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// UpdateProject overwrites the mutable columns of an existing project owned by p.UserID.
func (db *DB) UpdateProject(ctx context.Context, p *schema.Project) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE projects SET
			todoist_id = ?, name = ?, color = ?, is_favorite = ?, is_inbox = ?,
			view_style = ?, position = ?, parent_id = ?, synced_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		strToNull(p.TodoistID),
		p.Name,
		p.Color,
		boolToInt(p.IsFavorite),
		boolToInt(p.IsInbox),
		p.ViewStyle,
		p.Position,
		strToNull(p.ParentID),
		timeToNullString(p.SyncedAt),
		formatTime(p.UpdatedAt),
		p.ID,
		p.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", p.ID, err)
	}
	return requireAffected(res, "project", p.ID)
}

// SetProjectParent links a project to its parent, or detaches it when parentID is nil.
func (db *DB) SetProjectParent(ctx context.Context, id string, parentID *string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE projects SET parent_id = ? WHERE id = ?`, strToNull(parentID), id)
	if err != nil {
		return fmt.Errorf("failed to set parent of project %s: %w", id, err)
	}
	return requireAffected(res, "project", id)
}

// GetProject retrieves a project owned by userID.
func (db *DB) GetProject(ctx context.Context, id, userID string) (*schema.Project, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ? AND user_id = ?`, id, userID)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound(err, "project", id)
	}
	return p, nil
}

// FindProjectByTodoistID looks up the user's project linked to a Todoist id.
func (db *DB) FindProjectByTodoistID(ctx context.Context, todoistID, userID string) (*schema.Project, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE todoist_id = ? AND user_id = ?`, todoistID, userID)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound(err, "project", "todoist:"+todoistID)
	}
	return p, nil
}

// ListProjects returns all projects of a user ordered by position.
func (db *DB) ListProjects(ctx context.Context, userID string) ([]*schema.Project, error) {
	return db.queryProjects(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = ? ORDER BY position ASC, created_at ASC`, userID)
}

// ListLinkedProjects returns the user's projects that carry a Todoist id.
func (db *DB) ListLinkedProjects(ctx context.Context, userID string) ([]*schema.Project, error) {
	return db.queryProjects(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = ? AND todoist_id IS NOT NULL ORDER BY position ASC`, userID)
}

// DeleteProject removes a project owned by userID. Its sections go with it;
// its tasks are kept and lose their project.
func (db *DB) DeleteProject(ctx context.Context, id, userID string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	return requireAffected(res, "project", id)
}

func (db *DB) queryProjects(ctx context.Context, query string, args ...any) ([]*schema.Project, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*schema.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

func scanProject(row rowScanner) (*schema.Project, error) {
	var p schema.Project
	var todoistID, parentID, syncedAt sql.NullString
	var isFavorite, isInbox int
	var createdAt, updatedAt string

	err := row.Scan(
		&p.ID,
		&todoistID,
		&p.UserID,
		&p.Name,
		&p.Color,
		&isFavorite,
		&isInbox,
		&p.ViewStyle,
		&p.Position,
		&parentID,
		&syncedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.TodoistID = nullToStr(todoistID)
	p.ParentID = nullToStr(parentID)
	p.IsFavorite = isFavorite != 0
	p.IsInbox = isInbox != 0
	p.SyncedAt = nullStringToTime(syncedAt)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
