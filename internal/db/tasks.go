package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gtdsync/gtd/internal/schema"
)

const taskColumns = `t.id, t.todoist_id, t.user_id, t.title, t.description, t.completed,
	t.priority, t.due_date, t.synced_at, t.project_id, t.section_id, t.position,
	t.type, t.waiting_for, t.energy, t.time_estimate, t.context,
	t.created_at, t.updated_at`

// CreateTask inserts a new task together with its labels in one transaction.
// Defaults are applied and an ID is assigned when unset.
func (db *DB) CreateTask(ctx context.Context, task *schema.Task) error {
	task.SetDefaults()
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (
			id, todoist_id, user_id, title, description, completed,
			priority, due_date, synced_at, project_id, section_id, position,
			type, waiting_for, energy, time_estimate, context,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		strToNull(task.TodoistID),
		task.UserID,
		task.Title,
		task.Description,
		boolToInt(task.Completed),
		task.Priority,
		dateToNullString(task.DueDate),
		timeToNullString(task.SyncedAt),
		strToNull(task.ProjectID),
		strToNull(task.SectionID),
		task.Position,
		string(task.Type),
		task.WaitingFor,
		string(task.Energy),
		intToNull(task.TimeEstimate),
		task.Context,
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := attachLabels(ctx, tx, task.ID, task.Labels); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateTask overwrites the scalar columns of a task owned by task.UserID.
// Labels are not touched; use ReplaceTaskLabels.
func (db *DB) UpdateTask(ctx context.Context, task *schema.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	task.UpdateTimestamp()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE tasks SET
			todoist_id = ?, title = ?, description = ?, completed = ?, priority = ?,
			due_date = ?, synced_at = ?, project_id = ?, section_id = ?, position = ?,
			type = ?, waiting_for = ?, energy = ?, time_estimate = ?, context = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?`,
		strToNull(task.TodoistID),
		task.Title,
		task.Description,
		boolToInt(task.Completed),
		task.Priority,
		dateToNullString(task.DueDate),
		timeToNullString(task.SyncedAt),
		strToNull(task.ProjectID),
		strToNull(task.SectionID),
		task.Position,
		string(task.Type),
		task.WaitingFor,
		string(task.Energy),
		intToNull(task.TimeEstimate),
		task.Context,
		formatTime(task.UpdatedAt),
		task.ID,
		task.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}
	return requireAffected(res, "task", task.ID)
}

// ReplaceTaskLabels detaches every label from the task and then connects
// the given names, creating label rows that do not exist yet. Label rows
// are never deleted.
func (db *DB) ReplaceTaskLabels(ctx context.Context, taskID string, names []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_labels WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to detach labels from task %s: %w", taskID, err)
	}
	if err := attachLabels(ctx, tx, taskID, names); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// attachLabels connects-or-creates each named label on the task.
func attachLabels(ctx context.Context, tx *sql.Tx, taskID string, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO labels (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("failed to create label %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO task_labels (task_id, label_id)
			SELECT ?, id FROM labels WHERE name = ?`, taskID, name); err != nil {
			return fmt.Errorf("failed to attach label %q to task %s: %w", name, taskID, err)
		}
	}
	return nil
}

// GetTask retrieves a task owned by userID, including its labels.
func (db *DB) GetTask(ctx context.Context, id, userID string) (*schema.Task, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.id = ? AND t.user_id = ?`, id, userID)
	task, err := scanTask(row)
	if err != nil {
		return nil, notFound(err, "task", id)
	}
	if err := db.loadLabels(ctx, []*schema.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

// FindTaskByTodoistID looks up the user's task linked to a Todoist id.
func (db *DB) FindTaskByTodoistID(ctx context.Context, todoistID, userID string) (*schema.Task, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.todoist_id = ? AND t.user_id = ?`, todoistID, userID)
	task, err := scanTask(row)
	if err != nil {
		return nil, notFound(err, "task", "todoist:"+todoistID)
	}
	if err := db.loadLabels(ctx, []*schema.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

// ListLinkedTasks returns every task of the user that carries a Todoist id.
func (db *DB) ListLinkedTasks(ctx context.Context, userID string) ([]*schema.Task, error) {
	return db.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.user_id = ? AND t.todoist_id IS NOT NULL`, userID)
}

// TaskFilter configures the ListTasks query.
type TaskFilter struct {
	// ProjectID filters by project (empty = all projects)
	ProjectID string
	// SectionID filters by section (empty = all sections)
	SectionID string
	// Type filters by lifecycle type (empty = all types)
	Type schema.TaskType
	// Completed filters by completion state (nil = both)
	Completed *bool
	// Label filters by attached label name (empty = any)
	Label string
	// Context filters by context tag (empty = any)
	Context string
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results (for pagination)
	Offset int
}

// ListTasks retrieves the user's tasks matching the filter.
// Results are ordered by completion, priority, position, then created_at.
func (db *DB) ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]*schema.Task, error) {
	conditions := []string{"t.user_id = ?"}
	args := []any{userID}

	if filter.ProjectID != "" {
		conditions = append(conditions, "t.project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, "t.section_id = ?")
		args = append(args, filter.SectionID)
	}
	if filter.Type != "" {
		conditions = append(conditions, "t.type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Completed != nil {
		conditions = append(conditions, "t.completed = ?")
		args = append(args, boolToInt(*filter.Completed))
	}
	if filter.Context != "" {
		conditions = append(conditions, "t.context = ?")
		args = append(args, filter.Context)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks t`
	if filter.Label != "" {
		query += `
		JOIN task_labels tl ON tl.task_id = t.id
		JOIN labels l ON l.id = tl.label_id`
		conditions = append(conditions, "l.name = ?")
		args = append(args, filter.Label)
	}

	query += " WHERE " + strings.Join(conditions, " AND ")
	query += " ORDER BY t.completed ASC, t.priority ASC, t.position ASC, t.created_at ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	return db.queryTasks(ctx, query, args...)
}

// DeleteTask removes a task owned by userID. Label rows are kept.
func (db *DB) DeleteTask(ctx context.Context, id, userID string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return requireAffected(res, "task", id)
}

// ListLabels returns the global label table ordered by name.
func (db *DB) ListLabels(ctx context.Context) ([]schema.Label, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM labels ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	defer rows.Close()

	var labels []schema.Label
	for rows.Next() {
		var l schema.Label
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating labels: %w", err)
	}
	return labels, nil
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]*schema.Task, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks, err := scanTasks(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if err := db.loadLabels(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// loadLabels fills the Labels field of each task.
func (db *DB) loadLabels(ctx context.Context, tasks []*schema.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	byID := make(map[string]*schema.Task, len(tasks))
	placeholders := make([]string, 0, len(tasks))
	args := make([]any, 0, len(tasks))
	for _, t := range tasks {
		t.Labels = []string{}
		byID[t.ID] = t
		placeholders = append(placeholders, "?")
		args = append(args, t.ID)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT tl.task_id, l.name
		FROM task_labels tl JOIN labels l ON l.id = tl.label_id
		WHERE tl.task_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY l.name ASC`, args...)
	if err != nil {
		return fmt.Errorf("failed to load labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, name string
		if err := rows.Scan(&taskID, &name); err != nil {
			return fmt.Errorf("failed to scan label: %w", err)
		}
		if t, ok := byID[taskID]; ok {
			t.Labels = append(t.Labels, name)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating labels: %w", err)
	}
	return nil
}

// scanTasks is a helper function to scan multiple tasks from query results.
func scanTasks(rows *sql.Rows) ([]*schema.Task, error) {
	var tasks []*schema.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(row rowScanner) (*schema.Task, error) {
	var task schema.Task
	var todoistID, projectID, sectionID sql.NullString
	var dueDate, syncedAt sql.NullString
	var timeEstimate sql.NullInt64
	var completed int
	var taskType, energy string
	var createdAt, updatedAt string

	err := row.Scan(
		&task.ID,
		&todoistID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&completed,
		&task.Priority,
		&dueDate,
		&syncedAt,
		&projectID,
		&sectionID,
		&task.Position,
		&taskType,
		&task.WaitingFor,
		&energy,
		&timeEstimate,
		&task.Context,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.TodoistID = nullToStr(todoistID)
	task.ProjectID = nullToStr(projectID)
	task.SectionID = nullToStr(sectionID)
	task.Completed = completed != 0
	task.Type = schema.TaskType(taskType)
	task.Energy = schema.Energy(energy)
	if timeEstimate.Valid {
		v := int(timeEstimate.Int64)
		task.TimeEstimate = &v
	}
	if dueDate.Valid {
		task.DueDate, _ = schema.ParseDate(dueDate.String)
	}
	task.SyncedAt = nullStringToTime(syncedAt)
	task.CreatedAt = parseTime(createdAt)
	task.UpdatedAt = parseTime(updatedAt)
	task.Labels = []string{}
	return &task, nil
}

// dateToNullString stores due dates as calendar dates.
func dateToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: schema.FormatDate(t), Valid: true}
}

func intToNull(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
