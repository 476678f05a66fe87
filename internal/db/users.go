package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gtdsync/gtd/internal/apperr"
	"github.com/gtdsync/gtd/internal/schema"
)

const userColumns = `id, email, name, api_key, todoist_token, created_at`

// NewAPIKey returns a fresh random bearer key for the HTTP API.
func NewAPIKey() string {
	return "gtd_" + uuid.NewString()
}

// CreateUser inserts a user, generating its ID and API key when unset.
func (db *DB) CreateUser(ctx context.Context, u *schema.User) error {
	if u.Email == "" {
		return fmt.Errorf("%w: email is required", apperr.ErrValidation)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.APIKey == "" {
		u.APIKey = NewAPIKey()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (id, email, name, api_key, todoist_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.APIKey, strToNull(&u.TodoistToken), formatTime(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", u.Email, err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (db *DB) GetUser(ctx context.Context, id string) (*schema.User, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*schema.User, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user", email)
	}
	return u, nil
}

// GetUserByAPIKey resolves a bearer key to its user.
func (db *DB) GetUserByAPIKey(ctx context.Context, key string) (*schema.User, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty api key", apperr.ErrNotFound)
	}
	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE api_key = ?`, key)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user", "for api key")
	}
	return u, nil
}

// GetTodoistToken returns the user's stored Todoist credential, or "" if none.
func (db *DB) GetTodoistToken(ctx context.Context, userID string) (string, error) {
	var token sql.NullString
	err := db.conn.QueryRowContext(ctx, `SELECT todoist_token FROM users WHERE id = ?`, userID).Scan(&token)
	if err != nil {
		return "", notFound(err, "user", userID)
	}
	return token.String, nil
}

// SetTodoistToken stores the user's Todoist credential. An empty token clears it.
func (db *DB) SetTodoistToken(ctx context.Context, userID, token string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET todoist_token = ? WHERE id = ?`, strToNull(&token), userID)
	if err != nil {
		return fmt.Errorf("failed to set todoist token: %w", err)
	}
	return requireAffected(res, "user", userID)
}

func scanUser(row rowScanner) (*schema.User, error) {
	var u schema.User
	var token sql.NullString
	var createdAt string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.APIKey, &token, &createdAt); err != nil {
		return nil, err
	}
	u.TodoistToken = token.String
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}
