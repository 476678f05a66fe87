package main

import (
	"context"
	"fmt"

	"github.com/gtdsync/gtd/internal/config"
	"github.com/gtdsync/gtd/internal/db"
	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/todoist"
)

// openStore opens the configured database and ensures the schema exists.
func openStore(ctx context.Context) (*db.DB, error) {
	store, err := db.OpenWithOptions(db.Options{
		Driver:    cfg.Database.Driver,
		Path:      cfg.Database.Path,
		AuthToken: cfg.Database.AuthToken,
	})
	if err != nil {
		return nil, err
	}
	if err := store.InitSchemaContext(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func todoistOptions(tc config.TodoistConfig) []todoist.Option {
	return []todoist.Option{
		todoist.WithBaseURL(tc.BaseURL),
		todoist.WithTimeout(tc.Timeout),
		todoist.WithLogger(logs.Debug("todoist")),
	}
}

func lookupUser(ctx context.Context, store *db.DB, email string) (*schema.User, error) {
	if email == "" {
		return nil, fmt.Errorf("--user is required")
	}
	user, err := store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", email, err)
	}
	return user, nil
}
