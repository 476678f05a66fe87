package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gtdsync/gtd/internal/apperr"
	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/sync"
	"github.com/gtdsync/gtd/internal/todoist"
)

// ConnectionStatus reports whether a user has a Todoist credential.
type ConnectionStatus struct {
	Connected bool `json:"connected"`
}

// ConnectionStatus returns whether a non-empty token is stored for the user.
func (s *Service) ConnectionStatus(ctx context.Context, userID string) (*ConnectionStatus, error) {
	token, err := s.store.GetTodoistToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ConnectionStatus{Connected: token != ""}, nil
}

// SetTodoistToken stores the user's Todoist token.
func (s *Service) SetTodoistToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token must not be empty", apperr.ErrValidation)
	}
	if err := s.store.SetTodoistToken(ctx, userID, token); err != nil {
		return err
	}
	s.logger.Printf("Connected user %s to todoist", userID)
	return nil
}

// ClearTodoistToken removes the user's Todoist token. Linked rows keep
// their Todoist ids.
func (s *Service) ClearTodoistToken(ctx context.Context, userID string) error {
	if err := s.store.SetTodoistToken(ctx, userID, ""); err != nil {
		return err
	}
	s.logger.Printf("Disconnected user %s from todoist", userID)
	return nil
}

// RemoteLabels lists the personal labels of the user's Todoist account.
func (s *Service) RemoteLabels(ctx context.Context, userID string) ([]todoist.Label, error) {
	remote, err := s.remoteFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if remote == nil {
		return nil, apperr.ErrNoCredential
	}
	labels, err := remote.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list todoist labels: %w", apperr.ErrInternal, err)
	}
	if labels == nil {
		labels = []todoist.Label{}
	}
	return labels, nil
}

// ListLabels returns the shared local label table.
func (s *Service) ListLabels(ctx context.Context) ([]schema.Label, error) {
	labels, err := s.store.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = []schema.Label{}
	}
	return labels, nil
}

// SyncAll runs a full reconciliation for the user.
func (s *Service) SyncAll(ctx context.Context, userID string) (*sync.Result, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("%w: sync engine not configured", apperr.ErrInternal)
	}
	return s.engine.SyncAll(ctx, userID)
}
