// Package tokenstore persists the bearer-token mirror for each browser so a
// restarted storefront can silently re-establish sessions.
package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/farmstand/internal/sqliteutil"
)

// Store wraps the auth_tokens table.
type Store struct {
	db *sql.DB
}

// NewStore constructs a token store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the token table.
func (s *Store) Init(ctx context.Context) error {
	return sqliteutil.Apply(ctx, s.db,
		`CREATE TABLE IF NOT EXISTS auth_tokens (
			browser_id TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_auth_tokens_updated ON auth_tokens(updated_at);`,
	)
}

// Put stores or replaces the token for a browser.
func (s *Store) Put(ctx context.Context, browserID, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_tokens(browser_id, token, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(browser_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		browserID, token, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	return nil
}

// Get returns the stored token; ok is false when none exists.
func (s *Store) Get(ctx context.Context, browserID string) (string, bool, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM auth_tokens WHERE browser_id = ?`, browserID).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get token: %w", err)
	}
	return token, true, nil
}

// Delete removes a browser's token. Deleting a missing token is not an error.
func (s *Store) Delete(ctx context.Context, browserID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE browser_id = ?`, browserID); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// Touch marks a browser's token as used at the given time. A browser without
// a token is left alone.
func (s *Store) Touch(ctx context.Context, browserID string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE auth_tokens SET updated_at = ? WHERE browser_id = ?`, at.UTC(), browserID); err != nil {
		return fmt.Errorf("touch token: %w", err)
	}
	return nil
}

// Prune drops tokens untouched since before cutoff, except those of the
// browsers in keep, and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time, keep ...string) (int64, error) {
	query := `DELETE FROM auth_tokens WHERE updated_at < ?`
	args := []any{cutoff.UTC()}
	if len(keep) > 0 {
		query += ` AND browser_id NOT IN (?` + strings.Repeat(`, ?`, len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Mirror binds the store to one browser, satisfying marketapi.TokenSource.
func (s *Store) Mirror(browserID string) *Mirror {
	return &Mirror{store: s, browserID: browserID}
}

// Mirror is a per-browser view of the store.
type Mirror struct {
	store     *Store
	browserID string
}

func (m *Mirror) Token(ctx context.Context) (string, error) {
	token, _, err := m.store.Get(ctx, m.browserID)
	return token, err
}

func (m *Mirror) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return m.store.Delete(ctx, m.browserID)
	}
	return m.store.Put(ctx, m.browserID, token)
}

func (m *Mirror) ClearToken(ctx context.Context) error {
	return m.store.Delete(ctx, m.browserID)
}
