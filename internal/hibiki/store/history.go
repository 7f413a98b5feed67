package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CommandRecord is one dispatched command.
type CommandRecord struct {
	ID        int64
	Timestamp time.Time
	Action    string
	Params    string
}

// AppUsage counts how often an application was opened.
type AppUsage struct {
	App      string
	Count    int
	LastUsed time.Time
}

// Exchange is one user utterance and the spoken reply.
type Exchange struct {
	ID        int64
	Timestamp time.Time
	UserText  string
	Response  string
}

// RecordCommand appends a dispatched command to the history.
func (s *Store) RecordCommand(ctx context.Context, action, params string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_history (ts, action, params) VALUES (?, ?, ?)
	`, formatTime(s.now()), action, params)
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// RecentCommands returns up to limit commands, oldest first.
func (s *Store) RecentCommands(ctx context.Context, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, action, params FROM (
			SELECT id, ts, action, params FROM command_history
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query command history: %w", err)
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var (
			rec CommandRecord
			ts  string
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.Action, &rec.Params); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		if rec.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating command history: %w", err)
	}
	return out, nil
}

// IncrementAppUsage bumps the open count of app.
func (s *Store) IncrementAppUsage(ctx context.Context, app string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_usage (app, count, last_used) VALUES (?, 1, ?)
		ON CONFLICT(app) DO UPDATE SET count = count + 1, last_used = excluded.last_used
	`, app, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to update app usage: %w", err)
	}
	return nil
}

// GetAppUsage returns the usage row of app, or ErrNotFound.
func (s *Store) GetAppUsage(ctx context.Context, app string) (AppUsage, error) {
	var (
		u        AppUsage
		lastUsed string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT app, count, last_used FROM app_usage WHERE app = ?
	`, app).Scan(&u.App, &u.Count, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return AppUsage{}, fmt.Errorf("app usage %s: %w", app, ErrNotFound)
	}
	if err != nil {
		return AppUsage{}, fmt.Errorf("failed to get app usage: %w", err)
	}
	if u.LastUsed, err = parseTime(lastUsed); err != nil {
		return AppUsage{}, err
	}
	return u, nil
}

// TopApps returns the most opened applications.
func (s *Store) TopApps(ctx context.Context, limit int) ([]AppUsage, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT app, count, last_used FROM app_usage
		ORDER BY count DESC, app ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query app usage: %w", err)
	}
	defer rows.Close()

	var out []AppUsage
	for rows.Next() {
		var (
			u        AppUsage
			lastUsed string
		)
		if err := rows.Scan(&u.App, &u.Count, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan app usage: %w", err)
		}
		if u.LastUsed, err = parseTime(lastUsed); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating app usage: %w", err)
	}
	return out, nil
}

// RecordExchange appends a conversation turn.
func (s *Store) RecordExchange(ctx context.Context, userText, response string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_history (ts, user_text, response) VALUES (?, ?, ?)
	`, formatTime(s.now()), userText, response)
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// RecentExchanges returns up to limit conversation turns, oldest first.
func (s *Store) RecentExchanges(ctx context.Context, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, user_text, response FROM (
			SELECT id, ts, user_text, response FROM conversation_history
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation history: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var (
			ex Exchange
			ts string
		)
		if err := rows.Scan(&ex.ID, &ts, &ex.UserText, &ex.Response); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		if ex.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation history: %w", err)
	}
	return out, nil
}
