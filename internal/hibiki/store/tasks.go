package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
	"github.com/bdobrica/Hibiki/internal/hibiki/scheduler"
)

var _ scheduler.TaskStore = (*Store)(nil)

const lastResetKey = "last_reset"

// LoadRecurring returns the recurring tasks in saved order.
func (s *Store) LoadRecurring(ctx context.Context) ([]scheduler.Recurring, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_time, action, params_json, enabled, repeat,
		       done_today, preauthorized, created_at
		FROM recurring_tasks
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring tasks: %w", err)
	}
	defer rows.Close()

	var tasks []scheduler.Recurring
	for rows.Next() {
		var (
			r                                   scheduler.Recurring
			paramsJSON, createdAt               string
			enabled, repeat, done, preauthorize int
		)
		if err := rows.Scan(&r.ID, &r.TriggerTime, &r.Action, &paramsJSON,
			&enabled, &repeat, &done, &preauthorize, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan recurring task: %w", err)
		}
		if r.Params, err = decodeParams(paramsJSON); err != nil {
			return nil, fmt.Errorf("recurring task %s: %w", r.ID, err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("recurring task %s: %w", r.ID, err)
		}
		r.Enabled, r.Repeat, r.DoneToday, r.Preauthorized = enabled != 0, repeat != 0, done != 0, preauthorize != 0
		tasks = append(tasks, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recurring tasks: %w", err)
	}
	return tasks, nil
}

// SaveRecurring replaces the stored recurring tasks with tasks.
func (s *Store) SaveRecurring(ctx context.Context, tasks []scheduler.Recurring) error {
	return s.replace(ctx, "recurring_tasks", func(tx *sql.Tx) error {
		for i, r := range tasks {
			paramsJSON, err := json.Marshal(r.Params)
			if err != nil {
				return fmt.Errorf("recurring task %s: failed to marshal params: %w", r.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO recurring_tasks (id, position, trigger_time, action, params_json,
				                             enabled, repeat, done_today, preauthorized, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, r.ID, i, r.TriggerTime, r.Action, string(paramsJSON),
				boolInt(r.Enabled), boolInt(r.Repeat), boolInt(r.DoneToday), boolInt(r.Preauthorized),
				formatTime(r.CreatedAt)); err != nil {
				return fmt.Errorf("failed to insert recurring task %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// LoadTimers returns the pending timers in saved order.
func (s *Store) LoadTimers(ctx context.Context) ([]scheduler.Timer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_at, action, params_json, preauthorized, created_at
		FROM timers
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query timers: %w", err)
	}
	defer rows.Close()

	var timers []scheduler.Timer
	for rows.Next() {
		var (
			t                                scheduler.Timer
			triggerAt, paramsJSON, createdAt string
			preauthorized                    int
		)
		if err := rows.Scan(&t.ID, &triggerAt, &t.Action, &paramsJSON, &preauthorized, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan timer: %w", err)
		}
		if t.TriggerAt, err = parseTime(triggerAt); err != nil {
			return nil, fmt.Errorf("timer %s: %w", t.ID, err)
		}
		if t.Params, err = decodeParams(paramsJSON); err != nil {
			return nil, fmt.Errorf("timer %s: %w", t.ID, err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("timer %s: %w", t.ID, err)
		}
		t.Preauthorized = preauthorized != 0
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating timers: %w", err)
	}
	return timers, nil
}

// SaveTimers replaces the stored timers with timers.
func (s *Store) SaveTimers(ctx context.Context, timers []scheduler.Timer) error {
	return s.replace(ctx, "timers", func(tx *sql.Tx) error {
		for i, t := range timers {
			paramsJSON, err := json.Marshal(t.Params)
			if err != nil {
				return fmt.Errorf("timer %s: failed to marshal params: %w", t.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO timers (id, position, trigger_at, action, params_json, preauthorized, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, t.ID, i, formatTime(t.TriggerAt), t.Action, string(paramsJSON),
				boolInt(t.Preauthorized), formatTime(t.CreatedAt)); err != nil {
				return fmt.Errorf("failed to insert timer %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// LoadLastReset returns the date of the last daily rollover, or "" if none
// has been recorded.
func (s *Store) LoadLastReset(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM scheduler_state WHERE key = ?", lastResetKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load last reset date: %w", err)
	}
	return v, nil
}

// SaveLastReset records the date of the daily rollover.
func (s *Store) SaveLastReset(ctx context.Context, date string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduler_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastResetKey, date)
	if err != nil {
		return fmt.Errorf("failed to save last reset date: %w", err)
	}
	return nil
}

// replace deletes every row of table and refills it inside one transaction.
func (s *Store) replace(ctx context.Context, table string, fill func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if err := fill(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", table, err)
	}
	return nil
}

func decodeParams(raw string) (intent.Params, error) {
	var p intent.Params
	if raw == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("failed to decode params: %w", err)
	}
	return p, nil
}
