package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

/*
 * Settings is the persisted, user-chosen part of a tuning session.
 */
type Settings struct {
	ID          string    `json:"id"`
	Instrument  string    `json:"instrument"`
	Mode        string    `json:"mode"`
	TargetHz    float64   `json:"target_hz"`
	HasTarget   bool      `json:"has_target"`
	StringIndex int       `json:"string_index"`
	ThresholdDB float64   `json:"threshold_db"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SettingsStore interface {
	Save(ctx context.Context, s Settings) error
	Get(ctx context.Context, id string) (*Settings, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Settings, error)
}

type settingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) SettingsStore {
	return &settingsStore{db: db}
}

func (s *settingsStore) Save(ctx context.Context, in Settings) error {
	now := time.Now().UTC()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_settings(id, instrument, mode, target_hz, has_target, string_index, threshold_db, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			instrument=excluded.instrument,
			mode=excluded.mode,
			target_hz=excluded.target_hz,
			has_target=excluded.has_target,
			string_index=excluded.string_index,
			threshold_db=excluded.threshold_db,
			updated_at=excluded.updated_at
	`, in.ID, in.Instrument, in.Mode, in.TargetHz, boolToInt(in.HasTarget), in.StringIndex, in.ThresholdDB, in.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("save settings %s: %w", in.ID, err)
	}
	return nil
}

func (s *settingsStore) Get(ctx context.Context, id string) (*Settings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, instrument, mode, target_hz, has_target, string_index, threshold_db, created_at, updated_at
		FROM session_settings WHERE id=?`, id)
	out, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("settings %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *settingsStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_settings WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("settings %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *settingsStore) List(ctx context.Context) ([]Settings, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instrument, mode, target_hz, has_target, string_index, threshold_db, created_at, updated_at
		FROM session_settings ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Settings
	for rows.Next() {
		item, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *item)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettings(row rowScanner) (*Settings, error) {
	var out Settings
	var hasTarget int
	if err := row.Scan(&out.ID, &out.Instrument, &out.Mode, &out.TargetHz, &hasTarget, &out.StringIndex, &out.ThresholdDB, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}
	out.HasTarget = hasTarget != 0
	return &out, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
