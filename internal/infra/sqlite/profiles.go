package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apuctl/apuctl/internal/domain"
)

// ─── Profile Repository ─────────────────────────────────────────────────────

// UpsertProfile inserts or replaces a profile. CreatedAt is kept from the
// existing row on update.
func (d *DB) UpsertProfile(p domain.Profile) error {
	settings, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	_, err = d.db.Exec(
		`INSERT INTO profiles (name, settings, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			settings=excluded.settings,
			updated_at=excluded.updated_at`,
		p.Name, string(settings), p.CreatedAt.Unix(), now.Unix(),
	)
	return err
}

// GetProfile retrieves a profile by name. Returns ErrProfileNotFound if
// missing.
func (d *DB) GetProfile(name string) (*domain.Profile, error) {
	row := d.db.QueryRow(
		`SELECT name, settings, created_at, updated_at FROM profiles WHERE name = ?`, name,
	)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrProfileNotFound, name)
	}
	return p, err
}

// ListProfiles returns all profiles ordered by name.
func (d *DB) ListProfiles() ([]domain.Profile, error) {
	rows, err := d.db.Query(
		`SELECT name, settings, created_at, updated_at FROM profiles ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// DeleteProfile removes a profile. History rows that name it are kept.
func (d *DB) DeleteProfile(name string) error {
	result, err := d.db.Exec(`DELETE FROM profiles WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrProfileNotFound, name)
	}
	return nil
}

func scanProfile(s scanner) (*domain.Profile, error) {
	var p domain.Profile
	var settings string
	var created, updated int64
	if err := s.Scan(&p.Name, &settings, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(settings), &p.Settings); err != nil {
		return nil, fmt.Errorf("decode settings of %s: %w", p.Name, err)
	}
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	return &p, nil
}

// ─── Apply History ──────────────────────────────────────────────────────────

// InsertApplyRecord appends one profile run to the history. An empty ID
// is filled with a fresh UUID and returned.
func (d *DB) InsertApplyRecord(r domain.ApplyRecord) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.AppliedAt.IsZero() {
		r.AppliedAt = time.Now()
	}
	applied := r.Applied
	if applied == nil {
		applied = []string{}
	}
	appliedJSON, err := json.Marshal(applied)
	if err != nil {
		return "", err
	}
	_, err = d.db.Exec(
		`INSERT INTO apply_history (id, profile, applied_at, applied, failed_param, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Profile, r.AppliedAt.UnixMilli(), string(appliedJSON),
		nullStr(r.FailedParam), nullStr(r.Error),
	)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// ApplyHistory returns the most recent runs first. limit <= 0 means 50.
func (d *DB) ApplyHistory(limit int) ([]domain.ApplyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(
		`SELECT id, profile, applied_at, applied, failed_param, error
		 FROM apply_history ORDER BY applied_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ApplyRecord
	for rows.Next() {
		var r domain.ApplyRecord
		var at int64
		var applied string
		var failed, msg sql.NullString
		if err := rows.Scan(&r.ID, &r.Profile, &at, &applied, &failed, &msg); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(applied), &r.Applied); err != nil {
			return nil, fmt.Errorf("decode history %s: %w", r.ID, err)
		}
		r.AppliedAt = time.UnixMilli(at)
		r.FailedParam = failed.String
		r.Error = msg.String
		out = append(out, r)
	}
	return out, rows.Err()
}
