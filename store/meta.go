package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/surerank/seo-analyzer/checks"
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Meta returns a single meta value and whether it was set.
func (s *Store) Meta(ctx context.Context, kind Kind, id int64, key string) (string, bool, error) {
	return getMeta(ctx, s.db, kind, id, key)
}

// AllMeta returns every meta value of an entity.
func (s *Store) AllMeta(ctx context.Context, kind Kind, id int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT meta_key, meta_value FROM entity_meta WHERE entity_kind = ? AND entity_id = ?`, string(kind), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// SetMeta writes a single meta value, replacing any previous one.
func (s *Store) SetMeta(ctx context.Context, kind Kind, id int64, key, value string) error {
	return setMeta(ctx, s.db, kind, id, key, value)
}

// Checks returns the stored result set of an entity and when it was last updated.
// An entity never analyzed yields an empty set and a zero time.
func (s *Store) Checks(ctx context.Context, kind Kind, id int64) (*checks.ResultSet, time.Time, error) {
	return loadChecks(ctx, s.db, kind, id)
}

// MergeChecks merges rs over the stored result set and persists it with the last-updated timestamp.
// Keys stored earlier but absent from rs are kept.
func (s *Store) MergeChecks(ctx context.Context, kind Kind, id int64, rs *checks.ResultSet, now time.Time) (*checks.ResultSet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	previous, _, err := loadChecks(ctx, tx, kind, id)
	if err != nil {
		return nil, err
	}
	merged := previous.Merge(rs)

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checks: %w", err)
	}
	if err := setMeta(ctx, tx, kind, id, MetaChecks, string(data)); err != nil {
		return nil, err
	}
	if err := setMeta(ctx, tx, kind, id, MetaChecksUpdated, strconv.FormatInt(now.Unix(), 10)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checks: %w", err)
	}
	return merged, nil
}

func getMeta(ctx context.Context, q queryer, kind Kind, id int64, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `
		SELECT meta_value FROM entity_meta WHERE entity_kind = ? AND entity_id = ? AND meta_key = ?`,
		string(kind), id, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	return value, true, nil
}

func setMeta(ctx context.Context, q queryer, kind Kind, id int64, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO entity_meta (entity_kind, entity_id, meta_key, meta_value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_kind, entity_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
		string(kind), id, key, value)
	if err != nil {
		return fmt.Errorf("failed to write meta %s: %w", key, err)
	}
	return nil
}

func loadChecks(ctx context.Context, q queryer, kind Kind, id int64) (*checks.ResultSet, time.Time, error) {
	raw, ok, err := getMeta(ctx, q, kind, id, MetaChecks)
	if err != nil {
		return nil, time.Time{}, err
	}
	rs := checks.NewResultSet()
	if !ok || raw == "" {
		return rs, time.Time{}, nil
	}
	if err := json.Unmarshal([]byte(raw), rs); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode stored checks: %w", err)
	}

	var updated time.Time
	if v, ok, err := getMeta(ctx, q, kind, id, MetaChecksUpdated); err == nil && ok {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			updated = time.Unix(secs, 0).UTC()
		}
	}
	return rs, updated, nil
}
