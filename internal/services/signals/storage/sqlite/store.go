// Package sqlite provides a SQLite-backed storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/signals.agent/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
	"github.com/louisbranch/signals.agent/internal/services/signals/storage"
	"github.com/louisbranch/signals.agent/internal/services/signals/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// maxUpdateAttempts bounds optimistic retries when concurrent writers race
// on the same activation row.
const maxUpdateAttempts = 5

// Store persists contexts and activations in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateContext inserts one context record.
func (s *Store) CreateContext(ctx context.Context, record domain.ContextRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("context id is required")
	}
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("encode context payload: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO contexts (
		   context_id,
		   context_type,
		   parent_context_id,
		   principal_id,
		   payload,
		   created_at,
		   expires_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		string(record.Kind),
		record.ParentID,
		record.PrincipalID,
		string(payload),
		toMillis(record.CreatedAt),
		toMillis(record.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create context: %w", err)
	}
	return nil
}

// GetContext returns one context record by id.
func (s *Store) GetContext(ctx context.Context, id string) (domain.ContextRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.ContextRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.ContextRecord{}, fmt.Errorf("storage is not configured")
	}

	var (
		record    domain.ContextRecord
		kind      string
		payload   string
		createdAt int64
		expiresAt int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT context_id, context_type, parent_context_id, principal_id, payload, created_at, expires_at
		 FROM contexts WHERE context_id = ?`,
		id,
	).Scan(&record.ID, &kind, &record.ParentID, &record.PrincipalID, &payload, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ContextRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.ContextRecord{}, fmt.Errorf("get context: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &record.Payload); err != nil {
		return domain.ContextRecord{}, fmt.Errorf("decode context payload: %w", err)
	}
	record.Kind = domain.ContextKind(kind)
	record.CreatedAt = fromMillis(createdAt)
	record.ExpiresAt = fromMillis(expiresAt)
	return record, nil
}

// DeleteContextsExpiredBefore removes context rows that expired before cutoff.
func (s *Store) DeleteContextsExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM contexts WHERE expires_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete expired contexts: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted contexts: %w", err)
	}
	return int(affected), nil
}

// CreateActivation inserts one activation record.
func (s *Store) CreateActivation(ctx context.Context, activation domain.Activation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(activation.ID) == "" {
		return fmt.Errorf("activation id is required")
	}
	updatedAt := activation.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = activation.CreatedAt
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO activations (
		   activation_id,
		   signal_id,
		   signal_name,
		   platform,
		   account,
		   principal_id,
		   context_id,
		   origin,
		   state,
		   ticket_id,
		   assigned_segment_id,
		   platform_segment_id,
		   error,
		   created_at,
		   updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		activation.ID,
		activation.SignalID,
		activation.SignalName,
		activation.Platform,
		activation.Account,
		activation.PrincipalID,
		activation.ContextID,
		string(activation.Origin),
		string(activation.State),
		activation.TicketID,
		activation.AssignedSegmentID,
		activation.PlatformSegmentID,
		activation.Error,
		toMillis(activation.CreatedAt),
		toMillis(updatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create activation: %w", err)
	}
	return nil
}

// GetActivation returns one activation record by id.
func (s *Store) GetActivation(ctx context.Context, id string) (domain.Activation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Activation{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Activation{}, fmt.Errorf("storage is not configured")
	}
	activation, _, err := s.getActivation(ctx, id)
	return activation, err
}

func (s *Store) getActivation(ctx context.Context, id string) (domain.Activation, int64, error) {
	var (
		activation domain.Activation
		origin     string
		state      string
		version    int64
		createdAt  int64
		updatedAt  int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT activation_id, signal_id, signal_name, platform, account, principal_id, context_id,
		        origin, state, ticket_id, assigned_segment_id, platform_segment_id, error,
		        version, created_at, updated_at
		 FROM activations WHERE activation_id = ?`,
		id,
	).Scan(
		&activation.ID,
		&activation.SignalID,
		&activation.SignalName,
		&activation.Platform,
		&activation.Account,
		&activation.PrincipalID,
		&activation.ContextID,
		&origin,
		&state,
		&activation.TicketID,
		&activation.AssignedSegmentID,
		&activation.PlatformSegmentID,
		&activation.Error,
		&version,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Activation{}, 0, storage.ErrNotFound
	}
	if err != nil {
		return domain.Activation{}, 0, fmt.Errorf("get activation: %w", err)
	}
	activation.Origin = domain.OriginKind(origin)
	activation.State = domain.ActivationState(state)
	activation.CreatedAt = fromMillis(createdAt)
	activation.UpdatedAt = fromMillis(updatedAt)
	return activation, version, nil
}

// UpdateActivation applies mutate with optimistic concurrency on the row
// version, retrying when another writer got there first.
func (s *Store) UpdateActivation(ctx context.Context, id string, mutate func(*domain.Activation) error) (domain.Activation, error) {
	if s == nil || s.sqlDB == nil {
		return domain.Activation{}, fmt.Errorf("storage is not configured")
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Activation{}, err
		}
		current, version, err := s.getActivation(ctx, id)
		if err != nil {
			return domain.Activation{}, err
		}
		updated := current
		if err := mutate(&updated); err != nil {
			return current, err
		}
		updated.ID = current.ID

		result, err := s.sqlDB.ExecContext(
			ctx,
			`UPDATE activations
			 SET state = ?, ticket_id = ?, assigned_segment_id = ?, platform_segment_id = ?,
			     error = ?, updated_at = ?, version = version + 1
			 WHERE activation_id = ? AND version = ?`,
			string(updated.State),
			updated.TicketID,
			updated.AssignedSegmentID,
			updated.PlatformSegmentID,
			updated.Error,
			toMillis(updated.UpdatedAt),
			id,
			version,
		)
		if err != nil {
			return domain.Activation{}, fmt.Errorf("update activation: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return domain.Activation{}, fmt.Errorf("update activation: %w", err)
		}
		if affected == 1 {
			return updated, nil
		}
	}
	return domain.Activation{}, fmt.Errorf("update activation %s: too many concurrent writers", id)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
