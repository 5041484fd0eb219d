package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/moneyseed/moneyseed/internal/model"
)

type BackupStore struct {
	db *sql.DB
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

const backupCols = `id, snapshot_date, trigger_kind, object_key, snapshot_bytes, sealed_bytes, state, error, started_at, finished_at`

func scanBackup(scanner interface{ Scan(...any) error }) (*model.Backup, error) {
	var b model.Backup
	var errMsg sql.NullString
	var finishedAt sql.NullTime
	err := scanner.Scan(
		&b.ID, &b.SnapshotDate, &b.Trigger, &b.ObjectKey, &b.SnapshotBytes, &b.SealedBytes,
		&b.State, &errMsg, &b.StartedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Error = errMsg.String
	b.FinishedAt = timePtr(finishedAt)
	return &b, nil
}

// Create records a snapshot run in the running state.
func (s *BackupStore) Create(ctx context.Context, b *model.Backup) (*model.Backup, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (snapshot_date, trigger_kind, object_key, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		b.SnapshotDate, b.Trigger, b.ObjectKey, model.BackupRunning, b.StartedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *BackupStore) GetByID(ctx context.Context, id int64) (*model.Backup, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+backupCols+` FROM backups WHERE id = ?`, id)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %d: %w", id, err)
	}
	return b, nil
}

func (s *BackupStore) List(ctx context.Context, limit int) ([]model.Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backupCols+` FROM backups ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

func (s *BackupStore) MarkFailed(ctx context.Context, id int64, errorMsg string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE backups SET state = ?, error = ?, finished_at = ? WHERE id = ?`,
		model.BackupFailed, nullString(errorMsg), at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark backup failed: %w", err)
	}
	return nil
}

func (s *BackupStore) MarkUploaded(ctx context.Context, id, snapshotBytes, sealedBytes int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE backups SET state = ?, snapshot_bytes = ?, sealed_bytes = ?, error = NULL, finished_at = ? WHERE id = ?`,
		model.BackupUploaded, snapshotBytes, sealedBytes, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark backup uploaded: %w", err)
	}
	return nil
}

// DeleteStartedBefore deletes backup records started before the given time
// and returns their object keys so the caller can remove the uploads.
func (s *BackupStore) DeleteStartedBefore(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT object_key FROM backups WHERE started_at < ?`, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("select old backups: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan object key: %w", err)
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE started_at < ?`, before.UTC()); err != nil {
		return nil, fmt.Errorf("delete old backups: %w", err)
	}
	return keys, nil
}

// LatestScheduled returns the newest uploaded snapshot taken by the daily
// schedule, or nil.
func (s *BackupStore) LatestScheduled(ctx context.Context) (*model.Backup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+backupCols+` FROM backups WHERE state = ? AND trigger_kind = ?
		 ORDER BY snapshot_date DESC, id DESC LIMIT 1`,
		model.BackupUploaded, model.BackupScheduled,
	)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest scheduled backup: %w", err)
	}
	return b, nil
}
