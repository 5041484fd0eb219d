// Package backup snapshots the SQLite database, encrypts it with a
// passphrase and uploads it to S3-compatible storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/store"
)

var ErrDisabled = errors.New("backup not configured")

// s3Client is the subset of the S3 API the manager uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	S3            S3Config
	Passphrase    string
	Hour          int // KST hour of the daily run
	RetentionDays int
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Manager runs daily and on-demand backups.
type Manager struct {
	mu       sync.RWMutex
	runMu    sync.Mutex
	cfg      Config
	status   Status
	callback StatusCallback
	lastDay  string

	db      *sql.DB
	backups *store.BackupStore
	client  s3Client
	clock   kst.Clock
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, db *sql.DB, backups *store.BackupStore, callback StatusCallback, logger *slog.Logger) *Manager {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	m := &Manager{
		cfg:      cfg,
		db:       db,
		backups:  backups,
		callback: callback,
		clock:    kst.SystemClock,
		logger:   logger,
		status:   Status{State: StateDisabled},
	}
	if cfg.S3.complete() && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// Start begins the scheduled backup loop. It is a no-op when disabled.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	if latest, err := m.backups.LatestScheduled(ctx); err != nil {
		m.logger.Warn("load last backup", "error", err)
	} else if latest != nil {
		m.mu.Lock()
		m.lastDay = latest.SnapshotDate
		m.status.LastBackup = latest.FinishedAt
		m.mu.Unlock()
	}

	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx)
			}
		}
	}()
}

// Stop gracefully stops the backup loop.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

// checkSchedule runs the daily backup once the configured KST hour is
// reached, at most once per KST day.
func (m *Manager) checkSchedule(ctx context.Context) {
	now := m.clock().In(kst.Location)
	today := kst.FormatDate(now)
	runAt := kst.StartOfDay(now).Add(time.Duration(m.cfg.Hour) * time.Hour)

	m.mu.Lock()
	due := !now.Before(runAt) && m.lastDay != today
	if due {
		m.lastDay = today
	}
	m.mu.Unlock()
	if !due {
		return
	}

	if _, err := m.run(ctx, model.BackupScheduled); err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
	}
	if err := m.Cleanup(ctx); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	}
}

// RunNow snapshots, encrypts and uploads the database. Concurrent calls
// run one after the other.
func (m *Manager) RunNow(ctx context.Context) (*model.Backup, error) {
	return m.run(ctx, model.BackupManual)
}

func (m *Manager) run(ctx context.Context, trigger model.BackupTrigger) (*model.Backup, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	passphrase := m.cfg.Passphrase
	m.mu.RUnlock()
	if client == nil {
		return nil, ErrDisabled
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()

	m.setStatus(Status{State: StateRunning, InProgress: true})
	fail := func(id int64, err error) (*model.Backup, error) {
		if id != 0 {
			if uerr := m.backups.MarkFailed(ctx, id, err.Error(), m.clock()); uerr != nil {
				m.logger.Error("mark backup failed", "backup_id", id, "error", uerr)
			}
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}

	now := m.clock()
	local := now.In(kst.Location)
	record, err := m.backups.Create(ctx, &model.Backup{
		SnapshotDate: kst.FormatDate(now),
		Trigger:      trigger,
		ObjectKey:    objectKey(local, trigger),
		StartedAt:    now,
	})
	if err != nil {
		return fail(0, fmt.Errorf("create backup record: %w", err))
	}

	snapshot, err := m.snapshot(ctx, record.ID)
	if err != nil {
		return fail(record.ID, err)
	}

	sealed, err := Seal(snapshot, passphrase)
	if err != nil {
		return fail(record.ID, fmt.Errorf("encrypt: %w", err))
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(record.ObjectKey),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return fail(record.ID, fmt.Errorf("upload to s3: %w", err))
	}

	finished := m.clock()
	if err := m.backups.MarkUploaded(ctx, record.ID, int64(len(snapshot)), int64(len(sealed)), finished); err != nil {
		return fail(record.ID, err)
	}

	m.logger.Info("backup uploaded",
		"backup_id", record.ID, "trigger", trigger, "key", record.ObjectKey, "size", len(sealed))
	m.setStatus(Status{State: StateIdle, LastBackup: &finished})
	return m.backups.GetByID(ctx, record.ID)
}

// snapshot writes a consistent copy of the live database with VACUUM INTO
// and returns its bytes.
func (m *Manager) snapshot(ctx context.Context, id int64) ([]byte, error) {
	dir, err := os.MkdirTemp("", "moneyseed-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, fmt.Sprintf("snapshot-%d.db", id))
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// objectKey groups snapshots by KST month, e.g.
// backups/2025-03/moneyseed-2025-03-10T030000-scheduled.db.enc.
func objectKey(t time.Time, trigger model.BackupTrigger) string {
	return fmt.Sprintf("backups/%s/moneyseed-%s-%s.db.enc", t.Format("2006-01"), t.Format("2006-01-02T150405"), trigger)
}

func (m *Manager) List(ctx context.Context, limit int) ([]model.Backup, error) {
	return m.backups.List(ctx, limit)
}

// Cleanup deletes backups older than the retention period.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	retention := m.cfg.RetentionDays
	m.mu.RUnlock()

	if client == nil {
		return nil
	}

	before := m.clock().UTC().AddDate(0, 0, -retention)
	keys, err := m.backups.DeleteStartedBefore(ctx, before)
	if err != nil {
		return fmt.Errorf("delete old backups: %w", err)
	}

	for _, key := range keys {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete s3 object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("pruned old backups", "count", len(keys))
	}
	return nil
}
