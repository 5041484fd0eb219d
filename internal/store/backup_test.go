package store

import (
	"context"
	"testing"
	"time"

	"github.com/moneyseed/moneyseed/internal/model"
)

func TestBackupLifecycle(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	ctx := context.Background()
	started := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

	b, err := bs.Create(ctx, &model.Backup{
		SnapshotDate: "2025-03-02",
		Trigger:      model.BackupScheduled,
		ObjectKey:    "backups/2025-03/moneyseed-2025-03-02T030000-scheduled.db.enc",
		StartedAt:    started,
	})
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if b.State != model.BackupRunning || !b.StartedAt.Equal(started) || b.FinishedAt != nil {
		t.Errorf("new backup = %+v", b)
	}

	if err := bs.MarkFailed(ctx, b.ID, "upload failed", started.Add(time.Minute)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ := bs.GetByID(ctx, b.ID)
	if got.State != model.BackupFailed || got.Error != "upload failed" {
		t.Errorf("failed backup = %+v", got)
	}
	if latest, _ := bs.LatestScheduled(ctx); latest != nil {
		t.Errorf("latest = %+v, want none before upload", latest)
	}

	if err := bs.MarkUploaded(ctx, b.ID, 4096, 4124, started.Add(2*time.Minute)); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}
	latest, _ := bs.LatestScheduled(ctx)
	if latest == nil || latest.SealedBytes != 4124 || latest.SnapshotBytes != 4096 || latest.Error != "" {
		t.Errorf("latest = %+v", latest)
	}

	keys, err := bs.DeleteStartedBefore(ctx, started.Add(time.Hour))
	if err != nil {
		t.Fatalf("delete older: %v", err)
	}
	if len(keys) != 1 || keys[0] != b.ObjectKey {
		t.Errorf("keys = %v", keys)
	}
	list, _ := bs.List(ctx, 10)
	if len(list) != 0 {
		t.Errorf("backups = %d, want 0", len(list))
	}
}

func TestBackupLatestIgnoresManual(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	ctx := context.Background()

	b, _ := bs.Create(ctx, &model.Backup{
		SnapshotDate: "2025-03-02",
		Trigger:      model.BackupManual,
		ObjectKey:    "backups/2025-03/moneyseed-2025-03-02T120000-manual.db.enc",
		StartedAt:    time.Now(),
	})
	bs.MarkUploaded(ctx, b.ID, 1, 2, time.Now())

	if latest, _ := bs.LatestScheduled(ctx); latest != nil {
		t.Errorf("latest = %+v, want none", latest)
	}
}
