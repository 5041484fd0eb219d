package model

import "time"

type BackupState string

const (
	BackupRunning  BackupState = "running"
	BackupUploaded BackupState = "uploaded"
	BackupFailed   BackupState = "failed"
)

// BackupTrigger records whether a snapshot came from the daily schedule or
// a parent pressing "back up now".
type BackupTrigger string

const (
	BackupScheduled BackupTrigger = "scheduled"
	BackupManual    BackupTrigger = "manual"
)

// Backup is one encrypted database snapshot pushed to object storage.
// SnapshotDate is the KST calendar day the snapshot belongs to.
type Backup struct {
	ID            int64         `json:"id"`
	SnapshotDate  string        `json:"snapshot_date"`
	Trigger       BackupTrigger `json:"trigger"`
	ObjectKey     string        `json:"object_key"`
	SnapshotBytes int64         `json:"snapshot_bytes"`
	SealedBytes   int64         `json:"sealed_bytes"`
	State         BackupState   `json:"state"`
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}
