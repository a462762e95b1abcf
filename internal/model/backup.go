package model

import "time"

type BackupStatus string

const (
	BackupPending   BackupStatus = "pending"
	BackupCompleted BackupStatus = "completed"
	BackupFailed    BackupStatus = "failed"
)

// Backup is one encrypted snapshot of the events database in object storage.
type Backup struct {
	ID            int64        `json:"id"`
	Key           string       `json:"key"`
	SizeBytes     int64        `json:"size_bytes"`
	EventCount    int          `json:"event_count"`
	OverrideCount int          `json:"override_count"`
	Status        BackupStatus `json:"status"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
