package models

import (
	"time"
)

// SyncError is a best-effort error-log record written during a sync cycle.
type SyncError struct {
	ID        string    `gorm:"column:id;type:uuid;primaryKey"`
	Context   string    `gorm:"column:context;type:varchar(300);not null"`
	FolderURL string    `gorm:"column:folder_url;type:varchar(500);index"`
	MessageID string    `gorm:"column:message_id;type:varchar(300)"`
	Error     string    `gorm:"column:error;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (SyncError) TableName() string {
	return "sync_errors"
}
