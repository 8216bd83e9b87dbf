package models

import (
	"time"
)

// FolderSyncState is the persisted synchronization watermark for one folder.
// LastUID is monotonically non-decreasing for a fixed UIDValidity; a
// UIDValidity change invalidates it and forces a full resync.
type FolderSyncState struct {
	ID             string     `gorm:"column:id;type:varchar(64);primaryKey" json:"-"`
	FolderURL      string     `gorm:"column:folder_url;type:varchar(500);uniqueIndex;not null" json:"folderUrl"`
	UIDValidity    *int64     `gorm:"column:uid_validity" json:"uidValidity,omitempty"`
	LastUID        int64      `gorm:"column:last_uid;not null;default:1" json:"lastUid"`
	LastSchedule   *time.Time `gorm:"column:last_schedule;type:timestamp" json:"lastSchedule,omitempty"`
	LastIndexed    *time.Time `gorm:"column:last_indexed;type:timestamp" json:"lastIndexed,omitempty"`
	LastTookMillis int64      `gorm:"column:last_took_millis" json:"lastTook"`
	LastCount      int64      `gorm:"column:last_count" json:"lastCount"`
	Exists         bool       `gorm:"column:exists;not null;default:true" json:"exists"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"-"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"-"`
}

func (FolderSyncState) TableName() string {
	return "folder_sync_states"
}
