package models

import (
	"time"
)

// MailDocument is one indexed message. The primary key is deterministic for a
// given message, so re-delivery is an upsert rather than a duplicate insert.
type MailDocument struct {
	ID           string     `gorm:"column:id;type:varchar(600);primaryKey"`
	FolderName   string     `gorm:"column:folder_name;type:varchar(300);index;not null"`
	FolderURL    string     `gorm:"column:folder_url;type:varchar(500);index;not null"`
	UID          int64      `gorm:"column:uid;index"`
	PopID        string     `gorm:"column:pop_id;type:varchar(100);index"`
	FlagHash     int64      `gorm:"column:flag_hash;not null;default:-1"`
	Subject      string     `gorm:"column:subject;type:text"`
	Sender       string     `gorm:"column:sender;type:varchar(500)"`
	Recipients   string     `gorm:"column:recipients;type:text"`
	CcRecipients string     `gorm:"column:cc_recipients;type:text"`
	SentDate     *time.Time `gorm:"column:sent_date;type:timestamp"`
	ReceivedDate *time.Time `gorm:"column:received_date;type:timestamp"`
	Flags        string     `gorm:"column:flags;type:varchar(500)"`
	Headers      string     `gorm:"column:headers;type:text"`
	TextContent  string     `gorm:"column:text_content;type:text"`
	ContentType  string     `gorm:"column:content_type;type:varchar(200)"`
	Size         int64      `gorm:"column:size"`
	IndexedAt    time.Time  `gorm:"column:indexed_at;type:timestamp"`
}

func (MailDocument) TableName() string {
	return "mail_documents"
}
