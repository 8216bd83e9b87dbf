package repository

import (
	"gorm.io/gorm"

	"github.com/mailstash/mailstash/interfaces"
	"github.com/mailstash/mailstash/internal/models"
)

type Repositories struct {
	DocumentRepository  interfaces.DocumentRepository
	SyncStateRepository interfaces.SyncStateRepository
	SyncErrorRepository interfaces.SyncErrorRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DocumentRepository:  NewDocumentRepository(db),
		SyncStateRepository: NewSyncStateRepository(db),
		SyncErrorRepository: NewSyncErrorRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MailDocument{},
		&models.FolderSyncState{},
		&models.SyncError{},
	)
}
