package interfaces

import (
	"context"

	"github.com/mailstash/mailstash/internal/models"
)

// DocumentRepository is the storage layer behind the sink.
type DocumentRepository interface {
	EnsureSchema(ctx context.Context) error
	UpsertBatch(ctx context.Context, docs []*models.MailDocument) (int, error)
	DeleteByUids(ctx context.Context, folderName string, uids []string, isPopStyleKey bool) error
	ClearFolder(ctx context.Context, folderName string) error
	StoredUids(ctx context.Context, folderName string, isPopStyleKey bool) ([]string, error)
	FlagHash(ctx context.Context, docID string) (int64, error)
	FolderNames(ctx context.Context) ([]string, error)
	CountForFolder(ctx context.Context, folderName string) (int64, error)
}

// SyncStateRepository persists folder sync states.
type SyncStateRepository interface {
	GetState(ctx context.Context, folderURL string) (*models.FolderSyncState, error)
	SaveState(ctx context.Context, state *models.FolderSyncState) error
	AllStates(ctx context.Context) ([]models.FolderSyncState, error)
}

// SyncErrorRepository records best-effort sync error logs.
type SyncErrorRepository interface {
	Record(ctx context.Context, syncError *models.SyncError) error
}
