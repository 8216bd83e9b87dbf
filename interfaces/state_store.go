package interfaces

import (
	"context"

	"github.com/mailstash/mailstash/internal/models"
)

// StateStore persists per-folder sync state and an error log. Callers
// serialize per folder; no concurrent writers for the same folder exist by
// design (the walker issues one sync per folder at a time).
type StateStore interface {
	// GetState returns the stored state for a folder, or a freshly initialized
	// one (lastUid=1, exists=true, no uidValidity) when none exists. Absence
	// is never an error.
	GetState(ctx context.Context, folderURL string) (*models.FolderSyncState, error)

	// SaveState durably records the state. On failure the cycle must be
	// treated as not advanced; re-fetch next cycle is safe because delivery
	// is idempotent.
	SaveState(ctx context.Context, state *models.FolderSyncState) error

	// RecordError is best-effort; failures are logged, never returned.
	RecordError(ctx context.Context, errContext, folderURL, messageID string, cause error)
}
