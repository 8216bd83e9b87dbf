package interfaces

import (
	"context"

	"github.com/mailstash/mailstash/internal/models"
)

// FlushResult is the explicit outcome of draining the sink's write buffer.
type FlushResult struct {
	Acked int
	Err   error
}

func (r FlushResult) Ok() bool {
	return r.Err == nil
}

// Sink is the write-side contract of the document store. Delivery is
// idempotent by document key; implementations must tolerate out-of-order and
// duplicate writes from concurrent slice workers.
type Sink interface {
	// Startup makes the destination ready to accept writes. Idempotent;
	// bounded by a readiness timeout and fatal for the cycle if exceeded.
	Startup(ctx context.Context) error

	// OnMessage upserts one document by its deterministic key. No-op once the
	// sink is closed or in a sticky-error state.
	OnMessage(ctx context.Context, msg *models.MailMessage) error

	// OnMessageDeletes bulk-deletes by UID set scoped to a folder. UIDs are
	// numeric strings for IMAP keys, opaque ids for POP-style keys.
	OnMessageDeletes(ctx context.Context, uids []string, folderName string, isPopStyleKey bool) error

	// ClearDataForFolder tombstones all documents for a folder.
	ClearDataForFolder(ctx context.Context, folderName string) error

	GetCurrentlyStoredMessageUids(ctx context.Context, folderName string, isPopStyleKey bool) ([]string, error)

	// GetFlagHash returns the flag hash stored on a document, or -1 when the
	// document is not indexed yet.
	GetFlagHash(ctx context.Context, docID string) (int64, error)

	GetFolderNames(ctx context.Context) ([]string, error)

	// Flush synchronously drains buffered writes.
	Flush(ctx context.Context) FlushResult

	// ClearError leaves the sticky-error state; writes are accepted again.
	ClearError()

	// InFlightRequests exposes the per-instance in-flight bulk write counter.
	InFlightRequests() int64

	// Close flushes any buffered writes before returning.
	Close(ctx context.Context) error
}
