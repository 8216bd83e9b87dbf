package interfaces

import (
	"context"
	"regexp"
)

// MailSource runs one full poll cycle over a mailbox: folder discovery,
// per-folder incremental sync, and stale-folder cleanup. IMAP and POP3
// variants share this contract.
type MailSource interface {
	// Fetch walks the folder tree and syncs every eligible folder. A nil
	// pattern means all folders.
	Fetch(ctx context.Context, pattern *regexp.Regexp) error

	// FetchFolder syncs a single named folder.
	FetchFolder(ctx context.Context, folderName string) error

	// Close shuts down the worker pool; in-flight slices are allowed to
	// finish. Subsequent walks abort early.
	Close() error
}
