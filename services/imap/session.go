package imap

import (
	"context"

	"github.com/mailstash/mailstash/internal/models"
)

// FolderInfo is one entry of the server's folder tree listing.
type FolderInfo struct {
	Name       string
	Attributes []string
}

// CanHoldMessages reports whether the folder is selectable.
func (f FolderInfo) CanHoldMessages() bool {
	for _, attr := range f.Attributes {
		if attr == `\Noselect` {
			return false
		}
	}
	return true
}

// FolderSession is one open, selected folder on one connection. Sessions are
// not share-safe across workers; every worker dials its own.
type FolderSession interface {
	// FolderURL is the canonical folder identity.
	FolderURL() string
	Name() string
	// UIDValidity is the server-issued epoch for the folder's UID space.
	UIDValidity() int64
	// Messages is the message count at select time.
	Messages() uint32

	// FetchRange streams full messages for an inclusive sequence-number range.
	FetchRange(ctx context.Context, start, end uint32, fn func(*models.MailMessage) error) error

	// FetchByUID streams the full message with the given UID.
	FetchByUID(ctx context.Context, uid uint32, fn func(*models.MailMessage) error) error

	// UIDSearchSince returns UIDs strictly greater than lastUid, ascending.
	UIDSearchSince(ctx context.Context, lastUid int64) ([]uint32, error)

	// UIDsInRange returns the UIDs in [start, end] still present on the server.
	UIDsInRange(ctx context.Context, start, end int64) ([]uint32, error)

	// FetchFlags streams UID and flags for every message in the folder.
	FetchFlags(ctx context.Context, fn func(uid uint32, flags []string) error) error

	// SeqNumOfUID resolves a UID to its current session-local sequence number.
	SeqNumOfUID(ctx context.Context, uid uint32) (uint32, error)

	Close() error
}

// SessionFactory dials folder sessions and lists the folder tree. One factory
// per account.
type SessionFactory interface {
	DialFolder(ctx context.Context, folderName string) (FolderSession, error)
	ListFolders(ctx context.Context) ([]FolderInfo, error)
	// FolderURL derives the canonical identity of a folder without dialing.
	FolderURL(folderName string) string
	Close() error
}
