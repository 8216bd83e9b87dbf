package pop3

import (
	"context"

	"github.com/mailstash/mailstash/internal/models"
)

// Session is one authenticated POP3 connection. Message numbers are only
// stable within a session; the opaque UID string is the sole durable
// identity.
type Session interface {
	FolderURL() string
	// MessageCount is the message count reported at connect time.
	MessageCount() uint32
	// UIDMap maps each opaque UID to its session-local message number.
	UIDMap(ctx context.Context) (map[string]uint32, error)
	// FetchMessage retrieves the full message at a session-local number.
	FetchMessage(ctx context.Context, msgNum uint32) (*models.MailMessage, error)
	Close() error
}

// SessionFactory dials sessions for one POP3 account.
type SessionFactory interface {
	Dial(ctx context.Context) (Session, error)
	FolderURL() string
	Close() error
}
