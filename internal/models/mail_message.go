package models

import (
	"fmt"
	"time"
)

// MailMessage is the fetch-time representation of one message, produced by a
// protocol session and consumed by the sink.
type MailMessage struct {
	UID          uint32
	SeqNum       uint32
	PopID        string
	FolderName   string
	FolderURL    string
	Flags        []string
	Subject      string
	Sender       string
	Recipients   []string
	CcRecipients []string
	SentDate     time.Time
	ReceivedDate time.Time
	Headers      map[string]string
	RawBody      []byte
}

// IsPop reports whether the message carries a POP3-style opaque UID instead of
// an IMAP numeric UID.
func (m *MailMessage) IsPop() bool {
	return m.PopID != ""
}

// DocumentID is the deterministic document key: (uid | popId) :: folderUrl.
// Stable across repeated fetches of the same message.
func (m *MailMessage) DocumentID() string {
	if m.IsPop() {
		return fmt.Sprintf("%s::%s", m.PopID, m.FolderURL)
	}
	return fmt.Sprintf("%d::%s", m.UID, m.FolderURL)
}
