package sink

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/mailstash/mailstash/internal/models"
	"github.com/mailstash/mailstash/internal/utils"
)

const maxTextContentBytes = 1 << 20

// ShapeDocument converts a fetched message into its indexed document form.
// Body parsing is best-effort: a message whose MIME structure cannot be parsed
// is still indexed with its envelope metadata.
func ShapeDocument(msg *models.MailMessage) *models.MailDocument {
	doc := &models.MailDocument{
		ID:           msg.DocumentID(),
		FolderName:   msg.FolderName,
		FolderURL:    msg.FolderURL,
		UID:          int64(msg.UID),
		PopID:        msg.PopID,
		FlagHash:     utils.FlagHash(msg.Flags),
		Subject:      msg.Subject,
		Sender:       msg.Sender,
		Recipients:   strings.Join(msg.Recipients, ", "),
		CcRecipients: strings.Join(msg.CcRecipients, ", "),
		Flags:        strings.Join(msg.Flags, ","),
		Size:         int64(len(msg.RawBody)),
		IndexedAt:    utils.Now(),
	}

	if !msg.SentDate.IsZero() {
		doc.SentDate = utils.TimePtr(msg.SentDate)
	}
	if !msg.ReceivedDate.IsZero() {
		doc.ReceivedDate = utils.TimePtr(msg.ReceivedDate)
	}
	if len(msg.Headers) > 0 {
		if headerJSON, err := json.Marshal(msg.Headers); err == nil {
			doc.Headers = string(headerJSON)
		}
	}

	if len(msg.RawBody) > 0 {
		envelope, err := enmime.ReadEnvelope(bytes.NewReader(msg.RawBody))
		if err == nil {
			if doc.Subject == "" {
				doc.Subject = envelope.GetHeader("Subject")
			}
			if doc.Sender == "" {
				doc.Sender = envelope.GetHeader("From")
			}
			doc.ContentType = envelope.GetHeader("Content-Type")
			text := envelope.Text
			if text == "" {
				text = envelope.HTML
			}
			if len(text) > maxTextContentBytes {
				text = text[:maxTextContentBytes]
			}
			doc.TextContent = text
		}
	}

	return doc
}
