package pop3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/knadh/go-pop3"
	"github.com/opentracing/opentracing-go"

	"github.com/mailstash/mailstash/internal/models"
	"github.com/mailstash/mailstash/internal/tracing"
)

// FolderName is the single pseudo-folder a POP3 account exposes.
const FolderName = "INBOX"

type ClientConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string

	DialTimeout time.Duration
}

type clientSessionFactory struct {
	cfg ClientConfig
}

func NewSessionFactory(cfg ClientConfig) SessionFactory {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &clientSessionFactory{cfg: cfg}
}

func (f *clientSessionFactory) FolderURL() string {
	return fmt.Sprintf("pop3://%s@%s:%d/%s",
		url.PathEscape(f.cfg.Username), f.cfg.Host, f.cfg.Port, FolderName)
}

func (f *clientSessionFactory) Dial(ctx context.Context) (Session, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "clientSessionFactory.Dial")
	defer span.Finish()
	span.SetTag("server", f.cfg.Host)
	span.SetTag("port", f.cfg.Port)
	span.SetTag("tls", f.cfg.TLS)

	p := pop3.New(pop3.Opt{
		Host:        f.cfg.Host,
		Port:        f.cfg.Port,
		TLSEnabled:  f.cfg.TLS,
		DialTimeout: f.cfg.DialTimeout,
	})

	conn, err := p.NewConn()
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to connect to %s:%d: %w", f.cfg.Host, f.cfg.Port, err)
	}

	if err := conn.Auth(f.cfg.Username, f.cfg.Password); err != nil {
		conn.Quit()
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to login as %s: %w", f.cfg.Username, err)
	}

	count, _, err := conn.Stat()
	if err != nil {
		conn.Quit()
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to stat mailbox: %w", err)
	}

	return &popSession{
		conn:      conn,
		folderURL: f.FolderURL(),
		count:     uint32(count),
	}, nil
}

func (f *clientSessionFactory) Close() error {
	return nil
}

type popSession struct {
	conn      *pop3.Conn
	folderURL string
	count     uint32
}

func (s *popSession) FolderURL() string {
	return s.folderURL
}

func (s *popSession) MessageCount() uint32 {
	return s.count
}

func (s *popSession) UIDMap(ctx context.Context) (map[string]uint32, error) {
	ids, err := s.conn.Uidl(0)
	if err != nil {
		return nil, fmt.Errorf("uidl failed: %w", err)
	}
	uidMap := make(map[string]uint32, len(ids))
	for _, id := range ids {
		uidMap[id.UID] = uint32(id.ID)
	}
	return uidMap, nil
}

func (s *popSession) FetchMessage(ctx context.Context, msgNum uint32) (*models.MailMessage, error) {
	buf, err := s.conn.RetrRaw(int(msgNum))
	if err != nil {
		return nil, fmt.Errorf("retr %d failed: %w", msgNum, err)
	}
	raw := buf.Bytes()

	m := &models.MailMessage{
		SeqNum:     msgNum,
		FolderName: FolderName,
		FolderURL:  s.folderURL,
		RawBody:    raw,
		Headers:    map[string]string{},
	}

	// Header parsing is best-effort; an unparseable message still gets
	// indexed from its raw body.
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err == nil {
		header := mr.Header
		if subject, err := header.Subject(); err == nil {
			m.Subject = subject
		}
		if date, err := header.Date(); err == nil {
			m.SentDate = date
		}
		if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
			m.Sender = from[0].Address
		}
		if to, err := header.AddressList("To"); err == nil {
			for _, addr := range to {
				m.Recipients = append(m.Recipients, addr.Address)
			}
		}
		if cc, err := header.AddressList("Cc"); err == nil {
			for _, addr := range cc {
				m.CcRecipients = append(m.CcRecipients, addr.Address)
			}
		}
		if messageID, err := header.MessageID(); err == nil && messageID != "" {
			m.Headers["Message-Id"] = messageID
		}
	}

	return m, nil
}

func (s *popSession) Close() error {
	return s.conn.Quit()
}
