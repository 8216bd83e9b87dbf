package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/mailstash/mailstash/internal/models"
	"github.com/mailstash/mailstash/internal/tracing"
)

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

// NewSessionFactory returns a SessionFactory that dials a fresh connection per
// session. Connections are never shared across workers.
func NewSessionFactory(cfg ClientConfig) SessionFactory {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &clientSessionFactory{cfg: cfg}
}

func (f *clientSessionFactory) connect(ctx context.Context) (*client.Client, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "clientSessionFactory.connect")
	defer span.Finish()
	span.SetTag("server", f.cfg.Host)
	span.SetTag("port", f.cfg.Port)
	span.SetTag("tls", f.cfg.TLS)

	serverAddr := fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port)

	dialer := &net.Dialer{
		Timeout:   f.cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error
	if f.cfg.TLS {
		tlsConfig := &tls.Config{ServerName: f.cfg.Host}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}

	c.Timeout = f.cfg.DialTimeout
	if err := c.Login(f.cfg.Username, f.cfg.Password); err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to login as %s: %w", f.cfg.Username, err)
	}
	c.Timeout = 0

	return c, nil
}

// FolderURL builds the canonical identity for a folder on this account.
func (f *clientSessionFactory) FolderURL(folderName string) string {
	return fmt.Sprintf("imap://%s@%s:%d/%s",
		url.PathEscape(f.cfg.Username), f.cfg.Host, f.cfg.Port, url.PathEscape(folderName))
}

func (f *clientSessionFactory) DialFolder(ctx context.Context, folderName string) (FolderSession, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "clientSessionFactory.DialFolder")
	defer span.Finish()
	tracing.TagFolder(span, folderName)

	c, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}

	mbox, err := c.Select(folderName, true)
	if err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to select folder %s: %w", folderName, err)
	}

	return &imapFolderSession{
		client:    c,
		name:      folderName,
		folderURL: f.FolderURL(folderName),
		mbox:      mbox,
	}, nil
}

func (f *clientSessionFactory) ListFolders(ctx context.Context) ([]FolderInfo, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "clientSessionFactory.ListFolders")
	defer span.Finish()

	c, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	mailboxes := make(chan *imap.MailboxInfo, 20)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var folders []FolderInfo
	for m := range mailboxes {
		folders = append(folders, FolderInfo{
			Name:       m.Name,
			Attributes: m.Attributes,
		})
	}
	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	return folders, nil
}

func (f *clientSessionFactory) Close() error {
	return nil
}

type imapFolderSession struct {
	client    *client.Client
	name      string
	folderURL string
	mbox      *imap.MailboxStatus
}

func (s *imapFolderSession) FolderURL() string {
	return s.folderURL
}

func (s *imapFolderSession) Name() string {
	return s.name
}

func (s *imapFolderSession) UIDValidity() int64 {
	return int64(s.mbox.UidValidity)
}

func (s *imapFolderSession) Messages() uint32 {
	return s.mbox.Messages
}

var fullFetchSection = &imap.BodySectionName{Peek: true}

func fullFetchItems() []imap.FetchItem {
	return []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
		imap.FetchInternalDate,
		imap.FetchRFC822Size,
		fullFetchSection.FetchItem(),
	}
}

func (s *imapFolderSession) FetchRange(ctx context.Context, start, end uint32, fn func(*models.MailMessage) error) error {
	if end < start {
		return nil
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(start, end)
	return s.fetch(ctx, seqSet, false, fn)
}

func (s *imapFolderSession) FetchByUID(ctx context.Context, uid uint32, fn func(*models.MailMessage) error) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	return s.fetch(ctx, seqSet, true, fn)
}

func (s *imapFolderSession) fetch(ctx context.Context, seqSet *imap.SeqSet, byUID bool, fn func(*models.MailMessage) error) error {
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		if byUID {
			done <- s.client.UidFetch(seqSet, fullFetchItems(), messages)
		} else {
			done <- s.client.Fetch(seqSet, fullFetchItems(), messages)
		}
	}()

	var cbErr error
	for msg := range messages {
		if cbErr != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			cbErr = err
			continue
		}
		cbErr = fn(s.toMailMessage(msg))
	}
	if err := <-done; err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	return cbErr
}

func (s *imapFolderSession) toMailMessage(msg *imap.Message) *models.MailMessage {
	m := &models.MailMessage{
		UID:          msg.Uid,
		SeqNum:       msg.SeqNum,
		FolderName:   s.name,
		FolderURL:    s.folderURL,
		Flags:        msg.Flags,
		ReceivedDate: msg.InternalDate,
		Headers:      map[string]string{},
	}

	if env := msg.Envelope; env != nil {
		m.Subject = env.Subject
		m.SentDate = env.Date
		if len(env.From) > 0 {
			m.Sender = env.From[0].Address()
		}
		for _, to := range env.To {
			m.Recipients = append(m.Recipients, to.Address())
		}
		for _, cc := range env.Cc {
			m.CcRecipients = append(m.CcRecipients, cc.Address())
		}
		if env.MessageId != "" {
			m.Headers["Message-Id"] = env.MessageId
		}
		if env.InReplyTo != "" {
			m.Headers["In-Reply-To"] = env.InReplyTo
		}
	}

	if body := msg.GetBody(fullFetchSection); body != nil {
		raw, err := io.ReadAll(body)
		if err == nil {
			m.RawBody = raw
		}
	}

	return m
}

func (s *imapFolderSession) UIDSearchSince(ctx context.Context, lastUid int64) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	uidRange := new(imap.SeqSet)
	uidRange.AddRange(uint32(lastUid)+1, 0)
	criteria.Uid = uidRange

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("uid search failed: %w", err)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (s *imapFolderSession) UIDsInRange(ctx context.Context, start, end int64) ([]uint32, error) {
	if end < start {
		return nil, nil
	}
	criteria := imap.NewSearchCriteria()
	uidRange := new(imap.SeqSet)
	uidRange.AddRange(uint32(start), uint32(end))
	criteria.Uid = uidRange

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("uid search failed: %w", err)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (s *imapFolderSession) FetchFlags(ctx context.Context, fn func(uid uint32, flags []string) error) error {
	if s.mbox.Messages == 0 {
		return nil
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(1, s.mbox.Messages)

	messages := make(chan *imap.Message, 50)
	done := make(chan error, 1)
	go func() {
		done <- s.client.Fetch(seqSet, []imap.FetchItem{imap.FetchFlags, imap.FetchUid}, messages)
	}()

	var cbErr error
	for msg := range messages {
		if cbErr != nil {
			continue
		}
		cbErr = fn(msg.Uid, msg.Flags)
	}
	if err := <-done; err != nil {
		return fmt.Errorf("flags fetch failed: %w", err)
	}
	return cbErr
}

func (s *imapFolderSession) SeqNumOfUID(ctx context.Context, uid uint32) (uint32, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, []imap.FetchItem{imap.FetchUid}, messages)
	}()

	var seqNum uint32
	for msg := range messages {
		seqNum = msg.SeqNum
	}
	if err := <-done; err != nil {
		return 0, fmt.Errorf("uid resolve failed: %w", err)
	}
	if seqNum == 0 {
		return 0, fmt.Errorf("uid %d not found in folder %s", uid, s.name)
	}
	return seqNum, nil
}

func (s *imapFolderSession) Close() error {
	return s.client.Logout()
}
