package sink

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailstash_errors "github.com/mailstash/mailstash/internal/errors"
	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/models"
)

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

type fakeDocumentRepository struct {
	mu          sync.Mutex
	docs        map[string]*models.MailDocument
	failNext    error
	failSchema  error
	upsertCalls int
}

func newFakeDocumentRepository() *fakeDocumentRepository {
	return &fakeDocumentRepository{docs: map[string]*models.MailDocument{}}
}

func (r *fakeDocumentRepository) EnsureSchema(ctx context.Context) error {
	return r.failSchema
}

func (r *fakeDocumentRepository) UpsertBatch(ctx context.Context, docs []*models.MailDocument) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertCalls++
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return 0, err
	}
	for _, doc := range docs {
		r.docs[doc.ID] = doc
	}
	return len(docs), nil
}

func (r *fakeDocumentRepository) DeleteByUids(ctx context.Context, folderName string, uids []string, isPopStyleKey bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, uid := range uids {
		for id, doc := range r.docs {
			if doc.FolderName != folderName {
				continue
			}
			if isPopStyleKey && doc.PopID == uid {
				delete(r.docs, id)
			}
			if !isPopStyleKey && strconv.FormatInt(doc.UID, 10) == uid {
				delete(r.docs, id)
			}
		}
	}
	return nil
}

func (r *fakeDocumentRepository) ClearFolder(ctx context.Context, folderName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, doc := range r.docs {
		if doc.FolderName == folderName {
			delete(r.docs, id)
		}
	}
	return nil
}

func (r *fakeDocumentRepository) StoredUids(ctx context.Context, folderName string, isPopStyleKey bool) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var uids []string
	for _, doc := range r.docs {
		if doc.FolderName != folderName {
			continue
		}
		if isPopStyleKey {
			uids = append(uids, doc.PopID)
		} else {
			uids = append(uids, strconv.FormatInt(doc.UID, 10))
		}
	}
	return uids, nil
}

func (r *fakeDocumentRepository) FlagHash(ctx context.Context, docID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.docs[docID]; ok {
		return doc.FlagHash, nil
	}
	return -1, nil
}

func (r *fakeDocumentRepository) FolderNames(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]struct{}{}
	var names []string
	for _, doc := range r.docs {
		if _, ok := seen[doc.FolderName]; !ok {
			seen[doc.FolderName] = struct{}{}
			names = append(names, doc.FolderName)
		}
	}
	return names, nil
}

func (r *fakeDocumentRepository) CountForFolder(ctx context.Context, folderName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, doc := range r.docs {
		if doc.FolderName == folderName {
			count++
		}
	}
	return count, nil
}

func testMessage(uid uint32) *models.MailMessage {
	return &models.MailMessage{
		UID:        uid,
		FolderName: "INBOX",
		FolderURL:  "imap://u@h:993/INBOX",
		Subject:    "hello",
		Flags:      []string{`\Seen`},
	}
}

func TestDocumentSink_IdempotentUpsert(t *testing.T) {
	repo := newFakeDocumentRepository()
	s := NewDocumentSink(Config{MaxBulkActions: 100}, testLogger(), repo)
	ctx := context.Background()

	require.NoError(t, s.OnMessage(ctx, testMessage(7)))
	require.NoError(t, s.OnMessage(ctx, testMessage(7)))
	result := s.Flush(ctx)

	require.True(t, result.Ok())
	assert.Equal(t, 2, result.Acked)
	assert.Len(t, repo.docs, 1)
}

func TestDocumentSink_ThresholdTriggersFlush(t *testing.T) {
	repo := newFakeDocumentRepository()
	s := NewDocumentSink(Config{MaxBulkActions: 2}, testLogger(), repo)
	ctx := context.Background()

	require.NoError(t, s.OnMessage(ctx, testMessage(1)))
	assert.Equal(t, 0, repo.upsertCalls)

	require.NoError(t, s.OnMessage(ctx, testMessage(2)))
	assert.Equal(t, 1, repo.upsertCalls)
	assert.Len(t, repo.docs, 2)
}

func TestDocumentSink_StickyError(t *testing.T) {
	repo := newFakeDocumentRepository()
	s := NewDocumentSink(Config{MaxBulkActions: 100}, testLogger(), repo)
	ctx := context.Background()

	require.NoError(t, s.OnMessage(ctx, testMessage(1)))
	repo.failNext = errors.New("store unavailable")
	result := s.Flush(ctx)
	require.False(t, result.Ok())

	// Writes are dropped while the error is sticky.
	require.NoError(t, s.OnMessage(ctx, testMessage(2)))
	result = s.Flush(ctx)
	require.False(t, result.Ok())
	assert.ErrorIs(t, result.Err, mailstash_errors.ErrSinkStickyError)
	assert.Empty(t, repo.docs)

	// ClearError reopens the sink.
	s.ClearError()
	require.NoError(t, s.OnMessage(ctx, testMessage(3)))
	result = s.Flush(ctx)
	require.True(t, result.Ok())
	assert.Equal(t, 1, result.Acked)
	assert.Len(t, repo.docs, 1)
}

func TestDocumentSink_QueriesFlushFirst(t *testing.T) {
	repo := newFakeDocumentRepository()
	s := NewDocumentSink(Config{MaxBulkActions: 100}, testLogger(), repo)
	ctx := context.Background()

	require.NoError(t, s.OnMessage(ctx, testMessage(42)))

	uids, err := s.GetCurrentlyStoredMessageUids(ctx, "INBOX", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, uids)
}

func TestDocumentSink_GetFlagHashSentinel(t *testing.T) {
	repo := newFakeDocumentRepository()
	s := NewDocumentSink(Config{}, testLogger(), repo)

	hash, err := s.GetFlagHash(context.Background(), "99::imap://u@h:993/INBOX")

	require.NoError(t, err)
	assert.Equal(t, int64(-1), hash)
}

func TestDocumentSink_CloseFlushesBuffer(t *testing.T) {
	repo := newFakeDocumentRepository()
	s := NewDocumentSink(Config{MaxBulkActions: 100}, testLogger(), repo)
	ctx := context.Background()

	require.NoError(t, s.OnMessage(ctx, testMessage(5)))
	require.NoError(t, s.Close(ctx))

	assert.Len(t, repo.docs, 1)

	// Closed sink drops writes silently.
	require.NoError(t, s.OnMessage(ctx, testMessage(6)))
	assert.Len(t, repo.docs, 1)
}

func TestDocumentSink_StartupReadinessTimeout(t *testing.T) {
	repo := newFakeDocumentRepository()
	repo.failSchema = errors.New("schema not ready")
	s := NewDocumentSink(Config{ReadinessTimeout: 10 * time.Millisecond}, testLogger(), repo)

	err := s.Startup(context.Background())

	assert.ErrorIs(t, err, mailstash_errors.ErrReadinessTimeout)
}

func TestDocumentSink_StartupIdempotent(t *testing.T) {
	repo := newFakeDocumentRepository()
	s := NewDocumentSink(Config{FlushInterval: time.Hour}, testLogger(), repo)
	ctx := context.Background()

	require.NoError(t, s.Startup(ctx))
	require.NoError(t, s.Startup(ctx))
	require.NoError(t, s.Close(ctx))
}

func TestShapeDocument_FromRawMessage(t *testing.T) {
	raw := "From: alice@example.com\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: raw subject\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"body text\r\n"

	msg := &models.MailMessage{
		UID:        3,
		FolderName: "INBOX",
		FolderURL:  "imap://u@h:993/INBOX",
		Flags:      []string{`\Seen`},
		RawBody:    []byte(raw),
	}

	doc := ShapeDocument(msg)

	assert.Equal(t, "3::imap://u@h:993/INBOX", doc.ID)
	assert.Equal(t, "raw subject", doc.Subject)
	assert.Equal(t, "alice@example.com", doc.Sender)
	assert.Contains(t, doc.TextContent, "body text")
	assert.NotEqual(t, int64(-1), doc.FlagHash)
}
