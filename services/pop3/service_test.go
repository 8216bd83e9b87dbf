package pop3

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailstash/mailstash/interfaces"
	mailstash_errors "github.com/mailstash/mailstash/internal/errors"
	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/models"
)

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

// fakeServer is the mailbox content shared by all dialed sessions. uids[i] is
// the UID of message number i+1.
type fakeServer struct {
	mu   sync.Mutex
	uids []string
}

func (s *fakeServer) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uids...)
}

type fakePopFactory struct {
	server *fakeServer
	dials  int64
}

func (f *fakePopFactory) FolderURL() string {
	return "pop3://test@example.com:995/INBOX"
}

func (f *fakePopFactory) Dial(ctx context.Context) (Session, error) {
	atomic.AddInt64(&f.dials, 1)
	return &fakePopSession{server: f.server, folderURL: f.FolderURL()}, nil
}

func (f *fakePopFactory) Close() error { return nil }

type fakePopSession struct {
	server    *fakeServer
	folderURL string
}

func (s *fakePopSession) FolderURL() string { return s.folderURL }

func (s *fakePopSession) MessageCount() uint32 {
	return uint32(len(s.server.snapshot()))
}

func (s *fakePopSession) UIDMap(ctx context.Context) (map[string]uint32, error) {
	uidMap := map[string]uint32{}
	for i, uid := range s.server.snapshot() {
		uidMap[uid] = uint32(i + 1)
	}
	return uidMap, nil
}

func (s *fakePopSession) FetchMessage(ctx context.Context, msgNum uint32) (*models.MailMessage, error) {
	uids := s.server.snapshot()
	if msgNum < 1 || msgNum > uint32(len(uids)) {
		return nil, fmt.Errorf("no message %d", msgNum)
	}
	return &models.MailMessage{
		SeqNum:     msgNum,
		FolderName: FolderName,
		FolderURL:  s.folderURL,
		Subject:    "message " + uids[msgNum-1],
	}, nil
}

func (s *fakePopSession) Close() error { return nil }

type fakeSink struct {
	mu      sync.Mutex
	docs    map[string]*models.MailDocument
	upserts map[string]int
}

func newFakeSink() *fakeSink {
	return &fakeSink{docs: map[string]*models.MailDocument{}, upserts: map[string]int{}}
}

func (s *fakeSink) Startup(ctx context.Context) error { return nil }

func (s *fakeSink) OnMessage(ctx context.Context, msg *models.MailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := msg.DocumentID()
	s.docs[id] = &models.MailDocument{
		ID:         id,
		FolderName: msg.FolderName,
		PopID:      msg.PopID,
	}
	s.upserts[id]++
	return nil
}

func (s *fakeSink) OnMessageDeletes(ctx context.Context, uids []string, folderName string, isPopStyleKey bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uid := range uids {
		for id, doc := range s.docs {
			if doc.FolderName == folderName && doc.PopID == uid {
				delete(s.docs, id)
			}
		}
	}
	return nil
}

func (s *fakeSink) ClearDataForFolder(ctx context.Context, folderName string) error { return nil }

func (s *fakeSink) GetCurrentlyStoredMessageUids(ctx context.Context, folderName string, isPopStyleKey bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var uids []string
	for _, doc := range s.docs {
		if doc.FolderName == folderName {
			uids = append(uids, doc.PopID)
		}
	}
	return uids, nil
}

func (s *fakeSink) GetFlagHash(ctx context.Context, docID string) (int64, error) { return -1, nil }
func (s *fakeSink) GetFolderNames(ctx context.Context) ([]string, error)         { return nil, nil }
func (s *fakeSink) Flush(ctx context.Context) interfaces.FlushResult             { return interfaces.FlushResult{} }
func (s *fakeSink) ClearError()                                                  {}
func (s *fakeSink) InFlightRequests() int64                                      { return 0 }
func (s *fakeSink) Close(ctx context.Context) error                              { return nil }

type fakeStateStore struct {
	mu     sync.Mutex
	states map[string]*models.FolderSyncState
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: map[string]*models.FolderSyncState{}}
}

func (s *fakeStateStore) GetState(ctx context.Context, folderURL string) (*models.FolderSyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[folderURL]; ok {
		clone := *state
		return &clone, nil
	}
	return &models.FolderSyncState{FolderURL: folderURL, LastUID: 1, Exists: true}, nil
}

func (s *fakeStateStore) SaveState(ctx context.Context, state *models.FolderSyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *state
	s.states[state.FolderURL] = &clone
	return nil
}

func (s *fakeStateStore) RecordError(ctx context.Context, errContext, folderURL, messageID string, cause error) {
}

func newTestService(t *testing.T, cfg EngineConfig, factory SessionFactory, snk interfaces.Sink, store interfaces.StateStore) *POP3Service {
	t.Helper()
	service := NewPOP3Service(cfg, testLogger(), factory, snk, store)
	t.Cleanup(func() { service.Close() })
	return service
}

func TestPOP3Service_InitialSyncFetchesAll(t *testing.T) {
	server := &fakeServer{uids: []string{"a", "b", "c", "d"}}
	factory := &fakePopFactory{server: server}
	snk := newFakeSink()
	store := newFakeStateStore()
	service := newTestService(t, EngineConfig{Threads: 2}, factory, snk, store)

	require.NoError(t, service.Fetch(context.Background(), nil))

	assert.Len(t, snk.docs, 4)
	state := store.states[factory.FolderURL()]
	require.NotNil(t, state)
	assert.Equal(t, int64(4), state.LastCount)
	assert.Nil(t, state.UIDValidity)
}

func TestPOP3Service_BoundaryInferredFromOverlap(t *testing.T) {
	server := &fakeServer{uids: []string{"a", "b", "c", "d"}}
	factory := &fakePopFactory{server: server}
	snk := newFakeSink()
	store := newFakeStateStore()
	service := newTestService(t, EngineConfig{Threads: 1}, factory, snk, store)
	ctx := context.Background()

	// Pretend a previous run indexed the first two messages.
	require.NoError(t, snk.OnMessage(ctx, &models.MailMessage{
		PopID: "a", FolderName: FolderName, FolderURL: factory.FolderURL(),
	}))
	require.NoError(t, snk.OnMessage(ctx, &models.MailMessage{
		PopID: "b", FolderName: FolderName, FolderURL: factory.FolderURL(),
	}))

	require.NoError(t, service.FetchFolder(ctx, FolderName))

	// The boundary is message number 2 ("b"); it is refetched, "a" is not.
	assert.Len(t, snk.docs, 4)
	idA := fmt.Sprintf("a::%s", factory.FolderURL())
	idB := fmt.Sprintf("b::%s", factory.FolderURL())
	assert.Equal(t, 1, snk.upserts[idA])
	assert.Equal(t, 2, snk.upserts[idB])
	assert.Equal(t, int64(3), store.states[factory.FolderURL()].LastCount)
}

func TestPOP3Service_RepeatCycleIsIdempotent(t *testing.T) {
	server := &fakeServer{uids: []string{"a", "b", "c"}}
	factory := &fakePopFactory{server: server}
	snk := newFakeSink()
	store := newFakeStateStore()
	service := newTestService(t, EngineConfig{Threads: 2}, factory, snk, store)
	ctx := context.Background()

	require.NoError(t, service.FetchFolder(ctx, FolderName))
	require.NoError(t, service.FetchFolder(ctx, FolderName))

	assert.Len(t, snk.docs, 3)
}

func TestPOP3Service_ExpungeDetection(t *testing.T) {
	server := &fakeServer{uids: []string{"a", "b", "c"}}
	factory := &fakePopFactory{server: server}
	snk := newFakeSink()
	store := newFakeStateStore()
	service := newTestService(t, EngineConfig{Threads: 1, DeleteExpunged: true}, factory, snk, store)
	ctx := context.Background()

	require.NoError(t, service.FetchFolder(ctx, FolderName))
	require.Len(t, snk.docs, 3)

	// "b" disappears from the server.
	server.mu.Lock()
	server.uids = []string{"a", "c"}
	server.mu.Unlock()

	require.NoError(t, service.FetchFolder(ctx, FolderName))

	assert.Len(t, snk.docs, 2)
	for _, doc := range snk.docs {
		assert.NotEqual(t, "b", doc.PopID)
	}
}

func TestPOP3Service_UnknownFolder(t *testing.T) {
	factory := &fakePopFactory{server: &fakeServer{}}
	service := newTestService(t, EngineConfig{Threads: 1}, factory, newFakeSink(), newFakeStateStore())

	err := service.FetchFolder(context.Background(), "Archive")

	assert.ErrorIs(t, err, mailstash_errors.ErrFolderNotFound)
}

func TestPOP3Service_PatternSkipsNonMatching(t *testing.T) {
	server := &fakeServer{uids: []string{"a"}}
	factory := &fakePopFactory{server: server}
	snk := newFakeSink()
	service := newTestService(t, EngineConfig{Threads: 1}, factory, snk, newFakeStateStore())

	require.NoError(t, service.Fetch(context.Background(), regexp.MustCompile("^Archive$")))

	assert.Empty(t, snk.docs)
}
