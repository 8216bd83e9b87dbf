package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailstash/mailstash/interfaces"
	mailstash_errors "github.com/mailstash/mailstash/internal/errors"
	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/models"
	"github.com/mailstash/mailstash/internal/tracing"
)

type Config struct {
	MaxBulkActions   int           `env:"SINK_MAX_BULK_ACTIONS" envDefault:"100"`
	FlushInterval    time.Duration `env:"SINK_FLUSH_INTERVAL" envDefault:"5s"`
	ReadinessTimeout time.Duration `env:"SINK_READINESS_TIMEOUT" envDefault:"30s"`
}

// DocumentSink buffers document writes and drains them in bulk, either when
// the buffer reaches MaxBulkActions or on the flush interval. A failed bulk
// write puts the sink into a sticky-error state: subsequent writes are dropped
// until ClearError is called, so one bad cycle cannot silently half-index a
// folder.
type DocumentSink struct {
	cfg  Config
	log  logger.Logger
	repo interfaces.DocumentRepository

	mu        sync.Mutex
	buffer    []*models.MailDocument
	stickyErr error
	started   bool
	closed    bool

	inFlight int64
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewDocumentSink(cfg Config, log logger.Logger, repo interfaces.DocumentRepository) *DocumentSink {
	if cfg.MaxBulkActions <= 0 {
		cfg.MaxBulkActions = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = 30 * time.Second
	}
	return &DocumentSink{
		cfg:  cfg,
		log:  log,
		repo: repo,
	}
}

// Startup waits for the store to become ready and starts the interval
// flusher. Idempotent.
func (s *DocumentSink) Startup(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DocumentSink.Startup")
	defer span.Finish()
	tracing.TagComponentSink(span)

	s.mu.Lock()
	if s.started && !s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	deadline := time.Now().Add(s.cfg.ReadinessTimeout)
	var lastErr error
	for {
		lastErr = s.repo.EnsureSchema(ctx)
		if lastErr == nil {
			break
		}
		if time.Now().After(deadline) {
			tracing.TraceErr(span, lastErr)
			return errors.Wrapf(mailstash_errors.ErrReadinessTimeout, "sink not ready after %s: %v", s.cfg.ReadinessTimeout, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}

	s.mu.Lock()
	s.started = true
	s.closed = false
	s.stickyErr = nil
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.flushLoop()

	return nil
}

func (s *DocumentSink) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			result := s.Flush(context.Background())
			if !result.Ok() {
				s.log.Errorf("Interval flush failed: %v", result.Err)
			}
		}
	}
}

// OnMessage shapes and buffers one document. Silently drops the message when
// the sink is closed or in the sticky-error state.
func (s *DocumentSink) OnMessage(ctx context.Context, msg *models.MailMessage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DocumentSink.OnMessage")
	defer span.Finish()
	tracing.TagComponentSink(span)
	tracing.TagFolder(span, msg.FolderName)

	doc := ShapeDocument(msg)

	s.mu.Lock()
	if s.closed || s.stickyErr != nil {
		s.mu.Unlock()
		s.log.Debugf("Sink not accepting writes, dropping message %s", doc.ID)
		return nil
	}
	s.buffer = append(s.buffer, doc)
	full := len(s.buffer) >= s.cfg.MaxBulkActions
	s.mu.Unlock()

	if full {
		if result := s.Flush(ctx); !result.Ok() {
			return result.Err
		}
	}
	return nil
}

func (s *DocumentSink) OnMessageDeletes(ctx context.Context, uids []string, folderName string, isPopStyleKey bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DocumentSink.OnMessageDeletes")
	defer span.Finish()
	tracing.TagComponentSink(span)
	tracing.TagFolder(span, folderName)
	span.SetTag("uids.count", len(uids))

	if result := s.Flush(ctx); !result.Ok() {
		return result.Err
	}
	if err := s.repo.DeleteByUids(ctx, folderName, uids, isPopStyleKey); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *DocumentSink) ClearDataForFolder(ctx context.Context, folderName string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DocumentSink.ClearDataForFolder")
	defer span.Finish()
	tracing.TagComponentSink(span)
	tracing.TagFolder(span, folderName)

	if result := s.Flush(ctx); !result.Ok() {
		return result.Err
	}
	if err := s.repo.ClearFolder(ctx, folderName); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// GetCurrentlyStoredMessageUids flushes first so buffered writes are visible
// to the query.
func (s *DocumentSink) GetCurrentlyStoredMessageUids(ctx context.Context, folderName string, isPopStyleKey bool) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DocumentSink.GetCurrentlyStoredMessageUids")
	defer span.Finish()
	tracing.TagComponentSink(span)
	tracing.TagFolder(span, folderName)

	if result := s.Flush(ctx); !result.Ok() {
		return nil, result.Err
	}
	return s.repo.StoredUids(ctx, folderName, isPopStyleKey)
}

func (s *DocumentSink) GetFlagHash(ctx context.Context, docID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DocumentSink.GetFlagHash")
	defer span.Finish()
	tracing.TagComponentSink(span)

	if result := s.Flush(ctx); !result.Ok() {
		return -1, result.Err
	}
	return s.repo.FlagHash(ctx, docID)
}

func (s *DocumentSink) GetFolderNames(ctx context.Context) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DocumentSink.GetFolderNames")
	defer span.Finish()
	tracing.TagComponentSink(span)

	if result := s.Flush(ctx); !result.Ok() {
		return nil, result.Err
	}
	return s.repo.FolderNames(ctx)
}

// Flush synchronously drains the buffer. On a failed bulk write the sink
// enters the sticky-error state and the buffered documents are discarded;
// re-fetch is safe because delivery is idempotent.
func (s *DocumentSink) Flush(ctx context.Context) interfaces.FlushResult {
	s.mu.Lock()
	if s.stickyErr != nil {
		err := s.stickyErr
		s.mu.Unlock()
		return interfaces.FlushResult{Err: errors.Wrap(mailstash_errors.ErrSinkStickyError, err.Error())}
	}
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return interfaces.FlushResult{}
	}
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	atomic.AddInt64(&s.inFlight, 1)
	acked, err := s.repo.UpsertBatch(ctx, batch)
	atomic.AddInt64(&s.inFlight, -1)

	if err != nil {
		s.mu.Lock()
		s.stickyErr = err
		s.mu.Unlock()
		s.log.Errorf("Bulk write of %d documents failed: %v", len(batch), err)
		return interfaces.FlushResult{Err: err}
	}

	return interfaces.FlushResult{Acked: acked}
}

// ClearError leaves the sticky-error state so writes are accepted again.
func (s *DocumentSink) ClearError() {
	s.mu.Lock()
	s.stickyErr = nil
	s.mu.Unlock()
}

func (s *DocumentSink) InFlightRequests() int64 {
	return atomic.LoadInt64(&s.inFlight)
}

// Close stops the interval flusher and drains what is left in the buffer.
func (s *DocumentSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stopCh := s.stopCh
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		s.wg.Wait()
	}

	result := s.Flush(ctx)
	return result.Err
}
