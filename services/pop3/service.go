package pop3

import (
	"context"
	"regexp"

	"github.com/opentracing/opentracing-go"

	"github.com/mailstash/mailstash/interfaces"
	mailstash_errors "github.com/mailstash/mailstash/internal/errors"
	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/tracing"
	"github.com/mailstash/mailstash/internal/utils"
	"github.com/mailstash/mailstash/services/fetch"
)

type EngineConfig struct {
	Threads        int
	DeleteExpunged bool
}

// POP3Service is the MailSource for one POP3 account. POP3 exposes a single
// folder, has no UIDVALIDITY and no stable message numbers across sessions;
// the already-indexed boundary is inferred each cycle from the overlap of the
// stored UID set with the server's UIDL listing.
type POP3Service struct {
	log       logger.Logger
	cfg       EngineConfig
	factory   SessionFactory
	sink      interfaces.Sink
	store     interfaces.StateStore
	pool      *fetch.WorkerPool
	scheduler *fetch.Scheduler
}

func NewPOP3Service(cfg EngineConfig, log logger.Logger, factory SessionFactory, sink interfaces.Sink, store interfaces.StateStore) *POP3Service {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	pool := fetch.NewWorkerPool(cfg.Threads)
	return &POP3Service{
		log:       log,
		cfg:       cfg,
		factory:   factory,
		sink:      sink,
		store:     store,
		pool:      pool,
		scheduler: fetch.NewScheduler(log, pool, store),
	}
}

func (s *POP3Service) Fetch(ctx context.Context, pattern *regexp.Regexp) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "POP3Service.Fetch")
	defer span.Finish()
	tracing.TagComponentService(span)

	if pattern != nil && !pattern.MatchString(FolderName) {
		return nil
	}
	return s.FetchFolder(ctx, FolderName)
}

func (s *POP3Service) FetchFolder(ctx context.Context, folderName string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "POP3Service.FetchFolder")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagFolder(span, folderName)

	if s.pool.Closed() {
		return mailstash_errors.ErrSourceClosed
	}
	if folderName != FolderName {
		return mailstash_errors.ErrFolderNotFound
	}

	if err := s.sink.Startup(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	session, err := s.factory.Dial(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	defer session.Close()

	state, err := s.store.GetState(ctx, s.factory.FolderURL())
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	state.LastSchedule = utils.NowPtr()
	state.Exists = true

	uidMap, err := session.UIDMap(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	stored, err := s.sink.GetCurrentlyStoredMessageUids(ctx, FolderName, true)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	// The highest message number whose UID we already hold is the fetch
	// boundary. Refetching the boundary message is fine, delivery is
	// idempotent by key.
	highestMsgNum := uint32(1)
	for _, uid := range stored {
		if n, ok := uidMap[uid]; ok && n > highestMsgNum {
			highestMsgNum = n
		}
	}
	span.SetTag("boundary.msgnum", highestMsgNum)

	uidByNum := make(map[uint32]string, len(uidMap))
	for uid, n := range uidMap {
		uidByNum[n] = uid
	}

	slices := fetch.PartitionSlices(highestMsgNum, session.MessageCount(), s.cfg.Threads)
	fetcher := newSliceFetcher(s.log, s.factory, s.sink, s.store, uidByNum)
	result, err := s.scheduler.Run(ctx, s.factory.FolderURL(), slices, fetcher)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if s.cfg.DeleteExpunged {
		var expunged []string
		for _, uid := range stored {
			if _, ok := uidMap[uid]; !ok {
				expunged = append(expunged, uid)
			}
		}
		if len(expunged) > 0 {
			span.SetTag("expunged.count", len(expunged))
			if err := s.sink.OnMessageDeletes(ctx, expunged, FolderName, true); err != nil {
				s.log.Warnf("Expunge deletion failed for %s: %v", FolderName, err)
				s.store.RecordError(ctx, "expunge_detection", s.factory.FolderURL(), "", err)
			}
		}
	}

	state.LastIndexed = utils.NowPtr()
	state.LastTookMillis = result.Took.Milliseconds()
	state.LastCount = result.ProcessedCount

	if err := s.store.SaveState(ctx, state); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *POP3Service) Close() error {
	s.pool.Close()
	return s.factory.Close()
}
