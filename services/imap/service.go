package imap

import (
	"context"
	"regexp"

	"github.com/opentracing/opentracing-go"

	"github.com/mailstash/mailstash/interfaces"
	mailstash_errors "github.com/mailstash/mailstash/internal/errors"
	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/tracing"
	"github.com/mailstash/mailstash/services/fetch"
)

// IMAPService is the MailSource for one IMAP account. It owns the account's
// worker pool, which is reused across poll cycles until Close.
type IMAPService struct {
	log     logger.Logger
	cfg     EngineConfig
	factory SessionFactory
	sink    interfaces.Sink
	store   interfaces.StateStore
	pool    *fetch.WorkerPool
	engine  *Engine
}

func NewIMAPService(cfg EngineConfig, log logger.Logger, factory SessionFactory, sink interfaces.Sink, store interfaces.StateStore) *IMAPService {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	pool := fetch.NewWorkerPool(cfg.Threads)
	scheduler := fetch.NewScheduler(log, pool, store)
	return &IMAPService{
		log:     log,
		cfg:     cfg,
		factory: factory,
		sink:    sink,
		store:   store,
		pool:    pool,
		engine:  NewEngine(cfg, log, store, sink, scheduler, factory),
	}
}

// Fetch runs one full walk: stale-folder cleanup, then one sync cycle per
// eligible folder. Per-folder failures are logged and do not abort the walk.
func (s *IMAPService) Fetch(ctx context.Context, pattern *regexp.Regexp) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPService.Fetch")
	defer span.Finish()
	tracing.TagComponentService(span)

	if s.pool.Closed() {
		return mailstash_errors.ErrSourceClosed
	}

	if err := s.sink.Startup(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	folders, err := s.factory.ListFolders(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.SetTag("folders.count", len(folders))

	s.cleanupStaleFolders(ctx, folders)

	for _, folder := range folders {
		if s.pool.Closed() {
			s.log.Infof("Worker pool closed, aborting walk")
			return mailstash_errors.ErrSourceClosed
		}
		if !folder.CanHoldMessages() {
			continue
		}
		if pattern != nil && !pattern.MatchString(folder.Name) {
			s.log.Debugf("Folder %s does not match pattern, skipping", folder.Name)
			continue
		}
		if err := s.engine.SyncFolder(ctx, folder.Name); err != nil {
			s.log.Errorf("Sync of folder %s failed: %v", folder.Name, err)
			s.store.RecordError(ctx, "folder_sync", s.factory.FolderURL(folder.Name), "", err)
		}
	}

	return nil
}

func (s *IMAPService) FetchFolder(ctx context.Context, folderName string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPService.FetchFolder")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagFolder(span, folderName)

	if s.pool.Closed() {
		return mailstash_errors.ErrSourceClosed
	}
	if err := s.sink.Startup(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return s.engine.SyncFolder(ctx, folderName)
}

// cleanupStaleFolders tombstones folders we track that no longer exist on the
// server. Failures are per-folder and never abort the walk.
func (s *IMAPService) cleanupStaleFolders(ctx context.Context, live []FolderInfo) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPService.cleanupStaleFolders")
	defer span.Finish()
	tracing.TagComponentService(span)

	liveNames := make(map[string]struct{}, len(live))
	for _, folder := range live {
		liveNames[folder.Name] = struct{}{}
	}

	tracked, err := s.sink.GetFolderNames(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("Failed to list tracked folders for cleanup: %v", err)
		return
	}

	for _, name := range tracked {
		if _, ok := liveNames[name]; ok {
			continue
		}
		s.log.Infof("Folder %s no longer exists on server, clearing", name)
		if err := s.sink.ClearDataForFolder(ctx, name); err != nil {
			s.log.Errorf("Failed to clear removed folder %s: %v", name, err)
			s.store.RecordError(ctx, "stale_folder_cleanup", s.factory.FolderURL(name), "", err)
			continue
		}
		state, err := s.store.GetState(ctx, s.factory.FolderURL(name))
		if err != nil {
			s.log.Errorf("Failed to load state of removed folder %s: %v", name, err)
			continue
		}
		state.Exists = false
		if err := s.store.SaveState(ctx, state); err != nil {
			s.log.Errorf("Failed to mark folder %s as removed: %v", name, err)
		}
	}
}

// Close shuts the worker pool down. In-flight slices finish; subsequent walks
// abort early.
func (s *IMAPService) Close() error {
	s.pool.Close()
	return s.factory.Close()
}
