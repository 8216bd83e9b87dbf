package imap

import (
	"context"
	"fmt"
	"strconv"

	"github.com/opentracing/opentracing-go"

	"github.com/mailstash/mailstash/interfaces"
	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/models"
	"github.com/mailstash/mailstash/internal/tracing"
	"github.com/mailstash/mailstash/internal/utils"
	"github.com/mailstash/mailstash/services/fetch"
)

type EngineConfig struct {
	Threads        int
	WithFlagSync   bool
	DeleteExpunged bool
}

// Engine runs one folder's sync cycle: full resync when the UID epoch
// changed, otherwise flag sync, new-message fetch and expunge detection.
// Cycles for the same folder never overlap; the walker serializes them.
type Engine struct {
	cfg       EngineConfig
	log       logger.Logger
	store     interfaces.StateStore
	sink      interfaces.Sink
	scheduler *fetch.Scheduler
	factory   SessionFactory
}

func NewEngine(cfg EngineConfig, log logger.Logger, store interfaces.StateStore, sink interfaces.Sink, scheduler *fetch.Scheduler, factory SessionFactory) *Engine {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	return &Engine{
		cfg:       cfg,
		log:       log,
		store:     store,
		sink:      sink,
		scheduler: scheduler,
		factory:   factory,
	}
}

func (e *Engine) SyncFolder(ctx context.Context, folderName string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Engine.SyncFolder")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagFolder(span, folderName)

	session, err := e.factory.DialFolder(ctx, folderName)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	defer session.Close()

	state, err := e.store.GetState(ctx, session.FolderURL())
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	state.LastSchedule = utils.NowPtr()
	state.Exists = true

	serverValidity := session.UIDValidity()
	fullResync := state.UIDValidity == nil || *state.UIDValidity != serverValidity

	if fullResync {
		err = e.fullResync(ctx, session, state, serverValidity)
	} else {
		err = e.incremental(ctx, session, state)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if err := e.store.SaveState(ctx, state); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// fullResync refetches the whole folder. A prior UID epoch means every stored
// document id is stale, so the folder is tombstoned first.
func (e *Engine) fullResync(ctx context.Context, session FolderSession, state *models.FolderSyncState, serverValidity int64) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Engine.fullResync")
	defer span.Finish()
	tracing.TagFolder(span, session.Name())
	span.SetTag("uidvalidity.server", serverValidity)

	if state.UIDValidity != nil {
		e.log.Infof("UIDVALIDITY changed for %s (%d -> %d), clearing folder", session.Name(), *state.UIDValidity, serverValidity)
		if err := e.sink.ClearDataForFolder(ctx, session.Name()); err != nil {
			return fmt.Errorf("failed to clear folder before resync: %w", err)
		}
	}

	messageCount := session.Messages()
	result, err := e.runScheduler(ctx, session, 1, messageCount)
	if err != nil {
		return err
	}

	state.UIDValidity = utils.Int64Ptr(serverValidity)
	state.LastUID = int64(result.HighestUID)
	if state.LastUID < 1 {
		state.LastUID = 1
	}
	e.finishCycle(state, result)
	return nil
}

func (e *Engine) incremental(ctx context.Context, session FolderSession, state *models.FolderSyncState) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Engine.incremental")
	defer span.Finish()
	tracing.TagFolder(span, session.Name())
	span.SetTag("last.uid", state.LastUID)

	lastUidBefore := state.LastUID

	if e.cfg.WithFlagSync {
		if err := e.syncFlags(ctx, session); err != nil {
			// Flag sync is advisory; a failure here never blocks new mail.
			e.log.Warnf("Flag sync failed for %s: %v", session.Name(), err)
			e.store.RecordError(ctx, "flag_sync", session.FolderURL(), "", err)
		}
	}

	newUids, err := session.UIDSearchSince(ctx, state.LastUID)
	if err != nil {
		return err
	}
	// Some servers include the boundary message in a UID range search even
	// though its UID is not greater than the watermark. Drop it, it is
	// already indexed.
	if n := len(newUids); n > 0 && int64(newUids[n-1]) <= state.LastUID {
		newUids = newUids[:n-1]
	}

	result := fetch.SliceResult{}
	if len(newUids) > 0 {
		firstSeq, err := session.SeqNumOfUID(ctx, newUids[0])
		if err != nil {
			return err
		}
		result, err = e.runScheduler(ctx, session, firstSeq, session.Messages())
		if err != nil {
			return err
		}
		if result.ProcessedCount > 0 && int64(result.HighestUID) > state.LastUID {
			state.LastUID = int64(result.HighestUID)
		}
	}

	if e.cfg.DeleteExpunged {
		if err := e.deleteExpunged(ctx, session, lastUidBefore); err != nil {
			e.log.Warnf("Expunge detection failed for %s: %v", session.Name(), err)
			e.store.RecordError(ctx, "expunge_detection", session.FolderURL(), "", err)
		}
	}

	e.finishCycle(state, result)
	return nil
}

// syncFlags re-pushes messages whose flag hash differs from the stored one.
// Unindexed messages (sentinel -1) are skipped; the new-message pass owns
// them.
func (e *Engine) syncFlags(ctx context.Context, session FolderSession) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Engine.syncFlags")
	defer span.Finish()
	tracing.TagFolder(span, session.Name())

	var changed []uint32
	err := session.FetchFlags(ctx, func(uid uint32, flags []string) error {
		docID := fmt.Sprintf("%d::%s", uid, session.FolderURL())
		stored, err := e.sink.GetFlagHash(ctx, docID)
		if err != nil {
			return err
		}
		if stored == -1 {
			return nil
		}
		if utils.FlagHash(flags) != stored {
			changed = append(changed, uid)
		}
		return nil
	})
	if err != nil {
		return err
	}

	span.SetTag("changed.count", len(changed))
	for _, uid := range changed {
		err := session.FetchByUID(ctx, uid, func(msg *models.MailMessage) error {
			return e.sink.OnMessage(ctx, msg)
		})
		if err != nil {
			e.store.RecordError(ctx, "flag_update", session.FolderURL(), strconv.FormatUint(uint64(uid), 10), err)
		}
	}
	return nil
}

// deleteExpunged removes documents whose UID is no longer present on the
// server within the already-synced range [1, lastUidBefore].
func (e *Engine) deleteExpunged(ctx context.Context, session FolderSession, lastUidBefore int64) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Engine.deleteExpunged")
	defer span.Finish()
	tracing.TagFolder(span, session.Name())

	serverUids, err := session.UIDsInRange(ctx, 1, lastUidBefore)
	if err != nil {
		return err
	}
	onServer := make(map[string]struct{}, len(serverUids))
	for _, uid := range serverUids {
		onServer[strconv.FormatUint(uint64(uid), 10)] = struct{}{}
	}

	stored, err := e.sink.GetCurrentlyStoredMessageUids(ctx, session.Name(), false)
	if err != nil {
		return err
	}

	var expunged []string
	for _, uid := range stored {
		n, err := strconv.ParseInt(uid, 10, 64)
		if err != nil || n > lastUidBefore {
			// Out of the checked range; newly indexed this cycle.
			continue
		}
		if _, ok := onServer[uid]; !ok {
			expunged = append(expunged, uid)
		}
	}

	span.SetTag("expunged.count", len(expunged))
	if len(expunged) == 0 {
		return nil
	}
	return e.sink.OnMessageDeletes(ctx, expunged, session.Name(), false)
}

func (e *Engine) runScheduler(ctx context.Context, session FolderSession, start, end uint32) (fetch.SliceResult, error) {
	slices := fetch.PartitionSlices(start, end, e.cfg.Threads)
	fetcher := newSliceFetcher(e.log, e.factory, session.Name(), e.sink, e.store)
	return e.scheduler.Run(ctx, session.FolderURL(), slices, fetcher)
}

func (e *Engine) finishCycle(state *models.FolderSyncState, result fetch.SliceResult) {
	state.LastIndexed = utils.NowPtr()
	state.LastTookMillis = result.Took.Milliseconds()
	state.LastCount = result.ProcessedCount
}
