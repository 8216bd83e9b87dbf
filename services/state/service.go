package state

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/mailstash/mailstash/interfaces"
	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/models"
	"github.com/mailstash/mailstash/internal/tracing"
)

type stateStore struct {
	log    logger.Logger
	states interfaces.SyncStateRepository
	errors interfaces.SyncErrorRepository
}

func NewStateStore(log logger.Logger, states interfaces.SyncStateRepository, errors interfaces.SyncErrorRepository) interfaces.StateStore {
	return &stateStore{
		log:    log,
		states: states,
		errors: errors,
	}
}

func (s *stateStore) GetState(ctx context.Context, folderURL string) (*models.FolderSyncState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "stateStore.GetState")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagFolder(span, folderURL)

	return s.states.GetState(ctx, folderURL)
}

func (s *stateStore) SaveState(ctx context.Context, state *models.FolderSyncState) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "stateStore.SaveState")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagFolder(span, state.FolderURL)
	tracing.LogObjectAsJson(span, "state", state)

	return s.states.SaveState(ctx, state)
}

// RecordError is best-effort. A failed write to the error log must never fail
// the sync cycle that reported it.
func (s *stateStore) RecordError(ctx context.Context, errContext, folderURL, messageID string, cause error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "stateStore.RecordError")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagFolder(span, folderURL)

	if cause == nil {
		return
	}

	record := &models.SyncError{
		Context:   errContext,
		FolderURL: folderURL,
		MessageID: messageID,
		Error:     cause.Error(),
	}

	if err := s.errors.Record(ctx, record); err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("Failed to record sync error (%s, folder %s): %v", errContext, folderURL, err)
	}
}
