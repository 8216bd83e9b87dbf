package imap

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/mailstash/mailstash/interfaces"
	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/models"
	"github.com/mailstash/mailstash/internal/tracing"
	"github.com/mailstash/mailstash/services/fetch"
)

// sliceFetcher fetches one sequence-number slice of a folder over its own
// connection. A message that fails to deliver is recorded and skipped; the
// slice carries on.
type sliceFetcher struct {
	log     logger.Logger
	factory SessionFactory
	folder  string
	sink    interfaces.Sink
	store   interfaces.StateStore
}

func newSliceFetcher(log logger.Logger, factory SessionFactory, folder string, sink interfaces.Sink, store interfaces.StateStore) *sliceFetcher {
	return &sliceFetcher{
		log:     log,
		factory: factory,
		folder:  folder,
		sink:    sink,
		store:   store,
	}
}

func (f *sliceFetcher) FetchSlice(ctx context.Context, slice fetch.Slice) (fetch.SliceOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sliceFetcher.FetchSlice")
	defer span.Finish()
	tracing.TagFolder(span, f.folder)
	span.SetTag("slice.start", slice.Start)
	span.SetTag("slice.end", slice.End)

	outcome := fetch.SliceOutcome{}

	session, err := f.factory.DialFolder(ctx, f.folder)
	if err != nil {
		tracing.TraceErr(span, err)
		return outcome, err
	}
	defer session.Close()

	err = session.FetchRange(ctx, slice.Start, slice.End, func(msg *models.MailMessage) error {
		if deliverErr := f.sink.OnMessage(ctx, msg); deliverErr != nil {
			f.log.Warnf("Failed to deliver message %s, skipping: %v", msg.DocumentID(), deliverErr)
			f.store.RecordError(ctx, "message_delivery", msg.FolderURL, msg.DocumentID(), deliverErr)
			return nil
		}
		if msg.UID > outcome.HighestUID {
			outcome.HighestUID = msg.UID
		}
		outcome.ProcessedCount++
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		// Partial progress counts; the watermark only advances over what was
		// actually delivered.
		return outcome, err
	}

	span.SetTag("processed.count", outcome.ProcessedCount)
	return outcome, nil
}
