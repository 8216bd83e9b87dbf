package pop3

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/mailstash/mailstash/interfaces"
	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/tracing"
	"github.com/mailstash/mailstash/services/fetch"
)

// sliceFetcher retrieves one message-number slice over its own connection.
// uidByNum is the UIDL snapshot taken at cycle start; a message number with
// no known UID is skipped (it appeared mid-cycle and the next cycle owns it).
type sliceFetcher struct {
	log      logger.Logger
	factory  SessionFactory
	sink     interfaces.Sink
	store    interfaces.StateStore
	uidByNum map[uint32]string
}

func newSliceFetcher(log logger.Logger, factory SessionFactory, sink interfaces.Sink, store interfaces.StateStore, uidByNum map[uint32]string) *sliceFetcher {
	return &sliceFetcher{
		log:      log,
		factory:  factory,
		sink:     sink,
		store:    store,
		uidByNum: uidByNum,
	}
}

func (f *sliceFetcher) FetchSlice(ctx context.Context, slice fetch.Slice) (fetch.SliceOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sliceFetcher.FetchSlice")
	defer span.Finish()
	tracing.TagFolder(span, FolderName)
	span.SetTag("slice.start", slice.Start)
	span.SetTag("slice.end", slice.End)

	outcome := fetch.SliceOutcome{}

	session, err := f.factory.Dial(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return outcome, err
	}
	defer session.Close()

	for n := slice.Start; n <= slice.End; n++ {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		popID, ok := f.uidByNum[n]
		if !ok {
			continue
		}
		msg, err := session.FetchMessage(ctx, n)
		if err != nil {
			f.log.Warnf("Failed to fetch message %d, skipping: %v", n, err)
			f.store.RecordError(ctx, "message_fetch", session.FolderURL(), popID, err)
			continue
		}
		msg.PopID = popID
		if err := f.sink.OnMessage(ctx, msg); err != nil {
			f.log.Warnf("Failed to deliver message %s, skipping: %v", msg.DocumentID(), err)
			f.store.RecordError(ctx, "message_delivery", msg.FolderURL, msg.DocumentID(), err)
			continue
		}
		outcome.ProcessedCount++
	}

	span.SetTag("processed.count", outcome.ProcessedCount)
	return outcome, nil
}
