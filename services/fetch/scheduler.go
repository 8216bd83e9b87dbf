package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/mailstash/mailstash/interfaces"
	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/tracing"
)

// SliceOutcome is what one worker reports for its slice.
type SliceOutcome struct {
	HighestUID     uint32
	ProcessedCount int64
}

// SliceResult aggregates all slice outcomes of one parallel fetch pass.
// HighestUID is the max over successful slices, ProcessedCount the sum, Took
// the wall-clock duration of the whole pass.
type SliceResult struct {
	HighestUID     uint32
	ProcessedCount int64
	Took           time.Duration
	FailedSlices   int
}

// SliceFetcher fetches the messages of one slice and delivers them to the
// sink.
type SliceFetcher interface {
	FetchSlice(ctx context.Context, slice Slice) (SliceOutcome, error)
}

// Scheduler fans slices out over the shared worker pool and joins the
// results. A failed slice is recorded and excluded from the aggregates; the
// remaining slices still count, and the excluded range is re-fetched on the
// next cycle because the watermark never advances past it.
type Scheduler struct {
	log   logger.Logger
	pool  *WorkerPool
	store interfaces.StateStore
}

func NewScheduler(log logger.Logger, pool *WorkerPool, store interfaces.StateStore) *Scheduler {
	return &Scheduler{
		log:   log,
		pool:  pool,
		store: store,
	}
}

func (s *Scheduler) Run(ctx context.Context, folderURL string, slices []Slice, fetcher SliceFetcher) (SliceResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Scheduler.Run")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagFolder(span, folderURL)
	span.SetTag("slices.count", len(slices))

	start := time.Now()
	result := SliceResult{}
	if len(slices) == 0 {
		return result, nil
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, slice := range slices {
		slice := slice
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			outcome, err := fetcher.FetchSlice(ctx, slice)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailedSlices++
				s.log.Errorf("Slice [%d,%d] of %s failed: %v", slice.Start, slice.End, folderURL, err)
				s.store.RecordError(ctx, "slice_fetch", folderURL, "", err)
				return
			}
			if outcome.HighestUID > result.HighestUID {
				result.HighestUID = outcome.HighestUID
			}
			result.ProcessedCount += outcome.ProcessedCount
		})
		if err != nil {
			wg.Done()
			tracing.TraceErr(span, err)
			wg.Wait()
			result.Took = time.Since(start)
			return result, err
		}
	}

	wg.Wait()
	result.Took = time.Since(start)
	span.SetTag("processed.count", result.ProcessedCount)
	span.SetTag("failed.slices", result.FailedSlices)
	return result, nil
}
