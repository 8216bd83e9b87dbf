package fetch

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/models"
)

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

type recordingStateStore struct {
	mu       sync.Mutex
	recorded []string
}

func (s *recordingStateStore) GetState(ctx context.Context, folderURL string) (*models.FolderSyncState, error) {
	return &models.FolderSyncState{FolderURL: folderURL, LastUID: 1, Exists: true}, nil
}

func (s *recordingStateStore) SaveState(ctx context.Context, state *models.FolderSyncState) error {
	return nil
}

func (s *recordingStateStore) RecordError(ctx context.Context, errContext, folderURL, messageID string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, errContext)
}

type sliceFetcherFunc func(ctx context.Context, slice Slice) (SliceOutcome, error)

func (f sliceFetcherFunc) FetchSlice(ctx context.Context, slice Slice) (SliceOutcome, error) {
	return f(ctx, slice)
}

func TestScheduler_AggregatesMaxAndSum(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()
	store := &recordingStateStore{}
	scheduler := NewScheduler(testLogger(), pool, store)

	slices := PartitionSlices(1, 30, 3)
	fetcher := sliceFetcherFunc(func(ctx context.Context, slice Slice) (SliceOutcome, error) {
		return SliceOutcome{
			HighestUID:     slice.End,
			ProcessedCount: int64(slice.Count()),
		}, nil
	})

	result, err := scheduler.Run(context.Background(), "imap://u@h:993/INBOX", slices, fetcher)

	require.NoError(t, err)
	assert.Equal(t, uint32(30), result.HighestUID)
	assert.Equal(t, int64(30), result.ProcessedCount)
	assert.Equal(t, 0, result.FailedSlices)
	assert.GreaterOrEqual(t, result.Took.Nanoseconds(), int64(0))
}

func TestScheduler_FailedSliceDoesNotPoisonCycle(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()
	store := &recordingStateStore{}
	scheduler := NewScheduler(testLogger(), pool, store)

	slices := PartitionSlices(1, 30, 3)
	fetcher := sliceFetcherFunc(func(ctx context.Context, slice Slice) (SliceOutcome, error) {
		if slice.Start == 11 {
			return SliceOutcome{}, errors.New("connection dropped")
		}
		return SliceOutcome{
			HighestUID:     slice.End,
			ProcessedCount: int64(slice.Count()),
		}, nil
	})

	result, err := scheduler.Run(context.Background(), "imap://u@h:993/INBOX", slices, fetcher)

	require.NoError(t, err)
	assert.Equal(t, 1, result.FailedSlices)
	// The two good slices still count.
	assert.Equal(t, int64(20), result.ProcessedCount)
	assert.Equal(t, uint32(30), result.HighestUID)
	assert.Equal(t, []string{"slice_fetch"}, store.recorded)
}

func TestScheduler_EmptySliceList(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()
	scheduler := NewScheduler(testLogger(), pool, &recordingStateStore{})

	result, err := scheduler.Run(context.Background(), "imap://u@h:993/INBOX", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(0), result.ProcessedCount)
	assert.Equal(t, uint32(0), result.HighestUID)
}

func TestScheduler_PoolClosedAborts(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	scheduler := NewScheduler(testLogger(), pool, &recordingStateStore{})

	slices := PartitionSlices(1, 10, 2)
	fetcher := sliceFetcherFunc(func(ctx context.Context, slice Slice) (SliceOutcome, error) {
		return SliceOutcome{}, nil
	})

	_, err := scheduler.Run(context.Background(), "imap://u@h:993/INBOX", slices, fetcher)

	assert.ErrorIs(t, err, ErrPoolClosed)
}
