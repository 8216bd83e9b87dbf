package fetch

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_RunsSubmittedTasks(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&counter, 1)
		})
		assert.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, int64(20), atomic.LoadInt64(&counter))
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	err := pool.Submit(func() {})

	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.True(t, pool.Closed())
}

func TestWorkerPool_CloseWaitsForInFlight(t *testing.T) {
	pool := NewWorkerPool(1)

	var done int64
	release := make(chan struct{})
	err := pool.Submit(func() {
		<-release
		atomic.StoreInt64(&done, 1)
	})
	assert.NoError(t, err)

	go func() {
		close(release)
	}()
	pool.Close()

	assert.Equal(t, int64(1), atomic.LoadInt64(&done))
}

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	assert.True(t, pool.Closed())
}
