package cron

import (
	"context"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailstash/mailstash/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type countingSource struct {
	fetches int64
	block   chan struct{}
}

func (s *countingSource) Fetch(ctx context.Context, pattern *regexp.Regexp) error {
	atomic.AddInt64(&s.fetches, 1)
	if s.block != nil {
		<-s.block
	}
	return nil
}

func (s *countingSource) FetchFolder(ctx context.Context, folderName string) error { return nil }
func (s *countingSource) Close() error                                             { return nil }

func TestNewCronManager(t *testing.T) {
	cm := NewCronManager(getLogger())

	assert.NotNil(t, cm)
	assert.NotNil(t, cm.jobIDs)
	assert.NotNil(t, cm.locks)
}

func TestCronManager_RegisterAndStart(t *testing.T) {
	cm := NewCronManager(getLogger())
	source := &countingSource{}

	err := cm.Register(Account{Name: "alice", Source: source}, "@every 1h")
	require.NoError(t, err)
	assert.Contains(t, cm.jobIDs, "alice")

	cm.Start()
	cm.Stop()
}

func TestCronManager_RegisterInvalidSpec(t *testing.T) {
	cm := NewCronManager(getLogger())

	err := cm.Register(Account{Name: "alice", Source: &countingSource{}}, "not a cron spec")

	assert.Error(t, err)
}

func TestCronManager_RunOnce(t *testing.T) {
	cm := NewCronManager(getLogger())
	first := &countingSource{}
	second := &countingSource{}

	cm.RunOnce(context.Background(), []Account{
		{Name: "alice", Source: first},
		{Name: "bob", Source: second},
	})

	assert.Equal(t, int64(1), atomic.LoadInt64(&first.fetches))
	assert.Equal(t, int64(1), atomic.LoadInt64(&second.fetches))
}

func TestCronManager_SingleFlightPerAccount(t *testing.T) {
	cm := NewCronManager(getLogger())
	source := &countingSource{block: make(chan struct{})}
	account := Account{Name: "alice", Source: source}

	lock := cm.accountLock(account.Name)
	done := make(chan struct{})
	go func() {
		lock.Lock()
		cm.runCycle(context.Background(), account)
		lock.Unlock()
		close(done)
	}()

	// Wait until the first cycle is inside Fetch.
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&source.fetches) == 1
	}, time.Second, time.Millisecond)

	// A second cycle for the same account must wait for the lock.
	acquired := make(chan struct{})
	go func() {
		lock.Lock()
		lock.Unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second cycle started while the first was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(source.block)
	<-done
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second cycle never ran after the first finished")
	}
}
