package cron

import (
	"context"
	"regexp"
	"sync"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/mailstash/mailstash/interfaces"
	"github.com/mailstash/mailstash/internal/logger"
	"github.com/mailstash/mailstash/internal/tracing"
)

// Account is one registered mailbox with its poll trigger.
type Account struct {
	Name    string
	Source  interfaces.MailSource
	Pattern *regexp.Regexp
}

// CronManager triggers poll cycles. Each account runs single-flight: a new
// cycle never starts while the previous one for the same account is still
// running. Accounts run independently of each other.
type CronManager struct {
	log    logger.Logger
	cron   *cronv3.Cron
	jobIDs map[string]cronv3.EntryID

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCronManager(log logger.Logger) *CronManager {
	return &CronManager{
		log:    log,
		jobIDs: make(map[string]cronv3.EntryID),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (cm *CronManager) accountLock(name string) *sync.Mutex {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	lock, ok := cm.locks[name]
	if !ok {
		lock = new(sync.Mutex)
		cm.locks[name] = lock
	}
	return lock
}

// Register adds an account's poll job under the given cron spec. Must be
// called before Start.
func (cm *CronManager) Register(account Account, spec string) error {
	if cm.cron == nil {
		cm.initCron()
	}

	lock := cm.accountLock(account.Name)
	id, err := cm.cron.AddFunc(spec, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		lock.Lock()
		defer lock.Unlock()
		cm.runCycle(context.Background(), account)
	})
	if err != nil {
		return err
	}
	cm.jobIDs[account.Name] = id
	cm.log.Infof("Registered poll job for %s with spec: %s", account.Name, spec)
	return nil
}

func (cm *CronManager) initCron() {
	cm.cron = cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	)
}

func (cm *CronManager) Start() {
	if cm.cron == nil {
		cm.initCron()
	}
	cm.log.Info("Starting cron manager")
	cm.cron.Start()
}

// Stop stops the scheduler and waits for running cycles to finish.
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		<-ctx.Done()
	}
}

// RunOnce triggers one poll cycle for every registered account, sequentially.
func (cm *CronManager) RunOnce(ctx context.Context, accounts []Account) {
	for _, account := range accounts {
		lock := cm.accountLock(account.Name)
		lock.Lock()
		cm.runCycle(ctx, account)
		lock.Unlock()
	}
}

func (cm *CronManager) runCycle(ctx context.Context, account Account) {
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.runCycle")
	defer span.Finish()
	tracing.TagComponentCronJob(span)
	tracing.TagAccount(span, account.Name)

	cm.log.Infof("Starting poll cycle for %s", account.Name)
	if err := account.Source.Fetch(ctx, account.Pattern); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Poll cycle for %s failed: %v", account.Name, err)
		return
	}
	cm.log.Infof("Completed poll cycle for %s", account.Name)
}
