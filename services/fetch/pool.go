package fetch

import (
	"sync"

	"github.com/pkg/errors"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// WorkerPool is a fixed-size pool reused across sync cycles. Submitting after
// Close returns ErrPoolClosed instead of blocking, so a shutdown mid-cycle
// aborts the cycle cleanly.
type WorkerPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	p := &WorkerPool{
		tasks: make(chan func()),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit blocks until a worker accepts the task. The mutex is held across the
// send so Close never races the channel close against an in-progress Submit.
func (p *WorkerPool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.tasks <- task
	return nil
}

func (p *WorkerPool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close stops accepting work and waits for in-flight tasks to finish.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.tasks)
	p.wg.Wait()
}
