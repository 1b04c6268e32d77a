package cloudvm

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Task is one unit of work executed by the WorkerPool.
type Task func()

// WorkerPool runs submitted tasks on a fixed number of goroutines that share one FIFO queue.
//
// The queue is guarded by a single mutex and condition variable. Workers wait until the
// queue is non-empty or the pool is shut down, dequeue exactly one task and run it outside
// the lock. A panicking task is recovered and logged; the worker keeps serving.
//
// Shutdown stops accepting new work but drains whatever was queued before it was called,
// so a task is either rejected by Submit or run to completion, never dropped.
type WorkerPool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool

	size      int
	active    int
	completed uint64

	wg     sync.WaitGroup
	once   sync.Once
	logger *slog.Logger
}

// NewWorkerPool starts n workers. It returns ErrInvalidPoolSize when n is not positive.
// A nil logger uses slog.Default().
func NewWorkerPool(n int, logger *slog.Logger) (*WorkerPool, error) {
	if n <= 0 {
		return nil, ErrInvalidPoolSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &WorkerPool{
		size:   n,
		logger: logger,
	}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.work(i)
	}
	return p, nil
}

// Submit enqueues a task. After Shutdown has been called it returns ErrPoolClosed and the
// task is not run.
func (p *WorkerPool) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("submit: nil task")
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

// Shutdown rejects further submissions, lets the workers finish every queued task, and
// waits for them to exit. Calling it more than once is safe; later calls wait as well.
func (p *WorkerPool) Shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.cond.Broadcast()
	})
	p.wg.Wait()
}

func (p *WorkerPool) work(id int) {
	defer p.wg.Done()
	p.logger.Debug("worker online", "worker", id)
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			p.logger.Debug("worker shutdown", "worker", id)
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.active++
		p.mu.Unlock()

		p.run(id, task)

		p.mu.Lock()
		p.active--
		p.completed++
		p.mu.Unlock()
	}
}

func (p *WorkerPool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				"worker", id,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	task()
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.size
}

// Pending returns the number of queued tasks no worker has picked up yet.
func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Active returns the number of tasks currently running.
func (p *WorkerPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Completed returns the number of tasks that have finished, including ones that panicked.
func (p *WorkerPool) Completed() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}

// Closed reports whether Shutdown has been called.
func (p *WorkerPool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
