package router

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/meshbus-go/internal/telemetry"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

// Queue is a serial FIFO executor: every task runs on one goroutine, one at
// a time, in scheduling order.
type Queue struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

// NewQueue starts a serial executor.
func NewQueue(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		logger: logger,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Schedule appends task to the queue. Tasks scheduled after Close are dropped.
func (q *Queue) Schedule(task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
}

// After schedules task once d has elapsed.
func (q *Queue) After(d time.Duration, task func()) network.Timer {
	return time.AfterFunc(d, func() {
		q.Schedule(task)
	})
}

// Close stops accepting tasks, runs the ones already queued and waits for the
// loop to exit. It must not be called from a task.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	<-q.done
	return nil
}

func (q *Queue) loop() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		runTask(q.logger, task)
	}
}

// Goroutines runs every task on its own goroutine.
type Goroutines struct {
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewGoroutines creates a concurrent executor.
func NewGoroutines(logger *slog.Logger) *Goroutines {
	if logger == nil {
		logger = slog.Default()
	}
	return &Goroutines{logger: logger}
}

// Schedule starts task on a new goroutine.
func (g *Goroutines) Schedule(task func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		runTask(g.logger, task)
	}()
}

// After starts task on a new goroutine once d has elapsed.
func (g *Goroutines) After(d time.Duration, task func()) network.Timer {
	return time.AfterFunc(d, func() {
		g.Schedule(task)
	})
}

// Close waits for running tasks.
func (g *Goroutines) Close() error {
	g.wg.Wait()
	return nil
}

func runTask(logger *slog.Logger, task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("task panicked", telemetry.LabelError.L(rec))
		}
	}()
	task()
}
