package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrQueueFull = errors.New("worker queue full")
	ErrClosed    = errors.New("worker pool closed")
)

// Task is one unit of background work. Tasks are never cancelled; the context
// only carries values.
type Task func(ctx context.Context) (any, error)

// Handle tracks a submitted task until it finishes.
type Handle struct {
	id    string
	name  string
	done  chan struct{}
	value any
	err   error
}

func (h *Handle) ID() string   { return h.id }
func (h *Handle) Name() string { return h.name }

// Done is closed once the task has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task finishes and returns its outcome.
func (h *Handle) Wait() (any, error) {
	<-h.done
	return h.value, h.err
}

// Pool is a fixed-size worker pool with a bounded queue (strict back-pressure).
type Pool struct {
	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

type job struct {
	task   Task
	handle *Handle
}

// New creates a worker pool. Size defaults to NumCPU when size<=0, queue to 1 when queue<=0.
func New(size, queue int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = 1
	}
	p := &Pool{jobs: make(chan job, queue)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				log.Printf("Worker: starting %s (%s)", j.handle.name, j.handle.id)
				j.handle.value, j.handle.err = run(j.task, j.handle.id)
				log.Printf("Worker: finished %s (%s), err=%v", j.handle.name, j.handle.id, j.handle.err)
				close(j.handle.done)
			}
		}()
	}
}

func run(task Task, id string) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(context.WithValue(context.Background(), taskIDKey{}, id))
}

type taskIDKey struct{}

// TaskID returns the handle ID of the task running with ctx, or "".
func TaskID(ctx context.Context) string {
	id, _ := ctx.Value(taskIDKey{}).(string)
	return id
}

// Submit enqueues task if there is room. It never blocks.
func (p *Pool) Submit(name string, task Task) (*Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}

	h := &Handle{id: uuid.NewString(), name: name, done: make(chan struct{})}
	select {
	case p.jobs <- job{task: task, handle: h}:
		return h, nil
	default:
		return nil, ErrQueueFull
	}
}

// Close stops the pool after draining queued work.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
