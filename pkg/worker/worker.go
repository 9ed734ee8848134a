package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/nimasrn/matatu-pay/pkg/logger"
)

var (
	ErrStopped   = errors.New("worker manager stopped")
	ErrNoHandler = errors.New("worker handler is not set")
)

type Handler[T any] func(workerIndex int, job T)

// WorkerManager is a fixed pool of goroutines draining a buffered job channel.
// Exit stops every worker after its current job; buffered jobs are dropped.
type WorkerManager[T any] struct {
	jobs    chan T
	size    int
	do      Handler[T]
	done    chan struct{}
	exit    sync.Once
	running atomic.Bool
	handled atomic.Int64
	wg      sync.WaitGroup
}

func NewWorkerManager[T any](bufferSize, numberOfWorkers int) *WorkerManager[T] {
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &WorkerManager[T]{
		jobs: make(chan T, bufferSize),
		size: numberOfWorkers,
		done: make(chan struct{}),
	}
}

func (w *WorkerManager[T]) GetUnreadCount() int64 {
	return int64(len(w.jobs))
}

// Handled is the number of jobs the workers have finished.
func (w *WorkerManager[T]) Handled() int64 {
	return w.handled.Load()
}

func (w *WorkerManager[T]) Size() int {
	return w.size
}

func (w *WorkerManager[T]) SetWorker(h Handler[T]) {
	w.do = h
}

// Enqueue waits for buffer space until ctx is done or the pool exits.
func (w *WorkerManager[T]) Enqueue(ctx context.Context, job T) error {
	select {
	case <-w.done:
		return ErrStopped
	default:
	}

	select {
	case w.jobs <- job:
		return nil
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the workers and blocks until Exit is called and every worker returned.
func (w *WorkerManager[T]) Start() error {
	if w.do == nil {
		return ErrNoHandler
	}
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("worker manager already started")
	}

	w.wg.Add(w.size)
	for i := 0; i < w.size; i++ {
		go w.loop(i)
	}
	w.wg.Wait()
	return ErrStopped
}

func (w *WorkerManager[T]) loop(index int) {
	defer w.wg.Done()
	for {
		select {
		case job := <-w.jobs:
			w.do(index, job)
			w.handled.Add(1)
		case <-w.done:
			return
		}
	}
}

func (w *WorkerManager[T]) Exit() {
	w.exit.Do(func() {
		logger.Info("Worker manager is shutting down", "workers", w.size, "unread", len(w.jobs))
		close(w.done)
	})
}
