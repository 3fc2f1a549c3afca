package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrLoopClosed is returned by [Loop.Execute] once the loop has stopped.
	ErrLoopClosed = errors.New("view loop closed")

	// ErrLoopBusy is returned by [Loop.Execute] when the task buffer is full.
	ErrLoopBusy = errors.New("view loop busy")
)

// DefaultLoopBuffer is the task buffer used when none is configured.
const DefaultLoopBuffer = 64

// Loop runs tasks one at a time on a single goroutine owned by a view.
// Its Execute method satisfies broadcast.Executor.
type Loop struct {
	tasks  chan func()
	done   chan struct{}
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewLoop starts a loop that runs until ctx is cancelled.
func NewLoop(ctx context.Context, buffer int, logger *slog.Logger) *Loop {
	if buffer <= 0 {
		buffer = DefaultLoopBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		tasks:  make(chan func(), buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	l.wg.Add(1)
	go l.run(ctx)
	return l
}

// Execute queues task without waiting for it to run.
func (l *Loop) Execute(task func()) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}
	select {
	case <-l.done:
		return ErrLoopClosed
	case l.tasks <- task:
		return nil
	default:
		return ErrLoopBusy
	}
}

// Wait blocks until the loop has stopped.
func (l *Loop) Wait() {
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-l.tasks:
			l.safeRun(task)
		}
	}
}

func (l *Loop) safeRun(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("view task panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	task()
}
