// file: internal/tasks/network.go
// version: 1.1.0
// guid: 7b77fa1c-708b-4d3d-aa2a-d55e55288d61

// Package tasks implements network transfer tasks: a generic one-shot
// NetworkTask and the DownloadTask built on top of it.
package tasks

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// ReportFunc records how many bytes have moved so far and the expected total.
type ReportFunc func(transferred, total int64)

// RunFunc is the body of a network task.
type RunFunc func(ctx context.Context, report ReportFunc) error

// NetworkTask runs a single network operation at most once and signals its
// completion exactly once. Progress may be read from any goroutine.
type NetworkTask struct {
	name   string
	run    RunFunc
	ctx    context.Context
	cancel context.CancelFunc

	transferred atomic.Int64
	total       atomic.Int64
	started     atomic.Bool

	done chan struct{}
	once sync.Once
	err  error
}

// NewNetworkTask wraps run. name is only used for logging.
func NewNetworkTask(name string, run RunFunc) *NetworkTask {
	ctx, cancel := context.WithCancel(context.Background())
	return &NetworkTask{
		name:   name,
		run:    run,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the operation in its own goroutine. Calling Start on a task
// that was already started does nothing.
func (t *NetworkTask) Start() {
	if !t.started.CompareAndSwap(false, true) {
		log.Printf("[WARN] task %s: start requested twice, ignoring", t.name)
		return
	}
	go t.execute()
}

func (t *NetworkTask) execute() {
	var err error
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] task %s: panic: %v", t.name, r)
			err = &panicError{value: r}
		}
		t.finish(err)
	}()
	err = t.run(t.ctx, t.report)
}

// Cancel aborts the operation. The task still finishes through Done, as a
// failure unless run had already returned nil.
func (t *NetworkTask) Cancel() {
	t.cancel()
}

func (t *NetworkTask) report(transferred, total int64) {
	t.transferred.Store(transferred)
	t.total.Store(total)
}

func (t *NetworkTask) finish(err error) {
	t.once.Do(func() {
		t.err = err
		t.cancel()
		close(t.done)
	})
}

// Progress returns the latest reported byte counts.
func (t *NetworkTask) Progress() Progress {
	return Progress{
		Transferred: t.transferred.Load(),
		Total:       t.total.Load(),
	}
}

// Done is closed once the task has finished, successfully or not.
func (t *NetworkTask) Done() <-chan struct{} {
	return t.done
}

// Succeeded reports whether the task finished without error. It is false
// while the task is still running.
func (t *NetworkTask) Succeeded() bool {
	select {
	case <-t.done:
		return t.err == nil
	default:
		return false
	}
}

// Err returns the failure cause once Done is closed, nil before that.
func (t *NetworkTask) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.value)
}
