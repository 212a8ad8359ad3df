// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package rangedl

import (
	"context"
	"sync"
)

// Reply is a single-shot result slot. Exactly one RequestTask is ever
// delivered on it, mirroring the source's single-shot-then-destroy
// NetworkReply.
type Reply struct {
	once sync.Once
	ch   chan RequestTask
}

func newReply() *Reply {
	return &Reply{ch: make(chan RequestTask, 1)}
}

func (r *Reply) send(task RequestTask) {
	r.once.Do(func() {
		r.ch <- task
		close(r.ch)
	})
}

// Wait blocks until the task reaches its terminal state and returns it.
// Calling Wait more than once is safe; only the first call gets the task,
// later calls read the now-closed channel and return the zero RequestTask.
func (r *Reply) Wait() RequestTask {
	task, ok := <-r.ch
	if !ok {
		// channel already drained by an earlier Wait; nothing further to
		// report, return the zero value rather than block forever.
		return RequestTask{}
	}
	return task
}

// Dispatch routes a RequestTask to the range-parallel download
// orchestrator when its Kind is implemented here, or immediately fails
// it with ErrUnsupportedKind otherwise, and returns a Reply the caller
// waits on.
//
// Dispatch never blocks; the task runs on its own goroutine and reports
// through the returned Reply exactly once.
func Dispatch(ctx context.Context, task RequestTask, opts Options, progress ProgressFunc) *Reply {
	reply := newReply()

	if task.Kind != KindDownload && task.Kind != KindMTDownload {
		task.ErrorText = ErrUnsupportedKind.Error()
		reply.send(task)
		return reply
	}

	go func() {
		reply.send(runMTDownload(ctx, task, opts, progress))
	}()
	return reply
}
