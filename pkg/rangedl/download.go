// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package rangedl

import (
	"context"
	"errors"
	"sync/atomic"
)

var taskIDSeq uint64

// NextTaskID returns a process-unique, monotonically increasing task ID.
// Callers that already track their own IDs (e.g. an outer manager) are
// free to ignore it.
func NextTaskID() uint64 {
	return atomic.AddUint64(&taskIDSeq, 1)
}

// Download runs task to completion and returns the finished task together
// with an error when ErrorText was set. It is the blocking convenience
// wrapper around Dispatch for callers that don't need to observe Reply
// directly.
func Download(ctx context.Context, task RequestTask, opts Options, progress ProgressFunc) (RequestTask, error) {
	result := Dispatch(ctx, task, opts, progress).Wait()
	if result.ErrorText != "" {
		return result, errors.New(result.ErrorText)
	}
	return result, nil
}

// Run is an alias for Download kept for callers migrating from the
// single-shot style of API; it has identical semantics.
func Run(ctx context.Context, task RequestTask, opts Options, progress ProgressFunc) (RequestTask, error) {
	return Download(ctx, task, opts, progress)
}
