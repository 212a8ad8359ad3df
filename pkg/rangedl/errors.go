// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package rangedl

import (
	"errors"
	"fmt"
)

// Error kind sentinels; a TaskError always wraps exactly one of these.
var (
	// ErrConfiguration covers an empty save directory, an empty URL, or a
	// URL that is not absolute — failures surfaced before any network I/O.
	// An empty file name is not an error: one is derived from the URL.
	ErrConfiguration = errors.New("rangedl: configuration error")

	// ErrFilesystem covers mkdir/open/remove/pre-size failures.
	ErrFilesystem = errors.New("rangedl: filesystem error")

	// ErrTransport covers DNS/TCP/TLS/read errors from the HTTP facade.
	ErrTransport = errors.New("rangedl: transport error")

	// ErrProtocol covers a non-2xx final status (excluding handled
	// 301/302).
	ErrProtocol = errors.New("rangedl: protocol error")

	// ErrAborted is returned when a task is finalized after a user abort.
	ErrAborted = errors.New("rangedl: aborted")
)

// TaskError wraps one of the sentinel kinds above with task context. Its
// formatted string is what ends up in RequestTask.ErrorText.
type TaskError struct {
	Kind    error // one of Err* above
	TaskID  uint64
	Segment int // -1 when not segment-specific
	Err     error
}

func (e *TaskError) Error() string {
	if e.Segment >= 0 {
		return fmt.Sprintf("task %d segment %d: %v: %v", e.TaskID, e.Segment, e.Kind, e.Err)
	}
	return fmt.Sprintf("task %d: %v: %v", e.TaskID, e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Kind }

func newTaskErr(taskID uint64, kind error, segment int, err error) *TaskError {
	return &TaskError{Kind: kind, TaskID: taskID, Segment: segment, Err: err}
}

// ErrUnsupportedKind is returned by Dispatch for Kind values this engine
// does not implement — they are external-collaborator specializations
// (upload, get, post, put, delete, head).
var ErrUnsupportedKind = errors.New("rangedl: kind not implemented by this engine")

var (
	errEmptySaveDir = errors.New("save directory is empty")
	errEmptyURL     = errors.New("url is empty")
)
