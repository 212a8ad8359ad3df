// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package rangedl

import "time"

// Kind identifies what a RequestTask asks the engine to do.
//
// Only KindDownload and KindMTDownload are implemented by this engine; the
// others are degenerate specializations of the same orchestrator left to
// an external collaborator (see doc.go).
type Kind string

const (
	KindDownload   Kind = "download"
	KindMTDownload Kind = "mtdownload"
	KindUpload     Kind = "upload"
	KindGet        Kind = "get"
	KindPost       Kind = "post"
	KindPut        Kind = "put"
	KindDelete     Kind = "delete"
	KindHead       Kind = "head"
)

// RequestTask is an immutable descriptor of one job handed to the engine.
//
// ID uniquely identifies the task across its lifetime. BatchID optionally
// groups tasks for aggregated reporting by an outer manager; it has no
// effect on a single task's semantics.
type RequestTask struct {
	ID      uint64
	BatchID uint64 // 0 = none

	Kind Kind
	URL  string

	SaveDir      string
	SaveFileName string // if empty, derived from the final URL's path component

	// ThreadCount is the desired parallelism for MTDownload; clamped to
	// [1, MaxThreadCount] by the orchestrator.
	ThreadCount int

	// MultiThreadOptIn selects the MT path when Kind == KindDownload.
	// KindMTDownload always uses it regardless of this flag.
	MultiThreadOptIn bool

	ShowProgress bool

	Headers map[string]string
	Body    []byte

	// ErrorText carries the resolved error text after a failed
	// requestFinished; empty on success. Set only by the engine.
	ErrorText string
}

// effectiveMTDownload reports whether task may be split into parallel
// segments; when it is false the orchestrator downloads it as a single
// segment.
func (t RequestTask) effectiveMTDownload() bool {
	return t.Kind == KindMTDownload || (t.Kind == KindDownload && t.MultiThreadOptIn)
}

// SegmentStatus is the lifecycle state of one SegmentWorker.
type SegmentStatus int

const (
	SegmentIdle SegmentStatus = iota
	SegmentActive
	SegmentRedirecting
	SegmentSucceeded
	SegmentFailed
	SegmentAborted
)

func (s SegmentStatus) String() string {
	switch s {
	case SegmentIdle:
		return "idle"
	case SegmentActive:
		return "active"
	case SegmentRedirecting:
		return "redirecting"
	case SegmentSucceeded:
		return "succeeded"
	case SegmentFailed:
		return "failed"
	case SegmentAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// SegmentPlan describes one contiguous byte range of the destination file.
//
// Start=0, End=-1 means "unbounded, omit the Range header" — used when the
// size is unknown (<= 0). A single segment of a known size is bounded.
type SegmentPlan struct {
	Index int
	Start int64
	End   int64 // inclusive; -1 means unbounded
}

// Unbounded reports whether this segment has no upper bound (single-stream
// unknown-size mode).
func (p SegmentPlan) Unbounded() bool { return p.End < 0 }

// Size returns the planned byte length of a bounded segment, or -1 if
// unbounded.
func (p SegmentPlan) Size() int64 {
	if p.Unbounded() {
		return -1
	}
	return p.End - p.Start + 1
}

// planSegments computes the SegmentPlan for size S split into n pieces:
// start_i = floor(S*i/n), end_i = floor(S*(i+1)/n) - 1.
//
// If size <= 0, n is forced to 1 and the single segment is unbounded.
// If size < n, n is reduced to size so that no segment is empty.
func planSegments(size int64, n int) []SegmentPlan {
	if size <= 0 {
		return []SegmentPlan{{Index: 0, Start: 0, End: -1}}
	}
	if n < 1 {
		n = 1
	}
	if int64(n) > size {
		n = int(size)
	}
	plans := make([]SegmentPlan, n)
	for i := 0; i < n; i++ {
		start := size * int64(i) / int64(n)
		end := size*int64(i+1)/int64(n) - 1
		plans[i] = SegmentPlan{Index: i, Start: start, End: end}
	}
	return plans
}

// SegmentState is the mutable, worker-owned state of one range download.
type SegmentState struct {
	Index         int
	Start         int64
	End           int64
	WrittenBytes  int64
	BytesReceived int64
	BytesTotal    int64
	Status        SegmentStatus
}

// ProgressEvent is a single aggregated or diagnostic update emitted by the
// engine through a ProgressFunc.
type ProgressEvent struct {
	Time time.Time `json:"time"`

	// Level is "debug", "info", "warn" or "error"; empty means "info".
	Level string `json:"level,omitempty"`

	// Event names the kind of update: "progress", "segment_start",
	// "segment_progress", "segment_done", "headers", "finished".
	Event string `json:"event"`

	TaskID  uint64 `json:"taskId"`
	BatchID uint64 `json:"batchId,omitempty"`

	Segment int `json:"segment,omitempty"`

	Received int64 `json:"received,omitempty"`
	Total    int64 `json:"total,omitempty"`

	Message string `json:"message,omitempty"`
}

// ProgressFunc receives ProgressEvents. Within one task it is called only
// from the orchestrator's goroutine, one event at a time (see
// orchestrator.go); a ProgressFunc shared by several tasks may be called
// concurrently by them.
type ProgressFunc func(ProgressEvent)

// Options configures orchestrator-wide behavior not carried per-task.
type Options struct {
	// MaxThreadCount clamps RequestTask.ThreadCount to [1, MaxThreadCount].
	MaxThreadCount int

	// MaxRedirects bounds redirect chains followed by the HTTP facade.
	// Default 5.
	MaxRedirects int

	// InsecureSkipVerify mirrors the source's permissive TLS posture.
	// Defaults to true to match source intent; callers that need strict
	// verification should set it false.
	InsecureSkipVerify bool
}

// DefaultOptions returns the engine defaults. A zero Options gets the same
// MaxThreadCount and MaxRedirects from withDefaults but keeps
// InsecureSkipVerify false.
func DefaultOptions() Options {
	return Options{
		MaxThreadCount:     10,
		MaxRedirects:       5,
		InsecureSkipVerify: true,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxThreadCount <= 0 {
		o.MaxThreadCount = 10
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = 5
	}
	return o
}

const minThreadCount = 1

// clampThreadCount enforces the [1, max] clamp on a requested thread count.
func clampThreadCount(n, max int) int {
	if n < minThreadCount {
		return minThreadCount
	}
	if n > max {
		return max
	}
	return n
}
