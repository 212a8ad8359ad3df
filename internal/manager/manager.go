// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package manager routes submitted download requests to the rangedl
// engine, tracks their lifecycle, and fans updates out to subscribers
// (a REST poller or a websocket hub).
package manager

import (
	"context"
	"sync"
	"time"

	"rangedl/pkg/rangedl"
)

// Status is the externally visible lifecycle state of a Job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is one tracked download, wrapping the rangedl.RequestTask it was
// created from.
type Job struct {
	ID      uint64 `json:"id"`
	BatchID uint64 `json:"batchId,omitempty"`

	URL     string `json:"url"`
	SaveDir string `json:"saveDir"`

	Status    Status     `json:"status"`
	Received  int64      `json:"received"`
	Total     int64      `json:"total"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	// Segments tracks the last known state of each range worker, keyed
	// by segment index. A REST poller gets the full picture here; a
	// websocket subscriber gets the same detail as individual
	// SegmentEvents via SubscribeSegments.
	Segments map[int]*SegmentState `json:"segments,omitempty"`

	cancel context.CancelFunc
}

// SegmentState is the last known state of one range worker.
type SegmentState struct {
	Index    int    `json:"index"`
	Received int64  `json:"received"`
	Total    int64  `json:"total"`
	Status   string `json:"status"` // active, succeeded, failed
}

// SegmentEvent is a single segment-level update, fired once per
// segment_start/segment_progress/segment_done event the engine reports.
// It gives a websocket subscriber the same per-segment granularity the
// terminal renderer gets, without waiting for a job-level snapshot.
type SegmentEvent struct {
	JobID uint64 `json:"jobId"`
	SegmentState
}

// Request is the input to Submit.
type Request struct {
	URL              string
	SaveDir          string
	SaveFileName     string
	ThreadCount      int
	MultiThreadOptIn bool
	Headers          map[string]string
	BatchID          uint64
}

// Manager owns the set of in-flight and finished jobs and the engine
// options applied to all of them.
type Manager struct {
	mu   sync.RWMutex
	jobs map[uint64]*Job

	listenerMu sync.RWMutex
	listeners  []chan *Job

	segListenerMu sync.RWMutex
	segListeners  []chan SegmentEvent

	opts rangedl.Options
}

// New creates a Manager that dispatches every submitted job with opts.
func New(opts rangedl.Options) *Manager {
	return &Manager{
		jobs: make(map[uint64]*Job),
		opts: opts,
	}
}

// Submit creates and starts a job, returning it immediately in
// StatusQueued. The caller observes progress via Subscribe.
func (m *Manager) Submit(req Request) *Job {
	task := rangedl.RequestTask{
		ID:               rangedl.NextTaskID(),
		BatchID:          req.BatchID,
		Kind:             rangedl.KindDownload,
		URL:              req.URL,
		SaveDir:          req.SaveDir,
		SaveFileName:     req.SaveFileName,
		ThreadCount:      req.ThreadCount,
		MultiThreadOptIn: req.MultiThreadOptIn,
		ShowProgress:     true,
		Headers:          req.Headers,
	}

	job := &Job{
		ID:        task.ID,
		BatchID:   task.BatchID,
		URL:       task.URL,
		SaveDir:   task.SaveDir,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.run(job, task)

	return job
}

// Get looks up a job by ID.
func (m *Manager) Get(id uint64) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}

// List returns a snapshot of all tracked jobs.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out
}

// Cancel aborts a queued or running job. It reports whether a job with
// that ID was found in a cancellable state.
func (m *Manager) Cancel(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || (job.Status != StatusQueued && job.Status != StatusRunning) {
		return false
	}
	if job.cancel != nil {
		job.cancel()
	}
	return true
}

// Subscribe registers a channel that receives every job update. The
// caller must call Unsubscribe to release it.
func (m *Manager) Subscribe() chan *Job {
	ch := make(chan *Job, 100)
	m.listenerMu.Lock()
	m.listeners = append(m.listeners, ch)
	m.listenerMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (m *Manager) Unsubscribe(ch chan *Job) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	for i, l := range m.listeners {
		if l == ch {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *Manager) notify(job *Job) {
	m.listenerMu.RLock()
	defer m.listenerMu.RUnlock()
	for _, ch := range m.listeners {
		select {
		case ch <- job:
		default:
		}
	}
}

// SubscribeSegments registers a channel that receives one SegmentEvent
// per range worker update, across every job. The caller must call
// UnsubscribeSegments to release it.
func (m *Manager) SubscribeSegments() chan SegmentEvent {
	ch := make(chan SegmentEvent, 200)
	m.segListenerMu.Lock()
	m.segListeners = append(m.segListeners, ch)
	m.segListenerMu.Unlock()
	return ch
}

// UnsubscribeSegments removes and closes a channel returned by
// SubscribeSegments.
func (m *Manager) UnsubscribeSegments(ch chan SegmentEvent) {
	m.segListenerMu.Lock()
	defer m.segListenerMu.Unlock()
	for i, l := range m.segListeners {
		if l == ch {
			m.segListeners = append(m.segListeners[:i], m.segListeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *Manager) notifySegment(ev SegmentEvent) {
	m.segListenerMu.RLock()
	defer m.segListenerMu.RUnlock()
	for _, ch := range m.segListeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *Manager) run(job *Job, task rangedl.RequestTask) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	job.cancel = cancel
	job.Status = StatusRunning
	now := time.Now()
	job.StartedAt = &now
	m.mu.Unlock()
	m.notify(job)

	progressFunc := func(ev rangedl.ProgressEvent) {
		switch ev.Event {
		case "progress":
			m.mu.Lock()
			job.Received = ev.Received
			job.Total = ev.Total
			m.mu.Unlock()
			m.notify(job)
		case "segment_start", "segment_progress", "segment_done":
			status := "active"
			if ev.Event == "segment_done" {
				status = "succeeded"
				if ev.Level == "error" {
					status = "failed"
				}
			}
			m.mu.Lock()
			if job.Segments == nil {
				job.Segments = make(map[int]*SegmentState)
			}
			seg, ok := job.Segments[ev.Segment]
			if !ok {
				seg = &SegmentState{Index: ev.Segment}
				job.Segments[ev.Segment] = seg
			}
			if ev.Received > 0 {
				seg.Received = ev.Received
			}
			if ev.Total > 0 {
				seg.Total = ev.Total
			}
			seg.Status = status
			segCopy := *seg
			m.mu.Unlock()
			m.notifySegment(SegmentEvent{JobID: job.ID, SegmentState: segCopy})
		}
	}

	result, err := rangedl.Download(ctx, task, m.opts, progressFunc)

	m.mu.Lock()
	end := time.Now()
	job.EndedAt = &end
	switch {
	case ctx.Err() != nil:
		job.Status = StatusCancelled
	case err != nil:
		job.Status = StatusFailed
		job.Error = result.ErrorText
	default:
		job.Status = StatusCompleted
	}
	m.mu.Unlock()
	m.notify(job)
}
