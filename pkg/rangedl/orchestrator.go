// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package rangedl

import (
	"context"
	"fmt"
	neturl "net/url"
	"time"
)

// resolveURL follows HEAD-level redirects up to opts.MaxRedirects and
// returns the final HeadResult together with the URL it applies to.
func resolveURL(ctx context.Context, c *client, startURL string, maxRedirects int) (HeadResult, string, error) {
	var last HeadResult
	effectiveURL, err := followRedirects(maxRedirects, func(url string) (bool, string, error) {
		hr, err := c.head(ctx, url)
		if err != nil {
			return false, "", err
		}
		last = hr
		if isRedirectStatus(hr.StatusCode) {
			return true, hr.RedirectURL, nil
		}
		return false, "", nil
	}, startURL)
	return last, effectiveURL, err
}

// runMTDownload executes the full range-parallel download algorithm for
// one RequestTask and returns the task with ErrorText populated on
// failure. It blocks until the task reaches a terminal state; the caller
// cancels ctx to abort.
func runMTDownload(ctx context.Context, task RequestTask, opts Options, progress ProgressFunc) RequestTask {
	opts = opts.withDefaults()
	c := newClient(opts)

	emit := func(ev ProgressEvent) {
		if progress == nil {
			return
		}
		ev.Time = time.Now()
		ev.TaskID = task.ID
		ev.BatchID = task.BatchID
		progress(ev)
	}

	if task.SaveDir == "" {
		return finalizeTask(task, emit, newTaskErr(task.ID, ErrConfiguration, -1, errEmptySaveDir))
	}
	if task.URL == "" {
		return finalizeTask(task, emit, newTaskErr(task.ID, ErrConfiguration, -1, errEmptyURL))
	}
	if u, err := neturl.Parse(task.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return finalizeTask(task, emit, newTaskErr(task.ID, ErrConfiguration, -1, fmt.Errorf("invalid url %q", task.URL)))
	}

	head, effectiveURL, err := resolveURL(ctx, c, task.URL, opts.MaxRedirects)
	if err != nil {
		kind := ErrTransport
		if ctx.Err() != nil {
			kind = ErrAborted
		}
		return finalizeTask(task, emit, newTaskErr(task.ID, kind, -1, err))
	}
	if !isSuccessStatus(head.StatusCode) {
		return finalizeTask(task, emit, newTaskErr(task.ID, ErrProtocol, -1, httpStatusError(head.StatusCode)))
	}

	if task.ShowProgress {
		emit(ProgressEvent{Event: "headers", Message: dumpHeaders(head.Header)})
	}

	size := head.ContentLength
	threadCount := 1
	if task.effectiveMTDownload() && size > 0 {
		threadCount = clampThreadCount(task.ThreadCount, opts.MaxThreadCount)
	}
	plans := planSegments(size, threadCount)

	fileName := deriveFileName(task.SaveFileName, effectiveURL)
	target, err := createFileTarget(task.SaveDir, fileName, size)
	if err != nil {
		return finalizeTask(task, emit, newTaskErr(task.ID, ErrFilesystem, -1, err))
	}

	segCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	progressCh := make(chan segmentProgress)
	finishedCh := make(chan segmentResult)

	for _, p := range plans {
		emit(ProgressEvent{Event: "segment_start", Segment: p.Index})
		go runSegment(segCtx, c, target, p, effectiveURL, opts.MaxRedirects, task.ShowProgress, progressCh, finishedCh)
	}

	agg := newAggregator(len(plans), size)
	remaining := len(plans)
	var firstFail *segmentResult

	for remaining > 0 {
		select {
		case pr := <-progressCh:
			emit(ProgressEvent{Event: "segment_progress", Segment: pr.Index, Received: pr.Received, Total: pr.Total})
			if recv, tot, ok := agg.update(pr.Index, pr.Received, pr.Total); ok {
				emit(ProgressEvent{Event: "progress", Received: recv, Total: tot})
			}
		case fr := <-finishedCh:
			remaining--
			if fr.OK {
				emit(ProgressEvent{Event: "segment_done", Segment: fr.Index})
				continue
			}
			emit(ProgressEvent{Event: "segment_done", Segment: fr.Index, Level: "error", Message: fr.Err.Error()})
			if firstFail == nil {
				frCopy := fr
				firstFail = &frCopy
				agg.abort()
				cancel()
			}
		}
	}

	if firstFail != nil {
		target.remove()
		kind := firstFail.Kind
		if ctx.Err() != nil {
			kind = ErrAborted
		}
		return finalizeTask(task, emit, newTaskErr(task.ID, kind, firstFail.Index, firstFail.Err))
	}

	return finalizeTask(task, emit, nil)
}

// finalizeTask emits exactly one "finished" event and returns task with
// ErrorText set from taskErr (empty on success).
func finalizeTask(task RequestTask, emit func(ProgressEvent), taskErr *TaskError) RequestTask {
	if taskErr == nil {
		emit(ProgressEvent{Event: "finished"})
		task.ErrorText = ""
		return task
	}
	emit(ProgressEvent{Event: "finished", Level: "error", Message: taskErr.Error()})
	task.ErrorText = taskErr.Error()
	return task
}
