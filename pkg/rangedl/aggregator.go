// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package rangedl

// aggregator folds per-segment (received, total) snapshots into one
// monotonic (received, total) pair for the whole task.
//
// When the upstream size is known upfront (a successful HEAD probe), the
// aggregate total is seeded once from that size and never recomputed
// from per-segment totals — matching the source's onGetFileSizeFinished
// path, which sets m_bytesTotal = m_nFileSize directly. Only when the
// size is unknown upfront does the aggregate total accumulate
// incrementally from each segment's own reported total, mirroring the
// source's single-stream onSubPartDownloadProgress fallback.
//
// It is not safe for concurrent use; the orchestrator owns one instance
// per in-flight task and only ever touches it from its single event loop
// goroutine.
type aggregator struct {
	perSegment        []segmentTotals
	aggRecv           int64
	aggTotal          int64
	totalKnownUpfront bool
	aborted           bool
}

type segmentTotals struct {
	received int64
	total    int64
	known    bool
}

// newAggregator creates an aggregator for the given segment count. When
// size > 0 (the upstream Content-Length was known upfront), aggTotal is
// seeded from it immediately and held fixed.
func newAggregator(segments int, size int64) *aggregator {
	a := &aggregator{perSegment: make([]segmentTotals, segments)}
	if size > 0 {
		a.aggTotal = size
		a.totalKnownUpfront = true
	}
	return a
}

// abort disables further emission; any update after abort is dropped.
func (a *aggregator) abort() { a.aborted = true }

// update folds one segment's latest (received, total) snapshot into the
// aggregate and reports whether the caller should emit a "progress"
// ProgressEvent for (received, total).
//
// Emission rules:
//   - dropped while aborted
//   - dropped unless the aggregate total is known (>0)
//   - dropped unless this update advanced the aggregate received bytes
func (a *aggregator) update(index int, received, total int64) (recv, tot int64, emit bool) {
	if a.aborted {
		return a.aggRecv, a.aggTotal, false
	}
	if index < 0 || index >= len(a.perSegment) {
		return a.aggRecv, a.aggTotal, false
	}

	prev := a.perSegment[index]
	delta := received - prev.received
	if delta < 0 {
		delta = 0
	}

	next := prev
	next.received = received
	if total > 0 {
		if !a.totalKnownUpfront {
			if !prev.known {
				a.aggTotal += total
			} else if total != prev.total {
				a.aggTotal += total - prev.total
			}
		}
		next.total = total
		next.known = true
	}
	a.perSegment[index] = next

	if delta > 0 {
		a.aggRecv += delta
	}

	if a.aggTotal > 0 && delta > 0 {
		return a.aggRecv, a.aggTotal, true
	}
	return a.aggRecv, a.aggTotal, false
}
