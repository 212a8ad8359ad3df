// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package rangedl

import (
	"context"
	"io"
	"time"
)

// segmentProgress is one progress(index, received, total) event.
type segmentProgress struct {
	Index    int
	Received int64
	Total    int64
}

// segmentResult is one finished(index, ok, errorText) event.
type segmentResult struct {
	Index int
	OK    bool
	Kind  error // one of the Err* sentinels in errors.go; nil when OK
	Err   error
}

// segmentReader wraps the response body, counting bytes and emitting
// throttled segmentProgress events.
type segmentReader struct {
	r        io.Reader
	index    int
	total    int64
	received int64
	ch       chan<- segmentProgress
	last     time.Time
}

func (s *segmentReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.received += int64(n)
		if s.ch != nil && (time.Since(s.last) >= 100*time.Millisecond || err == io.EOF) {
			s.ch <- segmentProgress{Index: s.index, Received: s.received, Total: s.total}
			s.last = time.Now()
		}
	}
	return n, err
}

// runSegment downloads one SegmentPlan: open the file at its offset, GET
// the range (or an unbounded plain GET), follow redirects up to
// maxRedirects by re-opening the file handle and restarting, stream
// chunks sequentially, and emit exactly one segmentResult on finishedCh.
//
// runSegment never panics on ctx cancellation: an in-flight request is
// unblocked by its context and the resulting error is reported as an
// aborted finish.
func runSegment(
	ctx context.Context,
	c *client,
	target *fileTarget,
	plan SegmentPlan,
	startURL string,
	maxRedirects int,
	showProgress bool,
	progressCh chan<- segmentProgress,
	finishedCh chan<- segmentResult,
) {
	url := startURL
	redirects := 0

	for {
		if ctx.Err() != nil {
			finishedCh <- segmentResult{Index: plan.Index, OK: false, Kind: ErrAborted, Err: ctx.Err()}
			return
		}

		f, err := target.openForRangeWrite(plan.Start)
		if err != nil {
			finishedCh <- segmentResult{Index: plan.Index, OK: false, Kind: ErrFilesystem, Err: err}
			return
		}

		resp, err := c.get(ctx, url, plan)
		if err != nil {
			f.Close()
			if ctx.Err() != nil {
				finishedCh <- segmentResult{Index: plan.Index, OK: false, Kind: ErrAborted, Err: ctx.Err()}
				return
			}
			finishedCh <- segmentResult{Index: plan.Index, OK: false, Kind: ErrTransport, Err: err}
			return
		}

		if isRedirectStatus(resp.StatusCode) {
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			f.Close()
			redirects++
			if loc == "" {
				finishedCh <- segmentResult{Index: plan.Index, OK: false, Kind: ErrProtocol, Err: errNoLocation}
				return
			}
			if redirects > maxRedirects {
				finishedCh <- segmentResult{Index: plan.Index, OK: false, Kind: ErrProtocol, Err: errTooManyRedirects}
				return
			}
			// Location may be relative to the URL that was just requested.
			if u, err := resp.Request.URL.Parse(loc); err == nil {
				loc = u.String()
			}
			url = loc
			continue
		}

		if !isSuccessStatus(resp.StatusCode) {
			resp.Body.Close()
			f.Close()
			finishedCh <- segmentResult{Index: plan.Index, OK: false, Kind: ErrProtocol, Err: httpStatusError(resp.StatusCode)}
			return
		}

		total := plan.Size()
		if total < 0 {
			total = resp.ContentLength // may still be -1/unknown
		}

		var reader io.Reader = resp.Body
		if showProgress {
			reader = &segmentReader{r: resp.Body, index: plan.Index, total: total, ch: progressCh, last: time.Now()}
		}

		_, copyErr := io.Copy(f, reader)
		resp.Body.Close()

		if copyErr != nil {
			f.Close()
			if ctx.Err() != nil {
				finishedCh <- segmentResult{Index: plan.Index, OK: false, Kind: ErrAborted, Err: ctx.Err()}
				return
			}
			finishedCh <- segmentResult{Index: plan.Index, OK: false, Kind: ErrTransport, Err: copyErr}
			return
		}

		if err := f.Sync(); err != nil {
			f.Close()
			finishedCh <- segmentResult{Index: plan.Index, OK: false, Kind: ErrFilesystem, Err: err}
			return
		}
		if err := f.Close(); err != nil {
			finishedCh <- segmentResult{Index: plan.Index, OK: false, Kind: ErrFilesystem, Err: err}
			return
		}

		finishedCh <- segmentResult{Index: plan.Index, OK: true}
		return
	}
}
