// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package rangedl

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HeadResult is the outcome of an HTTP Client Facade HEAD probe.
type HeadResult struct {
	StatusCode    int
	ContentLength int64 // -1 if the server omitted Content-Length
	RedirectURL   string
	Header        http.Header
}

// client is the HTTP facade. It issues HEAD/GET with headers, TLS
// config, and redirect attribute extraction; it never follows redirects
// itself (http.Client.CheckRedirect is disabled) so the caller's bounded
// redirect helper stays in control.
type client struct {
	http *http.Client
}

func newClient(opts Options) *client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec
			MinVersion:         tls.VersionTLS10,
			MaxVersion:         tls.VersionTLS13,
		},
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &client{
		http: &http.Client{
			Transport: tr,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func isRedirectStatus(code int) bool { return code == http.StatusMovedPermanently || code == http.StatusFound }

func isSuccessStatus(code int) bool { return code >= 200 && code < 300 }

var (
	errNoLocation       = fmt.Errorf("rangedl: redirect with no Location header")
	errTooManyRedirects = fmt.Errorf("rangedl: too many redirects")
)

// httpStatusError describes a non-2xx, non-redirect final status.
func httpStatusError(code int) error {
	return fmt.Errorf("rangedl: unexpected status %d %s", code, http.StatusText(code))
}

// head issues a HEAD request with Accept-Encoding: identity so ranged GETs
// later have meaningful byte offsets.
func (c *client) head(ctx context.Context, url string) (HeadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return HeadResult{}, err
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.http.Do(req)
	if err != nil {
		return HeadResult{}, err
	}
	defer resp.Body.Close()

	hr := HeadResult{StatusCode: resp.StatusCode, ContentLength: -1, Header: resp.Header}
	if isRedirectStatus(resp.StatusCode) {
		hr.RedirectURL = resp.Header.Get("Location")
		return hr, nil
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			hr.ContentLength = n
		}
	}
	return hr, nil
}

// get issues a GET, optionally with a Range header when plan is bounded.
// Ranged requests force Accept-Encoding: identity so the server cannot
// transparently recompress the part and shift byte offsets. Unbounded
// (single-stream) requests permit gzip, matching the source's plain-GET
// path.
func (c *client) get(ctx context.Context, url string, plan SegmentPlan) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if plan.Unbounded() {
		req.Header.Set("Accept-Encoding", "gzip")
	} else {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", plan.Start, plan.End))
		req.Header.Set("Accept-Encoding", "identity")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// followRedirects wraps a single HTTP step function with a bounded
// redirect chain. The HEAD path (resolveURL) uses it; the per-segment GET
// path follows redirects in its own loop in runSegment under the same
// bound. step is called with the current URL and must report whether its
// result is a redirect and, if so, to where.
func followRedirects(maxRedirects int, step func(url string) (isRedirect bool, redirectURL string, err error), startURL string) (effectiveURL string, err error) {
	url := startURL
	for i := 0; i <= maxRedirects; i++ {
		isRedirect, redirectURL, stepErr := step(url)
		if stepErr != nil {
			return url, stepErr
		}
		if !isRedirect {
			return url, nil
		}
		if redirectURL == "" || redirectURL == url {
			return url, fmt.Errorf("rangedl: redirect with no Location header")
		}
		url = redirectURL
	}
	return url, fmt.Errorf("rangedl: too many redirects (>%d)", maxRedirects)
}

// dumpHeaders formats response headers for the diagnostic "headers"
// ProgressEvent.
func dumpHeaders(h http.Header) string {
	var b strings.Builder
	for k, vs := range h {
		for _, v := range vs {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("; ")
		}
	}
	return b.String()
}
