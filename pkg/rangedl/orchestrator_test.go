// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package rangedl

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func parseRange(h string, size int64) (int64, int64, bool) {
	if h == "" {
		return 0, size - 1, false
	}
	h = strings.TrimPrefix(h, "bytes=")
	parts := strings.SplitN(h, "-", 2)
	start, _ := strconv.ParseInt(parts[0], 10, 64)
	end := size - 1
	if len(parts) == 2 && parts[1] != "" {
		end, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	return start, end, true
}

func rangeServer(data []byte) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.WriteHeader(http.StatusOK)
			return
		}
		start, end, _ := parseRange(r.Header.Get("Range"), int64(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data[start : end+1])
	})
	return httptest.NewServer(mux)
}

func readFile(t *testing.T, dir, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read result file: %v", err)
	}
	return b
}

func TestDownloadHappyPathMultiThread(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 137) // 1370 bytes, not a clean multiple of 4
	srv := rangeServer(data)
	defer srv.Close()

	dir := t.TempDir()
	task := RequestTask{
		ID:               NextTaskID(),
		Kind:             KindMTDownload,
		URL:              srv.URL + "/file",
		SaveDir:          dir,
		SaveFileName:     "out.bin",
		ThreadCount:      4,
		MultiThreadOptIn: true,
	}

	var events []ProgressEvent
	result, err := Download(context.Background(), task, DefaultOptions(), func(ev ProgressEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if result.ErrorText != "" {
		t.Fatalf("result.ErrorText = %q, want empty", result.ErrorText)
	}

	got := readFile(t, dir, "out.bin")
	if !bytes.Equal(got, data) {
		t.Fatalf("downloaded %d bytes, want %d bytes matching source", len(got), len(data))
	}

	var sawFinished bool
	for _, ev := range events {
		if ev.Event == "finished" {
			sawFinished = true
		}
	}
	if !sawFinished {
		t.Fatal("expected a finished event")
	}
}

func TestDownloadUnknownSizeSingleStream(t *testing.T) {
	data := []byte("no content length advertised here")
	mux := http.NewServeMux()
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK) // no Content-Length
			return
		}
		w.Write(data)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	task := RequestTask{
		ID:               NextTaskID(),
		Kind:             KindMTDownload,
		URL:              srv.URL + "/file",
		SaveDir:          dir,
		SaveFileName:     "out.bin",
		ThreadCount:      8,
		MultiThreadOptIn: true,
	}
	result, err := Download(context.Background(), task, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if result.ErrorText != "" {
		t.Fatalf("ErrorText = %q", result.ErrorText)
	}
	got := readFile(t, dir, "out.bin")
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestDownloadFollowsRedirect(t *testing.T) {
	data := bytes.Repeat([]byte("xy"), 500)
	mux := http.NewServeMux()
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, "/real", http.StatusFound)
	})
	mux.HandleFunc("/real", func(w http.ResponseWriter, r *http.Request) {
		start, end, _ := parseRange(r.Header.Get("Range"), int64(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data[start : end+1])
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	task := RequestTask{
		ID:               NextTaskID(),
		Kind:             KindMTDownload,
		URL:              srv.URL + "/file",
		SaveDir:          dir,
		SaveFileName:     "out.bin",
		ThreadCount:      3,
		MultiThreadOptIn: true,
	}
	result, err := Download(context.Background(), task, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if result.ErrorText != "" {
		t.Fatalf("ErrorText = %q", result.ErrorText)
	}
	got := readFile(t, dir, "out.bin")
	if !bytes.Equal(got, data) {
		t.Fatal("content mismatch after redirect")
	}
}

func TestDownloadMidFailureCleansUpFile(t *testing.T) {
	data := bytes.Repeat([]byte("z"), 4000)
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.WriteHeader(http.StatusOK)
			return
		}
		n := atomic.AddInt32(&calls, 1)
		if n == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		start, end, _ := parseRange(r.Header.Get("Range"), int64(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data[start : end+1])
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	task := RequestTask{
		ID:               NextTaskID(),
		Kind:             KindMTDownload,
		URL:              srv.URL + "/file",
		SaveDir:          dir,
		SaveFileName:     "out.bin",
		ThreadCount:      4,
		MultiThreadOptIn: true,
	}
	result, err := Download(context.Background(), task, DefaultOptions(), nil)
	if err == nil {
		t.Fatal("expected an error from a failing segment")
	}
	if result.ErrorText == "" {
		t.Fatal("expected ErrorText to be set")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "out.bin")); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial file to be removed, stat err = %v", statErr)
	}
}

func TestDownloadAbortViaContext(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "4000")
			w.WriteHeader(http.StatusOK)
			return
		}
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	task := RequestTask{
		ID:               NextTaskID(),
		Kind:             KindMTDownload,
		URL:              srv.URL + "/file",
		SaveDir:          dir,
		SaveFileName:     "out.bin",
		ThreadCount:      4,
		MultiThreadOptIn: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result, err := Download(ctx, task, DefaultOptions(), nil)
	if err == nil {
		t.Fatal("expected an error after context cancellation")
	}
	if !strings.Contains(result.ErrorText, "aborted") {
		t.Fatalf("ErrorText = %q, want it to mention aborted", result.ErrorText)
	}
}

func TestDownloadClampsThreadCount(t *testing.T) {
	data := bytes.Repeat([]byte("q"), 1000)
	seen := map[string]bool{}
	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.WriteHeader(http.StatusOK)
			return
		}
		mu.Lock()
		seen[r.Header.Get("Range")] = true
		mu.Unlock()
		start, end, _ := parseRange(r.Header.Get("Range"), int64(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data[start : end+1])
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	task := RequestTask{
		ID:               NextTaskID(),
		Kind:             KindMTDownload,
		URL:              srv.URL + "/file",
		SaveDir:          dir,
		SaveFileName:     "out.bin",
		ThreadCount:      1000,
		MultiThreadOptIn: true,
	}
	opts := DefaultOptions()
	opts.MaxThreadCount = 2

	result, err := Download(context.Background(), task, opts, nil)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if result.ErrorText != "" {
		t.Fatalf("ErrorText = %q", result.ErrorText)
	}
	if len(seen) > 2 {
		t.Fatalf("observed %d distinct ranges, want at most MaxThreadCount=2: %v", len(seen), seen)
	}
	got := readFile(t, dir, "out.bin")
	if !bytes.Equal(got, data) {
		t.Fatal("content mismatch with clamped thread count")
	}
}
