// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"rangedl/internal/manager"
)

func newTestServer(t *testing.T) *Server {
	cfg := Config{
		Addr:           "127.0.0.1",
		Port:           0,
		DefaultSaveDir: t.TempDir(),
		MaxThreadCount: 4,
	}
	return New(cfg)
}

func newOriginServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			return
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAPI_Health(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
}

func TestAPI_StartDownload_RequiresURL(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/downloads", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleStartDownload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing url, got %d. body: %s", w.Code, w.Body.String())
	}
}

func TestAPI_StartDownload_Accepted(t *testing.T) {
	srv := newTestServer(t)
	origin := newOriginServer(t, []byte("payload bytes"))

	body := `{"url": "` + origin.URL + `"}`
	req := httptest.NewRequest("POST", "/api/downloads", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleStartDownload(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d. body: %s", w.Code, w.Body.String())
	}

	var job manager.Job
	json.Unmarshal(w.Body.Bytes(), &job)
	if job.ID == 0 {
		t.Error("expected a nonzero job ID")
	}
	if job.URL != origin.URL {
		t.Errorf("job URL = %q, want %q", job.URL, origin.URL)
	}
}

func TestAPI_ListJobs(t *testing.T) {
	srv := newTestServer(t)
	origin := newOriginServer(t, []byte("x"))

	body := `{"url": "` + origin.URL + `"}`
	req := httptest.NewRequest("POST", "/api/downloads", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleStartDownload(w, req)

	listReq := httptest.NewRequest("GET", "/api/downloads", nil)
	listW := httptest.NewRecorder()
	srv.handleListJobs(listW, listReq)

	if listW.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", listW.Code)
	}
	var resp map[string]any
	json.Unmarshal(listW.Body.Bytes(), &resp)
	if int(resp["count"].(float64)) < 1 {
		t.Error("expected at least 1 job")
	}
}

func TestAPI_GetJob_NotFound(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/downloads/123456", nil)
	req.SetPathValue("id", "123456")
	w := httptest.NewRecorder()
	srv.handleGetJob(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestAPI_GetJob_InvalidID(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/downloads/not-a-number", nil)
	req.SetPathValue("id", "not-a-number")
	w := httptest.NewRecorder()
	srv.handleGetJob(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAPI_CancelJob_RoundTrip(t *testing.T) {
	srv := newTestServer(t)
	origin := newOriginServer(t, bytes.Repeat([]byte("y"), 1<<20))

	body := `{"url": "` + origin.URL + `", "multiThread": true, "threadCount": 4}`
	req := httptest.NewRequest("POST", "/api/downloads", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleStartDownload(w, req)

	var job manager.Job
	json.Unmarshal(w.Body.Bytes(), &job)

	time.Sleep(10 * time.Millisecond)

	cancelReq := httptest.NewRequest("DELETE", "/api/downloads/"+strconv.FormatUint(job.ID, 10), nil)
	cancelReq.SetPathValue("id", strconv.FormatUint(job.ID, 10))
	cancelW := httptest.NewRecorder()
	srv.handleCancelJob(cancelW, cancelReq)

	if cancelW.Code != http.StatusOK && cancelW.Code != http.StatusNotFound {
		t.Errorf("unexpected cancel status %d", cancelW.Code)
	}
}
