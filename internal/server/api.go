// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"rangedl/internal/manager"
)

// DownloadRequest is the request body for starting a download.
type DownloadRequest struct {
	URL          string `json:"url"`
	SaveFileName string `json:"saveFileName,omitempty"`
	ThreadCount  int    `json:"threadCount,omitempty"`
	MultiThread  bool   `json:"multiThread,omitempty"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a simple success message.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStartDownload(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing required field: url", "")
		return
	}

	saveDir := s.config.DefaultSaveDir
	if saveDir == "" {
		saveDir = "."
	}

	job := s.mgr.Submit(manager.Request{
		URL:              req.URL,
		SaveDir:          saveDir,
		SaveFileName:     req.SaveFileName,
		ThreadCount:      req.ThreadCount,
		MultiThreadOptIn: req.MultiThread,
	})

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.mgr.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id", "")
		return
	}
	job, ok := s.mgr.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found", "")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id", "")
		return
	}
	if s.mgr.Cancel(id) {
		writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "job cancelled"})
		return
	}
	writeError(w, http.StatusNotFound, "job not found or already finished", "")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}
