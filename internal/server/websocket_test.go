// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"testing"
	"time"

	"rangedl/internal/manager"
	"rangedl/pkg/rangedl"
)

func TestWSHub_Broadcast(t *testing.T) {
	mgr := manager.New(rangedl.DefaultOptions())
	hub := NewWSHub(mgr)
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	hub.Broadcast("test", map[string]string{"key": "value"})

	job := &manager.Job{ID: 123, URL: "https://example.com/x", Status: manager.StatusRunning}
	hub.BroadcastJob(job)

	hub.BroadcastSegment(manager.SegmentEvent{JobID: 123, SegmentState: manager.SegmentState{Index: 0, Received: 10, Total: 100, Status: "active"}})

	hub.BroadcastEvent(map[string]string{"event": "test"})
}

func TestWSHub_ClientCount(t *testing.T) {
	mgr := manager.New(rangedl.DefaultOptions())
	hub := NewWSHub(mgr)
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	count := hub.ClientCount()
	if count != 0 {
		t.Errorf("Expected 0 clients, got %d", count)
	}
}

func TestWSHub_CancelCommandUnknownIDRejectedByManager(t *testing.T) {
	mgr := manager.New(rangedl.DefaultOptions())
	hub := NewWSHub(mgr)
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	client := &WSClient{hub: hub, send: make(chan []byte, 1)}
	var cmd wsCommand
	cmd.Type = "cancel"
	cmd.Data.ID = 999

	// readPump handles a "cancel" command by calling mgr.Cancel with the
	// command's ID. readPump needs a live connection, so this calls
	// mgr.Cancel directly with that ID: for a job the manager does not
	// know, it must not panic and must report false.
	if mgr.Cancel(cmd.Data.ID) {
		t.Fatal("expected Cancel on unknown id to return false")
	}
	_ = client
}
