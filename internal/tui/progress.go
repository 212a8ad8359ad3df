// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package tui renders a live, adaptive progress table for a single
// range-parallel download: one row per segment plus an aggregate bar.
package tui

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/term"

	"rangedl/pkg/rangedl"
)

// LiveRenderer renders a cross-platform, adaptive, colorful progress table
// for one RequestTask: a header line, an aggregate bar, and one row per
// segment.
type LiveRenderer struct {
	task rangedl.RequestTask

	mu         sync.Mutex
	start      time.Time
	events     chan rangedl.ProgressEvent
	done       chan struct{}
	stopped    bool
	hideCur    bool
	supports   bool
	noColor    bool

	aggTotal int64
	aggRecv  int64
	finished bool
	errText  string

	segments map[int]*segmentRow

	lastTotalBytes int64
	lastTick       time.Time
	smoothedSpeed  float64
}

type segmentRow struct {
	index  int
	total  int64
	recv   int64
	status string // "active", "done", "error"

	lastBytes     int64
	lastTime      time.Time
	smoothedSpeed float64
	started       time.Time
}

const speedSmoothingFactor = 0.3

func smoothSpeed(current, previous float64) float64 {
	if previous == 0 {
		return current
	}
	return speedSmoothingFactor*current + (1-speedSmoothingFactor)*previous
}

// NewLiveRenderer creates a new live TUI renderer for task.
func NewLiveRenderer(task rangedl.RequestTask) *LiveRenderer {
	lr := &LiveRenderer{
		task:     task,
		start:    time.Now(),
		events:   make(chan rangedl.ProgressEvent, 2048),
		done:     make(chan struct{}),
		segments: map[int]*segmentRow{},
		noColor:  os.Getenv("NO_COLOR") != "",
	}
	lr.supports = isInteractive() && ansiOkay()
	if lr.supports && !lr.noColor {
		fmt.Fprint(os.Stdout, "\x1b[?25l")
		lr.hideCur = true
	}
	go lr.loop()
	return lr
}

// Close stops the renderer and restores the terminal.
func (lr *LiveRenderer) Close() {
	lr.mu.Lock()
	if lr.stopped {
		lr.mu.Unlock()
		return
	}
	lr.stopped = true
	close(lr.done)
	lr.mu.Unlock()
	time.Sleep(60 * time.Millisecond)
	if lr.hideCur {
		fmt.Fprint(os.Stdout, "\x1b[?25h")
	}
	fmt.Fprintln(os.Stdout)
}

// Handler returns a ProgressFunc that feeds events to the renderer.
func (lr *LiveRenderer) Handler() rangedl.ProgressFunc {
	return func(ev rangedl.ProgressEvent) {
		select {
		case lr.events <- ev:
		default:
		}
	}
}

func (lr *LiveRenderer) loop() {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-lr.done:
			lr.render(true)
			return
		case ev := <-lr.events:
			lr.apply(ev)
		case <-ticker.C:
			lr.render(false)
		}
	}
}

func (lr *LiveRenderer) apply(ev rangedl.ProgressEvent) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	switch ev.Event {
	case "segment_start":
		row := lr.ensure(ev.Segment)
		row.status = "active"
		row.started = time.Now()
	case "segment_progress":
		row := lr.ensure(ev.Segment)
		row.recv = ev.Received
		if ev.Total > 0 {
			row.total = ev.Total
		}
		if row.lastTime.IsZero() {
			row.lastTime = time.Now()
			row.lastBytes = row.recv
		}
	case "segment_done":
		row := lr.ensure(ev.Segment)
		if ev.Level == "error" {
			row.status = "error"
		} else {
			row.status = "done"
			row.recv = row.total
		}
	case "progress":
		lr.aggRecv = ev.Received
		lr.aggTotal = ev.Total
	case "finished":
		lr.finished = true
		if ev.Level == "error" {
			lr.errText = ev.Message
		}
	}
}

func (lr *LiveRenderer) ensure(index int) *segmentRow {
	if row, ok := lr.segments[index]; ok {
		return row
	}
	row := &segmentRow{index: index}
	lr.segments[index] = row
	return row
}

func (lr *LiveRenderer) render(final bool) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	w, h := termSize()
	minW := 70
	if w < minW {
		w = minW
	}
	if h < 12 {
		h = 12
	}

	now := time.Now()
	if !lr.lastTick.IsZero() && now.After(lr.lastTick) {
		deltaB := lr.aggRecv - lr.lastTotalBytes
		deltaT := now.Sub(lr.lastTick).Seconds()
		if deltaT > 0.05 {
			instantSpeed := float64(deltaB) / deltaT
			if instantSpeed >= 0 {
				lr.smoothedSpeed = smoothSpeed(instantSpeed, lr.smoothedSpeed)
			}
			lr.lastTick = now
			lr.lastTotalBytes = lr.aggRecv
		}
	} else if lr.lastTick.IsZero() {
		lr.lastTick = now
		lr.lastTotalBytes = lr.aggRecv
	}
	speed := lr.smoothedSpeed

	var etaStr string
	if speed > 0 && lr.aggTotal > 0 && lr.aggRecv < lr.aggTotal {
		rem := float64(lr.aggTotal-lr.aggRecv) / speed
		etaStr = fmtDuration(time.Duration(rem) * time.Second)
	} else {
		etaStr = "—"
	}

	if lr.supports {
		fmt.Fprint(os.Stdout, "\x1b[H\x1b[2J")
	}

	jobline := fmt.Sprintf("URL: %s", lr.task.URL)
	fmt.Fprintln(os.Stdout, colorize(bold(jobline), "fg=cyan", lr))
	cfgline := fmt.Sprintf("Out: %s/%s   Threads: %d", lr.task.SaveDir, lr.task.SaveFileName, lr.task.ThreadCount)
	fmt.Fprintln(os.Stdout, dim(cfgline))

	prog := float64(0)
	if lr.aggTotal > 0 {
		prog = float64(lr.aggRecv) / float64(lr.aggTotal)
		if prog < 0 {
			prog = 0
		}
		if prog > 1 {
			prog = 1
		}
	}
	bar := renderBar(int(float64(w)*0.4), prog, lr)
	speedStr := humanBytes(int64(speed)) + "/s"
	fmt.Fprintf(os.Stdout, "%s  %s  %s/%s  %s  ETA %s\n",
		colorize(bar, "fg=green", lr),
		percent(prog),
		humanBytes(lr.aggRecv), humanBytes(lr.aggTotal),
		speedStr, etaStr,
	)

	fmt.Fprintln(os.Stdout)
	cols := []string{"Status", "Segment", "Progress", "Speed", "ETA"}
	fmt.Fprintln(os.Stdout, headerRow(cols, w))

	maxRows := h - 8
	if maxRows < 3 {
		maxRows = 3
	}

	rows := make([]*segmentRow, 0, len(lr.segments))
	for _, r := range lr.segments {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].index < rows[j].index })

	shown := 0
	for _, row := range rows {
		if shown >= maxRows {
			break
		}
		shown++
		fmt.Fprintln(os.Stdout, renderSegmentRow(row, w, lr))
	}

	if lr.finished {
		if lr.errText != "" {
			fmt.Fprintln(os.Stdout, colorize("failed: "+lr.errText, "fg=red", lr))
		} else {
			fmt.Fprintln(os.Stdout, colorize("done", "fg=green", lr))
		}
	} else if lr.supports {
		fmt.Fprintln(os.Stdout, dim(fmt.Sprintf("Press Ctrl+C to cancel • %s %s", runtime.GOOS, runtime.GOARCH)))
	}
}

func renderSegmentRow(row *segmentRow, w int, lr *LiveRenderer) string {
	statusW := 9
	speedW := 10
	etaW := 9
	remain := w - (statusW + speedW + etaW + 8)
	if remain < 20 {
		remain = 20
	}
	nameW := int(float64(remain) * 0.3)
	if nameW < 12 {
		nameW = 12
	}
	progressW := remain - nameW

	var st, col string
	switch row.status {
	case "active":
		st, col = "▶", "fg=yellow"
	case "done":
		st, col = "✓", "fg=green"
	case "error":
		st, col = "×", "fg=red"
	default:
		st, col = "…", "fg=magenta"
	}
	status := pad(colorize(st+" "+row.status, col, lr), statusW)

	name := pad(fmt.Sprintf("segment %d", row.index), nameW)

	var p float64
	if row.total > 0 {
		p = float64(row.recv) / float64(row.total)
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
	}
	bar := renderBar(progressW-18, p, lr)
	progTxt := fmt.Sprintf(" %s/%s %s", humanBytes(row.recv), humanBytes(row.total), percent(p))
	progress := bar + progTxt
	if utf8.RuneCountInString(progress) > progressW {
		runes := []rune(progress)
		progress = string(runes[:progressW])
	}

	now := time.Now()
	if !row.lastTime.IsZero() {
		dt := now.Sub(row.lastTime).Seconds()
		if dt > 0.05 {
			delta := row.recv - row.lastBytes
			instantSpeed := float64(delta) / dt
			if instantSpeed >= 0 {
				row.smoothedSpeed = smoothSpeed(instantSpeed, row.smoothedSpeed)
			}
			row.lastTime = now
			row.lastBytes = row.recv
		}
	} else {
		row.lastTime = now
		row.lastBytes = row.recv
	}
	speed := row.smoothedSpeed
	speedTxt := pad(humanBytes(int64(speed))+"/s", speedW)

	eta := "—"
	if speed > 0 && row.total > 0 && row.recv < row.total {
		rem := float64(row.total-row.recv) / speed
		eta = fmtDuration(time.Duration(rem) * time.Second)
	}
	etaTxt := pad(eta, etaW)

	return fmt.Sprintf("%s  %s  %s  %s  %s", status, name, progress, speedTxt, etaTxt)
}

func headerRow(cols []string, w int) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = bold(c)
	}
	s := strings.Join(parts, "  ")
	if utf8.RuneCountInString(s) > w {
		runes := []rune(s)
		return string(runes[:w])
	}
	return s
}

func pad(s string, w int) string {
	r := utf8.RuneCountInString(s)
	if r >= w {
		return s
	}
	return s + strings.Repeat(" ", w-r)
}

func renderBar(width int, p float64, lr *LiveRenderer) string {
	if width < 3 {
		width = 3
	}
	filled := int(p * float64(width))
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func percent(p float64) string {
	return fmt.Sprintf("%3.0f%%", p*100)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for n/div >= unit && exp < 6 {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func termSize() (int, int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return 100, 30
	}
	return w, h
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func ansiOkay() bool {
	return strings.ToLower(os.Getenv("TERM")) != "dumb"
}

func colorize(s, style string, lr *LiveRenderer) string {
	if lr.noColor || !lr.supports {
		return s
	}
	switch style {
	case "fg=green":
		return "\x1b[32m" + s + "\x1b[0m"
	case "fg=yellow":
		return "\x1b[33m" + s + "\x1b[0m"
	case "fg=red":
		return "\x1b[31m" + s + "\x1b[0m"
	case "fg=magenta":
		return "\x1b[35m" + s + "\x1b[0m"
	case "fg=cyan":
		return "\x1b[36m" + s + "\x1b[0m"
	default:
		return s
	}
}

func bold(s string) string { return "\x1b[1m" + s + "\x1b[0m" }
func dim(s string) string  { return "\x1b[2m" + s + "\x1b[0m" }
