// Package output renders correlated events for the watch command.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mvp-joe/treewatch/internal/correlator"
	"github.com/mvp-joe/treewatch/internal/git"
	"github.com/mvp-joe/treewatch/internal/watcher"
)

// ErrUnknownMode indicates an unsupported output mode.
var ErrUnknownMode = errors.New("unknown output mode")

const timeLayout = "15:04:05.000"

// New returns the sink for mode writing to w. Paths are shown relative to
// root where possible.
func New(mode string, w io.Writer, root string) (correlator.Sink, error) {
	switch mode {
	case "", correlator.ModeStream:
		return &TextSink{w: w, root: root}, nil
	case correlator.ModeEvents:
		return &EventsSink{w: w, root: root}, nil
	case correlator.ModeJSON:
		return &JSONSink{enc: json.NewEncoder(w)}, nil
	case correlator.ModeSummary:
		return &SummarySink{w: w}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// StatusPrinter is implemented by sinks that show the repository status
// once before the first event.
type StatusPrinter interface {
	PrintStatus(*git.GitInfo) error
}

func relative(root, path string) string {
	if root == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

// TextSink writes one human readable line per event.
type TextSink struct {
	mu   sync.Mutex
	w    io.Writer
	root string
}

func (s *TextSink) Emit(r correlator.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := r.Event
	var line string
	switch {
	case ev.IsError():
		line = fmt.Sprintf("%s %-8s %s", ev.Time().Format(timeLayout), ev.Kind(), ev.Message())
	case ev.Kind() == watcher.Renamed:
		line = fmt.Sprintf("%s %-8s %s -> %s", ev.Time().Format(timeLayout), ev.Kind(),
			relative(s.root, ev.From()), relative(s.root, ev.To()))
	default:
		line = fmt.Sprintf("%s %-8s %s", ev.Time().Format(timeLayout), ev.Kind(), relative(s.root, ev.Path()))
	}
	if r.HasStatus {
		line += " [" + r.Status.String() + "]"
	}

	_, err := fmt.Fprintln(s.w, line)
	return err
}

// Heartbeat is a no-op for line output.
func (s *TextSink) Heartbeat(*git.GitInfo) error {
	return nil
}

// PrintStatus writes the branch, upstream distance, conflicts and file
// counts followed by a blank line.
func (s *TextSink) PrintStatus(info *git.GitInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Branch: %s\n", info.Branch)
	if info.Ahead > 0 || info.Behind > 0 {
		fmt.Fprintf(&b, "Status: %d ahead, %d behind\n", info.Ahead, info.Behind)
	}
	if info.HasConflicts {
		b.WriteString("CONFLICTS DETECTED\n")
	}
	c := info.Counts()
	fmt.Fprintf(&b, "Files: %d modified, %d staged, %d untracked\n\n", c.Modified, c.Staged, c.Untracked)

	_, err := io.WriteString(s.w, b.String())
	return err
}

// EventsSink writes one compact line per event: the one-letter git status,
// a change marker and the path.
type EventsSink struct {
	mu   sync.Mutex
	w    io.Writer
	root string
}

func (s *EventsSink) Emit(r correlator.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := r.Event
	if ev.IsError() {
		_, err := fmt.Fprintf(s.w, "! %s\n", ev.Message())
		return err
	}

	code := " "
	if r.HasStatus {
		code = r.Status.Code()
	}

	var err error
	switch ev.Kind() {
	case watcher.Created:
		_, err = fmt.Fprintf(s.w, "%s + %s\n", code, relative(s.root, ev.Path()))
	case watcher.Deleted:
		_, err = fmt.Fprintf(s.w, "%s - %s\n", code, relative(s.root, ev.Path()))
	case watcher.Renamed:
		_, err = fmt.Fprintf(s.w, "%s R %s -> %s\n", code, relative(s.root, ev.From()), relative(s.root, ev.To()))
	default:
		_, err = fmt.Fprintf(s.w, "%s ~ %s\n", code, relative(s.root, ev.Path()))
	}
	return err
}

// Heartbeat is a no-op; events mode never shows repository state.
func (s *EventsSink) Heartbeat(*git.GitInfo) error {
	return nil
}

// jsonEvent is the wire form of one correlated event.
type jsonEvent struct {
	Type      string          `json:"type"`
	Session   string          `json:"session"`
	Time      time.Time       `json:"time"`
	Kind      string          `json:"kind,omitempty"`
	Path      string          `json:"path,omitempty"`
	From      string          `json:"from,omitempty"`
	Message   string          `json:"message,omitempty"`
	GitStatus *git.FileStatus `json:"git_status,omitempty"`
}

// jsonHeartbeat is the wire form of a heartbeat.
type jsonHeartbeat struct {
	Type   string            `json:"type"`
	Time   time.Time         `json:"time"`
	Git    *git.GitInfo      `json:"git,omitempty"`
	Counts *git.StatusCounts `json:"counts,omitempty"`
}

// JSONSink writes newline-delimited JSON objects.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (s *JSONSink) Emit(r correlator.Result) error {
	ev := r.Event
	out := jsonEvent{
		Type:    "event",
		Session: r.SessionID,
		Time:    ev.Time(),
		Kind:    ev.Kind().String(),
		Path:    ev.Path(),
		From:    ev.From(),
		Message: ev.Message(),
	}
	if r.HasStatus {
		st := r.Status
		out.GitStatus = &st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(out)
}

func (s *JSONSink) Heartbeat(info *git.GitInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hb := jsonHeartbeat{Type: "heartbeat", Time: time.Now(), Git: info}
	if info != nil {
		c := info.Counts()
		hb.Counts = &c
	}
	return s.enc.Encode(hb)
}

// SummarySink counts events and prints one status line per heartbeat, only
// when something changed since the previous line.
type SummarySink struct {
	mu       sync.Mutex
	w        io.Writer
	pending  int
	lastLine string
}

func (s *SummarySink) Emit(correlator.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending++
	return nil
}

func (s *SummarySink) Heartbeat(info *git.GitInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := summaryLine(info)
	if s.pending == 0 && line == s.lastLine {
		return nil
	}

	_, err := fmt.Fprintf(s.w, "%s %s events=%d\n", time.Now().Format(timeLayout), line, s.pending)
	s.pending = 0
	s.lastLine = line
	return err
}

// PrintStatus writes the initial summary line. The first heartbeat repeats
// it only if the state changed in between.
func (s *SummarySink) PrintStatus(info *git.GitInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastLine = summaryLine(info)
	_, err := fmt.Fprintf(s.w, "%s\n\n", s.lastLine)
	return err
}

func summaryLine(info *git.GitInfo) string {
	if info == nil {
		return "git unavailable"
	}
	c := info.Counts()
	line := fmt.Sprintf("[%s] ahead=%d behind=%d | M:%d S:%d U:%d total=%d",
		info.Branch, info.Ahead, info.Behind, c.Modified, c.Staged, c.Untracked, c.Total)
	if info.HasConflicts {
		line += " [CONFLICT]"
	}
	return line
}
