// Package log provides structured event logging.
// This file appends JSON events to log.jsonl.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type constants.
const (
	EventStreamConnected   = "stream_connected"
	EventStreamClosed      = "stream_closed"
	EventStreamError       = "stream_error"
	EventReconnectAttempt  = "reconnect_attempt"
	EventReconnectGaveUp   = "reconnect_gave_up"
	EventBadPayload        = "bad_payload"
	EventPollReconciled    = "poll_reconciled"
	EventProcessingDone    = "processing_done"
	EventCancelRequested   = "cancel_requested"
	EventSessionLoaded     = "session_loaded"
	EventMessageSent       = "message_sent"
)

// LogEvent represents a single structured event written to the log.
type LogEvent struct {
	Time      time.Time `json:"time"`
	Event     string    `json:"event"`
	RunID     string    `json:"run,omitempty"`
	SessionID string    `json:"session,omitempty"`
	MissionID string    `json:"mission,omitempty"`
	Cursor    uint64    `json:"cursor,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Events    int       `json:"events,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Logger writes append-only JSONL events to a log file.
type Logger struct {
	path string
	run  string
	mu   sync.Mutex
}

// NewLogger creates a Logger that writes to log.jsonl inside dir,
// creating the directory if needed. run tags every event with the id of
// this client run so interleaved sessions can be told apart.
// Does not truncate an existing log file.
func NewLogger(dir, run string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	return &Logger{
		path: filepath.Join(dir, "log.jsonl"),
		run:  run,
	}, nil
}

// Path returns the location of the log file.
func (l *Logger) Path() string {
	return l.path
}

// Append writes a single LogEvent as one JSON line to the log file.
// If event.Time is the zero value, it is automatically set to time.Now().UTC().
// The file is opened in append mode, written to, and then closed.
// Thread-safe via mutex.
func (l *Logger) Append(event LogEvent) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	if event.RunID == "" {
		event.RunID = l.run
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal log event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write log event: %w", err)
	}

	return nil
}

// ReadAll reads and parses all events from the log file.
// Returns an empty slice (not an error) if the file does not exist.
func (l *Logger) ReadAll() ([]LogEvent, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []LogEvent{}, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var events []LogEvent
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event LogEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse log line %d: %w", lineNum, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	return events, nil
}

// BySession filters events down to those tagged with the given session id.
func (l *Logger) BySession(sessionID string) ([]LogEvent, error) {
	all, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []LogEvent
	for _, ev := range all {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	return out, nil
}
