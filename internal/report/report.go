// Package report summarizes the health of past streaming turns from the
// structured event log.
package report

import (
	"fmt"
	"strings"
	"time"

	applog "github.com/agime-dev/agimectl/internal/log"
)

// Report holds aggregated stream statistics for one session.
type Report struct {
	SessionID         string
	MessagesSent      int
	Connects          int
	ReconnectAttempts int
	MaxAttempt        int
	StreamErrors      int
	BadPayloads       int
	PollReconciled    int
	Cancelled         bool
	GaveUp            bool
	Done              bool
	LastCursor        uint64
	Duration          time.Duration
}

// Generate aggregates the logged events for the given session into a
// Report. Events tagged with other sessions are ignored.
func Generate(logger *applog.Logger, sessionID string) (*Report, error) {
	events, err := logger.BySession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}

	r := &Report{SessionID: sessionID}
	var first, last time.Time

	for _, e := range events {
		if first.IsZero() || e.Time.Before(first) {
			first = e.Time
		}
		if e.Time.After(last) {
			last = e.Time
		}
		if e.Cursor > r.LastCursor {
			r.LastCursor = e.Cursor
		}

		switch e.Event {
		case applog.EventMessageSent:
			r.MessagesSent++
		case applog.EventStreamConnected:
			r.Connects++
		case applog.EventReconnectAttempt:
			r.ReconnectAttempts++
			if e.Attempt > r.MaxAttempt {
				r.MaxAttempt = e.Attempt
			}
		case applog.EventStreamError:
			r.StreamErrors++
		case applog.EventBadPayload:
			r.BadPayloads++
		case applog.EventPollReconciled:
			r.PollReconciled++
		case applog.EventCancelRequested:
			r.Cancelled = true
		case applog.EventReconnectGaveUp:
			r.GaveUp = true
		case applog.EventProcessingDone:
			r.Done = true
		}
	}

	if !first.IsZero() {
		r.Duration = last.Sub(first)
	}

	return r, nil
}

// FormatReport produces a terminal-friendly, human-readable summary string.
func FormatReport(r *Report) string {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString("  Session Stream Report\n")
	b.WriteString("========================================\n")
	b.WriteString("\n")

	fmt.Fprintf(&b, "Session:     %s\n", r.SessionID)
	fmt.Fprintf(&b, "Outcome:     %s\n", outcome(r))
	b.WriteString("\n")

	fmt.Fprintf(&b, "Messages:    %d sent\n", r.MessagesSent)
	fmt.Fprintf(&b, "Connects:    %d\n", r.Connects)
	if r.ReconnectAttempts > 0 {
		fmt.Fprintf(&b, "Reconnects:  %d attempts (deepest run: %d)\n", r.ReconnectAttempts, r.MaxAttempt)
	}
	if r.StreamErrors > 0 {
		fmt.Fprintf(&b, "Errors:      %d stream errors\n", r.StreamErrors)
	}
	if r.BadPayloads > 0 {
		fmt.Fprintf(&b, "Skipped:     %d malformed events\n", r.BadPayloads)
	}
	if r.PollReconciled > 0 {
		fmt.Fprintf(&b, "Polls:       %d turns ended by poll, not stream\n", r.PollReconciled)
	}
	if r.LastCursor > 0 {
		fmt.Fprintf(&b, "Cursor:      %d\n", r.LastCursor)
	}

	if r.Duration > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Span:        %s\n", formatDuration(r.Duration))
	}

	b.WriteString("========================================\n")

	return b.String()
}

func outcome(r *Report) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.GaveUp:
		return "disconnected"
	case r.Done:
		return "completed"
	default:
		return "no completed turns logged"
	}
}

// formatDuration renders a duration as "1h 2m 3s", omitting zero units.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	parts = append(parts, fmt.Sprintf("%ds", s))

	return strings.Join(parts, " ")
}
