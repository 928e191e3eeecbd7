package stream

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	applog "github.com/agime-dev/agimectl/internal/log"
	"github.com/agime-dev/agimectl/internal/transcript"
)

// State is the connection state of one consumer. It lives only as long as
// one view of one session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosedTerminal
	StateClosedError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosedTerminal:
		return "closed-terminal"
	case StateClosedError:
		return "closed-error"
	}
	return "unknown"
}

// Hooks are the consumer's outbound notifications. All fields are
// optional. Hooks are invoked on the stream read goroutine; implementations
// must not block.
type Hooks struct {
	OnTranscript       func()
	OnStatus           func(label string)
	OnGoal             func(GoalUpdate)
	OnWorkspaceChanged func(toolName string)
	OnDone             func(status, errText string)
}

// Consumer applies stream events to a transcript for exactly one session.
// It holds no transport and performs no retries; the supervisor owns the
// connection lifecycle and feeds events in arrival order.
type Consumer struct {
	session string
	tr      *transcript.Transcript
	hooks   Hooks
	logger  *applog.Logger

	mu           sync.Mutex
	state        State
	cursor       uint64
	lastActivity time.Time
	detached     bool
	doneSeen     bool
}

// NewConsumer builds a consumer bound to the given session id. logger may
// be nil.
func NewConsumer(sessionID string, tr *transcript.Transcript, hooks Hooks, logger *applog.Logger) *Consumer {
	return &Consumer{
		session: sessionID,
		tr:      tr,
		hooks:   hooks,
		logger:  logger,
		state:   StateIdle,
	}
}

// SessionID returns the session this consumer is bound to.
func (c *Consumer) SessionID() string { return c.session }

// Transcript returns the transcript this consumer mutates.
func (c *Consumer) Transcript() *transcript.Transcript { return c.tr }

// State returns the current connection state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState records a connection state transition. Terminal states are
// sticky: once closed, a consumer never reopens.
func (c *Consumer) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosedTerminal || c.state == StateClosedError {
		return
	}
	c.state = s
}

// Cursor returns the highest event id seen so far, for resume.
func (c *Consumer) Cursor() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// LastActivity returns the arrival time of the most recent event.
func (c *Consumer) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Touch resets the activity clock, marking this instant as the last time
// the stream proved itself alive.
func (c *Consumer) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

// DoneSeen reports whether a terminal done event has been applied.
func (c *Consumer) DoneSeen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doneSeen
}

// Detach permanently disables the consumer. Called when the active
// session changes; any event still in flight from the old subscription is
// dropped instead of corrupting the new session's transcript.
func (c *Consumer) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
}

// Apply folds one event into the transcript. sessionID is the id captured
// at subscription time; an event from a superseded subscription is
// discarded. Malformed payloads are logged and dropped.
func (c *Consumer) Apply(sessionID string, ev Event) {
	c.mu.Lock()
	if c.detached || sessionID != c.session {
		c.mu.Unlock()
		return
	}
	if ev.ID > c.cursor {
		c.cursor = ev.ID
	}
	c.lastActivity = time.Now()
	c.mu.Unlock()

	switch ev.Type {
	case EventText:
		var p textPayload
		if !c.decode(ev, &p) {
			return
		}
		c.tr.AppendContent(p.Content)
		c.notifyTranscript()

	case EventThinking:
		var p textPayload
		if !c.decode(ev, &p) {
			return
		}
		c.tr.AppendThinking(p.Content)
		c.notifyTranscript()

	case EventToolCall:
		var p toolCallPayload
		if !c.decode(ev, &p) {
			return
		}
		c.tr.AddToolCall(p.ID, p.Name)
		c.notifyTranscript()
		c.notifyStatus(fmt.Sprintf("Running %s", p.Name))

	case EventToolResult:
		var p toolResultPayload
		if !c.decode(ev, &p) {
			return
		}
		dur := time.Duration(p.DurationMs) * time.Millisecond
		tc := c.tr.ResolveToolCall(p.ID, p.Content, p.Success, dur)
		if tc == nil {
			// Result for a call this view never saw; nothing to attach.
			return
		}
		c.notifyTranscript()
		c.notifyStatus(toolResultLabel(toolName(p, tc), p.Success, p.DurationMs))

	case EventTurn:
		var p turnPayload
		if !c.decode(ev, &p) {
			return
		}
		c.tr.SetTurn(p.Current, p.Max)
		c.notifyTranscript()

	case EventCompaction:
		var p compactionPayload
		if !c.decode(ev, &p) {
			return
		}
		c.tr.SetCompaction(p.Strategy, p.BeforeTokens, p.AfterTokens)
		c.notifyTranscript()

	case EventStatus:
		var p statusPayload
		if !c.decode(ev, &p) {
			return
		}
		c.notifyStatus(StatusLabel(p.Status))

	case EventWorkspaceChanged:
		var p workspaceChangedPayload
		if !c.decode(ev, &p) {
			return
		}
		if c.hooks.OnWorkspaceChanged != nil {
			c.hooks.OnWorkspaceChanged(p.ToolName)
		}

	case EventGoalStart, EventGoalComplete, EventPivot, EventGoalAbandoned:
		var p goalPayload
		if !c.decode(ev, &p) {
			return
		}
		if c.hooks.OnGoal != nil {
			c.hooks.OnGoal(GoalUpdate{
				Kind:         ev.Type,
				GoalID:       p.GoalID,
				Title:        p.Title,
				Depth:        p.Depth,
				Signal:       p.Signal,
				Reason:       p.Reason,
				FromApproach: p.FromApproach,
				ToApproach:   p.ToApproach,
				Learnings:    p.Learnings,
			})
		}

	case EventSessionID:
		// Informational; the session id is already known.

	case EventDone:
		var p donePayload
		// A done frame with an unreadable payload still terminates.
		_ = c.decode(ev, &p)
		c.tr.CompleteStreaming(p.Error)

		c.mu.Lock()
		c.doneSeen = true
		c.state = StateClosedTerminal
		c.mu.Unlock()

		c.notifyTranscript()
		if c.hooks.OnDone != nil {
			c.hooks.OnDone(p.Status, p.Error)
		}

	default:
		// Unknown event kinds are forward-compatibility noise.
	}
}

func (c *Consumer) decode(ev Event, v any) bool {
	if err := json.Unmarshal(ev.Data, v); err != nil {
		if c.logger != nil {
			_ = c.logger.Append(applog.LogEvent{
				Event:     applog.EventBadPayload,
				SessionID: c.session,
				Kind:      ev.Type,
				Error:     err.Error(),
			})
		}
		return false
	}
	return true
}

func (c *Consumer) notifyTranscript() {
	if c.hooks.OnTranscript != nil {
		c.hooks.OnTranscript()
	}
}

func (c *Consumer) notifyStatus(label string) {
	if label != "" && c.hooks.OnStatus != nil {
		c.hooks.OnStatus(label)
	}
}

func toolName(p toolResultPayload, tc *transcript.ToolCall) string {
	if p.Name != "" {
		return p.Name
	}
	if tc.Name != "" {
		return tc.Name
	}
	return "tool"
}

func toolResultLabel(name string, success bool, durationMs int64) string {
	verb := "completed"
	if !success {
		verb = "failed"
	}
	if durationMs > 0 {
		return fmt.Sprintf("%s %s (%dms)", name, verb, durationMs)
	}
	return fmt.Sprintf("%s %s", name, verb)
}

// StatusLabel maps the server's free-text execution phases to the small
// fixed label set shown in the UI. Unrecognized phases pass through.
func StatusLabel(status string) string {
	switch status {
	case "running":
		return "Agent running"
	case "calling model", "calling_model":
		return "Calling model"
	case "executing tools", "executing_tools":
		return "Running tools"
	case "compacting context", "compacting_context":
		return "Compacting context"
	}
	return status
}
