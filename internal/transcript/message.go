// Package transcript holds the in-memory message history for one chat
// session or mission and rebuilds it from the server's persisted form.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall records one tool invocation inside an assistant turn. It is
// created when the call starts and completed when the matching result
// arrives. A call that never receives a result is a valid terminal state:
// the tool failed or the turn was cancelled mid-flight.
type ToolCall struct {
	ID       string
	Name     string
	Result   string
	Done     bool
	Success  bool
	Duration time.Duration // zero when the server reported no duration
}

// TurnInfo carries round-counter progress attached to a streaming message.
type TurnInfo struct {
	Current int
	Max     int
}

// CompactionInfo records a context-window compaction that happened during
// the turn.
type CompactionInfo struct {
	Strategy     string
	BeforeTokens int
	AfterTokens  int
}

// Message is one entry in a transcript. Content and Thinking are
// append-only while Streaming is true.
type Message struct {
	Role       Role
	Content    string
	Thinking   string
	ToolCalls  []*ToolCall
	Turn       *TurnInfo
	Compaction *CompactionInfo
	Streaming  bool
	CreatedAt  time.Time
}

// ToolCallByID returns the tool call with the given id, or nil.
func (m *Message) ToolCallByID(id string) *ToolCall {
	for _, tc := range m.ToolCalls {
		if tc.ID == id {
			return tc
		}
	}
	return nil
}

// Empty reports whether the message has no visible content at all.
func (m *Message) Empty() bool {
	return strings.TrimSpace(m.Content) == "" &&
		strings.TrimSpace(m.Thinking) == "" &&
		len(m.ToolCalls) == 0
}

// Transcript is the ordered message list for one session. At most one
// message is streaming at a time and it is always the last one. All
// methods are safe for concurrent use.
type Transcript struct {
	mu       sync.Mutex
	messages []*Message
}

// New returns an empty transcript.
func New() *Transcript {
	return &Transcript{}
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Messages returns a copy of the message slice. The pointed-to messages
// are shared; callers must treat them as read-only.
func (t *Transcript) Messages() []*Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Append adds a message to the end of the transcript.
func (t *Transcript) Append(m *Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, m)
}

// AppendUser appends a user message with the given content.
func (t *Transcript) AppendUser(content string) {
	t.Append(&Message{Role: RoleUser, Content: content, CreatedAt: time.Now()})
}

// StreamingTail returns the trailing streaming message, appending a fresh
// assistant placeholder if none exists. The placeholder reuses the last
// message when it is already the streaming tail, so a reload mid-execution
// and a live stream converge on the same append target.
func (t *Transcript) StreamingTail() *Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streamingTailLocked()
}

func (t *Transcript) streamingTailLocked() *Message {
	if n := len(t.messages); n > 0 {
		last := t.messages[n-1]
		if last.Streaming {
			return last
		}
	}
	m := &Message{Role: RoleAssistant, Streaming: true, CreatedAt: time.Now()}
	t.messages = append(t.messages, m)
	return m
}

// EnsureStreamingTail marks the last assistant message as streaming, or
// synthesizes an empty streaming placeholder when the transcript is empty
// or ends with a user message. Used by the loader when the server reports
// the session as still processing.
func (t *Transcript) EnsureStreamingTail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.messages); n > 0 {
		last := t.messages[n-1]
		if last.Role == RoleAssistant {
			last.Streaming = true
			return
		}
	}
	t.messages = append(t.messages, &Message{
		Role:      RoleAssistant,
		Streaming: true,
		CreatedAt: time.Now(),
	})
}

// FinishStreaming flips the trailing streaming message (if any) to
// not-streaming. Safe to call repeatedly; calling it on an already settled
// transcript is a no-op.
func (t *Transcript) FinishStreaming() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.messages); n > 0 {
		t.messages[n-1].Streaming = false
	}
}

// Replace swaps the entire message list for the given one. Used when
// authoritative persisted state supersedes the in-memory view.
func (t *Transcript) Replace(messages []*Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = messages
}

// Merge appends any messages beyond the current length. Persisted history
// is append-only on the server, so newly persisted entries are exactly the
// tail past what is already held. An empty or shorter persisted list never
// clobbers in-memory content. A streaming tail the server has already
// persisted is settled in place rather than duplicated after its own
// persisted form.
func (t *Transcript) Merge(persisted []*Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.messages)
	if len(persisted) <= n {
		return
	}
	if n > 0 && t.messages[n-1].Streaming {
		tail := t.messages[n-1]
		counterpart := persisted[n-1]
		if counterpart.Role == tail.Role && strings.HasPrefix(counterpart.Content, tail.Content) {
			// The persisted entry at the tail's own index extends what has
			// streamed so far: same message, server-side form. Adopt it.
			tail.Content = counterpart.Content
			if strings.TrimSpace(tail.Thinking) == "" {
				tail.Thinking = counterpart.Thinking
			}
			tail.Streaming = false
			t.messages = append(t.messages, persisted[n:]...)
			return
		}
		// A turn the server has not persisted yet stays last.
		t.messages = t.messages[:n-1]
		t.messages = append(t.messages, persisted[n-1:]...)
		t.messages = append(t.messages, tail)
		return
	}
	t.messages = append(t.messages, persisted[n:]...)
}

// RemoveLast removes and returns the last message, or nil when the
// transcript is empty. Used to take back an optimistic append when a
// send fails before processing ever starts.
func (t *Transcript) RemoveLast() *Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.messages)
	if n == 0 {
		return nil
	}
	m := t.messages[n-1]
	t.messages = t.messages[:n-1]
	return m
}

// HasStreaming reports whether the transcript currently has a streaming
// tail message.
func (t *Transcript) HasStreaming() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.messages)
	return n > 0 && t.messages[n-1].Streaming
}
