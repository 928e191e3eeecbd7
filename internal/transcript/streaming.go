package transcript

import (
	"strings"
	"time"
)

// noOutputPlaceholder is shown when a turn finished without producing any
// readable content.
const noOutputPlaceholder = "Completed (no output)"

// AppendContent appends a text delta to the streaming tail.
func (t *Transcript) AppendContent(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streamingTailLocked().Content += delta
}

// AppendThinking appends a thinking delta to the streaming tail.
func (t *Transcript) AppendThinking(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streamingTailLocked().Thinking += delta
}

// AddToolCall records the start of a tool invocation on the streaming tail.
func (t *Transcript) AddToolCall(id, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tail := t.streamingTailLocked()
	tail.ToolCalls = append(tail.ToolCalls, &ToolCall{ID: id, Name: name})
}

// ResolveToolCall attaches the result to the matching tool call and
// returns it. Returns nil when no call with that id exists; a result for
// an unknown id is dropped by the caller.
func (t *Transcript) ResolveToolCall(id, result string, success bool, duration time.Duration) *ToolCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.messages) - 1; i >= 0; i-- {
		if tc := t.messages[i].ToolCallByID(id); tc != nil {
			tc.Result = result
			tc.Success = success
			tc.Done = true
			tc.Duration = duration
			return tc
		}
	}
	return nil
}

// SetTurn attaches round-counter progress to the streaming tail.
func (t *Transcript) SetTurn(current, max int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streamingTailLocked().Turn = &TurnInfo{Current: current, Max: max}
}

// SetCompaction attaches compaction metadata to the streaming tail.
func (t *Transcript) SetCompaction(strategy string, before, after int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streamingTailLocked().Compaction = &CompactionInfo{
		Strategy:     strategy,
		BeforeTokens: before,
		AfterTokens:  after,
	}
}

// CompleteStreaming ends the streaming tail on a terminal event. A turn
// that errored with no content shows the error text; a turn that produced
// nothing readable at all gets a fixed placeholder. Idempotent: a second
// call on a settled transcript changes nothing.
func (t *Transcript) CompleteStreaming(errText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.messages)
	if n == 0 {
		return
	}
	tail := t.messages[n-1]
	if !tail.Streaming {
		return
	}
	if errText != "" && strings.TrimSpace(tail.Content) == "" {
		tail.Content = errText
	}
	if tail.Empty() {
		tail.Content = noOutputPlaceholder
	}
	tail.Streaming = false
}
