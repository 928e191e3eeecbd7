package transcript

import (
	"encoding/json"
	"strings"
	"time"
)

// Load rebuilds a transcript from the persisted messages_json blob of a
// session snapshot. When the server reports the session as still
// processing, the returned transcript is guaranteed to end with a
// streaming assistant placeholder so a live stream always has an append
// target. Load never fails: malformed history yields an empty transcript.
func Load(messagesJSON string, processing bool) *Transcript {
	t := New()
	t.messages = Normalize([]byte(messagesJSON))
	if processing {
		t.EnsureStreamingTail()
	}
	return t
}

// Normalize decodes a persisted message array into transcript messages.
// The history format is loosely typed and has accumulated several shapes
// over time; anything unrecognized is dropped rather than guessed at.
func Normalize(raw []byte) []*Message {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	var out []*Message
	for _, item := range items {
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		if m := normalizeMessage(obj); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// normalizeMessage converts one raw history entry, or returns nil when the
// entry has no recognizable role or nothing visible to show.
func normalizeMessage(obj map[string]any) *Message {
	role, ok := normalizeRole(obj)
	if !ok {
		return nil
	}
	if !userVisible(obj) {
		return nil
	}

	m := &Message{Role: role, CreatedAt: extractCreated(obj)}
	extractContent(obj["content"], m)

	// Legacy tagged-union entries nest the payload under the role key.
	if m.Empty() {
		for _, key := range []string{"User", "Assistant"} {
			if inner, ok := obj[key].(map[string]any); ok {
				extractContent(inner["content"], m)
				if m.Empty() {
					extractContent(inner, m)
				}
			}
		}
	}

	if m.Empty() {
		return nil
	}
	return m
}

// normalizeRole resolves the message role from its several historical
// encodings: a bare string, an object with a role field, or the legacy
// tagged-union form keyed by "User"/"Assistant".
func normalizeRole(obj map[string]any) (Role, bool) {
	switch v := obj["role"].(type) {
	case string:
		return roleFromString(v)
	case map[string]any:
		if s, ok := v["role"].(string); ok {
			return roleFromString(s)
		}
	}
	if _, ok := obj["User"]; ok {
		return RoleUser, true
	}
	if _, ok := obj["Assistant"]; ok {
		return RoleAssistant, true
	}
	return "", false
}

func roleFromString(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, true
	case "assistant":
		return RoleAssistant, true
	}
	return "", false
}

// userVisible applies the metadata visibility flag. Missing metadata means
// visible.
func userVisible(obj map[string]any) bool {
	meta, ok := obj["metadata"].(map[string]any)
	if !ok {
		return true
	}
	for _, key := range []string{"user_visible", "userVisible"} {
		if v, ok := meta[key].(bool); ok {
			return v
		}
	}
	return true
}

// extractContent pulls text, thinking, and tool-call descriptors out of
// the polymorphic content field and applies them to m. Unknown block
// types are skipped.
func extractContent(content any, m *Message) {
	switch v := content.(type) {
	case string:
		appendText(m, v)
	case []any:
		for _, block := range v {
			b, ok := block.(map[string]any)
			if !ok {
				continue
			}
			extractBlock(b, m)
		}
	case map[string]any:
		if s, ok := v["text"].(string); ok {
			appendText(m, s)
		} else if s, ok := v["msg"].(string); ok {
			appendText(m, s)
		}
	}
}

func extractBlock(b map[string]any, m *Message) {
	typ, _ := b["type"].(string)
	switch typ {
	case "text", "system-notification":
		if s, ok := b["text"].(string); ok {
			appendText(m, s)
		} else if s, ok := b["msg"].(string); ok {
			appendText(m, s)
		}
	case "thinking":
		for _, key := range []string{"thinking", "text"} {
			if s, ok := b[key].(string); ok && s != "" {
				if m.Thinking != "" {
					m.Thinking += "\n"
				}
				m.Thinking += s
				return
			}
		}
	case "tool-use", "toolRequest", "tool_use":
		if tc := extractToolUse(b); tc != nil {
			m.ToolCalls = append(m.ToolCalls, tc)
		}
	}
}

func extractToolUse(b map[string]any) *ToolCall {
	id, _ := b["id"].(string)
	name, _ := b["name"].(string)
	if name == "" {
		// toolRequest variants nest the call description.
		if call, ok := b["toolCall"].(map[string]any); ok {
			if value, ok := call["value"].(map[string]any); ok {
				name, _ = value["name"].(string)
			} else {
				name, _ = call["name"].(string)
			}
		}
	}
	if id == "" && name == "" {
		return nil
	}
	return &ToolCall{ID: id, Name: name}
}

func appendText(m *Message, s string) {
	if s == "" {
		return
	}
	if m.Content != "" {
		m.Content += "\n"
	}
	m.Content += s
}

// extractCreated reads the creation timestamp when present. The history
// stores it either as RFC 3339 or as unix seconds.
func extractCreated(obj map[string]any) time.Time {
	switch v := obj["created"].(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
	case float64:
		if v > 0 {
			return time.Unix(int64(v), 0)
		}
	}
	return time.Time{}
}
