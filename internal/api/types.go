// Package api is the HTTP client for the team platform's agent API:
// chat sessions, missions, and their event streams.
package api

import "time"

// SessionSnapshot is the authoritative persisted state of one chat
// session, as returned by GET /sessions/{id}. MessagesJSON is the
// serialized history blob; the transcript package decodes it.
type SessionSnapshot struct {
	SessionID          string    `json:"session_id"`
	TeamID             string    `json:"team_id,omitempty"`
	AgentID            string    `json:"agent_id"`
	UserID             string    `json:"user_id,omitempty"`
	Name               string    `json:"name,omitempty"`
	Title              string    `json:"title,omitempty"`
	Status             string    `json:"status,omitempty"`
	MessagesJSON       string    `json:"messages_json"`
	MessageCount       int       `json:"message_count,omitempty"`
	TotalTokens        int64     `json:"total_tokens,omitempty"`
	InputTokens        int64     `json:"input_tokens,omitempty"`
	OutputTokens       int64     `json:"output_tokens,omitempty"`
	CompactionCount    int       `json:"compaction_count,omitempty"`
	Pinned             bool      `json:"pinned,omitempty"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	IsProcessing       bool      `json:"is_processing"`
	WorkspacePath      string    `json:"workspace_path,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SessionListItem is one row of GET /sessions.
type SessionListItem struct {
	SessionID          string    `json:"session_id"`
	AgentID            string    `json:"agent_id"`
	Title              string    `json:"title,omitempty"`
	Status             string    `json:"status,omitempty"`
	Pinned             bool      `json:"pinned,omitempty"`
	IsProcessing       bool      `json:"is_processing"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	MessageCount       int       `json:"message_count,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CreateSessionRequest creates a chat session bound to one agent.
type CreateSessionRequest struct {
	AgentID           string   `json:"agent_id"`
	ExtraInstructions string   `json:"extra_instructions,omitempty"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
	MaxTurns          int      `json:"max_turns,omitempty"`
}

// CreateSessionResponse acknowledges session creation.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Status    string `json:"status"`
}

// SendMessageRequest submits one user message for execution.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse acknowledges a message send; Streaming signals that
// the caller should attach to the event stream.
type SendMessageResponse struct {
	SessionID string `json:"session_id"`
	Streaming bool   `json:"streaming"`
}

// UpdateSessionRequest renames or pins a session.
type UpdateSessionRequest struct {
	Title  *string `json:"title,omitempty"`
	Pinned *bool   `json:"pinned,omitempty"`
}

// CreateMissionRequest creates a mission for an agent.
type CreateMissionRequest struct {
	AgentID        string `json:"agent_id"`
	Goal           string `json:"goal"`
	Context        string `json:"context,omitempty"`
	ExecutionMode  string `json:"execution_mode,omitempty"`
	ApprovalPolicy string `json:"approval_policy,omitempty"`
	TokenBudget    int64  `json:"token_budget,omitempty"`
}

// GoalActionRequest carries optional feedback for goal-level approvals
// and pivots.
type GoalActionRequest struct {
	Feedback            string `json:"feedback,omitempty"`
	AlternativeApproach string `json:"alternative_approach,omitempty"`
}
