// Package stream consumes the per-session server-push event stream and
// applies each event to the in-memory transcript.
package stream

// Wire event names, fixed by the backend contract.
const (
	EventText             = "text"
	EventThinking         = "thinking"
	EventToolCall         = "toolcall"
	EventToolResult       = "toolresult"
	EventTurn             = "turn"
	EventCompaction       = "compaction"
	EventStatus           = "status"
	EventWorkspaceChanged = "workspace_changed"
	EventSessionID        = "session_id"
	EventDone             = "done"
	EventGoalStart        = "goal_start"
	EventGoalComplete     = "goal_complete"
	EventPivot            = "pivot"
	EventGoalAbandoned    = "goal_abandoned"
)

// Event is one frame off the push stream. ID is the server-assigned
// replay cursor; zero when the frame carried none.
type Event struct {
	Type string
	ID   uint64
	Data []byte
}

// Payload shapes, matching the backend's serialized event variants.

type textPayload struct {
	Content string `json:"content"`
}

type toolCallPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type toolResultPayload struct {
	ID         string `json:"id"`
	Success    bool   `json:"success"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

type turnPayload struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

type compactionPayload struct {
	Strategy     string `json:"strategy"`
	BeforeTokens int    `json:"before_tokens"`
	AfterTokens  int    `json:"after_tokens"`
}

type statusPayload struct {
	Status string `json:"status"`
}

type workspaceChangedPayload struct {
	ToolName string `json:"tool_name"`
}

type donePayload struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type goalPayload struct {
	GoalID       string `json:"goal_id"`
	Title        string `json:"title,omitempty"`
	Depth        int    `json:"depth,omitempty"`
	Signal       string `json:"signal,omitempty"`
	Reason       string `json:"reason,omitempty"`
	FromApproach string `json:"from_approach,omitempty"`
	ToApproach   string `json:"to_approach,omitempty"`
	Learnings    string `json:"learnings,omitempty"`
}

// GoalUpdate is a mission goal lifecycle notification, applied to the
// goal tree rather than the transcript.
type GoalUpdate struct {
	Kind         string // goal_start | goal_complete | pivot | goal_abandoned
	GoalID       string
	Title        string
	Depth        int
	Signal       string
	Reason       string
	FromApproach string
	ToApproach   string
	Learnings    string
}
