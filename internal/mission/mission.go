// Package mission models autonomous multi-step missions: the mission
// record served by the backend, the goal tree used in adaptive execution,
// and the status gating for user actions.
package mission

import "time"

// Status is the mission lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPlanning  Status = "planning"
	StatusPlanned   Status = "planned"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StepStatus is the state of one planned step.
type StepStatus string

const (
	StepPending          StepStatus = "pending"
	StepAwaitingApproval StepStatus = "awaiting_approval"
	StepRunning          StepStatus = "running"
	StepCompleted        StepStatus = "completed"
	StepFailed           StepStatus = "failed"
	StepSkipped          StepStatus = "skipped"
)

// GoalStatus is the state of one goal node in adaptive execution.
type GoalStatus string

const (
	GoalPending          GoalStatus = "pending"
	GoalRunning          GoalStatus = "running"
	GoalAwaitingApproval GoalStatus = "awaiting_approval"
	GoalCompleted        GoalStatus = "completed"
	GoalPivoting         GoalStatus = "pivoting"
	GoalAbandoned        GoalStatus = "abandoned"
	GoalFailed           GoalStatus = "failed"
)

// ExecutionMode selects sequential steps or the adaptive goal tree.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeAdaptive   ExecutionMode = "adaptive"
)

// ApprovalPolicy controls when execution pauses for a human.
type ApprovalPolicy string

const (
	ApprovalAuto       ApprovalPolicy = "auto"
	ApprovalCheckpoint ApprovalPolicy = "checkpoint"
	ApprovalManual     ApprovalPolicy = "manual"
)

// Step is one planned mission step.
type Step struct {
	Index         int        `json:"index"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        StepStatus `json:"status"`
	IsCheckpoint  bool       `json:"is_checkpoint,omitempty"`
	ApprovedBy    string     `json:"approved_by,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	TokensUsed    int        `json:"tokens_used,omitempty"`
	OutputSummary string     `json:"output_summary,omitempty"`
	RetryCount    int        `json:"retry_count,omitempty"`
}

// GoalNode is one node of the adaptive goal tree.
type GoalNode struct {
	GoalID          string     `json:"goal_id"`
	ParentID        string     `json:"parent_id,omitempty"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	SuccessCriteria string     `json:"success_criteria,omitempty"`
	Status          GoalStatus `json:"status"`
	Depth           int        `json:"depth"`
	Order           int        `json:"order"`
	OutputSummary   string     `json:"output_summary,omitempty"`
	PivotReason     string     `json:"pivot_reason,omitempty"`
	IsCheckpoint    bool       `json:"is_checkpoint,omitempty"`
}

// Mission is the full mission record returned by GET /missions/{id}.
type Mission struct {
	MissionID           string         `json:"mission_id"`
	TeamID              string         `json:"team_id"`
	AgentID             string         `json:"agent_id"`
	CreatorID           string         `json:"creator_id,omitempty"`
	Goal                string         `json:"goal"`
	Context             string         `json:"context,omitempty"`
	Status              Status         `json:"status"`
	ApprovalPolicy      ApprovalPolicy `json:"approval_policy,omitempty"`
	Steps               []Step         `json:"steps,omitempty"`
	CurrentStep         *int           `json:"current_step,omitempty"`
	SessionID           string         `json:"session_id,omitempty"`
	SourceChatSessionID string         `json:"source_chat_session_id,omitempty"`
	TokenBudget         int64          `json:"token_budget,omitempty"`
	TotalTokensUsed     int64          `json:"total_tokens_used,omitempty"`
	ExecutionMode       ExecutionMode  `json:"execution_mode,omitempty"`
	GoalTree            []GoalNode     `json:"goal_tree,omitempty"`
	CurrentGoalID       string         `json:"current_goal_id,omitempty"`
	TotalPivots         int            `json:"total_pivots,omitempty"`
	TotalAbandoned      int            `json:"total_abandoned,omitempty"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	FinalSummary        string         `json:"final_summary,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Terminal reports whether the mission can no longer change on its own.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanStart reports whether a start action is valid in this state.
func (s Status) CanStart() bool {
	return s == StatusPlanned || s == StatusPaused
}

// CanPause reports whether a pause action is valid in this state.
func (s Status) CanPause() bool {
	return s == StatusRunning
}

// CanCancel reports whether a cancel action is valid in this state.
func (s Status) CanCancel() bool {
	switch s {
	case StatusPlanning, StatusPlanned, StatusRunning, StatusPaused:
		return true
	}
	return false
}

// CanDelete reports whether a delete action is valid in this state.
// Running and planning missions must be cancelled first.
func (s Status) CanDelete() bool {
	return s != StatusRunning && s != StatusPlanning
}
