package mission

import (
	"testing"

	"github.com/agime-dev/agimectl/internal/stream"
)

func TestStatusGating(t *testing.T) {
	tests := []struct {
		status    Status
		canStart  bool
		canPause  bool
		canCancel bool
		canDelete bool
	}{
		{StatusDraft, false, false, false, true},
		{StatusPlanning, false, false, true, false},
		{StatusPlanned, true, false, true, true},
		{StatusRunning, false, true, true, false},
		{StatusPaused, true, false, true, true},
		{StatusCompleted, false, false, false, true},
		{StatusFailed, false, false, false, true},
		{StatusCancelled, false, false, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.CanStart(); got != tt.canStart {
				t.Errorf("CanStart = %v, want %v", got, tt.canStart)
			}
			if got := tt.status.CanPause(); got != tt.canPause {
				t.Errorf("CanPause = %v, want %v", got, tt.canPause)
			}
			if got := tt.status.CanCancel(); got != tt.canCancel {
				t.Errorf("CanCancel = %v, want %v", got, tt.canCancel)
			}
			if got := tt.status.CanDelete(); got != tt.canDelete {
				t.Errorf("CanDelete = %v, want %v", got, tt.canDelete)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false", s)
		}
	}
	for _, s := range []Status{StatusDraft, StatusPlanning, StatusPlanned, StatusRunning, StatusPaused} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true", s)
		}
	}
}

func TestTrackerGoalLifecycle(t *testing.T) {
	m := &Mission{
		MissionID:     "m1",
		ExecutionMode: ModeAdaptive,
		GoalTree: []GoalNode{
			{GoalID: "g1", Title: "Research", Status: GoalPending},
			{GoalID: "g2", Title: "Build", Status: GoalPending},
		},
	}
	tr := NewTracker(m)

	tr.Apply(stream.GoalUpdate{Kind: stream.EventGoalStart, GoalID: "g1"})
	if got := tr.Mission(); got.GoalTree[0].Status != GoalRunning || got.CurrentGoalID != "g1" {
		t.Errorf("after start: %+v", got.GoalTree[0])
	}

	tr.Apply(stream.GoalUpdate{Kind: stream.EventGoalComplete, GoalID: "g1", Signal: "advancing"})
	if got := tr.Mission(); got.GoalTree[0].Status != GoalCompleted {
		t.Errorf("after complete: %+v", got.GoalTree[0])
	}

	tr.Apply(stream.GoalUpdate{Kind: stream.EventPivot, GoalID: "g2", Learnings: "approach a too slow"})
	got := tr.Mission()
	if got.GoalTree[1].Status != GoalPivoting || got.TotalPivots != 1 {
		t.Errorf("after pivot: %+v pivots=%d", got.GoalTree[1], got.TotalPivots)
	}

	tr.Apply(stream.GoalUpdate{Kind: stream.EventGoalAbandoned, GoalID: "g2", Reason: "dead end"})
	got = tr.Mission()
	if got.GoalTree[1].Status != GoalAbandoned || got.TotalAbandoned != 1 {
		t.Errorf("after abandon: %+v abandoned=%d", got.GoalTree[1], got.TotalAbandoned)
	}
}

func TestTrackerUnknownGoalAppends(t *testing.T) {
	tr := NewTracker(&Mission{MissionID: "m1", ExecutionMode: ModeAdaptive})

	tr.Apply(stream.GoalUpdate{Kind: stream.EventGoalStart, GoalID: "g9", Title: "Surprise", Depth: 1})

	got := tr.Mission()
	if len(got.GoalTree) != 1 {
		t.Fatalf("tree size = %d, want 1", len(got.GoalTree))
	}
	n := got.GoalTree[0]
	if n.GoalID != "g9" || n.Title != "Surprise" || n.Depth != 1 || n.Status != GoalRunning {
		t.Errorf("appended node = %+v", n)
	}
}
