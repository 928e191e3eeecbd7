package mission

import (
	"sync"

	"github.com/agime-dev/agimectl/internal/stream"
)

// Tracker applies goal lifecycle events from a mission stream onto the
// goal tree, in parallel to the transcript. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	mission *Mission
	byID    map[string]*GoalNode
}

// NewTracker wraps the given mission record. The record is owned by the
// tracker from here on.
func NewTracker(m *Mission) *Tracker {
	t := &Tracker{mission: m, byID: make(map[string]*GoalNode, len(m.GoalTree))}
	for i := range m.GoalTree {
		t.byID[m.GoalTree[i].GoalID] = &m.GoalTree[i]
	}
	return t
}

// Mission returns a snapshot copy of the tracked record.
func (t *Tracker) Mission() Mission {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := *t.mission
	m.GoalTree = make([]GoalNode, len(t.mission.GoalTree))
	copy(m.GoalTree, t.mission.GoalTree)
	return m
}

// Apply folds one goal update into the tree. Unknown goal ids append a
// new node: in adaptive mode the server grows the tree as it explores,
// and the client's copy can lag behind.
func (t *Tracker) Apply(u stream.GoalUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node := t.byID[u.GoalID]
	if node == nil {
		t.mission.GoalTree = append(t.mission.GoalTree, GoalNode{
			GoalID: u.GoalID,
			Title:  u.Title,
			Depth:  u.Depth,
			Order:  len(t.mission.GoalTree),
		})
		node = &t.mission.GoalTree[len(t.mission.GoalTree)-1]
		t.rebuildIndexLocked()
	}

	switch u.Kind {
	case stream.EventGoalStart:
		node.Status = GoalRunning
		if u.Title != "" {
			node.Title = u.Title
		}
		t.mission.CurrentGoalID = u.GoalID
	case stream.EventGoalComplete:
		node.Status = GoalCompleted
		node.OutputSummary = u.Signal
	case stream.EventPivot:
		node.Status = GoalPivoting
		node.PivotReason = u.Learnings
		t.mission.TotalPivots++
	case stream.EventGoalAbandoned:
		node.Status = GoalAbandoned
		node.PivotReason = u.Reason
		t.mission.TotalAbandoned++
	}
}

// Refresh replaces the tracked record with a fresh authoritative copy.
func (t *Tracker) Refresh(m *Mission) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mission = m
	t.rebuildIndexLocked()
}

func (t *Tracker) rebuildIndexLocked() {
	t.byID = make(map[string]*GoalNode, len(t.mission.GoalTree))
	for i := range t.mission.GoalTree {
		t.byID[t.mission.GoalTree[i].GoalID] = &t.mission.GoalTree[i]
	}
}
