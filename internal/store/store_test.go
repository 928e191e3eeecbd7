package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/agime-dev/agimectl/internal/api"
	"github.com/agime-dev/agimectl/internal/mission"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGetSession(t *testing.T) {
	s := openTestStore(t)

	snap := &api.SessionSnapshot{
		SessionID:          "sess-1",
		AgentID:            "agent-7",
		Title:              "Quarterly report",
		LastMessagePreview: "Here is the summary...",
		IsProcessing:       true,
		TotalTokens:        1234,
		UpdatedAt:          time.Now(),
		MessagesJSON:       `[{"role":"user","content":"write the report"},{"role":"assistant","content":"Here is the summary..."}]`,
	}
	if err := s.SaveSession(snap); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetSession returned nil for cached session")
	}
	if got.AgentID != "agent-7" {
		t.Errorf("AgentID: got %q, want %q", got.AgentID, "agent-7")
	}
	if !got.IsProcessing {
		t.Error("IsProcessing not preserved")
	}

	msgs, err := s.GetMessages("sess-1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("cached messages: got %d, want 2", len(msgs))
	}
	if msgs[0].Content != "write the report" {
		t.Errorf("first message: got %q, want %q", msgs[0].Content, "write the report")
	}
}

func TestGetSessionMissing(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for uncached session, got %+v", got)
	}
}

func TestSaveSessionReplacesTranscript(t *testing.T) {
	s := openTestStore(t)

	snap := &api.SessionSnapshot{
		SessionID:    "sess-1",
		MessagesJSON: `[{"role":"user","content":"one"}]`,
	}
	if err := s.SaveSession(snap); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	snap.MessagesJSON = `[{"role":"user","content":"one"},{"role":"assistant","content":"two"}]`
	if err := s.SaveSession(snap); err != nil {
		t.Fatalf("second SaveSession failed: %v", err)
	}

	msgs, err := s.GetMessages("sess-1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("cached messages after refresh: got %d, want 2", len(msgs))
	}
}

func TestListSessionsOrder(t *testing.T) {
	s := openTestStore(t)

	older := &api.SessionSnapshot{SessionID: "old", UpdatedAt: time.Now().Add(-time.Hour)}
	newer := &api.SessionSnapshot{SessionID: "new", UpdatedAt: time.Now()}
	if err := s.SaveSession(older); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := s.SaveSession(newer); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	list, err := s.ListSessions(10)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 2 || list[0].SessionID != "new" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestDeleteSession(t *testing.T) {
	s := openTestStore(t)

	snap := &api.SessionSnapshot{
		SessionID:    "sess-1",
		MessagesJSON: `[{"role":"user","content":"hi"}]`,
	}
	if err := s.SaveSession(snap); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := s.DeleteSession("sess-1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Fatal("session still cached after delete")
	}
	msgs, err := s.GetMessages("sess-1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("messages still cached after delete: %d", len(msgs))
	}
}

func TestSearchMessages(t *testing.T) {
	s := openTestStore(t)

	snap := &api.SessionSnapshot{
		SessionID:    "sess-1",
		UpdatedAt:    time.Now(),
		MessagesJSON: `[{"role":"user","content":"find the deployment runbook"},{"role":"assistant","content":"The runbook lives in ops/"}]`,
	}
	if err := s.SaveSession(snap); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	hits, err := s.SearchMessages("runbook", 10)
	if err != nil {
		t.Fatalf("SearchMessages failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("search hits: got %d, want 2", len(hits))
	}
	if hits[0].SessionID != "sess-1" {
		t.Errorf("hit session: got %q, want %q", hits[0].SessionID, "sess-1")
	}

	hits, err = s.SearchMessages("nonexistent", 10)
	if err != nil {
		t.Fatalf("SearchMessages failed: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestMissionUpsert(t *testing.T) {
	s := openTestStore(t)

	m := &mission.Mission{
		MissionID:     "mis-1",
		Goal:          "Ship the landing page",
		Status:        mission.StatusRunning,
		ExecutionMode: mission.ModeAdaptive,
	}
	if err := s.SaveMission(m); err != nil {
		t.Fatalf("SaveMission failed: %v", err)
	}

	m.Status = mission.StatusCompleted
	m.TotalPivots = 2
	if err := s.SaveMission(m); err != nil {
		t.Fatalf("second SaveMission failed: %v", err)
	}

	list, err := s.ListMissions(10)
	if err != nil {
		t.Fatalf("ListMissions failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("missions: got %d, want 1", len(list))
	}
	if list[0].Status != mission.StatusCompleted {
		t.Errorf("status: got %q, want %q", list[0].Status, mission.StatusCompleted)
	}
	if list[0].TotalPivots != 2 {
		t.Errorf("pivots: got %d, want 2", list[0].TotalPivots)
	}
}
