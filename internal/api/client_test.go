package api_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agime-dev/agimectl/internal/api"
	"github.com/agime-dev/agimectl/internal/mission"
	"github.com/agime-dev/agimectl/internal/stream"
	"github.com/agime-dev/agimectl/internal/testutil"
)

func startServer(t *testing.T) *testutil.Server {
	t.Helper()
	srv, err := testutil.NewServer()
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	go func() { _ = srv.Start() }()
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func TestSessionLifecycle(t *testing.T) {
	srv := startServer(t)
	client := api.New(srv.URL(), "test-token", 5*time.Second)
	ctx := context.Background()

	created, err := client.CreateSession(ctx, api.CreateSessionRequest{AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("created session has empty id")
	}

	resp, err := client.SendMessage(ctx, created.SessionID, "hello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if !resp.Streaming {
		t.Error("SendMessage response not streaming")
	}

	snap, err := client.GetSession(ctx, created.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !snap.IsProcessing {
		t.Error("session not processing after send")
	}

	if err := client.CancelSession(ctx, created.SessionID); err != nil {
		t.Fatalf("CancelSession failed: %v", err)
	}
	snap, err = client.GetSession(ctx, created.SessionID)
	if err != nil {
		t.Fatalf("GetSession after cancel failed: %v", err)
	}
	if snap.IsProcessing {
		t.Error("session still processing after cancel")
	}

	title := "renamed"
	pinned := true
	if err := client.UpdateSession(ctx, created.SessionID, api.UpdateSessionRequest{Title: &title, Pinned: &pinned}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	list, err := client.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 1 || list[0].Title != "renamed" || !list[0].Pinned {
		t.Fatalf("unexpected session list: %+v", list)
	}

	if err := client.DeleteSession(ctx, created.SessionID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
}

func TestNotFoundSurfacesAPIError(t *testing.T) {
	srv := startServer(t)
	client := api.New(srv.URL(), "", 5*time.Second)

	_, err := client.GetSession(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing session")
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *api.Error", err)
	}
	if apiErr.StatusCode != 404 {
		t.Errorf("status = %d, want 404", apiErr.StatusCode)
	}
}

func TestOpenStreamReplaysPastCursor(t *testing.T) {
	srv := startServer(t)
	client := api.New(srv.URL(), "", 5*time.Second)
	ctx := context.Background()

	srv.SeedSession(&api.SessionSnapshot{SessionID: "sess-1", IsProcessing: true, MessagesJSON: "[]"})
	srv.Script("sess-1",
		stream.Event{Type: stream.EventText, ID: 1, Data: []byte(`{"content":"a"}`)},
		stream.Event{Type: stream.EventText, ID: 2, Data: []byte(`{"content":"b"}`)},
		stream.Event{Type: stream.EventDone, ID: 3, Data: []byte(`{"status":"completed"}`)},
	)

	src, err := client.OpenStream(ctx, "sess-1", 1)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer src.Close()

	var got []uint64
	for src.Next() {
		got = append(got, src.Current().ID)
	}
	if err := src.Err(); err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("replayed ids = %v, want [2 3]", got)
	}
}

func TestMissionLifecycle(t *testing.T) {
	srv := startServer(t)
	client := api.New(srv.URL(), "", 5*time.Second)
	ctx := context.Background()

	m, err := client.CreateMission(ctx, api.CreateMissionRequest{
		AgentID:       "agent-1",
		Goal:          "refresh the docs",
		ExecutionMode: string(mission.ModeAdaptive),
	})
	if err != nil {
		t.Fatalf("CreateMission failed: %v", err)
	}
	if m.Status != mission.StatusDraft {
		t.Fatalf("new mission status = %q, want %q", m.Status, mission.StatusDraft)
	}

	if err := client.StartMission(ctx, m.MissionID); err != nil {
		t.Fatalf("StartMission failed: %v", err)
	}
	got, err := client.GetMission(ctx, m.MissionID)
	if err != nil {
		t.Fatalf("GetMission failed: %v", err)
	}
	if got.Status != mission.StatusRunning {
		t.Errorf("status after start = %q, want %q", got.Status, mission.StatusRunning)
	}

	if err := client.PauseMission(ctx, m.MissionID); err != nil {
		t.Fatalf("PauseMission failed: %v", err)
	}
	if err := client.CancelMission(ctx, m.MissionID); err != nil {
		t.Fatalf("CancelMission failed: %v", err)
	}
	if err := client.DeleteMission(ctx, m.MissionID); err != nil {
		t.Fatalf("DeleteMission failed: %v", err)
	}

	missions, err := client.ListMissions(ctx)
	if err != nil {
		t.Fatalf("ListMissions failed: %v", err)
	}
	if len(missions) != 0 {
		t.Fatalf("missions after delete: %d, want 0", len(missions))
	}
}

func TestGoalActions(t *testing.T) {
	srv := startServer(t)
	client := api.New(srv.URL(), "", 5*time.Second)
	ctx := context.Background()

	srv.SeedMission(&mission.Mission{
		MissionID: "mis-1",
		Goal:      "ship it",
		Status:    mission.StatusRunning,
		GoalTree: []mission.GoalNode{
			{GoalID: "g1", Title: "draft", Status: mission.GoalAwaitingApproval},
		},
	})

	if err := client.ApproveGoal(ctx, "mis-1", "g1", api.GoalActionRequest{Feedback: "looks good"}); err != nil {
		t.Fatalf("ApproveGoal failed: %v", err)
	}
	m, err := client.GetMission(ctx, "mis-1")
	if err != nil {
		t.Fatalf("GetMission failed: %v", err)
	}
	if m.GoalTree[0].Status != mission.GoalCompleted {
		t.Errorf("goal status = %q, want %q", m.GoalTree[0].Status, mission.GoalCompleted)
	}
}
