package cleanup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agime-dev/agimectl/internal/api"
	applog "github.com/agime-dev/agimectl/internal/log"
	"github.com/agime-dev/agimectl/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("opening store failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedSession(t *testing.T, st *store.Store, id string, processing bool) {
	t.Helper()
	err := st.SaveSession(&api.SessionSnapshot{
		SessionID:    id,
		IsProcessing: processing,
		MessagesJSON: `[]`,
	})
	if err != nil {
		t.Fatalf("seeding session %s failed: %v", id, err)
	}
}

func TestPruneSessions_RemovesStale(t *testing.T) {
	st := openTestStore(t)
	seedSession(t, st, "old-1", false)
	seedSession(t, st, "busy-1", true)

	// A zero-day cutoff makes every idle session stale.
	pruned, err := PruneSessions(st, 0, false)
	if err != nil {
		t.Fatalf("PruneSessions failed: %v", err)
	}
	if len(pruned) != 1 || pruned[0] != "old-1" {
		t.Errorf("expected pruned=[old-1], got %v", pruned)
	}

	cs, err := st.GetSession("old-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if cs != nil {
		t.Error("expected old-1 to be deleted")
	}

	cs, err = st.GetSession("busy-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if cs == nil {
		t.Error("expected busy-1 to survive pruning")
	}
}

func TestPruneSessions_DryRun(t *testing.T) {
	st := openTestStore(t)
	seedSession(t, st, "old-1", false)

	pruned, err := PruneSessions(st, 0, true)
	if err != nil {
		t.Fatalf("PruneSessions failed: %v", err)
	}
	if len(pruned) != 1 {
		t.Fatalf("expected 1 candidate, got %v", pruned)
	}

	cs, err := st.GetSession("old-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if cs == nil {
		t.Error("dry run should not delete anything")
	}
}

func TestPruneSessions_KeepsRecent(t *testing.T) {
	st := openTestStore(t)
	seedSession(t, st, "fresh-1", false)

	pruned, err := PruneSessions(st, 30, false)
	if err != nil {
		t.Fatalf("PruneSessions failed: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("expected no pruned sessions, got %v", pruned)
	}
}

func writeLogLine(t *testing.T, f *os.File, event applog.LogEvent) {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event failed: %v", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		t.Fatalf("write event failed: %v", err)
	}
}

func TestTrimLog_DropsOldEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating log failed: %v", err)
	}
	now := time.Now().UTC()
	writeLogLine(t, f, applog.LogEvent{Time: now.AddDate(0, 0, -60), Event: applog.EventStreamConnected, SessionID: "old"})
	writeLogLine(t, f, applog.LogEvent{Time: now, Event: applog.EventStreamConnected, SessionID: "recent"})
	f.Close()

	dropped, err := TrimLog(path, 30, false)
	if err != nil {
		t.Fatalf("TrimLog failed: %v", err)
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped event, got %d", dropped)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading trimmed log failed: %v", err)
	}
	if strings.Contains(string(data), `"old"`) {
		t.Error("old event should have been dropped")
	}
	if !strings.Contains(string(data), `"recent"`) {
		t.Error("recent event should have been kept")
	}
}

func TestTrimLog_DryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating log failed: %v", err)
	}
	writeLogLine(t, f, applog.LogEvent{Time: time.Now().UTC().AddDate(0, 0, -60), Event: applog.EventStreamClosed})
	f.Close()

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log failed: %v", err)
	}

	dropped, err := TrimLog(path, 30, true)
	if err != nil {
		t.Fatalf("TrimLog failed: %v", err)
	}
	if dropped != 1 {
		t.Errorf("expected 1 candidate, got %d", dropped)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log failed: %v", err)
	}
	if string(before) != string(after) {
		t.Error("dry run should not rewrite the log")
	}
}

func TestTrimLog_MissingFile(t *testing.T) {
	dropped, err := TrimLog(filepath.Join(t.TempDir(), "log.jsonl"), 30, false)
	if err != nil {
		t.Fatalf("TrimLog failed: %v", err)
	}
	if dropped != 0 {
		t.Errorf("expected 0 dropped events, got %d", dropped)
	}
}
