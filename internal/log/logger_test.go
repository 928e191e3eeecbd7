package log

import (
	"testing"
)

func TestAppendAndReadAll(t *testing.T) {
	logger, err := NewLogger(t.TempDir(), "run-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	if err := logger.Append(LogEvent{Event: EventStreamConnected, SessionID: "s1", Cursor: 4}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := logger.Append(LogEvent{Event: EventProcessingDone, SessionID: "s1", Status: "done"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Event != EventStreamConnected || events[0].Cursor != 4 {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[0].RunID != "run-1" {
		t.Errorf("RunID = %q, want %q", events[0].RunID, "run-1")
	}
	if events[0].Time.IsZero() {
		t.Error("expected Time to be stamped")
	}
}

func TestReadAllMissingFile(t *testing.T) {
	logger, err := NewLogger(t.TempDir(), "run-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestBySessionFilters(t *testing.T) {
	logger, err := NewLogger(t.TempDir(), "run-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	for _, id := range []string{"a", "b", "a"} {
		if err := logger.Append(LogEvent{Event: EventMessageSent, SessionID: id}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	events, err := logger.BySession("a")
	if err != nil {
		t.Fatalf("BySession failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events for session a, got %d", len(events))
	}
}
