package transcript

import "testing"

func TestStreamingTailReused(t *testing.T) {
	tr := New()
	tr.AppendUser("hi")

	first := tr.StreamingTail()
	second := tr.StreamingTail()
	if first != second {
		t.Error("StreamingTail created a second placeholder")
	}
	if tr.Len() != 2 {
		t.Errorf("len = %d, want 2", tr.Len())
	}
}

func TestFinishStreamingIdempotent(t *testing.T) {
	tr := New()
	tr.StreamingTail()

	tr.FinishStreaming()
	tr.FinishStreaming()
	if tr.HasStreaming() {
		t.Error("transcript still streaming after FinishStreaming")
	}
}

func TestMergeIgnoresShorterHistory(t *testing.T) {
	tr := New()
	tr.AppendUser("one")
	tr.Append(&Message{Role: RoleAssistant, Content: "two"})

	tr.Merge(nil)
	tr.Merge([]*Message{{Role: RoleUser, Content: "stale"}})

	msgs := tr.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "one" || msgs[1].Content != "two" {
		t.Errorf("content mutated: %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestMergeAppendsNewTailKeepingStreamingLast(t *testing.T) {
	tr := New()
	tr.AppendUser("q1")
	tail := tr.StreamingTail()

	// Another client sent q2 while our reply is still unpersisted.
	persisted := []*Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleUser, Content: "q2"},
		{Role: RoleAssistant, Content: "a2"},
	}
	tr.Merge(persisted)

	msgs := tr.Messages()
	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
	if msgs[3] != tail || !msgs[3].Streaming {
		t.Error("streaming tail is not the last message after merge")
	}
	if msgs[1].Content != "q2" || msgs[2].Content != "a2" {
		t.Errorf("merged tail = %q, %q", msgs[1].Content, msgs[2].Content)
	}
}

func TestMergeAdoptsPersistedStreamingTail(t *testing.T) {
	tr := New()
	tr.AppendUser("hi")
	tail := tr.StreamingTail()
	tail.Content = "hello"

	// The server persisted the in-flight reply, plus a later message.
	tr.Merge([]*Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello there", Thinking: "greeting"},
		{Role: RoleUser, Content: "next question"},
	})

	msgs := tr.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3 (tail must not be duplicated)", len(msgs))
	}
	if msgs[1] != tail {
		t.Fatal("persisted counterpart replaced the live tail instead of settling it")
	}
	if tail.Content != "hello there" || tail.Thinking != "greeting" {
		t.Errorf("adopted tail = %q / %q", tail.Content, tail.Thinking)
	}
	if tail.Streaming {
		t.Error("adopted tail still streaming")
	}
	if msgs[2].Content != "next question" {
		t.Errorf("trailing merged message = %q", msgs[2].Content)
	}
}

func TestMergeKeepsMismatchedTailLast(t *testing.T) {
	tr := New()
	tr.AppendUser("hi")
	tail := tr.StreamingTail()
	tail.Content = "a brand new turn"

	persisted := []*Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "an older settled reply"},
		{Role: RoleUser, Content: "next"},
	}
	tr.Merge(persisted)

	msgs := tr.Messages()
	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
	if msgs[3] != tail || !msgs[3].Streaming {
		t.Error("unmatched streaming tail must stay last")
	}
	if msgs[1].Content != "an older settled reply" {
		t.Errorf("merged message = %q", msgs[1].Content)
	}
}

func TestRemoveLast(t *testing.T) {
	tr := New()
	if m := tr.RemoveLast(); m != nil {
		t.Errorf("RemoveLast on empty transcript = %+v, want nil", m)
	}

	tr.AppendUser("hi")
	tr.StreamingTail()

	if m := tr.RemoveLast(); m == nil || m.Role != RoleAssistant {
		t.Fatalf("first RemoveLast = %+v, want the placeholder", m)
	}
	if m := tr.RemoveLast(); m == nil || m.Content != "hi" {
		t.Fatalf("second RemoveLast = %+v, want the user message", m)
	}
	if tr.Len() != 0 {
		t.Errorf("len = %d, want 0", tr.Len())
	}
}
