package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/agime-dev/agimectl/internal/transcript"
)

func testPrinter(verbose bool) (*Printer, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Printer{
		out:       &buf,
		verbose:   verbose,
		msgIndex:  -1,
		toolsDone: make(map[string]bool),
	}, &buf
}

func TestSyncPrintsContentDeltas(t *testing.T) {
	p, buf := testPrinter(false)
	tr := transcript.New()

	tr.AppendContent("Hello")
	p.Sync(tr)
	tr.AppendContent(", world")
	p.Sync(tr)

	if got := buf.String(); got != "Hello, world" {
		t.Errorf("output = %q, want %q", got, "Hello, world")
	}
}

func TestSyncSkipsThinkingUnlessVerbose(t *testing.T) {
	p, buf := testPrinter(false)
	tr := transcript.New()

	tr.AppendThinking("pondering")
	p.Sync(tr)
	if buf.Len() != 0 {
		t.Errorf("thinking leaked into non-verbose output: %q", buf.String())
	}

	p, buf = testPrinter(true)
	p.Sync(tr)
	if !strings.Contains(buf.String(), "pondering") {
		t.Errorf("verbose output missing thinking: %q", buf.String())
	}
}

func TestSyncPrintsToolLifecycle(t *testing.T) {
	p, buf := testPrinter(false)
	tr := transcript.New()

	tr.AddToolCall("t1", "search")
	p.Sync(tr)
	tr.ResolveToolCall("t1", "search done (120ms)", true, 120)
	p.Sync(tr)

	out := buf.String()
	if !strings.Contains(out, "[tool] search...") {
		t.Errorf("missing tool start line: %q", out)
	}
	if !strings.Contains(out, "[tool] search done (120ms)") {
		t.Errorf("missing tool result line: %q", out)
	}
}

func TestStatusSuppressedWhenRepeated(t *testing.T) {
	p, buf := testPrinter(false)

	p.Status("Agent running")
	p.Status("Agent running")
	p.Status("Running tools")

	out := buf.String()
	if got := strings.Count(out, "Agent running"); got != 1 {
		t.Errorf("repeated status printed %d times, want 1: %q", got, out)
	}
	if !strings.Contains(out, "Running tools") {
		t.Errorf("missing new status: %q", out)
	}
}

func TestDoneWithError(t *testing.T) {
	p, buf := testPrinter(false)
	p.Done("error", "budget exhausted")
	if !strings.Contains(buf.String(), "Error: budget exhausted") {
		t.Errorf("missing error line: %q", buf.String())
	}
}
