// Package ui provides terminal output components for agimectl.
// This file implements the live printer used by non-interactive commands
// to render a streamed agent turn to stdout.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/agime-dev/agimectl/internal/transcript"
)

// Printer renders a streaming transcript incrementally. On a TTY it keeps
// a transient status line below the streamed text; when piped it prints
// plain lines on transitions only.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	isTTY   bool
	verbose bool

	msgIndex    int
	contentLen  int
	thinkingLen int
	toolsSeen   int
	toolsDone   map[string]bool

	statusShown bool
	lastStatus  string
	midLine     bool
}

// NewPrinter creates a Printer writing to stdout.
func NewPrinter(verbose bool) *Printer {
	return &Printer{
		out:       os.Stdout,
		isTTY:     term.IsTerminal(int(os.Stdout.Fd())),
		verbose:   verbose,
		msgIndex:  -1,
		toolsDone: make(map[string]bool),
	}
}

// Sync prints whatever the transcript's trailing assistant message has
// gained since the last call: new thinking (verbose only), new content,
// tool calls starting and resolving. Wire it to the consumer's
// transcript hook.
func (p *Printer) Sync(tr *transcript.Transcript) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs := tr.Messages()
	idx := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == transcript.RoleAssistant {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	if idx != p.msgIndex {
		p.msgIndex = idx
		p.contentLen = 0
		p.thinkingLen = 0
		p.toolsSeen = 0
		p.toolsDone = make(map[string]bool)
	}
	msg := msgs[idx]

	if p.verbose && len(msg.Thinking) > p.thinkingLen {
		p.clearStatus()
		p.writeDim(msg.Thinking[p.thinkingLen:])
		p.thinkingLen = len(msg.Thinking)
	}

	if len(msg.Content) > p.contentLen {
		p.clearStatus()
		chunk := msg.Content[p.contentLen:]
		fmt.Fprint(p.out, chunk)
		p.midLine = !strings.HasSuffix(chunk, "\n")
		p.contentLen = len(msg.Content)
	}

	for ; p.toolsSeen < len(msg.ToolCalls); p.toolsSeen++ {
		call := msg.ToolCalls[p.toolsSeen]
		p.clearStatus()
		p.breakLine()
		fmt.Fprintf(p.out, "[tool] %s...\n", call.Name)
	}
	for _, call := range msg.ToolCalls {
		if call.Done && !p.toolsDone[call.ID] {
			p.toolsDone[call.ID] = true
			p.clearStatus()
			p.breakLine()
			fmt.Fprintf(p.out, "[tool] %s\n", call.Result)
		}
	}
}

// Status shows a transient activity label. On a TTY the line is redrawn
// in place and removed before any real output; otherwise repeated labels
// are suppressed.
func (p *Printer) Status(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isTTY {
		if label != p.lastStatus {
			fmt.Fprintf(p.out, "-- %s\n", label)
			p.lastStatus = label
		}
		return
	}

	p.breakLine()
	fmt.Fprintf(p.out, "\r\033[2K%s", label)
	p.statusShown = true
	p.lastStatus = label
}

// Done clears any status line and prints the final outcome. errText is
// empty on success.
func (p *Printer) Done(status, errText string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearStatus()
	p.breakLine()
	if errText != "" {
		fmt.Fprintf(p.out, "\nError: %s\n", errText)
		return
	}
	fmt.Fprintln(p.out)
}

// clearStatus removes the transient status line before real output.
// Caller holds the lock.
func (p *Printer) clearStatus() {
	if p.statusShown {
		fmt.Fprint(p.out, "\r\033[2K")
		p.statusShown = false
	}
}

// breakLine terminates a partially streamed text line. Caller holds the
// lock.
func (p *Printer) breakLine() {
	if p.midLine {
		fmt.Fprintln(p.out)
		p.midLine = false
	}
}

func (p *Printer) writeDim(s string) {
	if p.isTTY {
		fmt.Fprintf(p.out, "\033[2m%s\033[0m", s)
		return
	}
	fmt.Fprint(p.out, s)
}
