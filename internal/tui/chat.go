// chat.go implements the live chat view: streamed agent output in a
// viewport above a textarea, with the reconciliation supervisor keeping
// the transcript honest across disconnects.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/agime-dev/agimectl/internal/api"
	"github.com/agime-dev/agimectl/internal/config"
	applog "github.com/agime-dev/agimectl/internal/log"
	"github.com/agime-dev/agimectl/internal/reconcile"
	"github.com/agime-dev/agimectl/internal/stream"
	"github.com/agime-dev/agimectl/internal/transcript"
)

type transcriptChangedMsg struct{}
type statusLabelMsg string
type turnDoneMsg struct {
	status  string
	errText string
}
type runStoppedMsg struct{ err error }
type sendResultMsg struct{ err error }
type cancelResultMsg struct{ err error }

type chatModel struct {
	client *api.Client
	cfg    *config.Config
	logger *applog.Logger

	sessionID string
	title     string
	tr        *transcript.Transcript

	sup       *reconcile.Supervisor
	consumer  *stream.Consumer
	cancelSup context.CancelFunc
	events    chan tea.Msg

	viewport viewport.Model
	input    textarea.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer

	ready      bool
	width      int
	height     int
	processing bool
	status     string
	errText    string
}

func newChat(client *api.Client, cfg *config.Config, logger *applog.Logger, snap *api.SessionSnapshot) chatModel {
	ti := textarea.New()
	ti.Placeholder = "Message the agent..."
	ti.SetHeight(3)
	ti.ShowLineNumbers = false
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	title := snap.Title
	if title == "" {
		title = shorten(snap.SessionID, 28)
	}

	m := chatModel{
		client:    client,
		cfg:       cfg,
		logger:    logger,
		sessionID: snap.SessionID,
		title:     title,
		tr:        transcript.Load(snap.MessagesJSON, snap.IsProcessing),
		events:    make(chan tea.Msg, 64),
		viewport:  viewport.New(60, 20),
		input:     ti,
		spin:      sp,
	}

	// A session already mid-turn is picked up where the server left it.
	if snap.IsProcessing {
		m.attach()
	}
	return m
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spin.Tick, m.listen())
}

// listen forwards one supervisor-originated event into the program.
// Re-issued after every delivery.
func (m chatModel) listen() tea.Cmd {
	ch := m.events
	return func() tea.Msg { return <-ch }
}

// push hands an event to the UI without ever blocking the supervisor.
// A full queue is fine to drop from: every consumer of these messages
// re-reads whole state rather than deltas.
func (m *chatModel) push(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
	}
}

// attach starts a consumer and supervisor for the current turn.
func (m *chatModel) attach() {
	hooks := stream.Hooks{
		OnTranscript: func() { m.push(transcriptChangedMsg{}) },
		OnStatus:     func(label string) { m.push(statusLabelMsg(label)) },
		OnDone: func(status, errText string) {
			m.push(turnDoneMsg{status: status, errText: errText})
		},
	}
	consumer := stream.NewConsumer(m.sessionID, m.tr, hooks, m.logger)

	client := m.client
	dial := func(ctx context.Context, sessionID string, cursor uint64) (reconcile.EventSource, error) {
		return client.OpenStream(ctx, sessionID, cursor)
	}
	sup := reconcile.New(consumer, client, dial, reconcile.Options{}, m.logger)
	sup.Status = func(label string) { m.push(statusLabelMsg(label)) }
	sup.Update = func() { m.push(transcriptChangedMsg{}) }

	ctx, cancel := context.WithCancel(context.Background())
	m.sup = sup
	m.consumer = consumer
	m.cancelSup = cancel
	m.processing = true

	events := m.events
	go func() {
		err := sup.Run(ctx)
		select {
		case events <- runStoppedMsg{err: err}:
		default:
		}
	}()
}

// shutdown stops the supervisor without cancelling the server-side turn.
// The consumer is detached so a straggling event from the old stream can
// no longer touch the transcript.
func (m *chatModel) shutdown() {
	if m.cancelSup != nil {
		m.cancelSup()
		m.cancelSup = nil
	}
	if m.consumer != nil {
		m.consumer.Detach()
		m.consumer = nil
	}
}

func (m chatModel) sendCmd(content string) tea.Cmd {
	client, id := m.client, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_, err := client.SendMessage(ctx, id, content)
		return sendResultMsg{err: err}
	}
}

func (m chatModel) cancelCmd() tea.Cmd {
	sup := m.sup
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return cancelResultMsg{err: sup.Cancel(ctx)}
	}
}

func (m chatModel) update(msg tea.Msg) (chatModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refreshViewport(true)
		m.ready = true
		return m, nil

	case transcriptChangedMsg:
		m.refreshViewport(true)
		return m, m.listen()

	case statusLabelMsg:
		m.status = string(msg)
		return m, m.listen()

	case turnDoneMsg:
		m.processing = false
		m.status = ""
		m.errText = msg.errText
		m.refreshViewport(true)
		return m, m.listen()

	case runStoppedMsg:
		if m.sup != nil && !m.sup.Processing() {
			m.processing = false
		}
		m.refreshViewport(true)
		return m, m.listen()

	case sendResultMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
			m.processing = false
			m.shutdown()
			// The send never reached the server: take back the optimistic
			// user message and its assistant placeholder.
			if m.tr.HasStreaming() {
				m.tr.RemoveLast()
			}
			if msgs := m.tr.Messages(); len(msgs) > 0 && msgs[len(msgs)-1].Role == transcript.RoleUser {
				m.tr.RemoveLast()
			}
			m.refreshViewport(true)
		}
		return m, nil

	case cancelResultMsg:
		m.processing = false
		m.status = ""
		if msg.err != nil {
			m.errText = "cancel: " + msg.err.Error()
		}
		m.refreshViewport(true)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.processing && m.sup != nil {
				m.status = "Cancelling..."
				return m, m.cancelCmd()
			}
			m.shutdown()
			return m, tea.Quit
		case "esc":
			return m, func() tea.Msg { return closeChatMsg{} }
		case "enter":
			content := strings.TrimSpace(m.input.Value())
			if content == "" || m.processing {
				return m, nil
			}
			m.input.Reset()
			m.errText = ""
			m.tr.AppendUser(content)
			// Establish the assistant placeholder up front so a turn that
			// ends before its first delta still has a tail to settle.
			m.tr.EnsureStreamingTail()
			m.shutdown() // drop any stopped supervisor from a previous turn
			m.attach()
			m.refreshViewport(true)
			return m, m.sendCmd(content)
		case "pgup":
			m.viewport.HalfViewUp()
			return m, nil
		case "pgdown":
			m.viewport.HalfViewDown()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *chatModel) resize() {
	inputHeight := m.input.Height() + 1
	m.viewport.Width = m.width
	m.viewport.Height = m.height - inputHeight - 3
	m.input.SetWidth(m.width - 2)

	if m.cfg != nil && m.cfg.Chat.Markdown {
		wrap := m.width - 2
		if wrap > 100 {
			wrap = 100
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrap),
		)
		if err == nil {
			m.renderer = r
		}
	}
}

func (m *chatModel) refreshViewport(toBottom bool) {
	m.viewport.SetContent(renderTranscript(m.tr.Messages(), m.renderer))
	if toBottom {
		m.viewport.GotoBottom()
	}
}

// renderTranscript formats the conversation for the viewport. Settled
// assistant prose goes through the markdown renderer; a streaming tail
// stays raw so partial markup doesn't flicker.
func renderTranscript(msgs []*transcript.Message, renderer *glamour.TermRenderer) string {
	var b strings.Builder
	for _, msg := range msgs {
		switch msg.Role {
		case transcript.RoleUser:
			b.WriteString(userStyle.Render("You") + "\n")
			b.WriteString(msg.Content + "\n\n")

		case transcript.RoleAssistant:
			if msg.Thinking != "" {
				b.WriteString(thinkingStyle.Render(msg.Thinking) + "\n")
			}
			for _, call := range msg.ToolCalls {
				line := call.Name + "..."
				style := toolStyle
				if call.Done {
					line = call.Result
					if !call.Success {
						style = toolFailStyle
					}
				}
				b.WriteString(style.Render("[tool] "+line) + "\n")
			}
			content := msg.Content
			if content != "" {
				if renderer != nil && !msg.Streaming {
					if out, err := renderer.Render(content); err == nil {
						content = strings.TrimSpace(out)
					}
				}
				b.WriteString(content + "\n")
			}
			if msg.Turn != nil {
				b.WriteString(statusStyle.Render(fmt.Sprintf("turn %d/%d", msg.Turn.Current, msg.Turn.Max)) + "\n")
			}
			if msg.Compaction != nil {
				b.WriteString(statusStyle.Render(fmt.Sprintf("context compacted: %d -> %d tokens",
					msg.Compaction.BeforeTokens, msg.Compaction.AfterTokens)) + "\n")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m chatModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	var header strings.Builder
	header.WriteString(titleStyle.Render(m.title))
	if m.processing {
		header.WriteString("  " + m.spin.View())
		if m.status != "" {
			header.WriteString(statusStyle.Render(m.status))
		}
	} else if m.status != "" {
		header.WriteString("  " + statusStyle.Render(m.status))
	}
	if m.errText != "" {
		header.WriteString("  " + errorStyle.Render(m.errText))
	}

	help := "enter send | esc sessions | ctrl+c "
	if m.processing {
		help += "cancel turn"
	} else {
		help += "quit"
	}

	return header.String() + "\n" +
		m.viewport.View() + "\n" +
		m.input.View() + "\n" +
		helpStyle.Render(help)
}
