// Package tui implements the interactive terminal interface: a session
// picker and a live chat view with streamed agent output.
package tui

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/agime-dev/agimectl/internal/api"
	"github.com/agime-dev/agimectl/internal/config"
	applog "github.com/agime-dev/agimectl/internal/log"
)

// IsTTY reports whether stdout is attached to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// RunPicker starts the interactive UI at the session picker. Selecting a
// session switches to the chat view; esc returns to the picker.
func RunPicker(client *api.Client, cfg *config.Config, logger *applog.Logger) error {
	root := newRoot(client, cfg, logger)
	p := tea.NewProgram(root, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RunChat starts the interactive UI directly in a chat session.
func RunChat(client *api.Client, cfg *config.Config, logger *applog.Logger, snap *api.SessionSnapshot) error {
	root := newRoot(client, cfg, logger)
	root.mode = modeChat
	root.chat = newChat(client, cfg, logger, snap)
	p := tea.NewProgram(root, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type mode int

const (
	modePicker mode = iota
	modeChat
)

// root switches between the picker and chat views, carrying terminal
// size across the switch.
type root struct {
	client *api.Client
	cfg    *config.Config
	logger *applog.Logger

	mode   mode
	picker pickerModel
	chat   chatModel

	width  int
	height int
}

func newRoot(client *api.Client, cfg *config.Config, logger *applog.Logger) *root {
	return &root{
		client: client,
		cfg:    cfg,
		logger: logger,
		picker: newPicker(client),
	}
}

// openChatMsg switches the root to a chat view for the given session.
type openChatMsg struct {
	snap *api.SessionSnapshot
}

// closeChatMsg returns to the picker.
type closeChatMsg struct{}

func (r *root) Init() tea.Cmd {
	if r.mode == modeChat {
		return r.chat.Init()
	}
	return r.picker.Init()
}

func (r *root) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.width, r.height = msg.Width, msg.Height

	case openChatMsg:
		r.chat = newChat(r.client, r.cfg, r.logger, msg.snap)
		r.mode = modeChat
		var cmds []tea.Cmd
		cmds = append(cmds, r.chat.Init())
		if r.width > 0 {
			var cmd tea.Cmd
			r.chat, cmd = r.chat.update(tea.WindowSizeMsg{Width: r.width, Height: r.height})
			cmds = append(cmds, cmd)
		}
		return r, tea.Batch(cmds...)

	case closeChatMsg:
		r.chat.shutdown()
		r.mode = modePicker
		var cmds []tea.Cmd
		cmds = append(cmds, r.picker.refreshCmd())
		if r.width > 0 {
			var cmd tea.Cmd
			r.picker, cmd = r.picker.update(tea.WindowSizeMsg{Width: r.width, Height: r.height})
			cmds = append(cmds, cmd)
		}
		return r, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	switch r.mode {
	case modeChat:
		r.chat, cmd = r.chat.update(msg)
	default:
		r.picker, cmd = r.picker.update(msg)
	}
	return r, cmd
}

func (r *root) View() string {
	if r.mode == modeChat {
		return r.chat.View()
	}
	return r.picker.View()
}
