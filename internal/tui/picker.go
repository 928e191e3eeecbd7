// picker.go implements the session picker list shown when agimectl is
// launched without a subcommand.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/agime-dev/agimectl/internal/api"
)

type sessionsLoadedMsg struct {
	items []api.SessionListItem
	err   error
}

type sessionOpenedMsg struct {
	snap *api.SessionSnapshot
	err  error
}

type sessionItem struct {
	s api.SessionListItem
}

func (i sessionItem) Title() string {
	if i.s.Title != "" {
		return i.s.Title
	}
	if i.s.LastMessagePreview != "" {
		return shorten(i.s.LastMessagePreview, 48)
	}
	return shorten(i.s.SessionID, 28)
}

func (i sessionItem) Description() string {
	var parts []string
	if i.s.IsProcessing {
		parts = append(parts, "running")
	}
	if i.s.Pinned {
		parts = append(parts, "pinned")
	}
	parts = append(parts, fmt.Sprintf("%d msgs", i.s.MessageCount))
	if !i.s.UpdatedAt.IsZero() {
		parts = append(parts, i.s.UpdatedAt.Format("Jan 2 15:04"))
	}
	return strings.Join(parts, " | ")
}

func (i sessionItem) FilterValue() string {
	return strings.ToLower(i.s.SessionID + " " + i.s.Title + " " + i.s.LastMessagePreview)
}

type pickerModel struct {
	client *api.Client
	list   list.Model

	loading bool
	status  string
	err     error
}

func newPicker(client *api.Client) pickerModel {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 40, 20)
	l.Title = "Sessions"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()

	return pickerModel{
		client:  client,
		list:    l,
		loading: true,
	}
}

func (m pickerModel) Init() tea.Cmd {
	return m.refreshCmd()
}

func (m pickerModel) refreshCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		items, err := client.ListSessions(ctx)
		return sessionsLoadedMsg{items: items, err: err}
	}
}

func (m pickerModel) openCmd(id string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := client.GetSession(ctx, id)
		return sessionOpenedMsg{snap: snap, err: err}
	}
}

func (m pickerModel) update(msg tea.Msg) (pickerModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case sessionsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.status = "Could not load sessions"
			return m, nil
		}
		m.err = nil
		m.status = ""
		items := make([]list.Item, len(msg.items))
		for i, s := range msg.items {
			items[i] = sessionItem{s: s}
		}
		return m, m.list.SetItems(items)

	case sessionOpenedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "Could not open session"
			return m, nil
		}
		return m, func() tea.Msg { return openChatMsg{snap: msg.snap} }

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, m.refreshCmd()
		case "enter":
			if item, ok := m.list.SelectedItem().(sessionItem); ok {
				m.status = "Opening..."
				return m, m.openCmd(item.s.SessionID)
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(m.list.View())
	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.status+": "+m.err.Error()) + "\n")
	case m.loading:
		b.WriteString(statusStyle.Render("Loading sessions...") + "\n")
	default:
		b.WriteString(helpStyle.Render("enter open | r refresh | / filter | q quit") + "\n")
	}
	return b.String()
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
