// ABOUTME: Bubbletea model for the LAN server browser
// ABOUTME: Polls the discovered-session snapshot and lets the user pick one
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/LeagueOfBeans/lob-lan/pkg/discovery"
)

const defaultRefresh = 250 * time.Millisecond

// ServerLister provides the current session snapshot
type ServerLister interface {
	Servers() []discovery.SessionDescriptor
}

type refreshMsg time.Time

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// Model is the server browser state
type Model struct {
	servers ServerLister
	refresh time.Duration
	now     func() time.Time

	list     []discovery.SessionDescriptor
	cursor   int
	cursorID string // key of the highlighted session, kept across reorders

	chosen   *discovery.SessionDescriptor
	quitting bool

	width  int
	height int
}

// NewModel creates a browser over servers. A non-positive refresh uses 250ms.
func NewModel(servers ServerLister, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	m := Model{
		servers: servers,
		refresh: refresh,
		now:     time.Now,
	}
	m.reload()
	return m
}

// Selected returns the session chosen with enter, if any
func (m Model) Selected() (discovery.SessionDescriptor, bool) {
	if m.chosen == nil {
		return discovery.SessionDescriptor{}, false
	}
	return *m.chosen, true
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case refreshMsg:
		m.reload()
		return m, m.tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.list)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.list) == 0 {
			return m, nil
		}
		chosen := m.list[m.cursor]
		m.chosen = &chosen
		m.quitting = true
		return m, tea.Quit
	}
	if len(m.list) > 0 {
		m.cursorID = m.list[m.cursor].Key()
	}
	return m, nil
}

// reload pulls a fresh snapshot and keeps the cursor on the same session
func (m *Model) reload() {
	if m.servers == nil {
		return
	}
	m.list = m.servers.Servers()

	if m.cursorID != "" {
		for i, d := range m.list {
			if d.Key() == m.cursorID {
				m.cursor = i
				return
			}
		}
	}
	m.cursor = min(m.cursor, max(len(m.list)-1, 0))
	if len(m.list) > 0 {
		m.cursorID = m.list[m.cursor].Key()
	}
}

func (m Model) View() string {
	if m.quitting {
		if m.chosen != nil {
			return fmt.Sprintf("Joining %s at %s\n", m.chosen.Name, m.chosen.Key())
		}
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("League of Beans: LAN Games"))
	b.WriteString("\n\n")

	if len(m.list) == 0 {
		b.WriteString(valueStyle.Render("  Searching for games on your network..."))
		b.WriteString("\n")
	} else {
		b.WriteString(headerStyle.Render(fmt.Sprintf("  %-24s %-21s %-9s %s", "Name", "Address", "Players", "Seen")))
		b.WriteString("\n")
		now := m.now()
		for i, d := range m.list {
			line := renderRow(d, now)
			if i == m.cursor {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString(valueStyle.Render("  " + line))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓: select  enter: join  q: quit"))
	return b.String()
}

func renderRow(d discovery.SessionDescriptor, now time.Time) string {
	name := truncate(d.Name, 22)
	if d.HasPassword {
		name += " 🔒"
	}
	return fmt.Sprintf("%-24s %-21s %-9s %s", name, d.Key(), players(d), age(d.LastSeen, now))
}

func players(d discovery.SessionDescriptor) string {
	if d.MaxPlayers > 0 {
		return fmt.Sprintf("%d/%d", d.PlayerCount, d.MaxPlayers)
	}
	return fmt.Sprintf("%d", d.PlayerCount)
}

func age(seen, now time.Time) string {
	if seen.IsZero() {
		return "-"
	}
	d := now.Sub(seen)
	if d < time.Second {
		return "now"
	}
	return fmt.Sprintf("%ds ago", int(d/time.Second))
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
