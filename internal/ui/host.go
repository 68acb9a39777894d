// ABOUTME: Bubbletea model for the session host
// ABOUTME: Shows the announced session and toggles hosting and client count
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LeagueOfBeans/lob-lan/pkg/discovery"
)

// HostController is the hosted session the host UI drives
type HostController interface {
	Session() discovery.HostSession
	ToggleHosting() bool
	Join() int
	Leave() int
}

type hostTickMsg time.Time

// HostModel is the host TUI state
type HostModel struct {
	host      HostController
	session   discovery.HostSession
	startTime time.Time
	quitting  bool
}

func NewHostModel(host HostController) HostModel {
	return HostModel{
		host:      host,
		session:   host.Session(),
		startTime: time.Now(),
	}
}

func (m HostModel) Init() tea.Cmd {
	return hostTick()
}

func hostTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return hostTickMsg(t)
	})
}

func (m HostModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "h":
			m.host.ToggleHosting()
		case "+", "=":
			if m.session.Hosting {
				m.host.Join()
			}
		case "-":
			m.host.Leave()
		}
		m.session = m.host.Session()

	case hostTickMsg:
		m.session = m.host.Session()
		return m, hostTick()
	}
	return m, nil
}

func (m HostModel) View() string {
	if m.quitting {
		return "Shutting down host...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("League of Beans Host"))
	b.WriteString("\n\n")

	field := func(label, value string) {
		b.WriteString(headerStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	status := "Not hosting"
	if m.session.Hosting {
		status = "Broadcasting"
	}
	password := "no"
	if m.session.PasswordRequired {
		password = "yes"
	}

	field("Session:  ", m.session.Name)
	field("Port:     ", fmt.Sprintf("%d", m.session.Port))
	field("Password: ", password)
	field("Status:   ", status)
	field("Clients:  ", fmt.Sprintf("%d", m.session.ClientCount))
	field("Uptime:   ", time.Since(m.startTime).Round(time.Second).String())

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("h: toggle hosting  +/-: clients  q: quit"))
	return b.String()
}
