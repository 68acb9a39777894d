// ABOUTME: TUI entry points
// ABOUTME: Wraps the bubbletea programs for the browser and the host
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LeagueOfBeans/lob-lan/pkg/discovery"
)

// RunBrowser shows the server browser until the user quits or picks a session
func RunBrowser(servers ServerLister, refresh time.Duration) (discovery.SessionDescriptor, bool, error) {
	p := tea.NewProgram(NewModel(servers, refresh), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return discovery.SessionDescriptor{}, false, fmt.Errorf("server browser: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return discovery.SessionDescriptor{}, false, nil
	}
	d, chosen := m.Selected()
	return d, chosen, nil
}

// RunHost shows the host UI until the user quits
func RunHost(host HostController) error {
	p := tea.NewProgram(NewHostModel(host), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("host ui: %w", err)
	}
	return nil
}
