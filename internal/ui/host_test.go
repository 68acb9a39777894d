// ABOUTME: Tests for the host model
// ABOUTME: Key handling against a real hosted session state
package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LeagueOfBeans/lob-lan/internal/hostsession"
)

func pressHost(m HostModel, s string) (HostModel, tea.Cmd) {
	next, cmd := m.Update(key(s))
	return next.(HostModel), cmd
}

func TestHostToggle(t *testing.T) {
	state := hostsession.New("Bean Pit", 7770, false)
	model := NewHostModel(state)

	if model.session.Hosting {
		t.Fatal("expected not hosting initially")
	}

	model, _ = pressHost(model, "h")
	if !state.Session().Hosting || !model.session.Hosting {
		t.Error("expected h to start hosting")
	}
	if !strings.Contains(model.View(), "Broadcasting") {
		t.Errorf("expected broadcasting status:\n%s", model.View())
	}

	model, _ = pressHost(model, "h")
	if state.Session().Hosting {
		t.Error("expected h to stop hosting")
	}
}

func TestHostClientCount(t *testing.T) {
	state := hostsession.New("Bean Pit", 7770, false)
	model := NewHostModel(state)

	model, _ = pressHost(model, "+")
	if state.Session().ClientCount != 0 {
		t.Error("clients cannot join while not hosting")
	}

	state.SetHosting(true)
	next, _ := model.Update(hostTickMsg(time.Now()))
	model = next.(HostModel)

	model, _ = pressHost(model, "+")
	model, _ = pressHost(model, "=")
	if model.session.ClientCount != 2 {
		t.Errorf("expected 2 clients, got %d", model.session.ClientCount)
	}

	model, _ = pressHost(model, "-")
	model, _ = pressHost(model, "-")
	model, _ = pressHost(model, "-")
	if model.session.ClientCount != 0 {
		t.Errorf("client count must not go negative, got %d", model.session.ClientCount)
	}
}

func TestHostQuit(t *testing.T) {
	model := NewHostModel(hostsession.New("Bean Pit", 7770, true))
	if !strings.Contains(model.View(), "Password") {
		t.Errorf("expected password field:\n%s", model.View())
	}

	model, cmd := pressHost(model, "q")
	if !isQuit(cmd) {
		t.Error("expected q to quit")
	}
	if !strings.Contains(model.View(), "Shutting down") {
		t.Errorf("expected shutdown view, got %q", model.View())
	}
}
