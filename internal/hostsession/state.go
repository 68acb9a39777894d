// ABOUTME: Live state of the locally hosted session
// ABOUTME: Feeds the broadcaster and mDNS advertiser through discovery.SessionSource
package hostsession

import (
	"sync"

	"github.com/LeagueOfBeans/lob-lan/pkg/discovery"
)

// State is a concurrency-safe hosted session
type State struct {
	mu      sync.RWMutex
	session discovery.HostSession
}

// New creates a session that is not yet hosting
func New(name string, port uint16, password bool) *State {
	return &State{session: discovery.HostSession{
		Name:             name,
		Port:             port,
		PasswordRequired: password,
	}}
}

// Session implements discovery.SessionSource
func (s *State) Session() discovery.HostSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// SetHosting starts or stops hosting. Stopping drops all clients.
func (s *State) SetHosting(hosting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Hosting = hosting
	if !hosting {
		s.session.ClientCount = 0
	}
}

// ToggleHosting flips the hosting flag and returns the new value
func (s *State) ToggleHosting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Hosting = !s.session.Hosting
	if !s.session.Hosting {
		s.session.ClientCount = 0
	}
	return s.session.Hosting
}

func (s *State) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Name = name
}

func (s *State) SetPassword(required bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.PasswordRequired = required
}

func (s *State) SetPort(port uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Port = port
}

// SetClients sets the connected client count, clamped at zero
func (s *State) SetClients(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.ClientCount = max(n, 0)
}

// Join records a connected client and returns the new count
func (s *State) Join() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.ClientCount++
	return s.session.ClientCount
}

// Leave records a disconnected client and returns the new count
func (s *State) Leave() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.ClientCount > 0 {
		s.session.ClientCount--
	}
	return s.session.ClientCount
}
