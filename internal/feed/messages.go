// ABOUTME: JSON messages served by the server-browser feed
// ABOUTME: Snapshot on connect, then one update per refreshed session
package feed

import (
	"time"

	"github.com/LeagueOfBeans/lob-lan/pkg/discovery"
)

const (
	TypeSnapshot = "snapshot"
	TypeUpdated  = "updated"
)

// ServerView is the JSON form of a discovered session
type ServerView struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Port        uint16    `json:"port"`
	HasPassword bool      `json:"hasPassword"`
	Players     int       `json:"players"`
	MaxPlayers  int       `json:"maxPlayers"`
	PingMs      int       `json:"pingMs"`
	LastSeen    time.Time `json:"lastSeen"`
}

// SnapshotMessage carries every visible session
type SnapshotMessage struct {
	Type    string       `json:"type"`
	Servers []ServerView `json:"servers"`
}

// UpdatedMessage carries one session that was added or refreshed
type UpdatedMessage struct {
	Type   string     `json:"type"`
	Server ServerView `json:"server"`
}

func viewOf(d discovery.SessionDescriptor) ServerView {
	return ServerView{
		Key:         d.Key(),
		Name:        d.Name,
		Address:     d.Address,
		Port:        d.Port,
		HasPassword: d.HasPassword,
		Players:     d.PlayerCount,
		MaxPlayers:  d.MaxPlayers,
		PingMs:      d.PingMs,
		LastSeen:    d.LastSeen,
	}
}

func viewsOf(servers []discovery.SessionDescriptor) []ServerView {
	views := make([]ServerView, 0, len(servers))
	for _, d := range servers {
		views = append(views, viewOf(d))
	}
	return views
}
