// ABOUTME: LAN session discovery package
// ABOUTME: Broadcast and discover League of Beans sessions on the local network
// Package discovery announces hosted game sessions over UDP broadcast and
// tracks the sessions other hosts announce.
//
// A Broadcaster sends one beacon per interval while its SessionSource reports
// hosting. A Listener receives beacons on a background goroutine and keeps a
// registry keyed by address:port that DrainAndMaintain refreshes and ages out.
//
// Beacon format:
//
//	LOB|<name>|<port>|<hasPassword:0|1>|<playerCount>|<maxPlayers>
//
// Example:
//
//	l := discovery.NewListener(discovery.ListenerConfig{})
//	if err := l.Start(); err != nil {
//	    log.Printf("discovery unavailable: %v", err)
//	}
//	go l.Run(ctx, 250*time.Millisecond)
//	for _, s := range l.Servers() {
//	    fmt.Printf("Found: %s at %s\n", s.Name, s.Key())
//	}
package discovery
