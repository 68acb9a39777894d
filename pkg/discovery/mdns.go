// ABOUTME: mDNS mirror of the UDP beacon for networks that filter broadcast
// ABOUTME: Advertises the hosted session and feeds browse results into a Sink
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

const (
	// MDNSService is the service type sessions are advertised under
	MDNSService = "_lob._udp"

	mdnsDomain       = "local"
	defaultMDNSQuery = 2 * time.Second
)

// MDNSAdvertiser keeps an mDNS registration in step with the hosted session
type MDNSAdvertiser struct {
	log     *zap.Logger
	server  *mdns.Server
	current HostSession
}

// NewMDNSAdvertiser creates an advertiser with no active registration
func NewMDNSAdvertiser(logger *zap.Logger) *MDNSAdvertiser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MDNSAdvertiser{log: logger.Named("discovery.mdns")}
}

// Sync registers s, re-registering when it changed and withdrawing when not hosting
func (a *MDNSAdvertiser) Sync(s HostSession) error {
	if !s.Hosting {
		a.Stop()
		return nil
	}
	if a.server != nil && s == a.current {
		return nil
	}
	a.Stop()

	ips, err := localIPv4s()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	instance := SanitizeName(s.Name)
	if instance == "" {
		instance = "League of Beans"
	}

	service, err := mdns.NewMDNSService(instance, MDNSService, "", "", int(s.Port), ips, sessionTXT(s))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	a.server = server
	a.current = s
	a.log.Info("Advertising session over mDNS",
		zap.String("instance", instance),
		zap.Uint16("port", s.Port),
		zap.Int("players", s.ClientCount))
	return nil
}

// Stop withdraws the registration
func (a *MDNSAdvertiser) Stop() {
	if a.server == nil {
		return
	}
	if err := a.server.Shutdown(); err != nil {
		a.log.Warn("mDNS shutdown failed", zap.Error(err))
	}
	a.server = nil
	a.current = HostSession{}
}

// MDNSBrowseConfig configures BrowseMDNS
type MDNSBrowseConfig struct {
	// QueryTimeout is how long each query collects responses (default: 2s)
	QueryTimeout time.Duration

	Clock  clock.Clock
	Logger *zap.Logger
}

// BrowseMDNS queries for advertised sessions until ctx is done, offering each
// answer to sink with the receipt time as LastSeen.
func BrowseMDNS(ctx context.Context, config MDNSBrowseConfig, sink Sink) {
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = defaultMDNSQuery
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	log := config.Logger.Named("discovery.mdns")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 16)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				if desc, ok := descriptorFromEntry(entry, config.Clock.Now()); ok {
					sink.Offer(desc)
				}
			}
		}()

		params := &mdns.QueryParam{
			Service:     MDNSService,
			Domain:      mdnsDomain,
			Timeout:     config.QueryTimeout,
			Entries:     entries,
			DisableIPv6: true,
		}
		if err := mdns.Query(params); err != nil {
			log.Debug("mDNS query failed", zap.Error(err))
		}
		close(entries)
		<-done
	}
}

// sessionTXT renders the beacon fields as TXT records
func sessionTXT(s HostSession) []string {
	pw := "0"
	if s.PasswordRequired {
		pw = "1"
	}
	return []string{
		"tag=" + BeaconTag,
		"name=" + SanitizeName(s.Name),
		"pw=" + pw,
		"players=" + strconv.Itoa(s.ClientCount),
		"max=0",
	}
}

// descriptorFromEntry applies the beacon acceptance rules to an mDNS answer
func descriptorFromEntry(entry *mdns.ServiceEntry, now time.Time) (SessionDescriptor, bool) {
	if entry == nil || entry.AddrV4 == nil {
		return SessionDescriptor{}, false
	}
	if entry.Port < 0 || entry.Port > 65535 {
		return SessionDescriptor{}, false
	}

	txt := make(map[string]string, len(entry.InfoFields))
	for _, field := range entry.InfoFields {
		k, v, _ := strings.Cut(field, "=")
		txt[k] = v
	}
	if txt["tag"] != BeaconTag {
		return SessionDescriptor{}, false
	}

	return SessionDescriptor{
		Name:        txt["name"],
		Address:     entry.AddrV4.String(),
		Port:        uint16(entry.Port),
		HasPassword: txt["pw"] == "1",
		PlayerCount: parseCount(txt["players"]),
		MaxPlayers:  parseCount(txt["max"]),
		PingMs:      PingUnknown,
		LastSeen:    now,
	}, true
}

// localIPv4s returns the non-loopback IPv4 addresses of up interfaces
func localIPv4s() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
