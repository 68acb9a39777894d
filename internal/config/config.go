// ABOUTME: Configuration for the lob binaries
// ABOUTME: Defaults, then lob.ini, then .env and LOB_* variables; flags override last
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/LeagueOfBeans/lob-lan/pkg/discovery"
)

const (
	// DefaultFile is read when present in the working directory
	DefaultFile = "lob.ini"

	// DefaultEnvFile is loaded into the environment when present
	DefaultEnvFile = ".env"

	defaultTick     = 100 * time.Millisecond
	defaultMaintain = 250 * time.Millisecond
)

// BroadcastConfig configures beacon sending
type BroadcastConfig struct {
	Port     int
	Interval time.Duration
	Target   string
	Directed bool
	Tick     time.Duration // host loop cadence
}

// ListenConfig configures beacon receipt
type ListenConfig struct {
	Host       string
	Port       int
	StaleAfter time.Duration
	Maintain   time.Duration // maintenance pass cadence
	QueueSize  int
}

// HostConfig describes the session lob-host announces
type HostConfig struct {
	Name     string
	Port     int
	Password bool
	Clients  int
	Hosting  bool
}

// LogConfig configures logging
type LogConfig struct {
	Level string
	File  string
}

// HTTPConfig configures the server-browser feed; empty Addr disables it
type HTTPConfig struct {
	Addr string
}

// MDNSConfig toggles the mDNS mirror
type MDNSConfig struct {
	Advertise bool
	Browse    bool
}

// Config is the complete configuration
type Config struct {
	Broadcast BroadcastConfig
	Listen    ListenConfig
	Host      HostConfig
	Log       LogConfig
	HTTP      HTTPConfig
	MDNS      MDNSConfig
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Broadcast: BroadcastConfig{
			Port:     discovery.DefaultPort,
			Interval: discovery.DefaultInterval,
			Target:   discovery.DefaultTarget,
			Tick:     defaultTick,
		},
		Listen: ListenConfig{
			Port:       discovery.DefaultPort,
			StaleAfter: discovery.DefaultStaleAfter,
			Maintain:   defaultMaintain,
			QueueSize:  discovery.DefaultQueueSize,
		},
		Host: HostConfig{
			Name:    "Bean Lobby",
			Port:    7770,
			Hosting: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load returns the defaults overlaid with the ini file at path.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}

	for _, sec := range iniFile.Sections() {
		if sec.Name() == ini.DefaultSection {
			if len(sec.Keys()) > 0 {
				return nil, errors.Errorf("config %s: keys outside a section: %s", path, sec.KeyStrings())
			}
			continue
		}

		var err error
		switch strings.ToLower(sec.Name()) {
		case "broadcast":
			err = readBroadcast(sec, &cfg.Broadcast)
		case "listen":
			err = readListen(sec, &cfg.Listen)
		case "host":
			err = readHost(sec, &cfg.Host)
		case "log":
			err = readLog(sec, &cfg.Log)
		case "http":
			err = readHTTP(sec, &cfg.HTTP)
		case "mdns":
			err = readMDNS(sec, &cfg.MDNS)
		default:
			err = errors.Errorf("unknown section: %s", sec.Name())
		}
		if err != nil {
			return nil, errors.Wrapf(err, "config %s", path)
		}
	}
	return cfg, nil
}

func unknownKey(sec *ini.Section, key *ini.Key) error {
	return errors.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
}

func readBroadcast(sec *ini.Section, c *BroadcastConfig) error {
	for _, key := range sec.Keys() {
		switch strings.ToLower(key.Name()) {
		case "port":
			c.Port = key.MustInt(c.Port)
		case "interval":
			c.Interval = key.MustDuration(c.Interval)
		case "target":
			c.Target = key.MustString(c.Target)
		case "directed":
			c.Directed = key.MustBool(c.Directed)
		case "tick":
			c.Tick = key.MustDuration(c.Tick)
		default:
			return unknownKey(sec, key)
		}
	}
	return nil
}

func readListen(sec *ini.Section, c *ListenConfig) error {
	for _, key := range sec.Keys() {
		switch strings.ToLower(key.Name()) {
		case "host":
			c.Host = key.MustString(c.Host)
		case "port":
			c.Port = key.MustInt(c.Port)
		case "stale":
			c.StaleAfter = key.MustDuration(c.StaleAfter)
		case "maintain":
			c.Maintain = key.MustDuration(c.Maintain)
		case "queue":
			c.QueueSize = key.MustInt(c.QueueSize)
		default:
			return unknownKey(sec, key)
		}
	}
	return nil
}

func readHost(sec *ini.Section, c *HostConfig) error {
	for _, key := range sec.Keys() {
		switch strings.ToLower(key.Name()) {
		case "name":
			c.Name = key.MustString(c.Name)
		case "port":
			c.Port = key.MustInt(c.Port)
		case "password":
			c.Password = key.MustBool(c.Password)
		case "clients":
			c.Clients = key.MustInt(c.Clients)
		case "hosting":
			c.Hosting = key.MustBool(c.Hosting)
		default:
			return unknownKey(sec, key)
		}
	}
	return nil
}

func readLog(sec *ini.Section, c *LogConfig) error {
	for _, key := range sec.Keys() {
		switch strings.ToLower(key.Name()) {
		case "level":
			c.Level = key.MustString(c.Level)
		case "file":
			c.File = key.MustString(c.File)
		default:
			return unknownKey(sec, key)
		}
	}
	return nil
}

func readHTTP(sec *ini.Section, c *HTTPConfig) error {
	for _, key := range sec.Keys() {
		switch strings.ToLower(key.Name()) {
		case "addr":
			c.Addr = key.MustString(c.Addr)
		default:
			return unknownKey(sec, key)
		}
	}
	return nil
}

func readMDNS(sec *ini.Section, c *MDNSConfig) error {
	for _, key := range sec.Keys() {
		switch strings.ToLower(key.Name()) {
		case "advertise":
			c.Advertise = key.MustBool(c.Advertise)
		case "browse":
			c.Browse = key.MustBool(c.Browse)
		default:
			return unknownKey(sec, key)
		}
	}
	return nil
}

// ApplyEnv loads envFile (if present) and applies LOB_* overrides.
// Variables already set in the process environment win over the file.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "load env file %s", envFile)
		}
	}

	if v, ok := os.LookupEnv("LOB_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "LOB_PORT")
		}
		c.Broadcast.Port = port
		c.Listen.Port = port
	}
	if v, ok := os.LookupEnv("LOB_HOST_NAME"); ok {
		c.Host.Name = v
	}
	if v, ok := os.LookupEnv("LOB_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("LOB_LOG_FILE"); ok {
		c.Log.File = v
	}
	if v, ok := os.LookupEnv("LOB_HTTP_ADDR"); ok {
		c.HTTP.Addr = v
	}
	return nil
}

// Validate checks ranges. A broadcast/listen port mismatch is allowed but
// reported by PortMismatch, since a host may announce to a relay port.
func (c *Config) Validate() error {
	if err := validPort("broadcast port", c.Broadcast.Port); err != nil {
		return err
	}
	if err := validPort("listen port", c.Listen.Port); err != nil {
		return err
	}
	if err := validPort("host port", c.Host.Port); err != nil {
		return err
	}
	if c.Broadcast.Interval <= 0 {
		return errors.Errorf("broadcast interval must be positive, got %v", c.Broadcast.Interval)
	}
	if c.Broadcast.Tick <= 0 {
		return errors.Errorf("broadcast tick must be positive, got %v", c.Broadcast.Tick)
	}
	if c.Listen.StaleAfter <= 0 {
		return errors.Errorf("listen stale window must be positive, got %v", c.Listen.StaleAfter)
	}
	if c.Listen.Maintain <= 0 {
		return errors.Errorf("listen maintain cadence must be positive, got %v", c.Listen.Maintain)
	}
	if c.Listen.QueueSize <= 0 {
		return errors.Errorf("listen queue must be positive, got %d", c.Listen.QueueSize)
	}
	if c.Host.Clients < 0 {
		return errors.Errorf("host clients must not be negative, got %d", c.Host.Clients)
	}
	return nil
}

// PortMismatch reports whether this host would broadcast on a port it does not listen on
func (c *Config) PortMismatch() bool {
	return c.Broadcast.Port != c.Listen.Port
}

func validPort(what string, port int) error {
	if port < 1 || port > 65535 {
		return errors.Errorf("%s out of range: %d", what, port)
	}
	return nil
}
