// ABOUTME: Entry point for hosting a League of Beans LAN session
// ABOUTME: Announces the session with UDP beacons and optionally over mDNS
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/LeagueOfBeans/lob-lan/internal/config"
	"github.com/LeagueOfBeans/lob-lan/internal/feed"
	"github.com/LeagueOfBeans/lob-lan/internal/hostsession"
	"github.com/LeagueOfBeans/lob-lan/internal/logging"
	"github.com/LeagueOfBeans/lob-lan/internal/ui"
	"github.com/LeagueOfBeans/lob-lan/internal/version"
	"github.com/LeagueOfBeans/lob-lan/pkg/discovery"
)

var (
	configPath    = flag.String("config", config.DefaultFile, "Config file path")
	envFile       = flag.String("env-file", config.DefaultEnvFile, "Environment file loaded before LOB_* overrides")
	name          = flag.String("name", "", "Session name (default: hostname)")
	gamePort      = flag.Int("port", 7770, "Game port players connect to")
	password      = flag.Bool("password", false, "Announce the session as password protected")
	clients       = flag.Int("clients", 0, "Initial connected client count")
	broadcastPort = flag.Int("broadcast-port", discovery.DefaultPort, "Discovery port beacons are sent to")
	interval      = flag.Duration("interval", discovery.DefaultInterval, "Beacon interval")
	target        = flag.String("target", discovery.DefaultTarget, "Beacon destination address")
	directed      = flag.Bool("directed", false, "Also send to each interface's directed broadcast address")
	mdnsAdvertise = flag.Bool("mdns", false, "Also advertise the session over mDNS")
	httpAddr      = flag.String("http", "", "Serve /healthz and /metrics on this address")
	logFile       = flag.String("log-file", "", "Log file path (default lob-host.log in TUI mode)")
	logLevel      = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	noTUI         = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lob-host: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(*envFile); err != nil {
		return nil, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			cfg.Host.Name = *name
		case "port":
			cfg.Host.Port = *gamePort
		case "password":
			cfg.Host.Password = *password
		case "clients":
			cfg.Host.Clients = *clients
		case "broadcast-port":
			cfg.Broadcast.Port = *broadcastPort
		case "interval":
			cfg.Broadcast.Interval = *interval
		case "target":
			cfg.Broadcast.Target = *target
		case "directed":
			cfg.Broadcast.Directed = *directed
		case "mdns":
			cfg.MDNS.Advertise = *mdnsAdvertise
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "log-file":
			cfg.Log.File = *logFile
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	if cfg.Host.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Host.Name = hostname
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	useTUI := !*noTUI

	logPath := cfg.Log.File
	if useTUI && logPath == "" {
		logPath = "lob-host.log"
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		File:   logPath,
		Stderr: !useTUI,
		Source: "lob-host",
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting host",
		zap.String("version", version.Version),
		zap.String("name", cfg.Host.Name),
		zap.Int("port", cfg.Host.Port),
		zap.Int("broadcast_port", cfg.Broadcast.Port))
	if cfg.PortMismatch() {
		logger.Warn("Broadcast port differs from the listen port; browsers on the listen port will not see this session",
			zap.Int("broadcast_port", cfg.Broadcast.Port),
			zap.Int("listen_port", cfg.Listen.Port))
	}

	state := hostsession.New(cfg.Host.Name, uint16(cfg.Host.Port), cfg.Host.Password)
	state.SetHosting(cfg.Host.Hosting)
	state.SetClients(cfg.Host.Clients)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	broadcaster, err := discovery.NewBroadcaster(discovery.BroadcasterConfig{
		Port:     cfg.Broadcast.Port,
		Interval: cfg.Broadcast.Interval,
		Target:   cfg.Broadcast.Target,
		Directed: cfg.Broadcast.Directed,
		Source:   state,
		Logger:   logger,
		Metrics:  discovery.NewMetrics(reg),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	collect := func(e error) {
		mu.Lock()
		defer mu.Unlock()
		errs = multierr.Append(errs, e)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		collect(broadcaster.Run(ctx, cfg.Broadcast.Tick))
	}()

	if cfg.MDNS.Advertise {
		wg.Add(1)
		go func() {
			defer wg.Done()
			advertise(ctx, discovery.NewMDNSAdvertiser(logger), state, cfg.Broadcast.Interval, logger)
		}()
	}

	if cfg.HTTP.Addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collect(feed.Serve(ctx, cfg.HTTP.Addr, feed.StatusRoutes(reg), logger))
		}()
	}

	if useTUI {
		tuiErr := ui.RunHost(state)
		stop()
		wg.Wait()
		return multierr.Append(errs, tuiErr)
	}

	logger.Info("TUI disabled, press Ctrl-C to stop")
	<-ctx.Done()
	logger.Info("Shutdown signal received")
	wg.Wait()
	logger.Info("Host stopped")
	return errs
}

// advertise keeps the mDNS registration in step with the session until ctx is done
func advertise(ctx context.Context, adv *discovery.MDNSAdvertiser, src discovery.SessionSource, every time.Duration, logger *zap.Logger) {
	defer adv.Stop()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if err := adv.Sync(src.Session()); err != nil {
			logger.Warn("mDNS advertisement failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
