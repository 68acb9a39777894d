// ABOUTME: Entry point for the League of Beans LAN server browser
// ABOUTME: Listens for session beacons and shows them in a TUI or as logs
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
	"github.com/LeagueOfBeans/lob-lan/internal/logging"
	"github.com/LeagueOfBeans/lob-lan/internal/ui"
	"github.com/LeagueOfBeans/lob-lan/internal/version"
	"github.com/LeagueOfBeans/lob-lan/pkg/discovery"
)

var (
	configPath  = flag.String("config", config.DefaultFile, "Config file path")
	envFile     = flag.String("env-file", config.DefaultEnvFile, "Environment file loaded before LOB_* overrides")
	port        = flag.Int("port", discovery.DefaultPort, "Discovery port to listen on")
	stale       = flag.Duration("stale", discovery.DefaultStaleAfter, "Hide sessions not refreshed within this window")
	httpAddr    = flag.String("http", "", "Serve the server-browser feed on this address (e.g. :8080)")
	mdnsBrowse  = flag.Bool("mdns", false, "Also browse for sessions advertised over mDNS")
	logFile     = flag.String("log-file", "", "Log file path (default lob.log in TUI mode)")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lob: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, lob.ini, the environment and explicitly set flags
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
		case "port":
			cfg.Listen.Port = *port
		case "stale":
			cfg.Listen.StaleAfter = *stale
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "mdns":
			cfg.MDNS.Browse = *mdnsBrowse
		case "log-file":
			cfg.Log.File = *logFile
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

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

	// TUI mode: log only to file
	logPath := cfg.Log.File
	if useTUI && logPath == "" {
		logPath = "lob.log"
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		File:   logPath,
		Stderr: !useTUI,
		Source: "lob",
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting server browser",
		zap.String("version", version.Version),
		zap.Int("port", cfg.Listen.Port),
		zap.Duration("stale", cfg.Listen.StaleAfter))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := discovery.NewMetrics(reg)

	var hub *feed.Hub
	seen := make(map[string]bool)
	listener := discovery.NewListener(discovery.ListenerConfig{
		Host:       cfg.Listen.Host,
		Port:       cfg.Listen.Port,
		StaleAfter: cfg.Listen.StaleAfter,
		QueueSize:  cfg.Listen.QueueSize,
		Logger:     logger,
		Metrics:    metrics,
		OnUpdate: func(d discovery.SessionDescriptor) {
			if !seen[d.Key()] {
				seen[d.Key()] = true
				logger.Info("Session discovered",
					zap.String("name", d.Name),
					zap.String("addr", d.Key()),
					zap.Bool("password", d.HasPassword),
					zap.Int("players", d.PlayerCount))
			}
			if hub != nil {
				hub.Publish(d)
			}
		},
	})

	// A bind failure leaves the listener inert; the browser still runs and shows nothing
	_ = listener.Start()

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

	if cfg.HTTP.Addr != "" {
		hub = feed.NewHub(ctx, listener, logger)
		routes := feed.Routes(hub, listener, reg, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			collect(feed.Serve(ctx, cfg.HTTP.Addr, routes, logger))
			hub.Shutdown()
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		collect(listener.Run(ctx, cfg.Listen.Maintain))
	}()

	if cfg.MDNS.Browse {
		wg.Add(1)
		go func() {
			defer wg.Done()
			discovery.BrowseMDNS(ctx, discovery.MDNSBrowseConfig{Logger: logger}, listener)
		}()
	}

	if useTUI {
		chosen, ok, tuiErr := ui.RunBrowser(listener, cfg.Listen.Maintain)
		stop()
		wg.Wait()
		if tuiErr != nil {
			return multierr.Append(errs, tuiErr)
		}
		if ok {
			logger.Info("Session selected", zap.String("name", chosen.Name), zap.String("addr", chosen.Key()))
			fmt.Println(chosen.Key())
		}
		return errs
	}

	logger.Info("TUI disabled, press Ctrl-C to stop")
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("Timed out waiting for shutdown")
	}

	mu.Lock()
	defer mu.Unlock()
	return errs
}
