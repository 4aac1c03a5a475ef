// Command pulse-runtime is a demo instrumented runtime.
//
// It registers a small counter directory, simulates counter activity and a
// backend-owned accelerator, and streams captures to a pulse monitoring
// server such as pulse-mock.
//
// Usage:
//
//	pulse-runtime [flags]
//
// Flags:
//
//	--config string        YAML configuration file (client and directory sections)
//	--network string       unix or tcp (default "unix")
//	--address string       Server address (default "@pulse_namespace")
//	--endianness string    big, little or native
//	--discover             Find a tcp server over mDNS
//	--capture-log string   Write protocol events to a .plog file
//	--log-level string     debug, info, warn, error (default "info")
//	--reconnect            Reconnect with backoff when the link drops
//
// Examples:
//
//	# Connect to a local pulse-mock on the default socket
//	pulse-runtime
//
//	# Find a server on the LAN and keep reconnecting
//	pulse-runtime --discover --reconnect
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/capture"
	"github.com/pulse-protocol/pulse-go/pkg/client"
	"github.com/pulse-protocol/pulse-go/pkg/config"
	"github.com/pulse-protocol/pulse-go/pkg/connection"
	"github.com/pulse-protocol/pulse-go/pkg/counters"
	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/discovery"
	plog "github.com/pulse-protocol/pulse-go/pkg/log"
	flag "github.com/spf13/pflag"
)

var (
	configFile = flag.String("config", "", "YAML configuration file (client and directory sections)")
	network    = flag.String("network", "", "Server network: unix or tcp")
	address    = flag.String("address", "", "Server address")
	endianness = flag.String("endianness", "", "Packet byte order: big, little or native")
	discover   = flag.Bool("discover", false, "Find a tcp server over mDNS")
	captureLog = flag.String("capture-log", "", "Write protocol events to a .plog file")
	logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	reconnect  = flag.Bool("reconnect", false, "Reconnect with backoff when the link drops")
)

// simulationInterval is how often runtime-owned counters change.
const simulationInterval = 20 * time.Millisecond

func main() {
	flag.Parse()

	file, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := file.Client

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal", "signal", sig)
		cancel()
	}()

	if *discover {
		addr, err := discoverServer(ctx, logger)
		if err != nil {
			logger.Error("discovery failed", "error", err)
			os.Exit(1)
		}
		cfg.Network, cfg.Address = "tcp", addr
	}

	dir := directory.New()
	ids := capture.NewIDMap()
	defs := file.Directory
	if len(defs.Categories) == 0 {
		defs = defaultDirectory()
	}
	if err := config.ApplyDirectory(defs, dir, ids); err != nil {
		logger.Error("failed to build counter directory", "error", err)
		os.Exit(1)
	}
	logger.Info("counter directory ready", "categories", dir.CategoryCount(), "counters", dir.CounterCount())

	store := counters.NewStore()
	store.TrackDirectory(dir)
	go newSimulator(store, dir).run(ctx, simulationInterval)

	var protoLog plog.Logger
	var fileLogger *plog.FileLogger
	if *captureLog != "" {
		fileLogger, err = plog.NewFileLogger(*captureLog)
		if err != nil {
			logger.Error("failed to open capture log", "path", *captureLog, "error", err)
			os.Exit(1)
		}
		defer fileLogger.Close()
		protoLog = plog.NewMultiLogger(fileLogger, plog.NewSlogAdapter(logger).WithLevel(slog.LevelDebug))
	}

	policy, _ := cfg.Policy()
	backend := newNPUBackend()
	svc := client.New(client.Config{
		Info:             cfg.Info,
		HardwareVersion:  cfg.HardwareVersion,
		SoftwareVersion:  cfg.SoftwareVersion,
		ProcessName:      processName(cfg),
		Endianness:       cfg.ByteOrder(),
		Factory:          newFactory(cfg, protoLog),
		Directory:        dir,
		Counters:         store,
		Backends:         backend,
		IDs:              ids,
		BufferCount:      cfg.BufferCount,
		BufferSize:       cfg.BufferSize,
		BufferPolicy:     policy,
		ReadTimeout:      cfg.ReadTimeout,
		FlushTimeout:     cfg.FlushTimeout,
		MinCapturePeriod: cfg.MinCapturePeriod,
		OnStateChange: func(from, to client.State) {
			logger.Info("state changed", "from", from, "to", to)
		},
		Logger: logger,
	})

	logger.Info("connecting", "network", cfg.Network, "address", cfg.Address, "endianness", cfg.ByteOrder())
	if *reconnect {
		err = runWithReconnect(ctx, svc, logger)
	} else {
		err = runOnce(ctx, svc)
	}
	svc.Stop()

	if fileLogger != nil {
		written, dropped := fileLogger.Stats()
		logger.Info("capture log closed", "path", fileLogger.Path(), "events", written, "dropped", dropped)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("runtime stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}

// runOnce holds a single session until the link drops or ctx ends.
func runOnce(ctx context.Context, svc *client.Service) error {
	if err := svc.Start(ctx); err != nil {
		return err
	}
	return svc.WaitForState(ctx, client.StateNotConnected)
}

func runWithReconnect(ctx context.Context, svc *client.Service, logger *slog.Logger) error {
	keeper, err := connection.NewKeeper(connection.KeeperConfig{
		Start: svc.Start,
		Wait: func(ctx context.Context) error {
			return svc.WaitForState(ctx, client.StateNotConnected)
		},
		Stop:    svc.Stop,
		Backoff: connection.DefaultBackoffConfig(),
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("connect failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	return keeper.Run(ctx)
}

func newFactory(cfg config.Client, protoLog plog.Logger) client.ConnectionFactory {
	if cfg.Network == "unix" {
		return client.SocketFactory{Address: cfg.Address, Logger: protoLog}
	}
	return client.DialFactory{
		Network: cfg.Network,
		Address: cfg.Address,
		Timeout: 5 * time.Second,
		Logger:  protoLog,
	}
}

// discoverServer returns the dial address of the first advertised server.
func discoverServer(ctx context.Context, logger *slog.Logger) (string, error) {
	browser := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	defer browser.Stop()

	srv, err := browser.FindFirst(ctx)
	if err != nil {
		return "", err
	}
	host := srv.Host
	if len(srv.Addresses) > 0 {
		host = srv.Addresses[0]
	}
	addr := net.JoinHostPort(host, strconv.Itoa(int(srv.Port)))
	logger.Info("discovered server", "instance", srv.InstanceName, "address", addr, "version", srv.Version)
	return addr, nil
}

// loadConfig merges the configuration file with command-line overrides.
func loadConfig() (config.File, error) {
	file := config.Default()
	if *configFile != "" {
		var err error
		file, err = config.Load(*configFile)
		if err != nil {
			return config.File{}, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "network":
			file.Client.Network = *network
		case "address":
			file.Client.Address = *address
		case "endianness":
			file.Client.Endianness = *endianness
		}
	})
	if file.Client.Network == "tcp" && file.Client.Address == config.DefaultClient().Address {
		file.Client.Address = fmt.Sprintf("localhost:%d", discovery.DefaultPort)
	}
	return file, file.Client.Validate()
}

func processName(cfg config.Client) string {
	if cfg.ProcessName != "" {
		return cfg.ProcessName
	}
	return "pulse-runtime"
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
