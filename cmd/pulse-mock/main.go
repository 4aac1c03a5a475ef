// Command pulse-mock is a reference pulse monitoring server.
//
// It accepts instrumented runtimes on a Unix socket or TCP address, acks
// their stream metadata, records their counter directories and prints the
// captures they stream.
//
// Usage:
//
//	pulse-mock [flags]
//
// Flags:
//
//	--config string        YAML configuration file (server section)
//	--network string       unix or tcp (default "unix")
//	--address string       Listen address (default "@pulse_namespace")
//	--request-directory    Request the counter directory from every client
//	--period uint          Selection period in microseconds
//	--counters uints       Counter UIDs to select once the directory arrives
//	--advertise            Advertise a tcp listener over mDNS
//	--capture-log string   Write protocol events to a .plog file
//	--log-level string     debug, info, warn, error (default "info")
//	--interactive          Start the command console
//
// Examples:
//
//	# Listen on the default abstract socket with a console
//	pulse-mock --interactive
//
//	# Sample counters 1 and 2 every 100ms from every client on tcp
//	pulse-mock --network tcp --address :7400 --period 100000 --counters 1,2
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/pulse-protocol/pulse-go/cmd/pulse-mock/interactive"
	"github.com/pulse-protocol/pulse-go/internal/mockserver"
	"github.com/pulse-protocol/pulse-go/pkg/config"
	"github.com/pulse-protocol/pulse-go/pkg/discovery"
	plog "github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
	flag "github.com/spf13/pflag"
)

var (
	configFile       = flag.String("config", "", "YAML configuration file (server section)")
	network          = flag.String("network", "", "Listen network: unix or tcp")
	address          = flag.String("address", "", "Listen address")
	requestDirectory = flag.Bool("request-directory", false, "Request the counter directory from every client")
	period           = flag.Uint32("period", 0, "Selection period in microseconds")
	counterIDs       = flag.UintSlice("counters", nil, "Counter UIDs to select once the directory arrives")
	advertise        = flag.Bool("advertise", false, "Advertise a tcp listener over mDNS")
	instanceName     = flag.String("name", "", "mDNS instance name")
	captureLog       = flag.String("capture-log", "", "Write protocol events to a .plog file")
	logLevel         = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	interactiveMode  = flag.Bool("interactive", false, "Start the command console")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	out := &logOutput{w: os.Stderr}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))

	srvConfig := mockserver.ConfigFromFile(cfg)
	srvConfig.Logger = logger
	srvConfig.OnCapture = func(s *mockserver.Session, c protocol.PeriodicCounterCapture) {
		if !*interactiveMode {
			logger.Info("capture", "session", s.ID(), "timestamp", c.Timestamp, "values", len(c.Values))
		}
	}

	var fileLogger *plog.FileLogger
	if cfg.CaptureLog != "" {
		fileLogger, err = plog.NewFileLogger(cfg.CaptureLog)
		if err != nil {
			logger.Error("failed to open capture log", "path", cfg.CaptureLog, "error", err)
			os.Exit(1)
		}
		defer fileLogger.Close()
		srvConfig.Capture = plog.NewMultiLogger(fileLogger, plog.NewSlogAdapter(logger).WithLevel(slog.LevelDebug))
	}

	srv, err := mockserver.NewServer(srvConfig)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	logger.Info("pulse mock server listening", "network", cfg.Network, "addr", srv.Addr())

	if *interactiveMode {
		console, err := interactive.New(srv)
		if err != nil {
			logger.Error("failed to create console", "error", err)
			os.Exit(1)
		}
		// Route logs through readline so they do not clobber the prompt.
		out.set(console.Stdout())
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	srv.Stop()

	if fileLogger != nil {
		written, dropped := fileLogger.Stats()
		logger.Info("capture log closed", "path", fileLogger.Path(), "events", written, "dropped", dropped)
	}
}

// loadConfig merges the configuration file with command-line overrides.
func loadConfig() (config.Server, error) {
	file := config.Default()
	if *configFile != "" {
		var err error
		file, err = config.Load(*configFile)
		if err != nil {
			return config.Server{}, err
		}
	}
	cfg := file.Server

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "network":
			cfg.Network = *network
		case "address":
			cfg.Address = *address
		case "request-directory":
			cfg.RequestDirectory = *requestDirectory
		case "advertise":
			cfg.Advertise = *advertise
		case "name":
			cfg.InstanceName = *instanceName
		case "capture-log":
			cfg.CaptureLog = *captureLog
		}
	})
	if cfg.Network == "tcp" && cfg.Address == config.DefaultServer().Address {
		cfg.Address = fmt.Sprintf(":%d", discovery.DefaultPort)
	}

	if *period != 0 || len(*counterIDs) > 0 {
		sel := &config.Selection{PeriodUs: *period}
		for _, id := range *counterIDs {
			if id > 0xFFFF {
				return config.Server{}, fmt.Errorf("counter uid %d out of range", id)
			}
			sel.Counters = append(sel.Counters, uint16(id))
		}
		cfg.Selection = sel
	}
	return cfg, cfg.Validate()
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

// logOutput is an io.Writer whose target can change after loggers exist.
type logOutput struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *logOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}

func (o *logOutput) set(w io.Writer) {
	o.mu.Lock()
	o.w = w
	o.mu.Unlock()
}
