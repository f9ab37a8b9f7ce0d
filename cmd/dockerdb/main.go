package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dockerdb/internal/bus"
	"dockerdb/internal/config"
	"dockerdb/internal/events"
	"dockerdb/internal/metrics"
	"dockerdb/internal/plugin"
)

var (
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
	format     string
)

// newFactory builds the Manager factory for each command. Tests replace it.
var newFactory = plugin.DockerFactory

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dockerdb",
		Short:        "dockerdb manages a local PostgreSQL container for development",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	root.PersistentFlags().StringVar(&format, "format", "table", "output format: table or json")

	root.AddCommand(
		createCmd(),
		simpleCmd("destroy"),
		simpleCmd("start"),
		simpleCmd("stop"),
		statusCmd(),
		watchCmd(),
	)
	return root
}

// session is everything one CLI invocation sets up before running a command.
type session struct {
	cfg     config.Config
	logger  *slog.Logger
	emitter *events.Emitter
	app     *plugin.App
	bus     *bus.Client
}

func newSession(cmd *cobra.Command) (*session, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return nil, err
	}

	emitter := events.NewEmitter(logger)
	metrics.RegisterEventHandler(emitter)

	s := &session{
		cfg:     cfg,
		logger:  logger,
		emitter: emitter,
		app:     plugin.New(cfg, newFactory(emitter, logger), logger),
	}

	if cfg.Bus.URL != "" {
		client, err := bus.Connect(bus.Config{URL: cfg.Bus.URL, Token: cfg.Bus.Token}, plugin.AppName, logger)
		if err != nil {
			logger.Warn("event bus unavailable, continuing without it", "url", cfg.Bus.URL, "error", err)
		} else {
			client.Forward(emitter)
			s.bus = client
		}
	}
	return s, nil
}

// close pushes metrics when a Pushgateway is configured and drains the bus.
func (s *session) close() {
	if url := s.cfg.Metrics.PushgatewayURL; url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Push(ctx, url, s.cfg.ContainerName); err != nil {
			s.logger.Warn("metrics push failed", "url", url, "error", err)
		}
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Warn("bus close failed", "error", err)
		}
	}
}

// runPlugin runs the named app command inside a session.
func runPlugin(cmd *cobra.Command, name string, opts plugin.Options) (plugin.Result, error) {
	s, err := newSession(cmd)
	if err != nil {
		return plugin.Result{}, err
	}
	defer s.close()

	c, ok := s.app.Lookup(name)
	if !ok {
		return plugin.Result{}, fmt.Errorf("unknown command %q", name)
	}
	res, err := c.Run(cmd.Context(), opts)
	if err != nil {
		s.logger.Error(name+" failed", "error", err)
	}
	return res, err
}

func newLogger(w io.Writer, level, logFmt string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(logFmt) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q: want text or json", logFmt)
	}
}
