package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatline/internal/config"
	"chatline/internal/constants"
	"chatline/internal/media"
	"chatline/internal/metrics"
	"chatline/internal/models"
	"chatline/internal/notify"
	"chatline/internal/retry"
	"chatline/internal/scheduler"
	"chatline/internal/service"
	"chatline/internal/store"
	"chatline/internal/tracing"
	"chatline/internal/view"
	"chatline/pkg/broker"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type options struct {
	configPath string
	envFile    string
	verbose    bool
}

func main() {
	if err := newRootCommand(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(in io.Reader, out, logOut io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "chatline",
		Short: "Terminal client for a STOMP-over-WebSocket chat room",
		Long: `chatline joins a public chat room over STOMP, keeps the connection alive with
bounded backoff and tracks every message through sending, sent, delivered and read.`,
		Version:      fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, in, out, logOut)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to a JSON or YAML configuration file")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "Path to an optional .env file")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging (includes message contents)")
	return cmd
}

func run(ctx context.Context, opts *options, in io.Reader, out, logOut io.Writer) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(logOut)

	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogLevel(logger, cfg.LogLevel, opts.verbose)

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting chatline")

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// The loop outlives ctx so the graceful stop can still run on it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loop := scheduler.NewLoop(constants.DefaultLoopQueueSize, logger)
	go loop.Run(loopCtx)

	registry := metrics.GetRegistry()

	var console *view.Console
	sink := notify.Multi{
		notify.NewLogSink(logger),
		notify.Func(func(message string, level notify.Level) {
			if console != nil {
				console.Notify(message, level)
			}
		}),
	}

	svc := newChatService(cfg, loop, sink, registry, logger, opts.verbose)
	console = view.NewConsole(svc, in, out, logger)
	console.Attach()

	if opts.configPath != "" {
		watcher := config.NewConfigWatcher(opts.configPath, registry, logger)
		watcher.OnConfigChange(func(updated *models.Config) {
			applyLogLevel(logger, updated.LogLevel, opts.verbose)
			if err := svc.SetTypingEnabled(ctx, updated.Typing.IsEnabled()); err != nil {
				logger.WithError(err).Warn("Failed to apply typing setting")
			}
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Config watcher stopped")
			}
		}()
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start chat service: %w", err)
	}

	var server *Server
	serverErrCh := make(chan error, 1)
	if cfg.Server.Addr != "" {
		server = NewServer(svc, registry, logger, cfg.Server.Addr)
		go func() {
			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				serverErrCh <- fmt.Errorf("server error: %w", err)
			}
		}()
	}

	consoleDone := make(chan error, 1)
	go func() {
		consoleDone <- console.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-consoleDone:
		if err != nil {
			logger.WithError(err).Warn("Console input failed")
		}
	case runErr = <-serverErrCh:
		logger.Error(runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := svc.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Chat service did not stop cleanly")
	}
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}
	}

	logger.Info("Shutdown completed")
	return runErr
}

func loadConfig(path string) (*models.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.LoadConfig(path)
}

// applyLogLevel honours --verbose over the configured level
func applyLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

func newChatService(cfg *models.Config, loop *scheduler.Loop, sink notify.Sink, registry *metrics.Registry, logger *logrus.Logger, verbose bool) service.ChatService {
	transport := broker.NewClient(broker.ClientConfig{
		Host:           cfg.Broker.Host,
		ConnectTimeout: time.Duration(cfg.Broker.ConnectTimeoutSec) * time.Second,
	}, logger)

	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Reconnect.FloorMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Reconnect.CeilingMs) * time.Millisecond,
		Multiplier:   cfg.Reconnect.Factor,
		MaxAttempts:  cfg.Reconnect.MaxRetries,
		Jitter:       cfg.Reconnect.Jitter,
	})

	conn := service.NewConnectionManager(transport, loop, backoff, sink, registry, logger, service.ConnectionConfig{
		Endpoint:        cfg.Broker.Endpoint,
		InboundTopic:    cfg.Broker.InboundTopic,
		SendDestination: cfg.Broker.SendDestination,
		JoinDestination: cfg.Broker.JoinDestination,
		Username:        cfg.Chat.Username,
	})

	st := store.New(loop.Now)
	status := service.NewStatusSimulator(loop, st, cfg.Status, registry, logger)
	typing := service.NewTypingSimulator(loop, cfg.Typing, cfg.Chat.Participants, cfg.Chat.Username, nil, registry, logger)

	return service.NewChatService(loop, conn, st, status, typing, media.NewRouter(cfg.Media), sink, registry, logger, service.ChatServiceConfig{
		Username:        cfg.Chat.Username,
		RoomName:        cfg.Chat.RoomName,
		SendDestination: cfg.Broker.SendDestination,
		MediaBaseDir:    cfg.Media.BaseDir,
		Verbose:         verbose,
	})
}
