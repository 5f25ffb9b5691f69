package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nugget/tether/internal/buildinfo"
	"github.com/nugget/tether/internal/config"
	"github.com/nugget/tether/internal/mqtt"
	"github.com/nugget/tether/internal/network"
	"github.com/nugget/tether/internal/opstate"
	"github.com/nugget/tether/internal/supervisor"
	"github.com/nugget/tether/internal/telemetry"
)

// journalFile is the opstate database name inside data_dir.
const journalFile = "tether.db"

// shutdownTimeout bounds the offline announcement and disconnect on exit.
const shutdownTimeout = 5 * time.Second

// runSupervise wires the configured drivers into a supervisor and runs
// it until a fatal error or a shutdown signal.
func runSupervise(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting tether",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"branch", buildinfo.GitBranch,
		"built", buildinfo.BuildTime,
	)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = newLogger(stdout, level, cfg.LogFormat)
	logger.Info("config loaded",
		"path", cfgPath,
		"network_driver", cfg.Network.Driver,
		"broker", cfg.MQTT.Broker,
		"topic", cfg.Publish.Topic,
		"interval", time.Duration(cfg.Publish.IntervalSec)*time.Second,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("instance id: %w", err)
	}

	store, err := opstate.NewStore(filepath.Join(cfg.DataDir, journalFile))
	if err != nil {
		return fmt.Errorf("open state journal: %w", err)
	}
	defer store.Close()

	journal := opstate.NewJournal(store, logger.With("component", "journal"))
	if err := journal.Boot(buildinfo.Version); err != nil {
		logger.Warn("state journal reset failed", "error", err)
	}

	observers := supervisor.Observers{journal}
	if cfg.Metrics.Enabled {
		telemetry.SetBuildInfo(buildinfo.Version, buildinfo.GitCommit)
		observers = append(observers, telemetry.Recorder{})
		srv := startMetricsServer(cfg.Metrics.Address, logger)
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	netDriver, err := network.New(cfg.Network, logger.With("component", "network"))
	if err != nil {
		return err
	}

	epDriver := mqtt.NewDriver(cfg.MQTT, instanceID, cfg.Publish.Topic, logger.With("component", "mqtt"))

	task, err := newPublishTask(cfg.Publish)
	if err != nil {
		return err
	}

	sup, err := supervisor.New(supervisor.Config{
		Broker:           cfg.MQTT.Broker,
		PollInterval:     time.Duration(cfg.Network.PollIntervalSec) * time.Second,
		OnPublishFailure: supervisor.FailurePolicy(cfg.Publish.OnFailure),
		Observer:         observers,
		Logger:           logger.With("component", "supervisor"),
	}, netDriver, epDriver, task)
	if err != nil {
		return err
	}

	runErr := sup.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sup.Close(closeCtx); err != nil {
		logger.Warn("endpoint close failed", "error", err)
	}

	if ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
		logger.Info("shutdown complete", "published", sup.Published())
		return nil
	}
	return runErr
}

// newPublishTask builds the status task from the publish section.
func newPublishTask(cfg config.PublishConfig) (*supervisor.PublishTask, error) {
	qos, err := supervisor.ParseQoS(cfg.QoS)
	if err != nil {
		return nil, err
	}
	return supervisor.NewPublishTask(
		cfg.Topic,
		supervisor.FormatPayload(cfg.Payload),
		time.Duration(cfg.IntervalSec)*time.Second,
		qos,
		cfg.Retain,
	)
}

// startMetricsServer serves /metrics on addr in the background.
func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", telemetry.MetricsHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics listener starting", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "error", err)
		}
	}()

	return srv
}
