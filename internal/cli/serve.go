package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetops/herald/internal/config"
	"github.com/fleetops/herald/internal/events"
	"github.com/fleetops/herald/internal/fleet"
	"github.com/fleetops/herald/internal/logging"
	"github.com/fleetops/herald/internal/model"
	"github.com/fleetops/herald/internal/policy"
	"github.com/fleetops/herald/internal/registry"
	"github.com/fleetops/herald/internal/server"
	"github.com/fleetops/herald/internal/store"
	"github.com/fleetops/herald/internal/telemetry"
)

var serveConfig string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveConfig, "config", config.DefaultPath(), "Path to config YAML")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control plane daemon",
	Long:  "Runs the HTTP control plane. Sidecars poll policy and push events and telemetry; the dashboard and CLI read the fleet views.\nSupports hot-reload of the admin key and heartbeat timeout from the config file.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfig)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, os.Stderr)

	backends, closeStorage, err := openBackends(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeStorage()

	agents, err := store.OpenCollection[model.Agent](backends["agents"], 0)
	if err != nil {
		return fmt.Errorf("failed to open agents collection: %w", err)
	}
	policies, err := store.OpenCollection[model.Policy](backends["policies"], 0)
	if err != nil {
		return fmt.Errorf("failed to open policies collection: %w", err)
	}
	eventRecords, err := store.OpenCollection[model.Event](backends["events"], cfg.MaxEvents)
	if err != nil {
		return fmt.Errorf("failed to open events collection: %w", err)
	}
	samples, err := store.OpenCollection[model.TelemetrySample](backends["telemetry"], cfg.MaxTelemetry)
	if err != nil {
		return fmt.Errorf("failed to open telemetry collection: %w", err)
	}

	reg := registry.New(agents, policies)
	telemetryStore := telemetry.NewStore(samples, policies, reg)
	policyStore := policy.NewStore(policies, telemetryStore)
	eventLog := events.NewLog(eventRecords, reg)
	aggregator := fleet.New(reg, policyStore, telemetryStore, cfg.HeartbeatTimeout())

	srv := server.New(server.Config{
		Addr:             cfg.Listen,
		AdminKey:         cfg.AdminKey,
		HeartbeatTimeout: cfg.HeartbeatTimeout(),
		Logger:           logger,
	}, reg, policyStore, eventLog, telemetryStore, aggregator)

	reloader, err := server.NewReloader(srv, serveConfig, func() error {
		next, err := config.Load(serveConfig)
		if err != nil {
			return err
		}
		srv.SetAdminKey(next.AdminKey)
		srv.SetHeartbeatTimeout(next.HeartbeatTimeout())
		return nil
	})
	if err != nil {
		logger.Warn("hot-reload disabled", "err", err)
		reloader = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting control plane",
		"listen", cfg.Listen,
		"storage", cfg.Storage,
		"data_dir", cfg.DataDir,
	)
	return srv.Serve()
}

var collectionNames = []string{"agents", "policies", "events", "telemetry"}

// openBackends builds one backend per collection for the configured
// storage mode. The returned closer releases shared resources.
func openBackends(cfg config.Config) (map[string]store.Backend, func(), error) {
	backends := make(map[string]store.Backend, len(collectionNames))

	switch cfg.Storage {
	case config.StorageMemory:
		for _, name := range collectionNames {
			backends[name] = store.NewMemoryBackend()
		}
		return backends, func() {}, nil

	case config.StorageSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, nil, err
		}
		db, err := store.OpenSQLite(filepath.Join(cfg.DataDir, "herald.db"))
		if err != nil {
			return nil, nil, err
		}
		for _, name := range collectionNames {
			backends[name] = db.Backend(name)
		}
		return backends, func() { db.Close() }, nil

	default:
		for _, name := range collectionNames {
			b, err := store.NewFileBackend(filepath.Join(cfg.DataDir, name+".json"))
			if err != nil {
				return nil, nil, err
			}
			backends[name] = b
		}
		return backends, func() {}, nil
	}
}
