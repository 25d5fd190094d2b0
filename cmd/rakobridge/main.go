// Rako Bridge - MQTT bridge for Rako lighting hubs
//
// This is the main entry point for the Rako bridge daemon. The bridge
// connects to a Rako hub over its wired TCP interface and exposes it to
// the rest of the home:
//   - Commands arrive over MQTT and are translated to hub SEND commands
//   - Channel levels are polled and published as retained MQTT state
//   - Level changes are recorded to SQLite and optionally InfluxDB
//   - A local REST API serves hub configuration and history
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/rako-bridge/migrations"

	"github.com/nerrad567/rako-bridge/internal/api"
	"github.com/nerrad567/rako-bridge/internal/bridges/rako"
	"github.com/nerrad567/rako-bridge/internal/history"
	"github.com/nerrad567/rako-bridge/internal/infrastructure/config"
	"github.com/nerrad567/rako-bridge/internal/infrastructure/database"
	"github.com/nerrad567/rako-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/rako-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/rako-bridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Maintenance intervals for the background housekeeping loop.
const (
	// prunePeriod is how often expired history rows are deleted.
	prunePeriod = 1 * time.Hour

	// statsPeriod is how often hub counters are written to InfluxDB.
	statsPeriod = 1 * time.Minute
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Rako bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Level history store (optional)
	var historyStore *history.Store
	if cfg.History.Enabled {
		historyStore = history.NewStore(db)
		log.Info("level history enabled", "retention_days", cfg.History.RetentionDays)
	} else {
		log.Info("level history disabled")
	}

	// Connect to MQTT broker. The last will marks the bridge offline on
	// the health topic if the broker loses us without a clean disconnect.
	lwtPayload, err := json.Marshal(rako.NewLWTMessage(cfg.Bridge.ID))
	if err != nil {
		return fmt.Errorf("building last will payload: %w", err)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, &mqtt.LastWill{
		Topic:   rako.HealthTopic(),
		Payload: lwtPayload,
	})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Create the hub client. No I/O happens here; the first operation
	// connects and performs the subscription handshake.
	hub, err := rako.NewHub(rako.HubConfig{
		Host:           cfg.Hub.Host,
		Port:           cfg.Hub.Port,
		ClientName:     cfg.Hub.ClientName,
		ConnectTimeout: cfg.GetConnectTimeout(),
		ReadTimeout:    cfg.GetHubReadTimeout(),
		WriteTimeout:   cfg.GetHubWriteTimeout(),
	})
	if err != nil {
		return fmt.Errorf("creating hub client: %w", err)
	}
	hub.SetLogger(log)
	defer func() {
		log.Info("closing hub connection")
		if closeErr := hub.Close(); closeErr != nil {
			log.Error("error closing hub connection", "error", closeErr)
		}
	}()

	// Start the bridge
	bridge, err := startBridge(ctx, cfg, hub, mqttClient, historyStore, influxClient, log)
	if err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	// Start API server (if enabled)
	if cfg.API.Enabled {
		apiServer, apiErr := startAPI(ctx, cfg, hub, bridge, historyStore, log)
		if apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))
	} else {
		log.Info("API server disabled")
	}

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Background housekeeping: history pruning and counter telemetry
	go maintenanceLoop(ctx, cfg, hub, historyStore, influxClient, log)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (if enabled)
	// 2. Bridge (publishes "stopping" health status)
	// 3. Hub connection
	// 4. InfluxDB (if enabled)
	// 5. MQTT (publishes offline system status)
	// 6. Database

	log.Info("Rako bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RAKO_BRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RAKO_BRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startBridge creates and starts the MQTT-to-hub bridge.
//
// History and telemetry are optional; nil values leave the corresponding
// feature disabled.
func startBridge(ctx context.Context, cfg *config.Config, hub *rako.Hub, mqttClient *mqtt.Client, historyStore *history.Store, influxClient *influxdb.Client, log *logging.Logger) (*rako.Bridge, error) {
	opts := rako.BridgeOptions{
		BridgeID:       cfg.Bridge.ID,
		Version:        version,
		PollInterval:   cfg.GetPollInterval(),
		HealthInterval: cfg.GetHealthInterval(),
		MQTTClient:     &mqttBridgeAdapter{client: mqttClient},
		Hub:            hub,
		Logger:         log,
	}

	// Assign optional collaborators only when present so the bridge sees
	// nil interfaces, not typed nils.
	if historyStore != nil {
		opts.History = historyStore
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
	}

	bridge, err := rako.NewBridge(opts)
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("bridge started",
		"bridge_id", cfg.Bridge.ID,
		"hub", hub.Address(),
		"poll_interval", cfg.GetPollInterval(),
	)

	return bridge, nil
}

// startAPI creates and starts the REST API server.
func startAPI(ctx context.Context, cfg *config.Config, hub *rako.Hub, bridge *rako.Bridge, historyStore *history.Store, log *logging.Logger) (*api.Server, error) {
	deps := api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Hub:     hub,
		Bridge:  bridge,
		Version: version,
	}
	if historyStore != nil {
		deps.History = historyStore
	}

	server, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return server, nil
}

// maintenanceLoop runs periodic housekeeping until ctx is cancelled:
// pruning expired history rows and writing hub counters to InfluxDB.
func maintenanceLoop(ctx context.Context, cfg *config.Config, hub *rako.Hub, historyStore *history.Store, influxClient *influxdb.Client, log *logging.Logger) {
	pruneTicker := time.NewTicker(prunePeriod)
	defer pruneTicker.Stop()
	statsTicker := time.NewTicker(statsPeriod)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-pruneTicker.C:
			if historyStore == nil {
				continue
			}
			removed, err := historyStore.Prune(ctx, cfg.GetHistoryRetention())
			if err != nil {
				log.Error("history prune failed", "error", err)
				continue
			}
			if removed > 0 {
				log.Info("history pruned", "rows_removed", removed)
			}

		case <-statsTicker.C:
			if influxClient == nil {
				continue
			}
			stats := hub.Stats()
			influxClient.WriteBridgeStats(
				stats.CommandsTx,
				stats.QueriesTx,
				stats.RowsRx,
				stats.ErrorsTotal,
				stats.ReconnectsTotal,
			)
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Hub health is not checked at startup: the hub connection is lazy
	// and the bridge reports connection state on the health topic.

	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic string, payload []byte) error
// - Bridge expects: func(topic string, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements rako.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements rako.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler to return nil error (bridge handlers report
	// failures through acks, not subscription errors)
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements rako.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
