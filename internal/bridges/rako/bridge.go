package rako

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 2

	// commandTimeout is the timeout for sending commands to the hub.
	commandTimeout = 10 * time.Second

	// pollTimeout bounds one level poll cycle.
	pollTimeout = 30 * time.Second

	// defaultPollInterval is how often levels are polled when not
	// configured.
	defaultPollInterval = 5 * time.Second

	// maxComponent is the upper bound for level and RGB values.
	maxComponent = 255

	// maxScene is the highest scene index.
	maxScene = 16
)

// Bridge orchestrates bidirectional translation between the Rako hub and
// MQTT. It handles:
//   - Receiving commands via MQTT and translating them to hub SEND commands
//   - Polling hub levels and publishing changes as MQTT state updates
//   - Recording level history and telemetry
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts   BridgeOptions
	mqtt   MQTTClient
	hub    HubClient
	health *HealthReporter

	// Level cache for change detection, keyed by room/channel
	levelCache   map[levelKey]Level
	levelCacheMu sync.Mutex

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// levelKey identifies one channel in the level cache.
type levelKey struct {
	roomID    string
	channelID string
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// HubClient is the interface the bridge requires from the hub client.
// Satisfied by *Hub; mocked in tests.
type HubClient interface {
	GetHubInfo(ctx context.Context) (HubInfo, error)
	GetChannels(ctx context.Context, roomID ...int) ([]Channel, error)
	GetLevels(ctx context.Context, roomID ...int) ([]Level, error)
	SetLevel(ctx context.Context, roomID, channelID, level int) error
	SetRGB(ctx context.Context, roomID, channelID, red, green, blue int) error
	SetScene(ctx context.Context, roomID, channelID, sceneID int) error
	SetKelvin(ctx context.Context, roomID, channelID, kelvin int) error
	StartFadingUp(ctx context.Context, roomID, channelID int) error
	StartFadingDown(ctx context.Context, roomID, channelID int) error
	StopFading(ctx context.Context, roomID, channelID int) error
	StoreScene(ctx context.Context, roomID, channelID, sceneID int) error
	Address() string
	IsConnected() bool
	Stats() HubStats
}

// Ensure Hub implements HubClient.
var _ HubClient = (*Hub)(nil)

// HistoryRecorder persists observed level changes.
// This is optional - if nil, the bridge operates without history.
type HistoryRecorder interface {
	// RecordLevel appends one level observation. Values are the hub's
	// textual form.
	RecordLevel(ctx context.Context, roomID, channelID, scene, level, target, source string) error
}

// TelemetryWriter records level telemetry points.
// This is optional - if nil, the bridge operates without telemetry.
type TelemetryWriter interface {
	// WriteChannelLevel records a channel's current level.
	WriteChannelLevel(roomID, channelID string, level float64)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// BridgeID is the bridge identifier used in health messages.
	BridgeID string

	// Version is the bridge software version.
	Version string

	// PollInterval is how often hub levels are polled. Default: 5s.
	PollInterval time.Duration

	// HealthInterval is how often health status is published.
	// Default: 30s.
	HealthInterval time.Duration

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Hub is the hub client.
	Hub HubClient

	// History is optional level history persistence.
	History HistoryRecorder

	// Telemetry is optional level telemetry.
	Telemetry TelemetryWriter

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Hub == nil {
		return nil, fmt.Errorf("hub client is required")
	}
	if opts.BridgeID == "" {
		opts.BridgeID = "rako"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	// Create bridge-level context for command cancellation on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		opts:       opts,
		mqtt:       opts.MQTTClient,
		hub:        opts.Hub,
		levelCache: make(map[levelKey]Level),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:   opts.BridgeID,
		Version:    opts.Version,
		HubAddress: opts.Hub.Address(),
		Interval:   opts.HealthInterval,
		Publisher:  opts.MQTTClient,
		Hub:        opts.Hub,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Health returns the bridge's health reporter, for LWT wiring during MQTT
// connection setup.
func (b *Bridge) Health() *HealthReporter {
	return b.health
}

// Start begins bridge operation.
// This subscribes to command topics, starts the level poll loop, and
// starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	// Publish starting status
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Subscribe to command topics
	commandTopic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	// Fetch hub identity and topology in the background; the hub may not
	// be reachable yet and the lazy connection self-heals later.
	b.wg.Add(1)
	go b.discoverHub()

	// Start the level poll loop
	b.wg.Add(1)
	go b.pollLoop()

	// Start health reporting
	b.health.Start(ctx)

	// Publish initial healthy status
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started",
		"bridge_id", b.opts.BridgeID,
		"hub", b.hub.Address(),
		"poll_interval", b.opts.PollInterval)

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Cancel bridge context to abort in-flight operations
		b.ctxCancel()

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		// Wait for pending operations
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// discoverHub logs hub identity and records the observed channel count for
// health reporting.
func (b *Bridge) discoverHub() {
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(b.ctx, pollTimeout)
	defer cancel()

	info, err := b.hub.GetHubInfo(ctx)
	if err != nil {
		b.logError("hub identity query failed", err)
		return
	}
	b.logInfo("hub identified",
		"hub_id", info.HubID,
		"mac", info.MACAddress,
		"hub_version", info.HubVersion,
		"protocol_version", info.ProtocolVersion)

	channels, err := b.hub.GetChannels(ctx)
	if err != nil {
		b.logError("channel topology query failed", err)
		return
	}
	b.health.SetChannelCount(len(channels))
	b.logInfo("hub topology loaded", "channels", len(channels))
}

// pollLoop polls hub levels on the configured interval and publishes
// changed levels.
func (b *Bridge) pollLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	b.pollOnce()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.pollOnce()
		}
	}
}

// pollOnce queries all channel levels and publishes those that changed
// since the previous poll.
func (b *Bridge) pollOnce() {
	ctx, cancel := context.WithTimeout(b.ctx, pollTimeout)
	defer cancel()

	levels, err := b.hub.GetLevels(ctx)
	if err != nil {
		b.logError("level poll failed", err)
		return
	}

	for _, lvl := range levels {
		if b.levelUnchanged(lvl) {
			continue
		}
		b.publishState(lvl)
		b.recordLevel(ctx, lvl, "poll")
		b.writeTelemetry(lvl)
	}
}

// levelUnchanged checks the level against the cache, updating it.
// Returns true if unchanged (should skip publish).
func (b *Bridge) levelUnchanged(lvl Level) bool {
	key := levelKey{roomID: lvl.RoomID, channelID: lvl.ChannelID}

	b.levelCacheMu.Lock()
	defer b.levelCacheMu.Unlock()

	if cached, ok := b.levelCache[key]; ok && cached == lvl {
		return true
	}
	b.levelCache[key] = lvl
	return false
}

// publishState publishes a retained state message for a level.
func (b *Bridge) publishState(lvl Level) {
	msg := NewStateMessage(lvl)

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	topic := StateTopic(lvl.RoomID, lvl.ChannelID)
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

// recordLevel appends the level to history, if configured.
func (b *Bridge) recordLevel(ctx context.Context, lvl Level, source string) {
	if b.opts.History == nil {
		return
	}
	err := b.opts.History.RecordLevel(ctx,
		lvl.RoomID, lvl.ChannelID, lvl.CurrentScene, lvl.CurrentLevel, lvl.TargetLevel, source)
	if err != nil {
		b.logError("failed to record level history", err)
	}
}

// writeTelemetry records the level as a telemetry point, if configured.
// Non-numeric levels are skipped; the hub's values are textual by design.
func (b *Bridge) writeTelemetry(lvl Level) {
	if b.opts.Telemetry == nil {
		return
	}
	level, err := strconv.ParseFloat(lvl.CurrentLevel, 64)
	if err != nil {
		b.logDebug("skipping non-numeric level telemetry",
			"room", lvl.RoomID,
			"channel", lvl.ChannelID,
			"level", lvl.CurrentLevel)
		return
	}
	b.opts.Telemetry.WriteChannelLevel(lvl.RoomID, lvl.ChannelID, level)
}

// handleMQTTMessage routes incoming MQTT messages to appropriate handlers.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	switch parts[1] {
	case "command":
		b.handleCommand(payload)
	default:
		b.logError("unknown message type", fmt.Errorf("type: %s", parts[1]))
	}
}

// handleCommand processes a command message from the bus.
func (b *Bridge) handleCommand(payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}
	if cmd.Source == "" {
		cmd.Source = "mqtt"
	}

	// Errors are acked on the bus by Execute; nothing more to do here.
	//nolint:errcheck // Ack carries the failure to the caller
	b.Execute(cmd)
}

// Execute runs a command against the hub and publishes the acknowledgment.
// Commands arriving over MQTT and commands submitted through the HTTP API
// both pass through here.
func (b *Bridge) Execute(cmd CommandMessage) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"room", cmd.RoomID,
		"channel", cmd.ChannelID,
		"command", cmd.Command,
		"source", cmd.Source)

	// Derive timeout from bridge context so commands are cancelled on shutdown
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	var err error
	switch cmd.Command {
	case "set_level":
		err = b.executeSetLevel(ctx, cmd)
	case "set_rgb":
		err = b.executeSetRGB(ctx, cmd)
	case "set_scene":
		err = b.executeScene(ctx, cmd, b.hub.SetScene)
	case "store_scene":
		err = b.executeScene(ctx, cmd, b.hub.StoreScene)
	case "set_kelvin":
		err = b.executeSetKelvin(ctx, cmd)
	case "fade_up":
		err = b.executeFade(ctx, cmd, b.hub.StartFadingUp)
	case "fade_down":
		err = b.executeFade(ctx, cmd, b.hub.StartFadingDown)
	case "fade_stop":
		err = b.executeFade(ctx, cmd, b.hub.StopFading)
	default:
		err = fmt.Errorf("unknown command: %s", cmd.Command)
		b.publishAckError(cmd, ErrCodeInvalidCommand, err.Error())
	}

	if err != nil {
		b.logError("command execution failed", err)
		return err
	}

	b.publishAck(cmd, AckAccepted)

	// Pick the resulting state up promptly rather than waiting a full
	// poll interval.
	select {
	case <-b.done:
	default:
		b.pollOnce()
	}

	return nil
}

// executeSetLevel sends a LEVEL command.
func (b *Bridge) executeSetLevel(ctx context.Context, cmd CommandMessage) error {
	level, err := b.intParam(cmd, "level", 0, maxComponent)
	if err != nil {
		return err
	}
	return b.sendToHub(cmd, b.hub.SetLevel(ctx, cmd.RoomID, cmd.ChannelID, level))
}

// executeSetRGB sends an RGB command.
func (b *Bridge) executeSetRGB(ctx context.Context, cmd CommandMessage) error {
	red, err := b.intParam(cmd, "red", 0, maxComponent)
	if err != nil {
		return err
	}
	green, err := b.intParam(cmd, "green", 0, maxComponent)
	if err != nil {
		return err
	}
	blue, err := b.intParam(cmd, "blue", 0, maxComponent)
	if err != nil {
		return err
	}
	return b.sendToHub(cmd, b.hub.SetRGB(ctx, cmd.RoomID, cmd.ChannelID, red, green, blue))
}

// executeScene sends a SCENE or STORE command via fn.
func (b *Bridge) executeScene(ctx context.Context, cmd CommandMessage, fn func(context.Context, int, int, int) error) error {
	scene, err := b.intParam(cmd, "scene", 0, maxScene)
	if err != nil {
		return err
	}
	return b.sendToHub(cmd, fn(ctx, cmd.RoomID, cmd.ChannelID, scene))
}

// executeSetKelvin sends a KELVIN command.
func (b *Bridge) executeSetKelvin(ctx context.Context, cmd CommandMessage) error {
	const minKelvin, maxKelvin = 1000, 10000
	kelvin, err := b.intParam(cmd, "kelvin", minKelvin, maxKelvin)
	if err != nil {
		return err
	}
	return b.sendToHub(cmd, b.hub.SetKelvin(ctx, cmd.RoomID, cmd.ChannelID, kelvin))
}

// executeFade sends a fade command via fn.
func (b *Bridge) executeFade(ctx context.Context, cmd CommandMessage, fn func(context.Context, int, int) error) error {
	return b.sendToHub(cmd, fn(ctx, cmd.RoomID, cmd.ChannelID))
}

// intParam extracts an integer parameter from the command, validating its
// range. Publishes an error ack on failure.
func (b *Bridge) intParam(cmd CommandMessage, key string, minVal, maxVal int) (int, error) {
	raw, ok := cmd.Parameters[key]
	if !ok {
		msg := fmt.Sprintf("missing '%s' parameter", key)
		b.publishAckError(cmd, ErrCodeInvalidParameters, msg)
		return 0, fmt.Errorf("%s", msg)
	}

	// JSON numbers decode as float64
	f, ok := raw.(float64)
	if !ok || f != float64(int(f)) {
		msg := fmt.Sprintf("'%s' must be an integer", key)
		b.publishAckError(cmd, ErrCodeInvalidParameters, msg)
		return 0, fmt.Errorf("%s", msg)
	}

	v := int(f)
	if v < minVal || v > maxVal {
		msg := fmt.Sprintf("'%s' must be %d-%d, got %d", key, minVal, maxVal, v)
		b.publishAckError(cmd, ErrCodeInvalidParameters, msg)
		return 0, fmt.Errorf("%s", msg)
	}
	return v, nil
}

// sendToHub translates a hub error into the right error ack.
func (b *Bridge) sendToHub(cmd CommandMessage, err error) error {
	if err == nil {
		return nil
	}
	code := ErrCodeHubUnreachable
	if isRejection(err) {
		code = ErrCodeHubRejected
	}
	b.publishAckError(cmd, code, err.Error())
	return err
}

// isRejection reports whether err is a hub command rejection (as opposed
// to a transport failure).
func isRejection(err error) bool {
	return errors.Is(err, ErrCommandRejected)
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(cmd CommandMessage, status AckStatus) {
	ack := NewAckMessage(cmd, status)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := AckTopic(cmd.RoomID, cmd.ChannelID)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishAckError publishes a failed command acknowledgment.
func (b *Bridge) publishAckError(cmd CommandMessage, code, message string) {
	ack := NewAckError(cmd, code, message)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack error", err)
		return
	}

	topic := AckTopic(cmd.RoomID, cmd.ChannelID)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack error", err)
	}
}

// BridgeMetrics contains metrics data for the API metrics endpoint.
type BridgeMetrics struct {
	Connected   bool
	Status      string
	CommandsTx  uint64
	QueriesTx   uint64
	RowsRx      uint64
	ErrorsTotal uint64
	Reconnects  uint64
}

// GetMetrics returns current bridge metrics for the API metrics endpoint.
func (b *Bridge) GetMetrics() BridgeMetrics {
	stats := b.hub.Stats()
	status := "disconnected"
	if stats.Connected {
		status = "healthy"
	}

	return BridgeMetrics{
		Connected:   stats.Connected,
		Status:      status,
		CommandsTx:  stats.CommandsTx,
		QueriesTx:   stats.QueriesTx,
		RowsRx:      stats.RowsRx,
		ErrorsTotal: stats.ErrorsTotal,
		Reconnects:  stats.ReconnectsTotal,
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
