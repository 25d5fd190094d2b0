package rako

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Protocol constants.
const (
	// DefaultPort is the TCP port the hub listens on.
	DefaultPort = 9761

	// maxPort is the highest valid TCP port number.
	maxPort = 65535

	// queryHeader marks a column-header echo line in a query response.
	// Skipped, never parsed; may appear zero or more times.
	queryHeader = "QUERY_HEADER"

	// queryComplete terminates a query response.
	queryComplete = "QUERY_COMPLETE"

	// commandRejected is the hub's sentinel first field on a rejected
	// SEND command.
	commandRejected = "AERROR"
)

// Default timeouts.
const (
	defaultConnectTimeout = 5 * time.Second
	defaultReadTimeout    = 30 * time.Second
	defaultWriteTimeout   = 5 * time.Second
)

// DialFunc opens the transport to the hub. The default uses net.Dialer;
// tests substitute a net.Pipe-backed implementation.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// HubConfig holds the connection settings for a Hub.
type HubConfig struct {
	// Host is the hub's hostname or IP address. Required.
	Host string

	// Port is the hub's TCP port, 0-65535. Use DefaultPort unless the
	// hub has been reconfigured.
	Port int

	// ClientName identifies this client in the subscription handshake.
	// Required; must not contain a comma (it is embedded unescaped in
	// the SUB line).
	ClientName string

	// ConnectTimeout bounds the TCP connect. Default: 5s.
	ConnectTimeout time.Duration

	// ReadTimeout bounds each line read. The protocol defines no
	// timeout of its own; this prevents an unbounded stall on a silent
	// or wedged hub. Default: 30s.
	ReadTimeout time.Duration

	// WriteTimeout bounds each request write. Default: 5s.
	WriteTimeout time.Duration

	// Dial overrides the transport factory. Optional; used in tests.
	Dial DialFunc

	// Logger is an optional structured logger.
	Logger Logger
}

// HubStats contains operational statistics for the hub connection.
type HubStats struct {
	CommandsTx      uint64
	QueriesTx       uint64
	RowsRx          uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64 // Successful reconnections after the first connect
	LastActivity    time.Time
	Connected       bool
}

// Hub is the client for one Rako hub.
//
// The connection is established lazily: construction only validates
// configuration, and each operation (re)connects as needed. A connection
// that has died since the last call self-heals: the operation tears the
// transport down, reconnects with a fresh handshake, and retries once.
//
// The wire protocol is strictly request/response with content-only
// framing, so a single mutex serialises all operations; concurrent callers
// block rather than interleave bytes.
type Hub struct {
	cfg HubConfig

	// mu serialises all wire operations and guards conn/reader.
	mu            sync.Mutex
	conn          net.Conn
	reader        *bufio.Reader
	everConnected bool

	// Statistics
	commandsTx      atomic.Uint64
	queriesTx       atomic.Uint64
	rowsRx          atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // Unix seconds
	connected       atomic.Bool

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// NewHub validates cfg and creates a hub client.
//
// No network I/O happens here; the first operation connects.
//
// Parameters:
//   - cfg: Connection settings (host, port, client name required)
//
// Returns:
//   - *Hub: Ready to use
//   - error: ErrInvalidConfig if validation fails
func NewHub(cfg HubConfig) (*Hub, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host must not be empty", ErrInvalidConfig)
	}
	if cfg.Port < 0 || cfg.Port > maxPort {
		return nil, fmt.Errorf("%w: port %d out of range 0-%d", ErrInvalidConfig, cfg.Port, maxPort)
	}
	cfg.ClientName = strings.TrimSpace(cfg.ClientName)
	if cfg.ClientName == "" {
		return nil, fmt.Errorf("%w: client name must not be empty", ErrInvalidConfig)
	}
	if strings.Contains(cfg.ClientName, ",") {
		return nil, fmt.Errorf("%w: client name must not contain a comma", ErrInvalidConfig)
	}

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Dial == nil {
		var d net.Dialer
		cfg.Dial = d.DialContext
	}

	return &Hub{
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

// Address returns the hub's host:port.
func (h *Hub) Address() string {
	return net.JoinHostPort(h.cfg.Host, strconv.Itoa(h.cfg.Port))
}

// IsConnected returns true if a connection to the hub is currently held.
func (h *Hub) IsConnected() bool {
	return h.connected.Load()
}

// Stats returns current connection statistics.
func (h *Hub) Stats() HubStats {
	return HubStats{
		CommandsTx:      h.commandsTx.Load(),
		QueriesTx:       h.queriesTx.Load(),
		RowsRx:          h.rowsRx.Load(),
		ErrorsTotal:     h.errorsTotal.Load(),
		ReconnectsTotal: h.reconnectsTotal.Load(),
		LastActivity:    time.Unix(h.lastActivity.Load(), 0),
		Connected:       h.connected.Load(),
	}
}

// SetLogger sets the logger for the hub client.
func (h *Hub) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Close closes the connection to the hub. The hub remains usable: the next
// operation reconnects.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	h.reader = nil
	h.connected.Store(false)
	if err != nil {
		return fmt.Errorf("close hub connection: %w", err)
	}
	return nil
}

// Queries

// GetHubInfo queries hub identity via STATUS. Unlike the other queries the
// reply is a single positional line with no header/terminator framing.
func (h *Hub) GetHubInfo(ctx context.Context) (HubInfo, error) {
	var info HubInfo
	err := h.do(ctx, func() error {
		if err := h.writeLine(ctx, "STATUS,0"); err != nil {
			return err
		}
		h.queriesTx.Add(1)
		line, err := h.readLine(ctx)
		if err != nil {
			return err
		}
		parsed, perr := parseHubInfo(splitRow(line))
		if perr != nil {
			return perr
		}
		info = parsed
		return nil
	})
	if err != nil {
		return HubInfo{}, err
	}
	return info, nil
}

// GetRooms queries rooms, optionally scoped to one room ID.
func (h *Hub) GetRooms(ctx context.Context, roomID ...int) ([]Room, error) {
	return queryRows(ctx, h, "ROOM", roomID, parseRoom)
}

// GetChannels queries channels, optionally scoped to one room ID.
func (h *Hub) GetChannels(ctx context.Context, roomID ...int) ([]Channel, error) {
	return queryRows(ctx, h, "CHANNEL", roomID, parseChannel)
}

// GetLevels queries current channel levels, optionally scoped to one room ID.
func (h *Hub) GetLevels(ctx context.Context, roomID ...int) ([]Level, error) {
	return queryRows(ctx, h, "LEVEL", roomID, parseLevel)
}

// GetScenes queries stored scenes, optionally scoped to one room ID.
func (h *Hub) GetScenes(ctx context.Context, roomID ...int) ([]Scene, error) {
	return queryRows(ctx, h, "SCENE", roomID, parseScene)
}

// GetColours queries colour-capable channels, optionally scoped to one room ID.
func (h *Hub) GetColours(ctx context.Context, roomID ...int) ([]Colour, error) {
	return queryRows(ctx, h, "COLOR", roomID, parseColour)
}

// GetColourLevels queries current colour levels, optionally scoped to one
// room ID.
func (h *Hub) GetColourLevels(ctx context.Context, roomID ...int) ([]ColourLevel, error) {
	return queryRows(ctx, h, "COLOR_LEVEL", roomID, parseColourLevel)
}

// Commands

// SetLevel sets a channel's brightness level (0-255).
func (h *Hub) SetLevel(ctx context.Context, roomID, channelID, level int) error {
	return h.sendCommand(ctx, roomID, channelID, "LEVEL", level)
}

// SetRGB sets an RGB channel's colour components (each 0-255).
func (h *Hub) SetRGB(ctx context.Context, roomID, channelID, red, green, blue int) error {
	return h.sendCommand(ctx, roomID, channelID, "RGB", red, green, blue)
}

// SetScene selects a stored scene on a channel.
func (h *Hub) SetScene(ctx context.Context, roomID, channelID, sceneID int) error {
	return h.sendCommand(ctx, roomID, channelID, "SCENE", sceneID)
}

// SetKelvin sets a tunable-white channel's colour temperature.
func (h *Hub) SetKelvin(ctx context.Context, roomID, channelID, kelvin int) error {
	return h.sendCommand(ctx, roomID, channelID, "KELVIN", kelvin)
}

// StartFadingUp starts fading a channel up. Stop with StopFading.
func (h *Hub) StartFadingUp(ctx context.Context, roomID, channelID int) error {
	return h.sendCommand(ctx, roomID, channelID, "FADE_UP", 1)
}

// StartFadingDown starts fading a channel down. Stop with StopFading.
func (h *Hub) StartFadingDown(ctx context.Context, roomID, channelID int) error {
	return h.sendCommand(ctx, roomID, channelID, "FADE_DOWN", 1)
}

// StopFading stops an in-progress fade.
func (h *Hub) StopFading(ctx context.Context, roomID, channelID int) error {
	return h.sendCommand(ctx, roomID, channelID, "FADE_STOP", 1)
}

// StoreScene stores the channel's current level as the given scene.
func (h *Hub) StoreScene(ctx context.Context, roomID, channelID, sceneID int) error {
	return h.sendCommand(ctx, roomID, channelID, "STORE", sceneID)
}

// Query engine

// queryRows issues QUERY,<name>[,<room_id>] and streams rows until the
// QUERY_COMPLETE terminator, parsing each through the entity's schema.
// QUERY_HEADER echo lines are skipped. Row order follows the hub's line
// order.
func queryRows[T any](ctx context.Context, h *Hub, name string, roomID []int, parse func([]string) (T, error)) ([]T, error) {
	req := "QUERY," + name
	if len(roomID) > 0 {
		req += "," + strconv.Itoa(roomID[0])
	}

	var rows []T
	err := h.do(ctx, func() error {
		rows = rows[:0] // The retry path starts the response over
		if err := h.writeLine(ctx, req); err != nil {
			return err
		}
		h.queriesTx.Add(1)
		for {
			line, err := h.readLine(ctx)
			if err != nil {
				return err
			}
			fields := splitRow(line)
			switch fields[0] {
			case queryHeader:
				continue
			case queryComplete:
				return nil
			}
			row, perr := parse(fields)
			if perr != nil {
				return perr
			}
			rows = append(rows, row)
			h.rowsRx.Add(1)
		}
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Command engine

// sendCommand issues SEND,<room>,<channel>,<command>,<values> with the
// values concatenated in command order without separators, then reads the
// single acknowledgement line. A first field of AERROR means the hub
// rejected the command; any other reply is success and otherwise
// uninterpreted.
func (h *Hub) sendCommand(ctx context.Context, roomID, channelID int, command string, values ...int) error {
	var b strings.Builder
	fmt.Fprintf(&b, "SEND,%d,%d,%s,", roomID, channelID, command)
	for _, v := range values {
		b.WriteString(strconv.Itoa(v))
	}
	req := b.String()

	return h.do(ctx, func() error {
		if err := h.writeLine(ctx, req); err != nil {
			return err
		}
		h.commandsTx.Add(1)
		line, err := h.readLine(ctx)
		if err != nil {
			return err
		}
		if fields := splitRow(line); fields[0] == commandRejected {
			return fmt.Errorf("%w: %s for room %d channel %d",
				ErrCommandRejected, command, roomID, channelID)
		}
		return nil
	})
}

// Connection manager

// do runs one request/response exchange under the operation mutex,
// connecting first if needed.
//
// Failure classification:
//   - ErrCommandRejected: the exchange completed; the connection stays up.
//   - ErrMalformedRow: the response stream is desynchronised (unconsumed
//     rows follow the bad one), so the connection is dropped; the next
//     call reconnects.
//   - anything else is a transport failure: the connection is dropped,
//     and if it was established by an earlier call (so it may simply have
//     died in the meantime), the hub reconnects, re-sends the handshake,
//     and retries op once before surfacing the error.
func (h *Hub) do(ctx context.Context, op func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	reused := h.conn != nil
	if err := h.ensureConnected(ctx); err != nil {
		return err
	}

	err := op()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCommandRejected):
		return err
	case errors.Is(err, ErrMalformedRow):
		h.errorsTotal.Add(1)
		h.drop()
		return err
	}

	h.errorsTotal.Add(1)
	h.drop()
	if !reused {
		return err
	}

	h.logDebug("retrying after stale connection", "error", err)
	if cerr := h.ensureConnected(ctx); cerr != nil {
		return cerr
	}
	rerr := op()
	switch {
	case rerr == nil:
		return nil
	case errors.Is(rerr, ErrCommandRejected):
		return rerr
	default:
		h.errorsTotal.Add(1)
		h.drop()
		return rerr
	}
}

// ensureConnected opens the transport and performs the subscription
// handshake if no connection is held. A live connection is a no-op: the
// handshake is sent once per connection, not per operation.
// Must be called with mu held.
func (h *Hub) ensureConnected(ctx context.Context) error {
	if h.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, h.cfg.ConnectTimeout)
	defer cancel()

	addr := h.Address()
	conn, err := h.cfg.Dial(dialCtx, "tcp", addr)
	if err != nil {
		h.errorsTotal.Add(1)
		return fmt.Errorf("%w: dial %s: %v", ErrConnectionFailed, addr, err)
	}

	h.conn = conn
	h.reader = bufio.NewReader(conn)

	// Handshake: subscribe, then read and discard one acknowledgement line.
	if err := h.writeLine(ctx, "SUB,BASIC,V4,"+h.cfg.ClientName); err != nil {
		h.drop()
		h.errorsTotal.Add(1)
		return fmt.Errorf("%w: handshake write: %v", ErrConnectionFailed, err)
	}
	if _, err := h.readLine(ctx); err != nil {
		h.drop()
		h.errorsTotal.Add(1)
		return fmt.Errorf("%w: handshake read: %v", ErrConnectionFailed, err)
	}

	h.connected.Store(true)
	if h.everConnected {
		h.reconnectsTotal.Add(1)
	}
	h.everConnected = true
	h.logDebug("connected to hub", "address", addr)
	return nil
}

// drop tears down the current connection. Must be called with mu held.
func (h *Hub) drop() {
	if h.conn != nil {
		//nolint:errcheck // Connection is being discarded
		h.conn.Close()
	}
	h.conn = nil
	h.reader = nil
	h.connected.Store(false)
}

// writeLine writes one CRLF-terminated request line under the write
// deadline. Must be called with mu held and a live connection.
func (h *Hub) writeLine(ctx context.Context, line string) error {
	if err := h.conn.SetWriteDeadline(h.deadline(ctx, h.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := h.conn.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	h.lastActivity.Store(time.Now().Unix())
	return nil
}

// readLine reads one newline-terminated response line under the read
// deadline. Must be called with mu held and a live connection.
func (h *Hub) readLine(ctx context.Context) (string, error) {
	if err := h.conn.SetReadDeadline(h.deadline(ctx, h.cfg.ReadTimeout)); err != nil {
		return "", fmt.Errorf("set read deadline: %w", err)
	}
	line, err := h.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	h.lastActivity.Store(time.Now().Unix())
	return line, nil
}

// deadline returns now+d, clamped to the context deadline if sooner.
func (h *Hub) deadline(ctx context.Context, d time.Duration) time.Time {
	t := time.Now().Add(d)
	if cd, ok := ctx.Deadline(); ok && cd.Before(t) {
		return cd
	}
	return t
}

// splitRow splits a response line into its comma-separated fields with the
// trailing line terminator stripped, so the last field arrives trimmed.
func splitRow(line string) []string {
	return strings.Split(strings.TrimRight(line, "\r\n"), ",")
}

// logDebug logs a debug message if a logger is set.
func (h *Hub) logDebug(msg string, keysAndValues ...any) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
