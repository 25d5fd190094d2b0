package rako

import (
	"encoding/json"
	"fmt"
	"time"
)

// MQTT message types for communication between consumers and the Rako
// bridge. All payloads are JSON; timestamps are UTC ISO8601.

// CommandMessage is sent to the bridge to execute a hub command.
// Topic: rako/command/{room}/{channel}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with
	// acknowledgments. The bridge assigns one if empty.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// RoomID and ChannelID address the target channel on the hub.
	RoomID    int `json:"room_id"`
	ChannelID int `json:"channel_id"`

	// Command is the command name: "set_level", "set_rgb", "set_scene",
	// "set_kelvin", "fade_up", "fade_down", "fade_stop", "store_scene".
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"level": 128} for set_level
	//   {"red": 255, "green": 128, "blue": 0} for set_rgb
	//   {"scene": 2} for set_scene and store_scene
	//   {"kelvin": 3000} for set_kelvin
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	// Values: "api", "mqtt", "automation"
	Source string `json:"source"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was received and sent to the hub.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage is published by the bridge to acknowledge a command.
// Topic: rako/ack/{room}/{channel}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// RoomID and ChannelID echo the command's target.
	RoomID    int `json:"room_id"`
	ChannelID int `json:"channel_id"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("rako").
	Protocol string `json:"protocol"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g. "HUB_REJECTED", "INVALID_COMMAND").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeHubRejected       = "HUB_REJECTED"
	ErrCodeHubUnreachable    = "HUB_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage is published by the bridge when a channel's level changes.
// Topic: rako/state/{room}/{channel}
// QoS: 1, Retained: Yes
//
// Values are the hub's textual form, unconverted.
type StateMessage struct {
	// RoomID and ChannelID address the channel.
	RoomID    string `json:"room_id"`
	ChannelID string `json:"channel_id"`

	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// CurrentScene, CurrentLevel and TargetLevel mirror the hub's LEVEL
	// row for the channel.
	CurrentScene string `json:"current_scene"`
	CurrentLevel string `json:"current_level"`
	TargetLevel  string `json:"target_level"`

	// Protocol is the protocol identifier ("rako").
	Protocol string `json:"protocol"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the bridge is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published periodically to report operational status.
// Topic: rako/health/bridge
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Bridge is the bridge identifier.
	Bridge string `json:"bridge"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Connection contains hub connection details.
	Connection *ConnectionStatus `json:"connection,omitempty"`

	// Statistics contains operational metrics.
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// ChannelsObserved is the number of channels seen on the hub.
	ChannelsObserved int `json:"channels_observed"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// ConnectionStatus describes the hub connection state.
type ConnectionStatus struct {
	// Status is the connection status ("connected", "disconnected").
	Status string `json:"status"`

	// Address is the hub's host:port.
	Address string `json:"address"`

	// LastActivity is the time of the last wire exchange.
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// BridgeStatistics contains operational metrics.
type BridgeStatistics struct {
	// CommandsSent is the total number of SEND commands issued.
	CommandsSent uint64 `json:"commands_sent"`

	// QueriesSent is the total number of queries issued.
	QueriesSent uint64 `json:"queries_sent"`

	// RowsReceived is the total number of response rows parsed.
	RowsReceived uint64 `json:"rows_received"`

	// Errors is the total number of errors encountered.
	Errors uint64 `json:"errors"`

	// Reconnects is the number of successful reconnections.
	Reconnects uint64 `json:"reconnects"`
}

// JSON marshalling helpers

// MarshalJSON marshals a CommandMessage to JSON.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON unmarshals a CommandMessage from JSON.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// NewAckMessage creates an acknowledgment message for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		RoomID:    cmd.RoomID,
		ChannelID: cmd.ChannelID,
		Status:    status,
		Protocol:  "rako",
	}
}

// NewAckError creates an acknowledgment with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		RoomID:    cmd.RoomID,
		ChannelID: cmd.ChannelID,
		Status:    AckFailed,
		Protocol:  "rako",
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// NewStateMessage creates a state message from a hub level row.
func NewStateMessage(lvl Level) StateMessage {
	return StateMessage{
		RoomID:       lvl.RoomID,
		ChannelID:    lvl.ChannelID,
		Timestamp:    time.Now().UTC(),
		CurrentScene: lvl.CurrentScene,
		CurrentLevel: lvl.CurrentLevel,
		TargetLevel:  lvl.TargetLevel,
		Protocol:     "rako",
	}
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats HubStats, channelCount int, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:           bridgeID,
		Timestamp:        time.Now().UTC(),
		Status:           status,
		Version:          version,
		UptimeSeconds:    int64(time.Since(startTime).Seconds()),
		ChannelsObserved: channelCount,
	}

	if stats.Connected {
		lastActivity := stats.LastActivity
		msg.Connection = &ConnectionStatus{
			Status:       "connected",
			LastActivity: &lastActivity,
		}
	} else {
		msg.Connection = &ConnectionStatus{
			Status: "disconnected",
		}
	}

	msg.Statistics = &BridgeStatistics{
		CommandsSent: stats.CommandsTx,
		QueriesSent:  stats.QueriesTx,
		RowsReceived: stats.RowsRx,
		Errors:       stats.ErrorsTotal,
		Reconnects:   stats.ReconnectsTotal,
	}

	return msg
}

// NewLWTMessage creates a Last Will and Testament message for MQTT.
// This message is published by the broker if the bridge disconnects
// unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// Topic helpers

const (
	// TopicPrefix is the base topic for all Rako bridge messages.
	TopicPrefix = "rako"
)

// CommandTopic returns the MQTT topic for commands to a specific channel.
// Example: rako/command/5/2
func CommandTopic(roomID, channelID int) string {
	return fmt.Sprintf("%s/command/%d/%d", TopicPrefix, roomID, channelID)
}

// AckTopic returns the MQTT topic for command acknowledgments.
// Example: rako/ack/5/2
func AckTopic(roomID, channelID int) string {
	return fmt.Sprintf("%s/ack/%d/%d", TopicPrefix, roomID, channelID)
}

// StateTopic returns the MQTT topic for level state updates. Room and
// channel are the hub's textual IDs.
// Example: rako/state/5/2
func StateTopic(roomID, channelID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, roomID, channelID)
}

// HealthTopic returns the MQTT topic for bridge health status.
// Example: rako/health/bridge
func HealthTopic() string {
	return fmt.Sprintf("%s/health/bridge", TopicPrefix)
}

// CommandSubscribeTopic returns the MQTT subscription pattern for all
// commands. Example: rako/command/#
func CommandSubscribeTopic() string {
	return fmt.Sprintf("%s/command/#", TopicPrefix)
}
