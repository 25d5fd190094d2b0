package mqtt

import "fmt"

// Topic prefixes for bridge MQTT traffic.
//
// All bridge topics use the flat scheme: rako/{category}/{room}/{channel}
// This matches the bridge's messages.go and all runtime subscribers.
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "rako"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "rako/system"
)

// Topics provides builders for bridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.ChannelState("5", "2")
//	// Returns: "rako/state/5/2"
type Topics struct{}

// ChannelState returns the topic for channel state updates.
//
// Example: rako/state/5/2
func (Topics) ChannelState(roomID, channelID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, roomID, channelID)
}

// ChannelCommand returns the topic for commands to a channel.
//
// Example: rako/command/5/2
func (Topics) ChannelCommand(roomID, channelID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, roomID, channelID)
}

// ChannelAck returns the topic for command acknowledgements.
//
// Example: rako/ack/5/2
func (Topics) ChannelAck(roomID, channelID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, roomID, channelID)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: rako/health/bridge
func (Topics) BridgeHealth() string {
	return fmt.Sprintf("%s/health/bridge", TopicPrefix)
}

// SystemStatus returns the client online/offline status topic.
//
// Example: rako/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllChannelStates returns a pattern matching all channel state updates.
//
// Pattern: rako/state/+/+
func (Topics) AllChannelStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefix)
}

// AllChannelCommands returns a pattern matching all channel commands.
//
// Pattern: rako/command/#
func (Topics) AllChannelCommands() string {
	return fmt.Sprintf("%s/command/#", TopicPrefix)
}

// AllChannelAcks returns a pattern matching all command acknowledgements.
//
// Pattern: rako/ack/+/+
func (Topics) AllChannelAcks() string {
	return fmt.Sprintf("%s/ack/+/+", TopicPrefix)
}

// AllTopics returns a pattern matching all bridge topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: rako/#
func (Topics) AllTopics() string {
	return "rako/#"
}
