// Package rako implements the Rako lighting hub bridge.
//
// The hub speaks a proprietary line-delimited, comma-separated ASCII protocol
// over TCP. This package provides the protocol client (Hub) and the bridge
// that translates between the hub and MQTT.
//
// # Architecture
//
// The bridge operates as a translator between two buses:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   MQTT broker   │   MQTT   │   Rako Bridge   │   TCP
//	│  (command bus)  │◄────────►│   (this pkg)    │◄────────► Rako Hub
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Connect lazily to the hub and perform the SUB subscription handshake
//   - Query hub topology (rooms, channels, scenes, colour channels) and
//     current levels
//   - Send control commands (level, RGB, kelvin, scene, fade) and interpret
//     the one-line acknowledgement
//   - Translate MQTT commands to hub commands and publish level changes as
//     MQTT state messages
//   - Publish health status and metrics
//
// # Wire Protocol
//
// Requests and responses are CRLF-terminated lines of comma-separated
// fields. The protocol is strictly request/response with no framing beyond
// line content: queries stream rows until a QUERY_COMPLETE line, commands
// are acknowledged by a single line whose first field is AERROR on
// rejection. Because nothing on the wire correlates responses to requests,
// the Hub serialises all operations internally.
//
// Example:
//
//	hub, err := rako.NewHub(rako.HubConfig{
//	    Host:       "192.168.1.50",
//	    Port:       rako.DefaultPort,
//	    ClientName: "rakobridge",
//	})
//	if err != nil {
//	    return err
//	}
//	defer hub.Close()
//
//	rooms, err := hub.GetRooms(ctx)
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package rako
