package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteChannelLevel writes a single channel brightness measurement.
//
// This is the primary method for recording lighting telemetry. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - roomID: Hub room identifier (textual, as reported by the hub)
//   - channelID: Hub channel identifier
//   - level: Current brightness value (0-255)
//
// Example:
//
//	client.WriteChannelLevel("5", "2", 128)
func (c *Client) WriteChannelLevel(roomID, channelID string, level float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"channel_level",
		map[string]string{
			"room_id":    roomID,
			"channel_id": channelID,
		},
		map[string]interface{}{
			"level": level,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBridgeStats writes a snapshot of the bridge's hub counters.
//
// Used for tracking command throughput and connection stability over time.
//
// Parameters:
//   - commandsTx: Total commands sent to the hub
//   - queriesTx: Total queries sent to the hub
//   - rowsRx: Total data rows received
//   - errorsTotal: Total transport/protocol errors
//   - reconnects: Total reconnections to the hub
func (c *Client) WriteBridgeStats(commandsTx, queriesTx, rowsRx, errorsTotal, reconnects uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_stats",
		map[string]string{
			"bridge": "rako",
		},
		map[string]interface{}{
			"commands_tx":  float64(commandsTx),
			"queries_tx":   float64(queriesTx),
			"rows_rx":      float64(rowsRx),
			"errors_total": float64(errorsTotal),
			"reconnects":   float64(reconnects),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "bridge-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
