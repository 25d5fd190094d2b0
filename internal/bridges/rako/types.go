package rako

// Typed records produced from hub query responses.
//
// All field values are kept as the textual form received on the wire. The
// hub's schema types several of these numerically (room and channel IDs,
// levels), but this layer deliberately does not coerce: the wire parser has
// no business guessing number formats, and callers that need numerics
// convert at the point of use. Records are constructed fresh per response
// and never mutated.

// HubInfo identifies the hub, returned by the STATUS query.
type HubInfo struct {
	ProtocolVersion string `json:"protocol_version"`
	HubID           string `json:"hub_id"`
	MACAddress      string `json:"mac_address"`
	HubVersion      string `json:"hub_version"`
}

// Room is one addressable lighting room.
type Room struct {
	RoomID string `json:"room_id"`
	Title  string `json:"title"`
	Type   string `json:"type"`
	Mode   string `json:"mode"`
}

// Channel is one addressable lighting channel within a room.
//
// ScenesLevel maps scene index 1..16 to that scene's stored level for this
// channel.
type Channel struct {
	RoomID       string         `json:"room_id"`
	RoomTitle    string         `json:"room_title"`
	RoomType     string         `json:"room_type"`
	RoomMode     string         `json:"room_mode"`
	ChannelID    string         `json:"channel_id"`
	ChannelTitle string         `json:"channel_title"`
	ChannelType  string         `json:"channel_type"`
	ScenesLevel  map[int]string `json:"scenes_level"`
}

// Level is the current brightness state of one channel.
type Level struct {
	RoomID       string `json:"room_id"`
	ChannelID    string `json:"channel_id"`
	CurrentScene string `json:"current_scene"`
	CurrentLevel string `json:"current_level"`
	TargetLevel  string `json:"target_level"`
}

// Scene is one stored lighting preset in a room.
type Scene struct {
	RoomID     string `json:"room_id"`
	SceneID    string `json:"scene_id"`
	SceneTitle string `json:"scene_title"`
}

// Colour describes one colour-capable channel. Type distinguishes RGB
// channels from colour-temperature channels.
type Colour struct {
	RoomID       string `json:"room_id"`
	RoomTitle    string `json:"room_title"`
	ChannelID    string `json:"channel_id"`
	ChannelTitle string `json:"channel_title"`
	Type         string `json:"type"`
}

// ColourLevel is the current colour state of one colour-capable channel.
// RedOrKelvin carries the red component for RGB channels and the colour
// temperature for tunable-white channels, per Type.
type ColourLevel struct {
	RoomID      string `json:"room_id"`
	ChannelID   string `json:"channel_id"`
	Type        string `json:"type"`
	Level       string `json:"level"`
	RedOrKelvin string `json:"red_or_kelvin"`
	Green       string `json:"green"`
	Blue        string `json:"blue"`
}
