package rako

import "fmt"

// Row schemas for the hub's query responses.
//
// Every response row is a comma-separated line whose first field names the
// entity; the remaining fields follow a fixed positional layout per entity.
// Each schema records the minimum field count so short rows fail as
// ErrMalformedRow before any indexing, instead of surfacing as an
// out-of-range fault mid-parse.

// rowSchema is the fixed shape of one entity's response rows.
type rowSchema struct {
	entity    string
	minFields int
}

// checkLen validates the row's field count against the schema.
func (s rowSchema) checkLen(fields []string) error {
	if len(fields) < s.minFields {
		return fmt.Errorf("%w: %s row has %d fields, want at least %d",
			ErrMalformedRow, s.entity, len(fields), s.minFields)
	}
	return nil
}

// sceneCount is the number of per-scene level fields on a channel row.
const sceneCount = 16

// Static schema table. Field positions are documented on each parse
// function; counts include the leading entity-name field.
var (
	hubInfoSchema     = rowSchema{entity: "hub info", minFields: 6}
	roomSchema        = rowSchema{entity: "room", minFields: 5}
	channelSchema     = rowSchema{entity: "channel", minFields: 8 + sceneCount}
	levelSchema       = rowSchema{entity: "level", minFields: 6}
	sceneSchema       = rowSchema{entity: "scene", minFields: 4}
	colourSchema      = rowSchema{entity: "colour", minFields: 6}
	colourLevelSchema = rowSchema{entity: "colour level", minFields: 7}
)

// parseHubInfo parses a STATUS reply: <_>,<_>,<protocol_version>,<hub_id>,
// <mac_address>,<hub_version>.
func parseHubInfo(fields []string) (HubInfo, error) {
	if err := hubInfoSchema.checkLen(fields); err != nil {
		return HubInfo{}, err
	}
	return HubInfo{
		ProtocolVersion: fields[2],
		HubID:           fields[3],
		MACAddress:      fields[4],
		HubVersion:      fields[5],
	}, nil
}

// parseRoom parses a ROOM row: <_>,<room_id>,<title>,<type>,<mode>.
func parseRoom(fields []string) (Room, error) {
	if err := roomSchema.checkLen(fields); err != nil {
		return Room{}, err
	}
	return Room{
		RoomID: fields[1],
		Title:  fields[2],
		Type:   fields[3],
		Mode:   fields[4],
	}, nil
}

// parseChannel parses a CHANNEL row: <_>,<room_id>,<room_title>,<room_type>,
// <room_mode>,<channel_id>,<channel_title>,<channel_type>, followed by 16
// per-scene level fields.
func parseChannel(fields []string) (Channel, error) {
	if err := channelSchema.checkLen(fields); err != nil {
		return Channel{}, err
	}
	scenes := make(map[int]string, sceneCount)
	for i := 1; i <= sceneCount; i++ {
		scenes[i] = fields[7+i]
	}
	return Channel{
		RoomID:       fields[1],
		RoomTitle:    fields[2],
		RoomType:     fields[3],
		RoomMode:     fields[4],
		ChannelID:    fields[5],
		ChannelTitle: fields[6],
		ChannelType:  fields[7],
		ScenesLevel:  scenes,
	}, nil
}

// parseLevel parses a LEVEL row: <_>,<room_id>,<channel_id>,<current_scene>,
// <current_level>,<target_level>.
func parseLevel(fields []string) (Level, error) {
	if err := levelSchema.checkLen(fields); err != nil {
		return Level{}, err
	}
	return Level{
		RoomID:       fields[1],
		ChannelID:    fields[2],
		CurrentScene: fields[3],
		CurrentLevel: fields[4],
		TargetLevel:  fields[5],
	}, nil
}

// parseScene parses a SCENE row: <_>,<room_id>,<scene_id>,<scene_title>.
func parseScene(fields []string) (Scene, error) {
	if err := sceneSchema.checkLen(fields); err != nil {
		return Scene{}, err
	}
	return Scene{
		RoomID:     fields[1],
		SceneID:    fields[2],
		SceneTitle: fields[3],
	}, nil
}

// parseColour parses a COLOR row: <_>,<room_id>,<room_title>,<channel_id>,
// <channel_title>,<type>.
func parseColour(fields []string) (Colour, error) {
	if err := colourSchema.checkLen(fields); err != nil {
		return Colour{}, err
	}
	return Colour{
		RoomID:       fields[1],
		RoomTitle:    fields[2],
		ChannelID:    fields[3],
		ChannelTitle: fields[4],
		Type:         fields[5],
	}, nil
}

// parseColourLevel parses a COLOR_LEVEL row: <_>,<room_id>,<channel_id>,
// <type>,<level>,<green>,<blue>. Field 4 doubles as level and
// red-or-kelvin: the hub reports the red component (RGB) or the colour
// temperature (tunable white) in the level position.
func parseColourLevel(fields []string) (ColourLevel, error) {
	if err := colourLevelSchema.checkLen(fields); err != nil {
		return ColourLevel{}, err
	}
	return ColourLevel{
		RoomID:      fields[1],
		ChannelID:   fields[2],
		Type:        fields[3],
		Level:       fields[4],
		RedOrKelvin: fields[4],
		Green:       fields[5],
		Blue:        fields[6],
	}, nil
}
