package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rako-bridge/internal/bridges/rako"
	"github.com/nerrad567/rako-bridge/internal/history"
	"github.com/nerrad567/rako-bridge/internal/infrastructure/config"
	"github.com/nerrad567/rako-bridge/internal/infrastructure/logging"
)

// ===== Test fakes =====

// fakeHub implements HubReader with canned responses. It records the
// roomID arguments of each call for assertion.
type fakeHub struct {
	mu       sync.Mutex
	lastArgs []int
	err      error

	info         rako.HubInfo
	rooms        []rako.Room
	channels     []rako.Channel
	levels       []rako.Level
	scenes       []rako.Scene
	colours      []rako.Colour
	colourLevels []rako.ColourLevel
}

func (f *fakeHub) record(roomID []int) {
	f.mu.Lock()
	f.lastArgs = roomID
	f.mu.Unlock()
}

func (f *fakeHub) args() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastArgs
}

func (f *fakeHub) GetHubInfo(_ context.Context) (rako.HubInfo, error) {
	return f.info, f.err
}

func (f *fakeHub) GetRooms(_ context.Context, roomID ...int) ([]rako.Room, error) {
	f.record(roomID)
	return f.rooms, f.err
}

func (f *fakeHub) GetChannels(_ context.Context, roomID ...int) ([]rako.Channel, error) {
	f.record(roomID)
	return f.channels, f.err
}

func (f *fakeHub) GetLevels(_ context.Context, roomID ...int) ([]rako.Level, error) {
	f.record(roomID)
	return f.levels, f.err
}

func (f *fakeHub) GetScenes(_ context.Context, roomID ...int) ([]rako.Scene, error) {
	f.record(roomID)
	return f.scenes, f.err
}

func (f *fakeHub) GetColours(_ context.Context, roomID ...int) ([]rako.Colour, error) {
	f.record(roomID)
	return f.colours, f.err
}

func (f *fakeHub) GetColourLevels(_ context.Context, roomID ...int) ([]rako.ColourLevel, error) {
	f.record(roomID)
	return f.colourLevels, f.err
}

// fakeBridge implements CommandExecutor.
type fakeBridge struct {
	mu      sync.Mutex
	lastCmd rako.CommandMessage
	execErr error
	metrics rako.BridgeMetrics
}

func (f *fakeBridge) Execute(cmd rako.CommandMessage) error {
	f.mu.Lock()
	f.lastCmd = cmd
	f.mu.Unlock()
	return f.execErr
}

func (f *fakeBridge) GetMetrics() rako.BridgeMetrics {
	return f.metrics
}

func (f *fakeBridge) executed() rako.CommandMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCmd
}

// fakeHistory implements HistoryReader.
type fakeHistory struct {
	mu        sync.Mutex
	lastRoom  string
	lastChan  string
	lastLimit int
	entries   []history.Entry
	err       error
}

func (f *fakeHistory) GetHistory(_ context.Context, roomID, channelID string, limit int) ([]history.Entry, error) {
	f.mu.Lock()
	f.lastRoom = roomID
	f.lastChan = channelID
	f.lastLimit = limit
	f.mu.Unlock()
	return f.entries, f.err
}

// newTestServer builds a Server wired to fakes and returns its router.
func newTestServer(t *testing.T, hub *fakeHub, bridge *fakeBridge, hist HistoryReader) http.Handler {
	t.Helper()
	srv, err := New(Deps{
		Config:  config.APIConfig{Enabled: true, Host: "127.0.0.1", Port: 8080},
		Logger:  logging.Default(),
		Hub:     hub,
		Bridge:  bridge,
		History: hist,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv.buildRouter()
}

func doRequest(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ===== Constructor Tests =====

func TestNew_MissingDependencies(t *testing.T) {
	logger := logging.Default()
	hub := &fakeHub{}
	bridge := &fakeBridge{}

	tests := []struct {
		name string
		deps Deps
	}{
		{"missing logger", Deps{Hub: hub, Bridge: bridge}},
		{"missing hub", Deps{Logger: logger, Bridge: bridge}},
		{"missing bridge", Deps{Logger: logger, Hub: hub}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() should fail with missing dependency")
			}
		})
	}
}

func TestNew_HistoryOptional(t *testing.T) {
	_, err := New(Deps{
		Logger: logging.Default(),
		Hub:    &fakeHub{},
		Bridge: &fakeBridge{},
	})
	if err != nil {
		t.Errorf("New() without history error = %v", err)
	}
}

// ===== Health and Metrics =====

func TestHealth(t *testing.T) {
	bridge := &fakeBridge{metrics: rako.BridgeMetrics{Connected: true}}
	router := newTestServer(t, &fakeHub{}, bridge, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
	if body["hub_connected"] != true {
		t.Errorf("hub_connected = %v, want true", body["hub_connected"])
	}
}

func TestMetrics(t *testing.T) {
	bridge := &fakeBridge{metrics: rako.BridgeMetrics{
		Connected:  true,
		Status:     "healthy",
		CommandsTx: 12,
		QueriesTx:  340,
		RowsRx:     2950,
		Reconnects: 2,
	}}
	router := newTestServer(t, &fakeHub{}, bridge, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal metrics body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["commands_tx"] != float64(12) {
		t.Errorf("commands_tx = %v, want 12", body["commands_tx"])
	}
	if body["reconnects"] != float64(2) {
		t.Errorf("reconnects = %v, want 2", body["reconnects"])
	}
}

// ===== Hub Query Endpoints =====

func TestHubInfo(t *testing.T) {
	hub := &fakeHub{info: rako.HubInfo{
		ProtocolVersion: "V4",
		HubID:           "hub-1",
		HubVersion:      "2.5.0",
	}}
	router := newTestServer(t, hub, &fakeBridge{}, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/hub", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("hub status = %d, want 200", rec.Code)
	}

	var info rako.HubInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal hub info: %v", err)
	}
	if info.ProtocolVersion != "V4" {
		t.Errorf("ProtocolVersion = %q, want V4", info.ProtocolVersion)
	}
}

func TestListRooms(t *testing.T) {
	hub := &fakeHub{rooms: []rako.Room{
		{RoomID: "5", Title: "Kitchen", Type: "Lights"},
		{RoomID: "9", Title: "Hall", Type: "Lights"},
	}}
	router := newTestServer(t, hub, &fakeBridge{}, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/rooms", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rooms status = %d, want 200", rec.Code)
	}

	var rooms []rako.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &rooms); err != nil {
		t.Fatalf("unmarshal rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("len(rooms) = %d, want 2", len(rooms))
	}
	if rooms[0].Title != "Kitchen" {
		t.Errorf("rooms[0].Title = %q, want Kitchen", rooms[0].Title)
	}
	if len(hub.args()) != 0 {
		t.Errorf("site-wide rooms query passed roomID args %v", hub.args())
	}
}

func TestRoomScopedQueries(t *testing.T) {
	hub := &fakeHub{
		channels: []rako.Channel{{RoomID: "5", ChannelID: "2"}},
		levels:   []rako.Level{{RoomID: "5", ChannelID: "2", CurrentLevel: "128"}},
		scenes:   []rako.Scene{{RoomID: "5", SceneID: "1", SceneTitle: "Bright"}},
	}
	router := newTestServer(t, hub, &fakeBridge{}, nil)

	paths := []string{
		"/api/v1/rooms/5/channels",
		"/api/v1/rooms/5/levels",
		"/api/v1/rooms/5/scenes",
	}
	for _, path := range paths {
		rec := doRequest(t, router, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
		args := hub.args()
		if len(args) != 1 || args[0] != 5 {
			t.Errorf("%s passed roomID args %v, want [5]", path, args)
		}
	}
}

func TestRoomScopedQueries_InvalidID(t *testing.T) {
	router := newTestServer(t, &fakeHub{}, &fakeBridge{}, nil)

	for _, path := range []string{
		"/api/v1/rooms/abc/channels",
		"/api/v1/rooms/-1/levels",
	} {
		rec := doRequest(t, router, http.MethodGet, path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, rec.Code)
		}
	}
}

func TestSiteWideQueries(t *testing.T) {
	hub := &fakeHub{
		channels:     []rako.Channel{{RoomID: "5", ChannelID: "2"}},
		levels:       []rako.Level{{RoomID: "5", ChannelID: "2"}},
		scenes:       []rako.Scene{{RoomID: "5", SceneID: "1"}},
		colours:      []rako.Colour{{RoomID: "5", ChannelID: "3", Type: "RGB"}},
		colourLevels: []rako.ColourLevel{{RoomID: "5", ChannelID: "3", Type: "RGB"}},
	}
	router := newTestServer(t, hub, &fakeBridge{}, nil)

	for _, path := range []string{
		"/api/v1/channels",
		"/api/v1/levels",
		"/api/v1/scenes",
		"/api/v1/colours",
		"/api/v1/colour-levels",
	} {
		rec := doRequest(t, router, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
		if len(hub.args()) != 0 {
			t.Errorf("%s passed roomID args %v, want none", path, hub.args())
		}
	}
}

func TestHubQuery_Unreachable(t *testing.T) {
	hub := &fakeHub{err: fmt.Errorf("dial: %w", rako.ErrConnectionFailed)}
	router := newTestServer(t, hub, &fakeBridge{}, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/rooms", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("rooms status = %d, want 502", rec.Code)
	}
}

func TestHubQuery_InternalError(t *testing.T) {
	hub := &fakeHub{err: fmt.Errorf("unexpected failure")}
	router := newTestServer(t, hub, &fakeBridge{}, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/levels", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("levels status = %d, want 500", rec.Code)
	}
}

// ===== History Endpoints =====

func TestGetHistory(t *testing.T) {
	hist := &fakeHistory{entries: []history.Entry{
		{ID: 2, RoomID: "5", ChannelID: "2", Level: "200", RecordedAt: time.Now().UTC()},
		{ID: 1, RoomID: "5", ChannelID: "2", Level: "128", RecordedAt: time.Now().UTC().Add(-time.Minute)},
	}}
	router := newTestServer(t, &fakeHub{}, &fakeBridge{}, hist)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/history/5/2?limit=50", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", rec.Code)
	}

	var entries []history.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if hist.lastRoom != "5" || hist.lastChan != "2" {
		t.Errorf("queried %s/%s, want 5/2", hist.lastRoom, hist.lastChan)
	}
	if hist.lastLimit != 50 {
		t.Errorf("limit = %d, want 50", hist.lastLimit)
	}
}

func TestGetHistory_InvalidLimit(t *testing.T) {
	router := newTestServer(t, &fakeHub{}, &fakeBridge{}, &fakeHistory{})

	for _, path := range []string{
		"/api/v1/history/5/2?limit=abc",
		"/api/v1/history/5/2?limit=0",
	} {
		rec := doRequest(t, router, http.MethodGet, path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, rec.Code)
		}
	}
}

func TestGetHistory_Disabled(t *testing.T) {
	router := newTestServer(t, &fakeHub{}, &fakeBridge{}, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/history/5/2", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("history status = %d, want 404 when recording disabled", rec.Code)
	}
}

// ===== Command Endpoint =====

func TestCommand_Accepted(t *testing.T) {
	bridge := &fakeBridge{}
	router := newTestServer(t, &fakeHub{}, bridge, nil)

	payload := []byte(`{"room_id":5,"channel_id":2,"command":"set_level","parameters":{"level":128}}`)
	rec := doRequest(t, router, http.MethodPost, "/api/v1/commands", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("command status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal command response: %v", err)
	}
	if body["status"] != "accepted" {
		t.Errorf("status = %v, want accepted", body["status"])
	}
	if body["id"] == "" || body["id"] == nil {
		t.Error("response should include a generated command id")
	}

	cmd := bridge.executed()
	if cmd.RoomID != 5 || cmd.ChannelID != 2 {
		t.Errorf("executed room/channel = %d/%d, want 5/2", cmd.RoomID, cmd.ChannelID)
	}
	if cmd.ID == "" {
		t.Error("executed command should have an assigned id")
	}
	if cmd.Source != "api" {
		t.Errorf("executed source = %q, want api", cmd.Source)
	}
	if cmd.Timestamp.IsZero() {
		t.Error("executed command should have a timestamp")
	}
}

func TestCommand_PreservesCallerFields(t *testing.T) {
	bridge := &fakeBridge{}
	router := newTestServer(t, &fakeHub{}, bridge, nil)

	payload := []byte(`{"id":"cmd-123","room_id":5,"channel_id":2,"command":"fade_up","source":"automation"}`)
	rec := doRequest(t, router, http.MethodPost, "/api/v1/commands", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("command status = %d, want 200", rec.Code)
	}

	cmd := bridge.executed()
	if cmd.ID != "cmd-123" {
		t.Errorf("executed id = %q, want cmd-123", cmd.ID)
	}
	if cmd.Source != "automation" {
		t.Errorf("executed source = %q, want automation", cmd.Source)
	}
}

func TestCommand_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		execErr    error
		wantStatus int
	}{
		{"hub rejected", fmt.Errorf("send: %w", rako.ErrCommandRejected), http.StatusConflict},
		{"hub unreachable", fmt.Errorf("dial: %w", rako.ErrConnectionFailed), http.StatusBadGateway},
		{"invalid command", fmt.Errorf("unknown command %q", "warp"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := &fakeBridge{execErr: tt.execErr}
			router := newTestServer(t, &fakeHub{}, bridge, nil)

			payload := []byte(`{"room_id":5,"channel_id":2,"command":"set_level"}`)
			rec := doRequest(t, router, http.MethodPost, "/api/v1/commands", payload)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCommand_MalformedBody(t *testing.T) {
	router := newTestServer(t, &fakeHub{}, &fakeBridge{}, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/commands", []byte(`{not json`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// ===== Middleware =====

func TestRequestIDHeader(t *testing.T) {
	router := newTestServer(t, &fakeHub{}, &fakeBridge{}, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/health", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID header")
	}
}

func TestRequestIDEcho(t *testing.T) {
	router := newTestServer(t, &fakeHub{}, &fakeBridge{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestServer(t, &fakeHub{}, &fakeBridge{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/rooms", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q, want request origin", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

// ===== Lifecycle =====

func TestHealthCheck_NotStarted(t *testing.T) {
	srv, err := New(Deps{
		Logger: logging.Default(),
		Hub:    &fakeHub{},
		Bridge: &fakeBridge{},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail before Start()")
	}
}

func TestClose_NotStarted(t *testing.T) {
	srv, err := New(Deps{
		Logger: logging.Default(),
		Hub:    &fakeHub{},
		Bridge: &fakeBridge{},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start() error = %v", err)
	}
}
