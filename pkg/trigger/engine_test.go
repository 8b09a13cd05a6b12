package trigger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homescript-labs/homescriptd/pkg/models"
	"github.com/homescript-labs/homescriptd/pkg/runner"
)

type fakeSource struct {
	scripts []models.Script
}

func (f fakeSource) ListTriggered(context.Context) ([]models.Script, error) {
	return f.scripts, nil
}

// captureHost records service calls so tests can observe dispatched runs.
type captureHost struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func newCaptureHost() *captureHost {
	return &captureHost{done: make(chan struct{}, 8)}
}

func (h *captureHost) Call(_ context.Context, service string, _ []any) (any, error) {
	h.mu.Lock()
	h.calls = append(h.calls, service)
	h.mu.Unlock()
	h.done <- struct{}{}
	return map[string]any{"success": true}, nil
}

func (h *captureHost) Get(context.Context, string) (any, error) { return "on", nil }
func (h *captureHost) Set(context.Context, string, any) error   { return nil }

func (h *captureHost) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	copy(out, h.calls)
	return out
}

func triggeredScript(endpoint, entityID string) models.Script {
	cfg, _ := json.Marshal(models.TriggerConfig{
		Rules: []models.TriggerRule{
			{Name: "Motion", EntityID: entityID, EventType: models.TriggerEventAnyChange},
		},
	})
	return models.Script{
		Name:          endpoint,
		Endpoint:      endpoint,
		Code:          `CALL light.turn_on("light.` + endpoint + `")`,
		TriggerConfig: string(cfg),
	}
}

func TestDispatchRunsMatchedScripts(t *testing.T) {
	host := newCaptureHost()
	src := fakeSource{scripts: []models.Script{
		triggeredScript("hall", "binary_sensor.hall"),
		triggeredScript("porch", "binary_sensor.porch"),
	}}
	e := NewEngine("", "", src, runner.New(host, models.HAModeMock, nil))

	e.dispatch(context.Background(), StateChange{
		EntityID: "binary_sensor.hall", Old: "off", New: "on",
	})

	assert.Equal(t, []string{"light.turn_on"}, host.snapshot())
}

func TestDispatchSurvivesScriptFailure(t *testing.T) {
	host := newCaptureHost()
	broken := triggeredScript("broken", "binary_sensor.hall")
	broken.Code = `SET $x = 1 / 0`
	src := fakeSource{scripts: []models.Script{
		broken,
		triggeredScript("hall", "binary_sensor.hall"),
	}}
	e := NewEngine("", "", src, runner.New(host, models.HAModeMock, nil))

	e.dispatch(context.Background(), StateChange{
		EntityID: "binary_sensor.hall", Old: "off", New: "on",
	})

	// The failure of the first script does not stop the second.
	assert.Equal(t, []string{"light.turn_on"}, host.snapshot())
}

func TestDispatchSkipsInvalidConfig(t *testing.T) {
	host := newCaptureHost()
	bad := models.Script{Endpoint: "bad", Code: `CALL light.turn_on("x")`, TriggerConfig: "{not json"}
	e := NewEngine("", "", fakeSource{scripts: []models.Script{bad}}, runner.New(host, models.HAModeMock, nil))

	e.dispatch(context.Background(), StateChange{EntityID: "light.x", Old: "off", New: "on"})

	assert.Empty(t, host.snapshot())
}

func TestEngineHandshakeAndEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.CloseNow()
		ctx := r.Context()

		require.NoError(t, wsWrite(ctx, conn, map[string]any{"type": "auth_required"}))

		auth := wsRead(t, ctx, conn)
		assert.Equal(t, "auth", auth["type"])
		assert.Equal(t, "test-token", auth["access_token"])
		require.NoError(t, wsWrite(ctx, conn, map[string]any{"type": "auth_ok"}))

		sub := wsRead(t, ctx, conn)
		assert.Equal(t, "subscribe_events", sub["type"])
		assert.Equal(t, "state_changed", sub["event_type"])
		assert.Equal(t, float64(1), sub["id"])

		require.NoError(t, wsWrite(ctx, conn, map[string]any{
			"id":   1,
			"type": "event",
			"event": map[string]any{
				"event_type": "state_changed",
				"data": map[string]any{
					"entity_id": "binary_sensor.hall",
					"old_state": map[string]any{"state": "off"},
					"new_state": map[string]any{"state": "on"},
				},
			},
		}))

		// Hold the connection open until the client goes away.
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	host := newCaptureHost()
	src := fakeSource{scripts: []models.Script{triggeredScript("hall", "binary_sensor.hall")}}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	e := NewEngine(wsURL, "test-token", src, runner.New(host, models.HAModeMock, nil))

	e.Start(context.Background())
	defer e.Stop()

	select {
	case <-host.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for triggered run")
	}
	assert.Equal(t, []string{"light.turn_on"}, host.snapshot())
}

func wsWrite(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func wsRead(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}
