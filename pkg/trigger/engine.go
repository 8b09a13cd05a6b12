package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/homescript-labs/homescriptd/pkg/metrics"
	"github.com/homescript-labs/homescriptd/pkg/models"
	"github.com/homescript-labs/homescriptd/pkg/runner"
)

// reconnectDelay is the fixed backoff between connection attempts.
const reconnectDelay = 5 * time.Second

// ScriptSource lists the scripts that carry a trigger config. The engine
// reads fresh on every event so edits take effect immediately.
type ScriptSource interface {
	ListTriggered(ctx context.Context) ([]models.Script, error)
}

// Engine owns the long-lived websocket to Home Assistant and dispatches
// matched scripts serially through the runner.
type Engine struct {
	wsURL   string
	token   string
	scripts ScriptSource
	runner  *runner.Runner
	logger  *slog.Logger

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewEngine creates a trigger engine. wsURL is the websocket API endpoint
// (see ha.Client.WebsocketURL).
func NewEngine(wsURL, token string, scripts ScriptSource, r *runner.Runner) *Engine {
	return &Engine{
		wsURL:   wsURL,
		token:   token,
		scripts: scripts,
		runner:  r,
		logger:  slog.Default(),
	}
}

// Start launches the subscriber loop. It returns immediately; connection
// failures are retried inside the loop.
func (e *Engine) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancelLoop = cancel
	e.loopDone = make(chan struct{})
	go func() {
		defer close(e.loopDone)
		e.run(loopCtx)
	}()
	e.logger.Info("Trigger engine started", "url", e.wsURL)
}

// Stop signals the loop to exit and waits for it to finish.
func (e *Engine) Stop() {
	if e.cancelLoop != nil {
		e.cancelLoop()
	}
	if e.loopDone != nil {
		<-e.loopDone
	}
	e.logger.Info("Trigger engine stopped")
}

// run reconnects forever with a fixed delay until the context is cancelled.
func (e *Engine) run(ctx context.Context) {
	for {
		if err := e.connectAndListen(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("Trigger connection lost", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// wsMessage covers every frame shape the engine reads from the bus.
type wsMessage struct {
	ID      int64  `json:"id,omitempty"`
	Type    string `json:"type"`
	Success *bool  `json:"success,omitempty"`
	Event   *struct {
		EventType string `json:"event_type"`
		Data      struct {
			EntityID string `json:"entity_id"`
			OldState *struct {
				State string `json:"state"`
			} `json:"old_state"`
			NewState *struct {
				State string `json:"state"`
			} `json:"new_state"`
		} `json:"data"`
	} `json:"event,omitempty"`
}

// connectAndListen performs the auth handshake, subscribes to state_changed
// and processes events until the connection drops.
func (e *Engine) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, e.wsURL, &websocket.DialOptions{})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	if err := e.authenticate(ctx, conn); err != nil {
		return err
	}

	// Command ids must be monotonically increasing per connection.
	var nextID int64 = 1
	if err := writeJSON(ctx, conn, map[string]any{
		"id":         nextID,
		"type":       "subscribe_events",
		"event_type": "state_changed",
	}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	e.logger.Info("Subscribed to state_changed events")

	for {
		var msg wsMessage
		if err := readJSON(ctx, conn, &msg); err != nil {
			return err
		}
		if msg.Type != "event" || msg.Event == nil || msg.Event.EventType != "state_changed" {
			continue
		}
		ev := StateChange{EntityID: msg.Event.Data.EntityID}
		if msg.Event.Data.OldState != nil {
			ev.Old = msg.Event.Data.OldState.State
		}
		if msg.Event.Data.NewState != nil {
			ev.New = msg.Event.Data.NewState.State
		}
		metrics.TriggerEventsTotal.Inc()
		e.dispatch(ctx, ev)
	}
}

// authenticate runs the auth_required/auth/auth_ok handshake.
func (e *Engine) authenticate(ctx context.Context, conn *websocket.Conn) error {
	var hello wsMessage
	if err := readJSON(ctx, conn, &hello); err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("unexpected greeting %q", hello.Type)
	}
	if err := writeJSON(ctx, conn, map[string]any{
		"type":         "auth",
		"access_token": e.token,
	}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	var reply wsMessage
	if err := readJSON(ctx, conn, &reply); err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	if reply.Type != "auth_ok" {
		return fmt.Errorf("authentication rejected: %s", reply.Type)
	}
	return nil
}

// dispatch evaluates every triggered script against one event and runs the
// matches in sequence. Script failures are logged, never propagated.
func (e *Engine) dispatch(ctx context.Context, ev StateChange) {
	scripts, err := e.scripts.ListTriggered(ctx)
	if err != nil {
		e.logger.Error("Loading triggered scripts failed", "error", err)
		return
	}

	for _, s := range scripts {
		cfg, err := models.ParseTriggerConfig(s.TriggerConfig)
		if err != nil {
			e.logger.Warn("Skipping script with invalid trigger config",
				"endpoint", s.Endpoint, "error", err)
			continue
		}
		if cfg == nil || len(cfg.Rules) == 0 {
			continue
		}
		cfg = models.NormalizeTriggerConfig(cfg)

		res := EvaluateGroup(cfg, ev)
		if res.ExpressionError != "" {
			e.logger.Warn("Rule expression failed",
				"endpoint", s.Endpoint, "error", res.ExpressionError)
		}
		if !res.Fired {
			continue
		}

		metrics.TriggerFiresTotal.Inc()
		e.logger.Info("Trigger fired",
			"endpoint", s.Endpoint, "entity_id", ev.EntityID, "new", ev.New)

		result := e.runner.Execute(ctx, s.Code, runner.RunOptions{
			Endpoint: s.Endpoint,
			AuthMode: models.AuthModeUnknown,
			Scope:    map[string]any{"event": EventPayload(cfg, ev, res)},
		})
		if result.Err != nil {
			e.logger.Error("Triggered script failed",
				"endpoint", s.Endpoint,
				"line", result.Err.Line,
				"error", result.Err.Message)
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func readJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
