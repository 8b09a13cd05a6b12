package runner

import (
	"context"

	"github.com/homescript-labs/homescriptd/pkg/ha"
	"github.com/homescript-labs/homescriptd/pkg/homescript/expr"
)

// LiveHost dispatches interpreter side-effects to a Home Assistant
// instance.
type LiveHost struct {
	client *ha.Client
}

// NewLiveHost wraps a Home Assistant client as an execution host.
func NewLiveHost(client *ha.Client) *LiveHost {
	return &LiveHost{client: client}
}

// Call translates a CALL statement into a service invocation. A string
// first argument becomes {entity_id: arg}; an object first argument is
// forwarded unchanged as the payload.
func (h *LiveHost) Call(ctx context.Context, service string, args []any) (any, error) {
	domain, name, err := splitService(service)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{}
	if len(args) > 0 {
		switch first := args[0].(type) {
		case string:
			payload["entity_id"] = first
		case map[string]any:
			payload = first
		}
	}

	if err := h.client.CallService(ctx, domain, name, payload); err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}

// Get reads an entity and returns its state field.
func (h *LiveHost) Get(ctx context.Context, entityID string) (any, error) {
	st, err := h.client.GetState(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return st.State, nil
}

// Set maps the entity's domain to the matching service: switchable domains
// use turn_on/turn_off, numbers use set_value, selects use select_option;
// anything else falls back to a direct state write.
func (h *LiveHost) Set(ctx context.Context, entityID string, value any) error {
	domain, _, err := splitService(entityID)
	if err != nil {
		// Not a domain-qualified id; write the state directly.
		return h.client.SetState(ctx, entityID, value)
	}

	switch domain {
	case "light", "switch", "fan", "input_boolean", "media_player", "climate":
		service := "turn_off"
		if isOn(value) {
			service = "turn_on"
		}
		return h.client.CallService(ctx, domain, service, map[string]any{"entity_id": entityID})
	case "input_number", "number":
		return h.client.CallService(ctx, domain, "set_value", map[string]any{
			"entity_id": entityID,
			"value":     value,
		})
	case "input_select", "select":
		return h.client.CallService(ctx, domain, "select_option", map[string]any{
			"entity_id": entityID,
			"option":    expr.Stringify(value),
		})
	default:
		return h.client.SetState(ctx, entityID, value)
	}
}

// isOn interprets a scripted value as an on/off intent.
func isOn(value any) bool {
	if s, ok := value.(string); ok {
		switch s {
		case "on", "true", "1":
			return true
		case "off", "false", "0", "":
			return false
		}
	}
	return expr.Truthy(value)
}
