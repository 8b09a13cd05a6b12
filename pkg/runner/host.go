// Package runner is the execution host: it adapts interpreter side-effects
// to live device I/O or simulation and produces the structured execution
// report for every run.
package runner

import (
	"context"
	"fmt"
	"strings"
)

// Host is the capability surface the interpreter's side-effecting
// statements dispatch through. A nil Host puts a run into dry-run mode.
type Host interface {
	// Call dispatches a service invocation, e.g. "light.turn_on".
	Call(ctx context.Context, service string, args []any) (any, error)
	// Get reads the current state of an entity.
	Get(ctx context.Context, entityID string) (any, error)
	// Set writes a value to an entity.
	Set(ctx context.Context, entityID string, value any) error
}

// Importer resolves IMPORT statements to script source by endpoint.
type Importer interface {
	SourceByEndpoint(ctx context.Context, endpoint string) (string, error)
}

// ImporterFunc adapts a function to the Importer interface.
type ImporterFunc func(ctx context.Context, endpoint string) (string, error)

func (f ImporterFunc) SourceByEndpoint(ctx context.Context, endpoint string) (string, error) {
	return f(ctx, endpoint)
}

// MockHost simulates every interaction without touching the network.
type MockHost struct{}

func (MockHost) Call(context.Context, string, []any) (any, error) {
	return map[string]any{"success": true, "simulated": true}, nil
}

func (MockHost) Get(context.Context, string) (any, error) {
	return "mock_state", nil
}

func (MockHost) Set(context.Context, string, any) error {
	return nil
}

// splitService splits "domain.service" into its parts.
func splitService(service string) (domain, name string, err error) {
	i := strings.Index(service, ".")
	if i <= 0 || i == len(service)-1 {
		return "", "", fmt.Errorf("invalid service %q: expected domain.service", service)
	}
	return service[:i], service[i+1:], nil
}
