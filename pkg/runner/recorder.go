package runner

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/homescript-labs/homescriptd/pkg/models"
)

// recorder collects the trace of one run. Each run's task owns its
// recorder exclusively, but the debugger hook may snapshot concurrently, so
// access is still guarded.
type recorder struct {
	mu       sync.Mutex
	events   []models.ExecutionEvent
	haStates []models.HAStateEvent
}

func newRecorder() *recorder {
	return &recorder{
		events:   []models.ExecutionEvent{},
		haStates: []models.HAStateEvent{},
	}
}

func (r *recorder) event(source models.EventSource, level models.EventLevel, message string, line int, details string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, models.ExecutionEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		Level:     level,
		Message:   message,
		Line:      line,
		Details:   details,
	})
}

func (r *recorder) haState(ev models.HAStateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Timestamp = time.Now().UTC()
	r.haStates = append(r.haStates, ev)
}

func (r *recorder) snapshot() ([]models.ExecutionEvent, []models.HAStateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]models.ExecutionEvent, len(r.events))
	copy(events, r.events)
	states := make([]models.HAStateEvent, len(r.haStates))
	copy(states, r.haStates)
	return events, states
}
