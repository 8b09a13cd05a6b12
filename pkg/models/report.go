package models

import "time"

// ReportSchemaVersion identifies the execution report wire format.
// Increment on any breaking change.
const ReportSchemaVersion = 1

// AuthMode identifies which credential path authorized a run.
type AuthMode string

const (
	AuthModeJWT         AuthMode = "jwt"
	AuthModeServiceKey  AuthMode = "service_key"
	AuthModeDebugBypass AuthMode = "debug_bypass"
	AuthModeMock        AuthMode = "mock"
	AuthModeUnknown     AuthMode = "unknown"
)

// HAMode reports whether a live Home Assistant endpoint was bound for a run.
type HAMode string

const (
	HAModeReal HAMode = "real"
	HAModeMock HAMode = "mock"
)

// EventSource identifies the subsystem that emitted an execution event.
type EventSource string

const (
	EventSourceFrontend EventSource = "frontend"
	EventSourceBackend  EventSource = "backend"
	EventSourceEngine   EventSource = "engine"
	EventSourceHA       EventSource = "ha"
)

// EventLevel is the severity of an execution event.
type EventLevel string

const (
	EventLevelInfo    EventLevel = "info"
	EventLevelSuccess EventLevel = "success"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// HAAction identifies the kind of Home Assistant interaction.
type HAAction string

const (
	HAActionGet  HAAction = "get"
	HAActionSet  HAAction = "set"
	HAActionCall HAAction = "call"
)

// HAStatus is the outcome of a single Home Assistant interaction.
type HAStatus string

const (
	HAStatusSuccess HAStatus = "success"
	HAStatusFail    HAStatus = "fail"
)

// ExecutionEvent is one trace entry in an execution report.
type ExecutionEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Source    EventSource `json:"source"`
	Level     EventLevel  `json:"level"`
	Message   string      `json:"message"`
	Line      int         `json:"line,omitempty"`
	Details   string      `json:"details,omitempty"`
}

// HAStateEvent records one device interaction (live or mock).
type HAStateEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Action    HAAction  `json:"action"`
	Status    HAStatus  `json:"status"`
	EntityID  string    `json:"entityId,omitempty"`
	Service   string    `json:"service,omitempty"`
	Value     any       `json:"value,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ReportError carries the failure of an unsuccessful run.
type ReportError struct {
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ReportMeta is per-run metadata stamped by the execution host on completion.
type ReportMeta struct {
	RequestID  string   `json:"requestId"`
	Endpoint   string   `json:"endpoint"`
	AuthMode   AuthMode `json:"authMode"`
	HAMode     HAMode   `json:"haMode"`
	DurationMs int64    `json:"durationMs"`
	HTTPStatus int      `json:"httpStatus"`
}

// ExecutionReport is the structured artifact returned by every run.
// Invariant: Success is true iff Error is nil, and Meta.HTTPStatus is 200
// for successful runs.
type ExecutionReport struct {
	SchemaVersion int              `json:"schemaVersion"`
	Success       bool             `json:"success"`
	DurationMs    int64            `json:"durationMs"`
	Output        []string         `json:"output"`
	Variables     map[string]any   `json:"variables"`
	Events        []ExecutionEvent `json:"events"`
	HAStates      []HAStateEvent   `json:"haStates"`
	Error         *ReportError     `json:"error,omitempty"`
	Meta          ReportMeta       `json:"meta"`
}
