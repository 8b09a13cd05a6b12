package runner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/homescript-labs/homescriptd/pkg/homescript"
	"github.com/homescript-labs/homescriptd/pkg/homescript/expr"
	"github.com/homescript-labs/homescriptd/pkg/metrics"
	"github.com/homescript-labs/homescriptd/pkg/models"
)

// maxStepDelay caps the auto-step debugger line delay.
const maxStepDelay = 5000 * time.Millisecond

// Runner executes scripts against a host and produces execution reports.
type Runner struct {
	host     Host // nil → dry run
	haMode   models.HAMode
	importer Importer
	logger   *slog.Logger
}

// New creates a Runner. host may be nil, which puts every run into dry-run
// mode; haMode reports whether a live Home Assistant endpoint is bound.
func New(host Host, haMode models.HAMode, importer Importer) *Runner {
	return &Runner{
		host:     host,
		haMode:   haMode,
		importer: importer,
		logger:   slog.Default(),
	}
}

// RunOptions configures one execution.
type RunOptions struct {
	Endpoint    string
	AuthMode    models.AuthMode
	Scope       map[string]any
	QueryParams map[string]any

	// Debugger settings.
	Breakpoints  []int
	StepMode     homescript.StepMode
	StepDelay    time.Duration // auto mode line delay, clamped to 0–5 s
	OnBreakpoint func(ctx context.Context, line int, scope map[string]any) (homescript.DebugAction, error)
	StopRequest  <-chan struct{} // external stop for auto mode
}

// RunResult pairs the raw interpreter outcome with the full report.
type RunResult struct {
	Output    []string
	Variables map[string]any
	Report    *models.ExecutionReport
	Err       *homescript.Error // nil on success and on debugger stop
}

// Execute runs one script and always returns a complete report; failed runs
// carry Success=false plus the error, never a partial nothing.
func (r *Runner) Execute(ctx context.Context, source string, opts RunOptions) *RunResult {
	started := time.Now()
	rec := newRecorder()
	requestID := uuid.New().String()

	if opts.AuthMode == "" {
		opts.AuthMode = models.AuthModeUnknown
	}

	scope := map[string]any{"ENUMS": homescript.BuiltinEnums()}
	for k, v := range opts.Scope {
		scope[k] = v
	}

	rec.event(models.EventSourceEngine, models.EventLevelInfo,
		"Execution started", 0, "endpoint="+opts.Endpoint)

	hsOpts := homescript.Options{
		Scope:         scope,
		QueryParams:   opts.QueryParams,
		Breakpoints:   opts.Breakpoints,
		DebugStepMode: opts.StepMode,
		OnTrace: func(ev homescript.TraceEvent) {
			rec.event(models.EventSourceEngine, models.EventLevelInfo, ev.Message, ev.Line, "")
		},
		OnBreakpoint: r.breakpointHook(opts),
	}
	if r.host != nil {
		hsOpts.OnCall = r.recordedCall(rec)
		hsOpts.OnGet = r.recordedGet(rec)
		hsOpts.OnSet = r.recordedSet(rec)
	}
	if r.importer != nil {
		hsOpts.OnImport = func(ctx context.Context, name string) (string, error) {
			return r.importer.SourceByEndpoint(ctx, name)
		}
	}

	result, err := homescript.Execute(ctx, source, hsOpts)

	durationMs := time.Since(started).Milliseconds()
	variables := result.Variables
	delete(variables, "ENUMS")

	report := &models.ExecutionReport{
		SchemaVersion: models.ReportSchemaVersion,
		DurationMs:    durationMs,
		Output:        result.Output,
		Variables:     variables,
		Meta: models.ReportMeta{
			RequestID:  requestID,
			Endpoint:   opts.Endpoint,
			AuthMode:   opts.AuthMode,
			HAMode:     r.haMode,
			DurationMs: durationMs,
		},
	}

	runResult := &RunResult{Output: result.Output, Variables: variables, Report: report}

	switch {
	case err == nil:
		report.Success = true
		report.Meta.HTTPStatus = http.StatusOK
		rec.event(models.EventSourceEngine, models.EventLevelSuccess, "Execution completed", 0, "")
	case isDebuggerStop(err):
		// Operator-initiated stop is a normal completion with a warning.
		report.Success = true
		report.Meta.HTTPStatus = http.StatusOK
		rec.event(models.EventSourceEngine, models.EventLevelWarning, "Debugger stopped", hsLine(err), "")
	default:
		hsErr := asHomeScriptError(err)
		report.Success = false
		report.Error = &models.ReportError{Message: hsErr.Message, Line: hsErr.Line}
		report.Meta.HTTPStatus = http.StatusBadRequest
		if hsErr.Code != 0 {
			report.Meta.HTTPStatus = hsErr.Code
		}
		rec.event(models.EventSourceEngine, models.EventLevelError, hsErr.Message, hsErr.Line, "")
		runResult.Err = hsErr
	}

	report.Events, report.HAStates = rec.snapshot()

	outcome := "success"
	if !report.Success {
		outcome = "failure"
	}
	mode := string(r.haMode)
	if r.host == nil {
		mode = "dry_run"
	}
	metrics.RunsTotal.WithLabelValues(outcome, mode).Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())

	r.logger.Info("Script run finished",
		"endpoint", opts.Endpoint,
		"request_id", requestID,
		"success", report.Success,
		"duration_ms", durationMs)

	return runResult
}

// breakpointHook returns the debugger handshake for a run: the external
// hook when one is attached, otherwise the auto-step timer that resumes
// with CONTINUE after the configured line delay unless a stop was
// requested.
func (r *Runner) breakpointHook(opts RunOptions) func(context.Context, int, map[string]any) (homescript.DebugAction, error) {
	if opts.OnBreakpoint != nil {
		return opts.OnBreakpoint
	}
	if len(opts.Breakpoints) == 0 && opts.StepMode != homescript.StepModeManual {
		return nil
	}

	delay := opts.StepDelay
	if delay < 0 {
		delay = 0
	}
	if delay > maxStepDelay {
		delay = maxStepDelay
	}

	return func(ctx context.Context, line int, _ map[string]any) (homescript.DebugAction, error) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return homescript.DebugContinue, nil
		case <-opts.StopRequest:
			return homescript.DebugStop, nil
		case <-ctx.Done():
			return homescript.DebugStop, nil
		}
	}
}

func (r *Runner) recordedCall(rec *recorder) func(context.Context, string, []any) (any, error) {
	return func(ctx context.Context, service string, args []any) (any, error) {
		started := time.Now()
		out, err := r.host.Call(ctx, service, args)
		r.recordHA(rec, models.HAStateEvent{
			Action:  models.HAActionCall,
			Service: service,
			Payload: args,
		}, started, err)
		return out, err
	}
}

func (r *Runner) recordedGet(rec *recorder) func(context.Context, string) (any, error) {
	return func(ctx context.Context, entityID string) (any, error) {
		started := time.Now()
		v, err := r.host.Get(ctx, entityID)
		r.recordHA(rec, models.HAStateEvent{
			Action:   models.HAActionGet,
			EntityID: entityID,
			Value:    v,
		}, started, err)
		return v, err
	}
}

func (r *Runner) recordedSet(rec *recorder) func(context.Context, string, any) error {
	return func(ctx context.Context, entityID string, value any) error {
		started := time.Now()
		err := r.host.Set(ctx, entityID, value)
		r.recordHA(rec, models.HAStateEvent{
			Action:   models.HAActionSet,
			EntityID: entityID,
			Value:    value,
		}, started, err)
		return err
	}
}

// recordHA appends the HAStateEvent and its paired ha-source execution
// event for one host interaction. Exactly one pair per invocation.
func (r *Runner) recordHA(rec *recorder, ev models.HAStateEvent, started time.Time, err error) {
	elapsed := time.Since(started)
	ev.Status = models.HAStatusSuccess
	level := models.EventLevelInfo
	msg := fmt.Sprintf("%s %s", ev.Action, firstNonEmpty(ev.EntityID, ev.Service))
	if err != nil {
		ev.Status = models.HAStatusFail
		ev.Error = err.Error()
		level = models.EventLevelError
		msg += ": " + err.Error()
	}
	rec.haState(ev)
	rec.event(models.EventSourceHA, level, msg, 0, fmt.Sprintf("duration=%s", elapsed.Round(time.Millisecond)))
	metrics.HARequestsTotal.WithLabelValues(string(ev.Action), string(ev.Status)).Inc()
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func isDebuggerStop(err error) bool {
	hsErr := asHomeScriptError(err)
	return hsErr.Message == "Debugger stopped"
}

func hsLine(err error) int {
	return asHomeScriptError(err).Line
}

func asHomeScriptError(err error) *homescript.Error {
	if hsErr, ok := err.(*homescript.Error); ok {
		return hsErr
	}
	return &homescript.Error{Message: err.Error()}
}

// ValueString renders a scope value for logs and payloads.
func ValueString(v any) string { return expr.Stringify(v) }
