package homescript

import (
	"context"
	"regexp"
	"strings"

	"github.com/homescript-labs/homescriptd/pkg/homescript/expr"
)

// maxLoopIterations bounds every WHILE loop; exceeding it aborts the run
// with "Infinite loop detected" instead of spinning forever.
const maxLoopIterations = 100000

// maxCallDepth bounds user-function recursion.
const maxCallDepth = 64

// StepMode selects the debugger's stepping behavior.
type StepMode string

const (
	StepModeAuto   StepMode = "auto"
	StepModeManual StepMode = "manual"
)

// DebugAction is the debugger's reply to a breakpoint handshake.
type DebugAction int

const (
	DebugContinue DebugAction = iota
	DebugStep
	DebugStop
)

// TraceEvent is one interpreter trace entry, delivered through OnTrace in
// execution order.
type TraceEvent struct {
	Line    int
	Message string
}

// Options configures one execution. Nil host hooks put the corresponding
// statement into dry-run mode.
type Options struct {
	// Scope presets variables (keys carry no $ sigil).
	Scope map[string]any
	// QueryParams is the source for REQUIRED/OPTIONAL declarations.
	QueryParams map[string]any
	// Breakpoints are physical line numbers to pause on.
	Breakpoints []int
	// DebugStepMode enables the debugger even without breakpoints when
	// manual.
	DebugStepMode StepMode

	OnTrace      func(TraceEvent)
	OnCall       func(ctx context.Context, service string, args []any) (any, error)
	OnGet        func(ctx context.Context, entityID string) (any, error)
	OnSet        func(ctx context.Context, entityID string, value any) error
	OnImport     func(ctx context.Context, name string) (string, error)
	OnBreakpoint func(ctx context.Context, hsLine int, scope map[string]any) (DebugAction, error)
}

// Result is the successful outcome of a run.
type Result struct {
	Output    []string
	Variables map[string]any
}

// Execute runs a HomeScript program. On failure it returns the partial
// Result produced so far along with a *Error.
func Execute(ctx context.Context, source string, opts Options) (*Result, error) {
	in := &interp{
		ctx:         ctx,
		opts:        opts,
		scope:       map[string]any{},
		funcs:       map[string]funcDecl{},
		imported:    map[string]bool{},
		breakpoints: map[int]bool{},
		output:      []string{},
	}
	for k, v := range opts.Scope {
		in.scope[k] = v
	}
	for _, bp := range opts.Breakpoints {
		in.breakpoints[bp] = true
	}
	in.debugging = opts.OnBreakpoint != nil &&
		(len(opts.Breakpoints) > 0 || opts.DebugStepMode == StepModeManual)
	in.stepping = in.debugging && opts.DebugStepMode == StepModeManual

	result := func() *Result {
		return &Result{Output: in.output, Variables: copyScope(in.scope)}
	}

	program, perr := parseProgram(splitLines(source))
	if perr != nil {
		return result(), perr
	}
	in.hoistFuncs(program)

	f, err := in.execList(program)
	if err != nil {
		return result(), err
	}
	if f.kind == ctrlGoto {
		return result(), errAt(f.line, "GOTO to unknown label '%s'", f.label)
	}
	return result(), nil
}

type ctrlKind int

const (
	ctrlNone ctrlKind = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
	ctrlGoto
)

type flow struct {
	kind  ctrlKind
	label string
	line  int
}

type interp struct {
	ctx         context.Context
	opts        Options
	scope       map[string]any
	output      []string
	funcs       map[string]funcDecl
	imported    map[string]bool
	breakpoints map[int]bool
	debugging   bool
	stepping    bool
	callDepth   int
}

func copyScope(scope map[string]any) map[string]any {
	out := make(map[string]any, len(scope))
	for k, v := range scope {
		out[k] = v
	}
	return out
}

// hoistFuncs registers every function declaration in the tree so calls may
// precede definitions.
func (in *interp) hoistFuncs(body []Stmt) {
	for _, s := range body {
		switch t := s.(type) {
		case funcDecl:
			in.funcs[t.name] = t
			in.hoistFuncs(t.body)
		case ifStmt:
			for _, br := range t.branches {
				in.hoistFuncs(br.body)
			}
		case whileStmt:
			in.hoistFuncs(t.body)
		}
	}
}

// execList runs a statement list, resolving GOTO against labels declared at
// this nesting level. An unresolved GOTO propagates to the enclosing list.
func (in *interp) execList(body []Stmt) (flow, *Error) {
	labels := map[string]int{}
	for i, s := range body {
		if l, ok := s.(labelStmt); ok {
			labels[l.name] = i
		}
	}

	i := 0
	for i < len(body) {
		s := body[i]
		if err := in.checkCancelled(s.Pos()); err != nil {
			return flow{}, err
		}
		if err := in.maybeBreak(s.Pos()); err != nil {
			return flow{}, err
		}

		f, err := in.execStmt(s)
		if err != nil {
			return flow{}, err
		}
		if f.kind == ctrlGoto {
			if idx, ok := labels[f.label]; ok {
				i = idx + 1
				continue
			}
			return f, nil
		}
		if f.kind != ctrlNone {
			return f, nil
		}
		i++
	}
	return flow{}, nil
}

func (in *interp) checkCancelled(line int) *Error {
	select {
	case <-in.ctx.Done():
		return errAt(line, "execution cancelled")
	default:
		return nil
	}
}

// maybeBreak runs the debugger handshake before a statement when the line
// carries a breakpoint or the previous decision was a step.
func (in *interp) maybeBreak(line int) *Error {
	if !in.debugging {
		return nil
	}
	if !in.breakpoints[line] && !in.stepping {
		return nil
	}
	in.stepping = false
	action, err := in.opts.OnBreakpoint(in.ctx, line, copyScope(in.scope))
	if err != nil {
		return errAt(line, "debugger error: %s", err)
	}
	switch action {
	case DebugStop:
		return errAt(line, "Debugger stopped")
	case DebugStep:
		in.stepping = true
	}
	return nil
}

func (in *interp) trace(line int, message string) {
	if in.opts.OnTrace != nil {
		in.opts.OnTrace(TraceEvent{Line: line, Message: message})
	}
}

func (in *interp) eval(raw string, line int) (any, *Error) {
	v, err := expr.Evaluate(raw, in.scope)
	if err != nil {
		return nil, errAt(line, "%s", err)
	}
	return v, nil
}

func (in *interp) execStmt(s Stmt) (flow, *Error) {
	switch t := s.(type) {
	case setVarStmt:
		if lit, ok := singleStringLiteral(t.expr); ok {
			in.scope[t.name] = in.interpolate(lit)
			return flow{}, nil
		}
		v, err := in.eval(t.expr, t.line)
		if err != nil {
			return flow{}, err
		}
		in.scope[t.name] = v
		return flow{}, nil

	case setEntityStmt:
		v, err := in.eval(t.expr, t.line)
		if err != nil {
			return flow{}, err
		}
		if in.opts.OnSet == nil {
			in.output = append(in.output, "[Dry Run] SET "+t.entityID+" = "+expr.Stringify(v))
			return flow{}, nil
		}
		in.trace(t.line, "SET "+t.entityID)
		if err := in.opts.OnSet(in.ctx, t.entityID, v); err != nil {
			return flow{}, errAt(t.line, "SET failed: %s", err)
		}
		return flow{}, nil

	case printStmt:
		if lit, ok := singleStringLiteral(t.expr); ok {
			in.output = append(in.output, in.interpolate(lit))
			return flow{}, nil
		}
		v, err := in.eval(t.expr, t.line)
		if err != nil {
			return flow{}, err
		}
		in.output = append(in.output, expr.Stringify(v))
		return flow{}, nil

	case getStmt:
		if in.opts.OnGet == nil {
			in.scope[t.varName] = nil
			in.output = append(in.output, "[Dry Run] GET "+t.entityID+" INTO $"+t.varName)
			return flow{}, nil
		}
		in.trace(t.line, "GET "+t.entityID)
		v, err := in.opts.OnGet(in.ctx, t.entityID)
		if err != nil {
			return flow{}, errAt(t.line, "GET failed: %s", err)
		}
		in.scope[t.varName] = v
		return flow{}, nil

	case callStmt:
		return in.execCall(t)

	case ifStmt:
		for _, br := range t.branches {
			if br.cond == "" {
				return in.execList(br.body)
			}
			v, err := in.eval(br.cond, br.line)
			if err != nil {
				return flow{}, err
			}
			if expr.Truthy(v) {
				return in.execList(br.body)
			}
		}
		return flow{}, nil

	case whileStmt:
		for iterations := 0; ; iterations++ {
			if iterations >= maxLoopIterations {
				return flow{}, errAt(t.line, "Infinite loop detected")
			}
			if err := in.checkCancelled(t.line); err != nil {
				return flow{}, err
			}
			v, err := in.eval(t.cond, t.line)
			if err != nil {
				return flow{}, err
			}
			if !expr.Truthy(v) {
				return flow{}, nil
			}
			f, err := in.execList(t.body)
			if err != nil {
				return flow{}, err
			}
			switch f.kind {
			case ctrlBreak:
				return flow{}, nil
			case ctrlContinue, ctrlNone:
				// next iteration
			default:
				return f, nil
			}
		}

	case funcDecl:
		// Hoisted at load time.
		return flow{}, nil

	case returnStmt:
		return flow{kind: ctrlReturn, line: t.line}, nil

	case importStmt:
		return flow{}, in.execImport(t)

	case requiredStmt:
		v, ok := in.opts.QueryParams[t.name]
		if !ok {
			return flow{}, errAt(t.line, "Missing required query variable: %s", t.name)
		}
		in.scope[t.name] = v
		return flow{}, in.runValidator(t.validator, t.name, t.line)

	case optionalStmt:
		v, ok := in.opts.QueryParams[t.name]
		if !ok {
			if t.defaultVal == "" {
				in.scope[t.name] = ""
				return flow{}, nil
			}
			dv, err := in.eval(t.defaultVal, t.line)
			if err != nil {
				return flow{}, err
			}
			in.scope[t.name] = dv
			return flow{}, nil
		}
		in.scope[t.name] = v
		return flow{}, in.runValidator(t.validator, t.name, t.line)

	case labelStmt:
		return flow{}, nil

	case gotoStmt:
		return flow{kind: ctrlGoto, label: t.name, line: t.line}, nil

	case loopBreakStmt:
		return flow{kind: ctrlBreak, line: t.line}, nil

	case continueStmt:
		return flow{kind: ctrlContinue, line: t.line}, nil

	case abortStmt:
		msg := t.message
		if msg == "" {
			msg = "Script aborted"
		}
		return flow{}, &Error{Message: msg, Line: t.line, Code: t.code}

	case testStmt:
		re, err := buildRegex(t.pattern, t.flags)
		if err != nil {
			return flow{}, errAt(t.line, "TEST: %s", err)
		}
		v, eerr := in.eval(t.value, t.line)
		if eerr != nil {
			return flow{}, eerr
		}
		in.scope[t.intoVar] = re.MatchString(expr.Stringify(v))
		return flow{}, nil

	default:
		return flow{}, errAt(s.Pos(), "unsupported statement")
	}
}

// runValidator evaluates a REQUIRED/OPTIONAL IF clause with the parameter
// value already bound in scope.
func (in *interp) runValidator(validator, name string, line int) *Error {
	if validator == "" {
		return nil
	}
	v, err := in.eval(validator, line)
	if err != nil {
		return err
	}
	if !expr.Truthy(v) {
		return errAt(line, "Validation failed for %s", name)
	}
	return nil
}

func (in *interp) execCall(t callStmt) (flow, *Error) {
	args := make([]any, 0, len(t.args))
	for _, raw := range t.args {
		v, err := in.eval(raw, t.line)
		if err != nil {
			return flow{}, err
		}
		args = append(args, v)
	}

	// domain.service targets dispatch to the host; bare names are user
	// functions.
	if strings.Contains(t.target, ".") {
		if in.opts.OnCall == nil {
			rendered := make([]string, len(args))
			for i, a := range args {
				rendered[i] = expr.Stringify(a)
			}
			in.output = append(in.output, "[Dry Run] CALL "+t.target+"("+strings.Join(rendered, ", ")+")")
			return flow{}, nil
		}
		in.trace(t.line, "CALL "+t.target)
		if _, err := in.opts.OnCall(in.ctx, t.target, args); err != nil {
			return flow{}, errAt(t.line, "CALL failed: %s", err)
		}
		return flow{}, nil
	}

	fn, ok := in.funcs[t.target]
	if !ok {
		return flow{}, errAt(t.line, "unknown function '%s'", t.target)
	}
	if len(args) != len(fn.params) {
		return flow{}, errAt(t.line, "%s expects %d arguments, got %d", t.target, len(fn.params), len(args))
	}
	if in.callDepth >= maxCallDepth {
		return flow{}, errAt(t.line, "maximum call depth exceeded")
	}

	// The local scope derives from the caller's scope at call time.
	caller := in.scope
	local := copyScope(caller)
	for i, p := range fn.params {
		local[p] = args[i]
	}
	in.scope = local
	in.callDepth++
	f, err := in.execList(fn.body)
	in.callDepth--
	in.scope = caller
	if err != nil {
		return flow{}, err
	}
	if f.kind == ctrlGoto {
		return flow{}, errAt(f.line, "GOTO to unknown label '%s'", f.label)
	}
	return flow{}, nil
}

func (in *interp) execImport(t importStmt) *Error {
	if in.imported[t.name] {
		return nil
	}
	in.imported[t.name] = true

	if in.opts.OnImport == nil {
		return errAt(t.line, "Failed to import '%s': no import resolver bound", t.name)
	}
	in.trace(t.line, "IMPORT "+t.name)
	source, err := in.opts.OnImport(in.ctx, t.name)
	if err != nil {
		return errAt(t.line, "Failed to import '%s': %s", t.name, err)
	}

	program, perr := parseProgram(splitLines(source))
	if perr != nil {
		return errAt(t.line, "Failed to import '%s': %s", t.name, perr.Message)
	}
	in.hoistFuncs(program)
	f, eerr := in.execList(program)
	if eerr != nil {
		return eerr
	}
	if f.kind == ctrlGoto {
		return errAt(f.line, "GOTO to unknown label '%s'", f.label)
	}
	return nil
}

var interpolateRe = regexp.MustCompile(`\$[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*`)

// interpolate expands $var and $path.sub references inside a string literal
// using scope lookup; unknown references render as the empty string.
func (in *interp) interpolate(s string) string {
	return interpolateRe.ReplaceAllStringFunc(s, func(m string) string {
		path := strings.Split(m[1:], ".")
		return expr.Stringify(expr.Resolve(in.scope, path))
	})
}

// singleStringLiteral reports whether raw is exactly one quoted string
// literal and returns its unescaped content.
func singleStringLiteral(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '"' {
		return "", false
	}
	var b strings.Builder
	for i := 1; i < len(raw); i++ {
		switch raw[i] {
		case '\\':
			if i+1 >= len(raw) {
				return "", false
			}
			i++
			switch raw[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(raw[i])
			}
		case '"':
			if i != len(raw)-1 {
				return "", false
			}
			return b.String(), true
		default:
			b.WriteByte(raw[i])
		}
	}
	return "", false
}

// BuiltinEnums is the ENUMS constant catalog preset into every run scope.
func BuiltinEnums() map[string]any {
	return map[string]any{
		"state": map[string]any{
			"on":          "on",
			"off":         "off",
			"open":        "open",
			"closed":      "closed",
			"home":        "home",
			"away":        "away",
			"locked":      "locked",
			"unlocked":    "unlocked",
			"idle":        "idle",
			"playing":     "playing",
			"unavailable": "unavailable",
			"unknown":     "unknown",
		},
	}
}
