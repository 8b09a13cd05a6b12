// Package trigger subscribes to the Home Assistant event bus, evaluates
// per-script rule groups against state_changed events, and dispatches
// matching scripts through the execution host.
package trigger

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/homescript-labs/homescriptd/pkg/homescript/expr"
	"github.com/homescript-labs/homescriptd/pkg/models"
)

// StateChange is one state_changed event from the bus.
type StateChange struct {
	EntityID string
	Old      string
	New      string
}

// GroupResult is the outcome of evaluating one rule group against an event.
type GroupResult struct {
	Fired           bool
	RuleVars        map[string]any
	Matches         []string // names of matched rules, in config order
	ExpressionError string
}

// matchRule reports whether a single rule matches the event. The entity must
// match for every rule kind.
func matchRule(r models.TriggerRule, ev StateChange) bool {
	if r.EntityID == "" || r.EntityID != ev.EntityID {
		return false
	}

	switch r.EventType {
	case models.TriggerEventAnyChange:
		return ev.Old != ev.New

	case models.TriggerEventToggle:
		if ev.Old == ev.New {
			return false
		}
		return toggleSide(r.ToggleFrom, r.ToggleFromCustom, ev.Old) &&
			toggleSide(r.ToggleTo, r.ToggleToCustom, ev.New)

	case models.TriggerEventSensorLevels:
		_, ok := matchedLevel(r, ev)
		return ok
	}
	return false
}

// matchedLevel returns the first level a sensor_levels rule matches for the
// event: a strict crossing in either direction, or landing at or above the
// level when the value moved.
func matchedLevel(r models.TriggerRule, ev StateChange) (models.TriggerLevel, bool) {
	oldV, ok1 := parseFinite(ev.Old)
	newV, ok2 := parseFinite(ev.New)
	if !ok1 || !ok2 {
		return models.TriggerLevel{}, false
	}
	for _, lvl := range r.Levels {
		if (oldV < lvl.Value && lvl.Value < newV) || (newV < lvl.Value && lvl.Value < oldV) {
			return lvl, true
		}
		if newV >= lvl.Value && newV != oldV {
			return lvl, true
		}
	}
	return models.TriggerLevel{}, false
}

// toggleSide checks one from/to constraint: "any" is a wildcard, "custom"
// compares against the rule's custom string, anything else is a preset state
// compared directly.
func toggleSide(constraint, custom, state string) bool {
	switch constraint {
	case "", models.ToggleAny:
		return true
	case models.ToggleCustom:
		return custom == state
	default:
		return constraint == state
	}
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

var conditionKeywordRe = regexp.MustCompile(`(?i)^\s*IF\b|\bTHEN\s*$|\bEND_IF\s*$`)

// stripConditionKeywords removes a leading IF and trailing THEN/END_IF so a
// rule expression pasted from script form evaluates as a bare expression.
func stripConditionKeywords(s string) string {
	for {
		trimmed := conditionKeywordRe.ReplaceAllString(s, "")
		if trimmed == s {
			return strings.TrimSpace(s)
		}
		s = trimmed
	}
}

// EvaluateGroup matches every rule, binds the per-rule boolean variables and
// decides whether the group fires. An empty rule expression fires on any
// match; an expression error records the failure and suppresses the fire.
func EvaluateGroup(cfg *models.TriggerConfig, ev StateChange) GroupResult {
	res := GroupResult{RuleVars: map[string]any{}}
	if cfg == nil || len(cfg.Rules) == 0 {
		return res
	}

	anyMatched := false
	for _, r := range cfg.Rules {
		matched := matchRule(r, ev)
		res.RuleVars[models.ToRuleVarName(r.Name)] = matched
		if matched {
			anyMatched = true
			res.Matches = append(res.Matches, r.Name)
		}
	}

	expression := stripConditionKeywords(cfg.RuleExpression)
	if expression == "" {
		res.Fired = anyMatched
		return res
	}

	v, err := expr.Evaluate(sigilizeRuleVars(expression, res.RuleVars), res.RuleVars)
	if err != nil {
		res.ExpressionError = err.Error()
		return res
	}
	res.Fired = expr.Truthy(v)
	return res
}

// exprKeywords are reserved words of the expression language. A rule whose
// derived variable name collides with one cannot be referenced by name.
var exprKeywords = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "IN": true,
	"TRUE": true, "FALSE": true, "NULL": true,
}

// sigilizeRuleVars rewrites bare rule-variable references in a rule
// expression into the $-sigil form the expression language requires. String
// literals and references that already carry the sigil pass through
// untouched; lookup is case-insensitive since ToRuleVarName uppercases.
func sigilizeRuleVars(expression string, vars map[string]any) string {
	var b strings.Builder
	i := 0
	for i < len(expression) {
		c := expression[i]
		switch {
		case c == '"':
			j := i + 1
			for j < len(expression) && expression[j] != '"' {
				if expression[j] == '\\' && j+1 < len(expression) {
					j++
				}
				j++
			}
			if j < len(expression) {
				j++
			}
			b.WriteString(expression[i:j])
			i = j
		case c == '$':
			j := i + 1
			for j < len(expression) &&
				(isIdentByte(expression[j]) ||
					(expression[j] == '.' && j+1 < len(expression) && isIdentStartByte(expression[j+1]))) {
				j++
			}
			b.WriteString(expression[i:j])
			i = j
		case isIdentStartByte(c):
			j := i
			for j < len(expression) && isIdentByte(expression[j]) {
				j++
			}
			word := strings.ToUpper(expression[i:j])
			if _, ok := vars[word]; ok && !exprKeywords[word] {
				b.WriteByte('$')
				b.WriteString(word)
			} else {
				b.WriteString(expression[i:j])
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func isIdentStartByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return isIdentStartByte(c) || (c >= '0' && c <= '9')
}

// eventName derives the payload name from a matched rule: toggles report
// the state they landed on, sensor rules the level they hit, plain changes
// the generic "changed".
func eventName(r models.TriggerRule, ev StateChange) string {
	switch r.EventType {
	case models.TriggerEventToggle:
		return "toggled_" + stateToken(ev.New)
	case models.TriggerEventSensorLevels:
		if lvl, ok := matchedLevel(r, ev); ok && lvl.Name != "" {
			return lvl.Name
		}
		return "level_crossed"
	default:
		return "changed"
	}
}

// stateToken folds a raw entity state into an identifier-safe suffix.
func stateToken(state string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(state)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// EventPayload builds the `event` scope variable handed to a fired script.
// The name describes what the first matched rule observed, e.g. "toggled_on".
func EventPayload(cfg *models.TriggerConfig, ev StateChange, res GroupResult) map[string]any {
	name := ""
	for _, r := range cfg.Rules {
		if matchRule(r, ev) {
			name = eventName(r, ev)
			break
		}
	}
	matches := make([]any, len(res.Matches))
	for i, m := range res.Matches {
		matches[i] = m
	}
	payload := map[string]any{
		"type":             "rule_group",
		"logic":            string(cfg.Logic),
		"expression":       cfg.RuleExpression,
		"entity_id":        ev.EntityID,
		"name":             name,
		"value":            ev.New,
		"matches":          matches,
		"rule_vars":        res.RuleVars,
		"expression_error": res.ExpressionError,
		"old":              ev.Old,
		"current":          ev.New,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	}
	return payload
}
