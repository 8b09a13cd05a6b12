package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TriggerLogic combines rule results when no explicit expression is given.
type TriggerLogic string

const (
	TriggerLogicAnd TriggerLogic = "AND"
	TriggerLogicOr  TriggerLogic = "OR"
)

// TriggerEventType selects the matching strategy of a rule.
type TriggerEventType string

const (
	TriggerEventAnyChange    TriggerEventType = "any_change"
	TriggerEventToggle       TriggerEventType = "toggle"
	TriggerEventSensorLevels TriggerEventType = "sensor_levels"
)

// ToggleAny is the wildcard for toggle from/to constraints; ToggleCustom
// selects the respective *Custom string instead of a preset state.
const (
	ToggleAny    = "any"
	ToggleCustom = "custom"
)

// TriggerLevel is one named threshold of a sensor_levels rule.
type TriggerLevel struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// TriggerRule matches one class of state-change events for one entity.
type TriggerRule struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	EntityID         string           `json:"entityId"`
	EventType        TriggerEventType `json:"eventType"`
	ToggleFrom       string           `json:"toggleFrom,omitempty"`
	ToggleTo         string           `json:"toggleTo,omitempty"`
	ToggleFromCustom string           `json:"toggleFromCustom,omitempty"`
	ToggleToCustom   string           `json:"toggleToCustom,omitempty"`
	PreviewScale     string           `json:"previewScale,omitempty"`
	Levels           []TriggerLevel   `json:"levels,omitempty"`
	RangeMin         float64          `json:"rangeMin,omitempty"`
	RangeMax         float64          `json:"rangeMax,omitempty"`
}

// TriggerConfig is a rule group bound to one script.
type TriggerConfig struct {
	Logic          TriggerLogic  `json:"logic"`
	RuleExpression string        `json:"ruleExpression"`
	Rules          []TriggerRule `json:"rules"`
}

// ToRuleVarName derives the boolean variable name a rule contributes to the
// rule expression scope: uppercased, non-identifier characters replaced with
// underscores, and a RULE_ prefix when the name would start with a digit.
func ToRuleVarName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(name)) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	v := b.String()
	if v == "" {
		return "RULE_"
	}
	if v[0] >= '0' && v[0] <= '9' {
		return "RULE_" + v
	}
	return v
}

// ParseTriggerConfig decodes a stored trigger config. Empty input yields nil
// (no trigger bound).
func ParseTriggerConfig(raw string) (*TriggerConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var cfg TriggerConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("parse trigger config: %w", err)
	}
	return &cfg, nil
}

// NormalizeTriggerConfig fills defaults and canonicalizes a trigger config:
// logic defaults to AND, event types default to any_change, toggle
// constraints default to the wildcard, missing rule IDs get deterministic
// positional IDs, duplicate rule IDs are de-duplicated positionally, and
// levels are sorted ascending by value. Idempotent: normalizing an already
// normalized config is a no-op.
func NormalizeTriggerConfig(cfg *TriggerConfig) *TriggerConfig {
	if cfg == nil {
		return nil
	}
	out := &TriggerConfig{
		Logic:          TriggerLogic(strings.ToUpper(strings.TrimSpace(string(cfg.Logic)))),
		RuleExpression: strings.TrimSpace(cfg.RuleExpression),
		Rules:          make([]TriggerRule, len(cfg.Rules)),
	}
	if out.Logic != TriggerLogicOr {
		out.Logic = TriggerLogicAnd
	}

	seen := make(map[string]bool, len(cfg.Rules))
	for i, r := range cfg.Rules {
		r.Name = strings.TrimSpace(r.Name)
		r.EntityID = strings.TrimSpace(r.EntityID)
		switch r.EventType {
		case TriggerEventToggle, TriggerEventSensorLevels:
		default:
			r.EventType = TriggerEventAnyChange
		}
		if r.ToggleFrom == "" {
			r.ToggleFrom = ToggleAny
		}
		if r.ToggleTo == "" {
			r.ToggleTo = ToggleAny
		}
		if r.ID == "" || seen[r.ID] {
			n := i + 1
			for seen[fmt.Sprintf("rule_%d", n)] {
				n++
			}
			r.ID = fmt.Sprintf("rule_%d", n)
		}
		seen[r.ID] = true

		levels := make([]TriggerLevel, len(r.Levels))
		copy(levels, r.Levels)
		sort.SliceStable(levels, func(a, b int) bool { return levels[a].Value < levels[b].Value })
		r.Levels = levels

		out.Rules[i] = r
	}
	return out
}
