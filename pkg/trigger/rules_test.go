package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homescript-labs/homescriptd/pkg/models"
)

func TestMatchRuleAnyChange(t *testing.T) {
	rule := models.TriggerRule{
		Name:      "Door",
		EntityID:  "binary_sensor.door",
		EventType: models.TriggerEventAnyChange,
	}

	assert.True(t, matchRule(rule, StateChange{EntityID: "binary_sensor.door", Old: "off", New: "on"}))
	assert.False(t, matchRule(rule, StateChange{EntityID: "binary_sensor.door", Old: "on", New: "on"}))
	assert.False(t, matchRule(rule, StateChange{EntityID: "binary_sensor.window", Old: "off", New: "on"}))
}

func TestMatchRuleToggle(t *testing.T) {
	tests := []struct {
		name string
		rule models.TriggerRule
		ev   StateChange
		want bool
	}{
		{
			name: "any to any matches any change",
			rule: models.TriggerRule{EntityID: "light.hall", EventType: models.TriggerEventToggle,
				ToggleFrom: models.ToggleAny, ToggleTo: models.ToggleAny},
			ev:   StateChange{EntityID: "light.hall", Old: "off", New: "on"},
			want: true,
		},
		{
			name: "preset from constraint",
			rule: models.TriggerRule{EntityID: "light.hall", EventType: models.TriggerEventToggle,
				ToggleFrom: "off", ToggleTo: "on"},
			ev:   StateChange{EntityID: "light.hall", Old: "off", New: "on"},
			want: true,
		},
		{
			name: "preset from constraint miss",
			rule: models.TriggerRule{EntityID: "light.hall", EventType: models.TriggerEventToggle,
				ToggleFrom: "off", ToggleTo: "on"},
			ev:   StateChange{EntityID: "light.hall", Old: "unavailable", New: "on"},
			want: false,
		},
		{
			name: "custom to constraint",
			rule: models.TriggerRule{EntityID: "alarm.home", EventType: models.TriggerEventToggle,
				ToggleFrom: models.ToggleAny, ToggleTo: models.ToggleCustom, ToggleToCustom: "armed_away"},
			ev:   StateChange{EntityID: "alarm.home", Old: "disarmed", New: "armed_away"},
			want: true,
		},
		{
			name: "custom to constraint miss",
			rule: models.TriggerRule{EntityID: "alarm.home", EventType: models.TriggerEventToggle,
				ToggleFrom: models.ToggleAny, ToggleTo: models.ToggleCustom, ToggleToCustom: "armed_away"},
			ev:   StateChange{EntityID: "alarm.home", Old: "disarmed", New: "armed_home"},
			want: false,
		},
		{
			name: "no change never toggles",
			rule: models.TriggerRule{EntityID: "light.hall", EventType: models.TriggerEventToggle,
				ToggleFrom: models.ToggleAny, ToggleTo: models.ToggleAny},
			ev:   StateChange{EntityID: "light.hall", Old: "on", New: "on"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchRule(tt.rule, tt.ev))
		})
	}
}

func TestMatchRuleSensorLevels(t *testing.T) {
	rule := models.TriggerRule{
		EntityID:  "sensor.temp",
		EventType: models.TriggerEventSensorLevels,
		Levels: []models.TriggerLevel{
			{ID: "l1", Name: "warm", Value: 20},
			{ID: "l2", Name: "hot", Value: 30},
		},
	}

	// Crossing up through 20.
	assert.True(t, matchRule(rule, StateChange{EntityID: "sensor.temp", Old: "18", New: "22"}))
	// Crossing down through 30.
	assert.True(t, matchRule(rule, StateChange{EntityID: "sensor.temp", Old: "35", New: "25"}))
	// Moving above a level without crossing still matches.
	assert.True(t, matchRule(rule, StateChange{EntityID: "sensor.temp", Old: "22", New: "25"}))
	// Below every level.
	assert.False(t, matchRule(rule, StateChange{EntityID: "sensor.temp", Old: "10", New: "15"}))
	// Non-numeric states never match.
	assert.False(t, matchRule(rule, StateChange{EntityID: "sensor.temp", Old: "unavailable", New: "22"}))
	// No movement.
	assert.False(t, matchRule(rule, StateChange{EntityID: "sensor.temp", Old: "25", New: "25"}))
}

func TestMatchRuleSensorLevelsNoLevels(t *testing.T) {
	rule := models.TriggerRule{EntityID: "sensor.temp", EventType: models.TriggerEventSensorLevels}
	assert.False(t, matchRule(rule, StateChange{EntityID: "sensor.temp", Old: "1", New: "99"}))
}

func TestStripConditionKeywords(t *testing.T) {
	assert.Equal(t, "A AND B", stripConditionKeywords("IF A AND B THEN"))
	assert.Equal(t, "A AND B", stripConditionKeywords("IF A AND B END_IF"))
	assert.Equal(t, "A AND B", stripConditionKeywords("A AND B"))
	assert.Equal(t, "", stripConditionKeywords("  "))
}

func TestEvaluateGroupExpression(t *testing.T) {
	cfg := models.NormalizeTriggerConfig(&models.TriggerConfig{
		RuleExpression: "A AND NOT B",
		Rules: []models.TriggerRule{
			{Name: "A", EntityID: "light.a", EventType: models.TriggerEventAnyChange},
			{Name: "B", EntityID: "light.b", EventType: models.TriggerEventAnyChange},
		},
	})

	res := EvaluateGroup(cfg, StateChange{EntityID: "light.a", Old: "off", New: "on"})
	assert.True(t, res.Fired)
	assert.Equal(t, map[string]any{"A": true, "B": false}, res.RuleVars)
	assert.Equal(t, []string{"A"}, res.Matches)
	assert.Empty(t, res.ExpressionError)

	res = EvaluateGroup(cfg, StateChange{EntityID: "light.b", Old: "off", New: "on"})
	assert.False(t, res.Fired)
	assert.Equal(t, map[string]any{"A": false, "B": true}, res.RuleVars)
}

func TestEvaluateGroupEmptyExpressionFiresOnAnyMatch(t *testing.T) {
	cfg := models.NormalizeTriggerConfig(&models.TriggerConfig{
		Rules: []models.TriggerRule{
			{Name: "Motion", EntityID: "binary_sensor.motion", EventType: models.TriggerEventAnyChange},
			{Name: "Door", EntityID: "binary_sensor.door", EventType: models.TriggerEventAnyChange},
		},
	})

	res := EvaluateGroup(cfg, StateChange{EntityID: "binary_sensor.motion", Old: "off", New: "on"})
	assert.True(t, res.Fired)

	res = EvaluateGroup(cfg, StateChange{EntityID: "binary_sensor.other", Old: "off", New: "on"})
	assert.False(t, res.Fired)
}

func TestEvaluateGroupExpressionError(t *testing.T) {
	cfg := models.NormalizeTriggerConfig(&models.TriggerConfig{
		RuleExpression: "A AND (",
		Rules: []models.TriggerRule{
			{Name: "A", EntityID: "light.a", EventType: models.TriggerEventAnyChange},
		},
	})

	res := EvaluateGroup(cfg, StateChange{EntityID: "light.a", Old: "off", New: "on"})
	assert.False(t, res.Fired)
	assert.NotEmpty(t, res.ExpressionError)
}

func TestEvaluateGroupNilConfig(t *testing.T) {
	res := EvaluateGroup(nil, StateChange{EntityID: "light.a", Old: "off", New: "on"})
	assert.False(t, res.Fired)
	assert.Empty(t, res.RuleVars)
}

func TestSigilizeRuleVars(t *testing.T) {
	vars := map[string]any{"A": true, "B": false, "MOTION": true}

	assert.Equal(t, "$A AND NOT $B", sigilizeRuleVars("A AND NOT B", vars))
	// Already-sigiled references stay as written.
	assert.Equal(t, "$A OR $B", sigilizeRuleVars("$A OR $B", vars))
	// Lookup is case-insensitive; the canonical uppercase name is emitted.
	assert.Equal(t, "$MOTION", sigilizeRuleVars("motion", vars))
	// String literals are untouched.
	assert.Equal(t, `$A = "A"`, sigilizeRuleVars(`A = "A"`, vars))
	// Unknown identifiers are left alone for the evaluator to report.
	assert.Equal(t, "$A AND C", sigilizeRuleVars("A AND C", vars))
}

func TestToggleAndSensorGroupFires(t *testing.T) {
	cfg := models.NormalizeTriggerConfig(&models.TriggerConfig{
		RuleExpression: "A AND NOT B",
		Rules: []models.TriggerRule{
			{Name: "A", EntityID: "light.kitchen", EventType: models.TriggerEventToggle,
				ToggleFrom: "off", ToggleTo: "on"},
			{Name: "B", EntityID: "sensor.power", EventType: models.TriggerEventSensorLevels,
				Levels: []models.TriggerLevel{{ID: "l1", Name: "high_draw", Value: 1000}}},
		},
	})

	ev := StateChange{EntityID: "light.kitchen", Old: "off", New: "on"}
	res := EvaluateGroup(cfg, ev)
	require.True(t, res.Fired)
	assert.Empty(t, res.ExpressionError)
	assert.Equal(t, map[string]any{"A": true, "B": false}, res.RuleVars)

	payload := EventPayload(cfg, ev, res)
	assert.Equal(t, "toggled_on", payload["name"])
	assert.Equal(t, "on", payload["value"])
}

func TestEventPayloadSensorLevelName(t *testing.T) {
	cfg := models.NormalizeTriggerConfig(&models.TriggerConfig{
		Rules: []models.TriggerRule{
			{Name: "Power", EntityID: "sensor.power", EventType: models.TriggerEventSensorLevels,
				Levels: []models.TriggerLevel{{ID: "l1", Name: "high_draw", Value: 1000}}},
		},
	})

	ev := StateChange{EntityID: "sensor.power", Old: "800", New: "1200"}
	res := EvaluateGroup(cfg, ev)
	require.True(t, res.Fired)

	payload := EventPayload(cfg, ev, res)
	assert.Equal(t, "high_draw", payload["name"])
}

func TestEventPayload(t *testing.T) {
	cfg := models.NormalizeTriggerConfig(&models.TriggerConfig{
		Logic:          models.TriggerLogicOr,
		RuleExpression: "A",
		Rules: []models.TriggerRule{
			{Name: "A", EntityID: "sensor.temp", EventType: models.TriggerEventAnyChange},
		},
	})
	ev := StateChange{EntityID: "sensor.temp", Old: "20", New: "25"}
	res := EvaluateGroup(cfg, ev)
	require.True(t, res.Fired)

	payload := EventPayload(cfg, ev, res)
	assert.Equal(t, "rule_group", payload["type"])
	assert.Equal(t, "OR", payload["logic"])
	assert.Equal(t, "A", payload["expression"])
	assert.Equal(t, "sensor.temp", payload["entity_id"])
	assert.Equal(t, "changed", payload["name"])
	assert.Equal(t, "25", payload["value"])
	assert.Equal(t, []any{"A"}, payload["matches"])
	assert.Equal(t, "20", payload["old"])
	assert.Equal(t, "25", payload["current"])
	assert.NotEmpty(t, payload["timestamp"])
}
