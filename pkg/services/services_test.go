package services

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homescript-labs/homescriptd/pkg/models"
)

func TestNormalizeTriggerConfig(t *testing.T) {
	out, err := normalizeTriggerConfig("")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = normalizeTriggerConfig("null")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = normalizeTriggerConfig("{not json")
	assert.Error(t, err)

	out, err = normalizeTriggerConfig(`{"rules":[{"name":"Motion","entityId":"binary_sensor.hall"}]}`)
	require.NoError(t, err)
	var cfg models.TriggerConfig
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, models.TriggerLogicAnd, cfg.Logic)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, models.TriggerEventAnyChange, cfg.Rules[0].EventType)
	assert.Equal(t, "rule_1", cfg.Rules[0].ID)

	// Normalizing the stored form again is a no-op.
	again, err := normalizeTriggerConfig(out)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestNewSecret(t *testing.T) {
	a, err := newSecret()
	require.NoError(t, err)
	b, err := newSecret()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestSplitCIDRs(t *testing.T) {
	assert.Empty(t, splitCIDRs(""))
	assert.Empty(t, splitCIDRs("  "))
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.0/24"}, splitCIDRs("10.0.0.0/8, 192.168.1.0/24,"))
}

func TestDebugAccessAllows(t *testing.T) {
	cfg := ParseDebugAccess(&models.DebugAccess{
		Enabled: true,
		CIDRs:   []string{"192.168.1.0/24", "10.0.0.0/8"},
	})

	assert.True(t, cfg.Allows(net.ParseIP("192.168.1.42")))
	assert.True(t, cfg.Allows(net.ParseIP("10.1.2.3")))
	assert.False(t, cfg.Allows(net.ParseIP("8.8.8.8")))
	assert.False(t, cfg.Allows(nil))

	disabled := ParseDebugAccess(&models.DebugAccess{
		Enabled: false,
		CIDRs:   []string{"192.168.1.0/24"},
	})
	assert.False(t, disabled.Allows(net.ParseIP("192.168.1.42")))

	var nilCfg *DebugAccessConfig
	assert.False(t, nilCfg.Allows(net.ParseIP("192.168.1.42")))
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("endpoint", "must match [a-z0-9-]+")
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "endpoint")
	assert.False(t, IsValidationError(assert.AnError))
}
