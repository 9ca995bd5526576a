package eboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/dev/ttyS1", cfg.Link)
	assert.Equal(t, 115200, cfg.Baud)
	assert.Equal(t, 15, cfg.ReadyAttempts)
	assert.Equal(t, 15, cfg.TriggerAttempts)
	assert.Equal(t, 32, cfg.ReadSize)
	assert.Equal(t, 64, cfg.BufferSize)
	assert.Equal(t, byte('A'), cfg.Trigger)
	assert.Equal(t, byte(0x06), cfg.Ack)
	assert.Equal(t, "Ready.", cfg.Beacon)
	assert.Equal(t, PolicyCompatible, cfg.Policy)
	assert.Zero(t, cfg.ReadTimeout)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"empty link", func(c *Config) { c.Link = "" }},
		{"zero baud", func(c *Config) { c.Baud = 0 }},
		{"zero ready attempts", func(c *Config) { c.ReadyAttempts = 0 }},
		{"negative trigger attempts", func(c *Config) { c.TriggerAttempts = -1 }},
		{"zero read size", func(c *Config) { c.ReadSize = 0 }},
		{"read size fills buffer", func(c *Config) { c.ReadSize = 64 }},
		{"empty beacon", func(c *Config) { c.Beacon = "" }},
		{"beacon longer than read", func(c *Config) { c.ReadSize = 4 }},
		{"negative timeout", func(c *Config) { c.ReadTimeout = -time.Second }},
		{"serial timeout beyond VTIME", func(c *Config) { c.ReadTimeout = 30 * time.Second }},
		{"unknown policy", func(c *Config) { c.Policy = Policy(9) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

			_, err := NewDriver(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfigValidateLargestReadSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadSize = cfg.BufferSize - 1
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateReadTimeoutLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadTimeout = MaxSerialReadTimeout
	assert.NoError(t, cfg.Validate())

	cfg.ReadTimeout = 30 * time.Second
	cfg.Link = "socket://printer.local:3002"
	assert.NoError(t, cfg.Validate())

	cfg.Link = "file:///dev/ttyS1"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestIsSocketLink(t *testing.T) {
	assert.True(t, IsSocketLink("socket://127.0.0.1:3002"))
	assert.True(t, IsSocketLink("tcp://127.0.0.1:3002"))
	assert.False(t, IsSocketLink("/dev/ttyS1"))
	assert.False(t, IsSocketLink("file:///dev/ttyS1"))
	assert.False(t, IsSocketLink("%zz"))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "AwaitingReady", AwaitingReady.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.Equal(t, "StreamEnded", StreamEnded.String())
	assert.Equal(t, "strict", PolicyStrict.String())
	assert.Equal(t, "compatible", PolicyCompatible.String())
}
