package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("RMQ_HOSTNAME", "")
	t.Setenv("RMQ_PORT", "")
	t.Setenv("ENTK_HB_INTERVAL", "")
	t.Setenv("RADICAL_ENTK_VERBOSE", "")

	cfg := FromEnv()
	assert.Equal(t, "localhost", cfg.BrokerHostname)
	assert.Equal(t, 5672, cfg.BrokerPort)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.False(t, cfg.Verbose)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("RMQ_HOSTNAME", "broker.internal")
	t.Setenv("RMQ_PORT", "5673")
	t.Setenv("ENTK_HB_INTERVAL", "2s")
	t.Setenv("RADICAL_ENTK_VERBOSE", "true")

	cfg := FromEnv()
	assert.Equal(t, "broker.internal", cfg.BrokerHostname)
	assert.Equal(t, 5673, cfg.BrokerPort)
	assert.Equal(t, 2*time.Second, cfg.HeartbeatInterval)
	assert.True(t, cfg.Verbose)
}

func TestFromEnvIgnoresUnparsable(t *testing.T) {
	t.Setenv("RMQ_PORT", "not-a-number")
	cfg := FromEnv()
	assert.Equal(t, 5672, cfg.BrokerPort)
}
