// Package config resolves the environment-variable knobs that govern
// broker connectivity and heartbeat cadence, plus verbosity and slow-mode
// flags that are parsed but not read by any component, following the
// same os.Getenv-plus-typed-default pattern Warren's embedded
// containerd bootstrap uses for LIMA_HOME. A struct-tag env-mapping
// library would be overkill for the handful of variables this engine
// reads.
package config

import (
	"os"
	"strconv"
	"time"
)

// Engine holds every tunable an operator can override through the
// environment before starting entk.
type Engine struct {
	BrokerHostname string
	BrokerPort     int
	BrokerUsername string
	BrokerPassword string

	HeartbeatInterval time.Duration
	Verbose           bool
	Slow              bool // SLOW mode flag from RADICAL_ENTK_SLOW; parsed, but no poll interval or loop reads it
}

// FromEnv reads RMQ_HOSTNAME, RMQ_PORT, RMQ_USERNAME, RMQ_PASSWORD,
// ENTK_HB_INTERVAL, RADICAL_ENTK_VERBOSE, and RADICAL_ENTK_SLOW,
// falling back to defaults for anything unset or unparsable.
func FromEnv() Engine {
	return Engine{
		BrokerHostname:    getString("RMQ_HOSTNAME", "localhost"),
		BrokerPort:        getInt("RMQ_PORT", 5672),
		BrokerUsername:    getString("RMQ_USERNAME", "guest"),
		BrokerPassword:    getString("RMQ_PASSWORD", "guest"),
		HeartbeatInterval: getDuration("ENTK_HB_INTERVAL", 5*time.Second),
		Verbose:           getBool("RADICAL_ENTK_VERBOSE", false),
		Slow:              getBool("RADICAL_ENTK_SLOW", false),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
