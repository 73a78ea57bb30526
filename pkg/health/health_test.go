package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusUpdateHysteresis(t *testing.T) {
	cfg := Config{Retries: 3}
	s := NewStatus()
	assert.True(t, s.Healthy)

	s.Update(Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	assert.True(t, s.Healthy, "one miss should not flip healthy")
	s.Update(Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	assert.True(t, s.Healthy, "two misses should not flip healthy")
	s.Update(Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	assert.False(t, s.Healthy, "three consecutive misses should flip healthy")

	s.Update(Result{Healthy: true, CheckedAt: time.Now()}, cfg)
	assert.True(t, s.Healthy, "one success clears the failure streak")
}

func TestTrackerDeadRespectsStartPeriod(t *testing.T) {
	tr := NewTracker(Config{Retries: 1, StartPeriod: time.Hour})
	tr.Track("tm-1")
	tr.Record("tm-1", Result{Healthy: false, CheckedAt: time.Now()})
	assert.False(t, tr.Dead("tm-1"), "still within start period")
}

func TestTrackerDeadAfterRetries(t *testing.T) {
	tr := NewTracker(Config{Retries: 2})
	tr.Track("tm-1")
	tr.Record("tm-1", Result{Healthy: false, CheckedAt: time.Now()})
	assert.False(t, tr.Dead("tm-1"))
	tr.Record("tm-1", Result{Healthy: false, CheckedAt: time.Now()})
	assert.True(t, tr.Dead("tm-1"))
}

func TestTrackerForgetRemovesStatus(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	tr.Track("tm-1")
	tr.Forget("tm-1")
	assert.False(t, tr.Dead("tm-1"), "unknown component is never dead")
}
