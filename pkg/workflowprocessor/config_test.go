package workflowprocessor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnqueuerConfigDefaults(t *testing.T) {
	var c EnqueuerConfig
	assert.Equal(t, 500*time.Millisecond, c.pollInterval())
	assert.Equal(t, 5*time.Second, c.maxPollInterval())
	assert.Equal(t, 10*time.Second, c.ackTimeout())
}

func TestEnqueuerConfigOverrides(t *testing.T) {
	c := EnqueuerConfig{PollInterval: time.Second, MaxPollInterval: 30 * time.Second, AckTimeout: time.Minute}
	assert.Equal(t, time.Second, c.pollInterval())
	assert.Equal(t, 30*time.Second, c.maxPollInterval())
	assert.Equal(t, time.Minute, c.ackTimeout())
}

func TestDequeuerConfigDefaults(t *testing.T) {
	var c DequeuerConfig
	assert.Equal(t, 200*time.Millisecond, c.pollInterval())
	assert.Equal(t, 10*time.Second, c.ackTimeout())
}

func TestNewEnqueuerAndDequeuerDoNotPanic(t *testing.T) {
	e := NewEnqueuer(EnqueuerConfig{SessionID: "sid1"})
	assert.NotNil(t, e.proposer)
	d := NewDequeuer(DequeuerConfig{SessionID: "sid1"})
	assert.NotNil(t, d.proposer)
}
