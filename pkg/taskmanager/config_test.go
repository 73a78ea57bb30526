package taskmanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	var c Config
	assert.Equal(t, 200*time.Millisecond, c.pollInterval())
	assert.Equal(t, 16, c.batchSize())
	assert.Equal(t, 10*time.Second, c.ackTimeout())
}

func TestConfigOverrides(t *testing.T) {
	c := Config{PollInterval: time.Second, BatchSize: 4, AckTimeout: 30 * time.Second}
	assert.Equal(t, time.Second, c.pollInterval())
	assert.Equal(t, 4, c.batchSize())
	assert.Equal(t, 30*time.Second, c.ackTimeout())
}

func TestNewInitializesTaskMeta(t *testing.T) {
	tm := New(Config{SessionID: "sid1", PipelineIDs: []string{"p1"}})
	assert.NotNil(t, tm.taskMeta)
	assert.Empty(t, tm.taskMeta)
}
