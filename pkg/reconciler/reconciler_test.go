package reconciler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wilkinson/radical.entk/pkg/health"
)

func TestSupervisorRespawnsDeadComponent(t *testing.T) {
	var respawned int32
	probe := func(ctx context.Context, id string) health.Result {
		return health.Result{Healthy: false, CheckedAt: time.Now()}
	}
	respawn := func(ctx context.Context, deadID, role string) (string, error) {
		atomic.AddInt32(&respawned, 1)
		return deadID + "-2", nil
	}

	s := New(health.Config{Retries: 1}, time.Hour, probe, respawn)
	s.Watch("tm-1", "taskmanager")

	s.cycle(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&respawned))
	assert.Equal(t, "tm-1-2", s.components[0].id)
}

func TestSupervisorLeavesHealthyComponentAlone(t *testing.T) {
	probe := func(ctx context.Context, id string) health.Result {
		return health.Result{Healthy: true, CheckedAt: time.Now()}
	}
	respawn := func(ctx context.Context, deadID, role string) (string, error) {
		t.Fatal("respawn should not be called for a healthy component")
		return "", nil
	}

	s := New(health.Config{Retries: 1}, time.Hour, probe, respawn)
	s.Watch("tm-1", "taskmanager")
	s.cycle(context.Background())

	assert.Equal(t, "tm-1", s.components[0].id)
}
