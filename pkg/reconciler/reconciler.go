package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wilkinson/radical.entk/pkg/health"
	"github.com/wilkinson/radical.entk/pkg/log"
	"github.com/wilkinson/radical.entk/pkg/metrics"
)

// Probe sends one heartbeat round trip to componentID and reports the
// result. The AppManager implements this over the broker's
// hb-request/hb-response queue pair.
type Probe func(ctx context.Context, componentID string) health.Result

// Respawn replaces a dead component, returning the id of its
// replacement (a respawned TaskManager gets a fresh component id so its
// heartbeat grace period restarts clean).
type Respawn func(ctx context.Context, deadComponentID, role string) (newComponentID string, err error)

// component is one supervised unit: a probe target plus what to do when
// it's declared dead.
type component struct {
	id   string
	role string
}

// Supervisor is the AppManager's liveness loop: on every tick it probes
// every registered component, and respawns whichever the tracker has
// declared dead. Generalized from a cluster-wide node/container
// reconciliation loop to heartbeat-based process supervision; the
// ticker+stopCh+mutex shape is the same, but "actual vs desired state"
// reduces to a single boolean, alive or dead.
type Supervisor struct {
	tracker *health.Tracker
	probe   Probe
	respawn Respawn
	logger  zerolog.Logger

	mu         sync.Mutex
	components []component

	interval time.Duration
	stopCh   chan struct{}
}

// New builds a Supervisor. interval is how often every registered
// component is probed; cfg governs the tracker's miss threshold.
func New(cfg health.Config, interval time.Duration, probe Probe, respawn Respawn) *Supervisor {
	return &Supervisor{
		tracker:  health.NewTracker(cfg),
		probe:    probe,
		respawn:  respawn,
		logger:   log.WithComponent("supervisor"),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Watch registers a component for supervision and starts its grace
// period.
func (s *Supervisor) Watch(id, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, component{id: id, role: role})
	s.tracker.Track(id)
}

// Start begins the supervision loop on its own goroutine.
func (s *Supervisor) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop ends the supervision loop after its current cycle.
func (s *Supervisor) Stop() {
	close(s.stopCh)
}

func (s *Supervisor) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Msg("supervisor started")
	for {
		select {
		case <-ticker.C:
			s.cycle(ctx)
		case <-s.stopCh:
			s.logger.Info().Msg("supervisor stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// cycle probes every registered component and replaces whichever the
// tracker has declared dead.
func (s *Supervisor) cycle(ctx context.Context) {
	s.mu.Lock()
	components := append([]component(nil), s.components...)
	s.mu.Unlock()

	for i, c := range components {
		result := s.probe(ctx, c.id)
		s.tracker.Record(c.id, result)

		if !s.tracker.Dead(c.id) {
			continue
		}

		s.logger.Warn().Str("component", c.id).Str("role", c.role).Msg("component declared dead, respawning")
		newID, err := s.respawn(ctx, c.id, c.role)
		if err != nil {
			s.logger.Error().Err(err).Str("component", c.id).Msg("respawn failed")
			continue
		}
		metrics.WorkerRespawnsTotal.WithLabelValues(c.role).Inc()

		s.mu.Lock()
		s.tracker.Forget(c.id)
		s.tracker.Track(newID)
		components[i] = component{id: newID, role: c.role}
		s.components = components
		s.mu.Unlock()
	}
}
