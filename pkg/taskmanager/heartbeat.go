package taskmanager

import (
	"context"
	"fmt"

	"github.com/wilkinson/radical.entk/pkg/broker"
	"github.com/wilkinson/radical.entk/pkg/log"
)

// HeartbeatResponder answers liveness probes: it consumes probes from
// `<sid>-<componentID>-hb-request`, echoes the body back on
// `<sid>-<componentID>-hb-response` tagged with the same correlation
// id, and exits when told to. It is generalized from a ticker+stopCh
// health-monitor loop, collapsed from a per-container checker
// supervisor to a single request/response echo since the AppManager
// is the one deciding liveness here, not the TaskManager.
type HeartbeatResponder struct {
	sessionID   string
	componentID string
	conn        *broker.Conn

	stopCh chan struct{}
}

// NewHeartbeatResponder builds a responder for componentID (this
// TaskManager instance's id, e.g. "tm-0").
func NewHeartbeatResponder(sessionID, componentID string, conn *broker.Conn) *HeartbeatResponder {
	return &HeartbeatResponder{
		sessionID:   sessionID,
		componentID: componentID,
		conn:        conn,
		stopCh:      make(chan struct{}),
	}
}

// Stop signals Run to exit after its current delivery.
func (h *HeartbeatResponder) Stop() {
	close(h.stopCh)
}

// Run blocks answering heartbeat probes until Stop is called or ctx is
// canceled. Meant to run on its own goroutine alongside the main loop.
func (h *HeartbeatResponder) Run(ctx context.Context) error {
	reqQueue := broker.HeartbeatRequestQueue(h.sessionID, h.componentID)
	respQueue := broker.HeartbeatResponseQueue(h.sessionID, h.componentID)

	deliveries, err := h.conn.Consume(reqQueue, "hb-"+h.componentID)
	if err != nil {
		return fmt.Errorf("heartbeat: consume %s: %w", reqQueue, err)
	}

	logger := log.WithComponent("heartbeat")
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("heartbeat: delivery channel closed for %s", reqQueue)
			}
			if err := h.conn.PublishAck(ctx, respQueue, d.CorrelationId, d.Body); err != nil {
				logger.Error().Err(err).Str("component", h.componentID).Msg("failed to answer heartbeat probe")
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		case <-h.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
