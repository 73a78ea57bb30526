/*
Package reconciler implements the AppManager's supervision loop: the
piece that keeps the engine's own worker processes alive.

Supervisor probes every registered TaskManager process (and, in
principle, any other heartbeat-capable component) on a fixed interval
and folds each result into a pkg/health.Tracker. Once a component has
missed enough consecutive heartbeats, Supervisor calls the configured
Respawn function and starts tracking the replacement's id under a
fresh grace period.

This mirrors a cluster-wide node/container reconciliation loop, but
narrowed to one concern: alive or dead, respawn or don't.
*/
package reconciler
