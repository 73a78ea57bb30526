/*
Package metrics defines and registers the engine's Prometheus metrics and
exposes them over HTTP for scraping.

Metrics fall into three groups: entity gauges (how many tasks/stages/
pipelines are in each state right now, refreshed by Collector), timing
histograms (how long a sync proposal takes to get acked, how long an
RTS submission takes; TaskStateDuration is registered but nothing
observes it), and operational counters
(heartbeats missed, worker respawns, sync messages by result).

# Usage

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	timer := metrics.NewTimer()
	// ... submit to RTS ...
	timer.ObserveDuration(metrics.TaskSubmitDuration)

	c := metrics.NewCollector(workflow)
	c.Start()
	defer c.Stop()
*/
package metrics
