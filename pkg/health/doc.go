/*
Package health tracks heartbeat liveness for the components the
AppManager supervises: each TaskManager instance. The WorkflowProcessor
runs inside the AppManager process and is not heartbeat-probed.

Tracker records one Status per component id and applies hysteresis the
same way a container health checker would: a component is declared
dead only after Config.Retries consecutive missed heartbeats, and
never before Config.StartPeriod has elapsed since it was spawned, so a
slow-starting process is not respawned before it has a chance to open
its heartbeat request queue.

AppManager's supervision loop calls Record after every heartbeat round
trip (or with Healthy: false on a timeout), then calls Dead to decide
whether to respawn.
*/
package health
