/*
Package log provides structured logging for the engine using zerolog.

A single global Logger is configured once via Init and accessed either
directly or through a context-scoped child: WithComponent for a
subsystem (appmanager, synchronizer, taskmanager, workflowprocessor),
and WithSessionID/WithPipelineID/WithStageID/WithTaskID for the entity
a log line concerns. Child loggers compose: a task log line inside the
taskmanager component typically chains WithComponent("taskmanager")
then .With().Str("task_uid", ...).

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	tmLog := log.WithComponent("taskmanager")
	tmLog.Info().Str("task_uid", t.ID).Msg("task submitted")

	log.Logger.Error().Err(err).Str("session_id", sid).Msg("heartbeat missed")

JSON output is expected in production (consumed by the same aggregation
stack as any other service log); console output with RFC3339 timestamps
is for local development.
*/
package log
