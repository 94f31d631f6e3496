/*
Package log provides structured logging for the plugin host using zerolog.

The log package wraps zerolog to provide JSON or console-formatted logging
with component- and plugin-scoped child loggers, configurable severity
levels, and a handful of package-level helpers for the common cases.

This is the host's ambient operational log — narrating worker spawns,
RPC dispatch, registry mutations. It is distinct from the per-plugin audit
trail in pkg/audit, which writes a fixed JSONL schema for compliance/replay
rather than free-form messages.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	log.Info("plugin host starting")

	pluginLog := log.WithPlugin("weather-tool")
	pluginLog.Info().Str("worker_id", workerID).Msg("worker spawned")
*/
package log
