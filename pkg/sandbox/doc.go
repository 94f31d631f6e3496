/*
Package sandbox implements the sandbox manager (C10): the orchestrator that
drives one plugin's full lifecycle — verify, analyze, acquire, init,
monitor, restart, shutdown.

The manager is the direct descendant of the teacher's worker-node
lifecycle (pkg/worker/worker.go, pkg/worker/health_monitor.go):
ticker-driven monitoring loops, a mutex-guarded map keyed by identity (node
id there, plugin name here), and the same start/stop/heartbeat shape —
generalized from managing containerd tasks to managing sandboxed
JavaScript worker processes.

Crash recovery follows the restart policy in spec §3/§4.6: exponential
backoff doubling per consecutive crash up to a cap, with the crash counter
reset once the gap since the last crash exceeds the policy's reset window.
*/
package sandbox
