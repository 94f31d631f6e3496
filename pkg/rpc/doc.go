/*
Package rpc implements the host-side RPC handler (C6): the single listener
loop for one worker's message stream, dispatching by protocol.Tag, enforcing
the session-id and input-size/type policy, and pairing every dispatch with
an audit start/end entry.

Outgoing requests (host calling into the worker, e.g. INVOKE_TOOL) install a
pending entry keyed by request id with its own timer; a reply observed after
the timer fires is silently discarded because the pending entry is already
gone — matching the teacher's ticker/cancel-map idiom used for per-task
health checks (pkg/worker/health_monitor.go), generalized here to
per-request timers instead of per-task tickers.
*/
package rpc
