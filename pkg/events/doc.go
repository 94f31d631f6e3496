/*
Package events provides the host-side event bus used to observe the plugin
host's own lifecycle (spec §6): worker spawn/crash/stall/restart, signature
verification outcomes, import/module blocking, and audit log rotation.

It is a plain non-blocking pub/sub broker — one buffered publish channel,
per-subscriber buffered channels, best-effort delivery (a full subscriber
buffer drops rather than blocks the publisher). This is the host's own
observability surface, not the plugin-facing bus a worker subscribes to
over the RPC bridge (see pkg/rpc) — those are two different buses connected
only at the point where a worker-originated BUS_EMIT is forwarded here.
*/
package events
