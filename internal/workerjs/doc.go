/*
Package workerjs ships the Node.js worker bootstrap (C7 Plugin Context
Proxy + C8 Worker Runtime, SPEC_FULL.md §C.3) embedded into this binary via
go:embed, and spawns it as a subprocess wired to a pkg/protocol.Transport
over its stdin/stdout.

Plugins are JavaScript/TypeScript (spec.md §4.2/§4.8); the worker runtime
is necessarily a separate JS process, not Go — everything that decides
policy (what is forbidden, restart budgets, stall thresholds) stays
host-side in Go and reaches the worker only as serialized messages.
*/
package workerjs
