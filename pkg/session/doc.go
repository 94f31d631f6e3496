/*
Package session implements an in-memory SessionManager satisfying
pkg/rpc.SessionManager, servicing a worker's SESSION_REQUEST operations
(spec §4.4: "operation ∈ {create, get, destroy, list}").

This is the host-side session store named in spec §4.2's PluginContext
surface ("session manager"); the spec does not further define session
shape, so sessions are opaque, plugin-supplied payloads keyed by a
host-issued id, grounded on the registry package's mutex-guarded map
container.
*/
package session
