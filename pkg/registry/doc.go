/*
Package registry implements the Registries (C11) and the Service Registry +
Topological Loader (C12).

Each capability registry (tool, provider, guide, command, listener, UI) is a
mutex-guarded map keyed by id, grounded on the streamspace plugin pack's
GlobalPluginRegistry (RWMutex-protected map, register/get/list, List returns a
defensive copy). Per spec §9's open question, provider/guide/command/listener/
UI registration permits shadowing: a later register for the same id silently
replaces the earlier one, logged at warn level — decided and recorded in
DESIGN.md rather than left ambiguous.

The service registry is stricter (spec §4.10): duplicate names and
empty/whitespace names are rejected outright, since services are the
dependency-graph's vocabulary and a silent shadow there would corrupt the
topological order.

Loader computes the plugin load order with Kahn's algorithm over the
service-dependency graph, breaking ties among simultaneously-ready plugins by
stable configuration order, and loads strictly sequentially through an
injected load function (the sandbox manager's LoadInSandbox in production).
*/
package registry
