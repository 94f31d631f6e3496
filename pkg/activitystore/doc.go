/*
Package activitystore is a durable, bbolt-backed record of plugin load/crash/
restart history across host restarts (SPEC_FULL.md §C.1, a diagnostic
side-channel — it does not participate in any load-path invariant from
spec.md §3).

Grounded directly on the teacher's pkg/storage/boltdb.go: one bucket per
record kind, JSON-marshaled values keyed by plugin name, db.Update/db.View
transaction shape carried over unchanged.
*/
package activitystore
