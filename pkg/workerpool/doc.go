/*
Package workerpool implements the reusable worker pool (C9): a small set of
pre-spawned worker processes of one resource profile, handed out on
Acquire and returned on Release. A released worker is reset via the
protocol RESET/RESET_COMPLETE handshake before it re-enters the pool; a
worker that fails to reset cleanly is terminated instead of recycled.

Grounded on the teacher's container lifecycle idiom (pkg/worker/worker.go):
a mutex-guarded closed flag plus a bounded channel of ready handles, sized at
construction rather than grown dynamically.
*/
package workerpool
