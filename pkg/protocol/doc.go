/*
Package protocol defines the tagged message envelope exchanged between the
host and a sandboxed worker (C5): a flat, disjoint-tagged union carried as
single JSON lines over the worker subprocess's stdin/stdout.

Every message carries a Tag naming its shape, an optional ID for messages
that expect a reply, and an optional ReplyTo correlating a response back to
its request. Host-to-worker and worker-to-host each have their own fixed
tag vocabulary (spec §4.3); BusEmit and PushInput are one-way and never
carry an ID. The default per-call timeout is 30 seconds.

No credentials or raw keys ever appear in a message — only opaque ids and
plain serializable values, matching the teacher's convention of never
putting secret material on a wire that external tooling might capture.
*/
package protocol
