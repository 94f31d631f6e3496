/*
Package audit implements the plugin host's per-plugin audit logger (C2): a
buffered, rotating, redacting JSONL appender.

Entries are buffered in memory and flushed when the buffer reaches its
configured size, when a flush timer fires, or on explicit Flush/Dispose. Each
flush is a single ordered write, so lines never interleave within one
logger. Before a flush, argument maps are walked recursively: keys matching
the secret pattern are replaced with "[REDACTED]", long string values are
truncated, and recursion is bounded to avoid unbounded walks over
adversarial argument shapes. A write that pushes the current file past its
size limit triggers rotation: the file is closed, a sandbox_audit_log_rotated
event fires, and a new file is opened whose name embeds the rotation time.
Only the newest N rotated files are retained.

Logger failures never propagate to the caller — a write error emits a
sandbox_audit_log_error event instead (spec §4.9).
*/
package audit
