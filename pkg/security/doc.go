/*
Package security implements the plugin host's secure credential store (C1):
machine-bound AES-256-GCM encrypted blob storage with a dual-layer lock
(in-process mutex keyed by path, plus a cross-process exclusive lock file
carrying {pid, timestamp}) so that concurrent writers — within one process
or across processes on the same machine — never observe a torn file.

The encryption key is never stored; it is re-derived on every open from
(hostname, username, a per-write random salt) via PBKDF2-HMAC-SHA512. A
ciphertext that fails GCM tag verification — because it was written by a
different machine/user, or corrupted — is treated as absent data rather than
a hard error: ReadSecure deletes it and returns nothing.
*/
package security
