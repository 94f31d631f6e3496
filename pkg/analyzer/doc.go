/*
Package analyzer implements the plugin host's static import analyzer (C4): a
Tree-sitter walk over a plugin's entry source that flags imports of
forbidden runtime modules before the plugin is ever admitted to a worker.

Three import forms are recognized: static `import ... from '<module>'`
declarations, `require('<module>')` calls, and `import('<module>')` dynamic
imports. Module names are normalized by stripping the `node:` built-in
prefix before matching against the effective blocklist — the fixed default
set of sensitive runtime built-ins plus the caller's additional
blockedModules, minus any allowedModules.

A non-literal dynamic import argument cannot be resolved statically and is
recorded as a warning rather than a violation; interception at runtime
(internal/workerjs) is the primary defense for that case. A source file
that fails to parse makes Analyze return an error — a plugin whose entry
cannot be parsed cannot be admitted (grounded on vjache-cie's TreeSitterParser, which
likewise refuses to trust text it cannot parse into an AST).
*/
package analyzer
