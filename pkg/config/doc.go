/*
Package config loads the host's own YAML configuration file (SPEC_FULL.md
§A "Configuration"): plugin search paths, worker pool size, default sandbox
and restart policies, audit logger defaults, secure store lock timing, and
logging/metrics flags.

Grounded on the teacher's cmd/warren/apply.go (gopkg.in/yaml.v3.Unmarshal
over an os.ReadFile'd byte slice) and cmd/warren/main.go's initLogging
(CLI-flag-overrides-file precedence for --log-level/--log-json).
*/
package config
