package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/security"
	"github.com/cuemby/warren/pkg/types"
)

// Config is the plugin host's own on-disk configuration.
type Config struct {
	PluginPaths []string            `yaml:"pluginPaths"`
	AuditDir    string              `yaml:"auditDir"`
	DataDir     string              `yaml:"dataDir"`
	WorkerPool  WorkerPoolConfig    `yaml:"workerPool"`
	Sandbox     types.SandboxPolicy `yaml:"sandbox"`
	SecureStore security.LockOptions `yaml:"secureStore"`
	Logging     LoggingConfig        `yaml:"logging"`
	MetricsAddr string               `yaml:"metricsAddr"`
}

// WorkerPoolConfig configures the shared worker pool (C9).
type WorkerPoolConfig struct {
	Size          int `yaml:"size"`
	MemoryLimitMb int `yaml:"memoryLimitMb"`
}

// LoggingConfig mirrors the teacher's --log-level/--log-json flags so a
// config file can set defaults that CLI flags then override.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		PluginPaths: nil,
		AuditDir:    "./plugin-audit",
		DataDir:     "./plugin-data",
		WorkerPool: WorkerPoolConfig{
			Size:          4,
			MemoryLimitMb: types.DefaultSandboxPolicy().MemoryLimitMb,
		},
		Sandbox:     types.DefaultSandboxPolicy(),
		SecureStore: security.DefaultLockOptions(),
		Logging:     LoggingConfig{Level: "info", JSON: false},
	}
}

// Load reads and parses a YAML config file, starting from Default() so any
// field the file omits keeps its default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyLoggingOverrides lets CLI flags win over file-declared logging
// settings, the same precedence cmd/warren uses for --log-level/--log-json.
func (c *Config) ApplyLoggingOverrides(level string, jsonOutput bool, levelSet, jsonSet bool) {
	if levelSet {
		c.Logging.Level = level
	}
	if jsonSet {
		c.Logging.JSON = jsonOutput
	}
}

// InitLogging wires the ambient logger from this config (spec's AMBIENT
// STACK section: "A package-level zerolog.Logger... configured once at
// process start").
func (c Config) InitLogging() {
	log.Init(log.Config{
		Level:      log.Level(c.Logging.Level),
		JSONOutput: c.Logging.JSON,
	})
}
