package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultProducesUsableConfig(t *testing.T) {
	cfg := Default()
	if cfg.WorkerPool.Size != 4 {
		t.Errorf("WorkerPool.Size = %d, want 4", cfg.WorkerPool.Size)
	}
	if !cfg.Sandbox.Enabled {
		t.Error("expected default sandbox policy to be enabled")
	}
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host.yaml")
	yamlBody := []byte(`
pluginPaths:
  - ./plugins
workerPool:
  size: 8
  memoryLimitMb: 512
logging:
  level: debug
  json: true
`)
	if err := os.WriteFile(path, yamlBody, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.PluginPaths) != 1 || cfg.PluginPaths[0] != "./plugins" {
		t.Errorf("PluginPaths = %v", cfg.PluginPaths)
	}
	if cfg.WorkerPool.Size != 8 || cfg.WorkerPool.MemoryLimitMb != 512 {
		t.Errorf("WorkerPool = %+v", cfg.WorkerPool)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	// Fields the file omitted should retain their defaults.
	if cfg.AuditDir != Default().AuditDir {
		t.Errorf("AuditDir = %q, want default %q", cfg.AuditDir, Default().AuditDir)
	}
}

func TestApplyLoggingOverridesOnlyAppliesSetFlags(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "info"
	cfg.ApplyLoggingOverrides("debug", true, true, false)
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Logging.JSON {
		t.Error("JSON should not have been overridden since jsonSet=false")
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error loading a nonexistent file")
	}
}
