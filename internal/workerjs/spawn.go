package workerjs

import (
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cuemby/warren/pkg/protocol"
	"github.com/cuemby/warren/pkg/workerpool"
)

//go:embed bootstrap/bootstrap.js
var bootstrapScript []byte

// writeBootstrap materializes the embedded bootstrap script into dataDir so
// `node` can require it as a real file; go:embed has no concept of a
// path node can exec directly.
func writeBootstrap(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "bootstrap.js")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create worker bootstrap dir: %w", err)
	}
	if err := os.WriteFile(path, bootstrapScript, 0o644); err != nil {
		return "", fmt.Errorf("write worker bootstrap: %w", err)
	}
	return path, nil
}

// Spawn starts one `node` subprocess running the embedded bootstrap at the
// given memory limit, returning a workerpool.Process ready for use by the
// sandbox manager. dataDir holds the materialized bootstrap script; nodeBin
// defaults to "node" on PATH when empty.
func Spawn(dataDir, nodeBin string, memoryLimitMb int) (*workerpool.Process, error) {
	if nodeBin == "" {
		nodeBin = "node"
	}
	scriptPath, err := writeBootstrap(dataDir)
	if err != nil {
		return nil, err
	}

	args := []string{fmt.Sprintf("--max-old-space-size=%d", memoryLimitMb), scriptPath}
	cmd := exec.Command(nodeBin, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process: %w", err)
	}

	transport := protocol.NewTransport(stdout, stdin)
	return &workerpool.Process{Cmd: cmd, Transport: transport, MemoryLimitMb: memoryLimitMb}, nil
}

// SpawnPoolFunc returns a workerpool.SpawnFunc bound to one dataDir/nodeBin,
// always spawning at the pool's default memory limit.
func SpawnPoolFunc(dataDir, nodeBin string, defaultMemoryLimitMb int) workerpool.SpawnFunc {
	return func() (*workerpool.Process, error) {
		return Spawn(dataDir, nodeBin, defaultMemoryLimitMb)
	}
}
