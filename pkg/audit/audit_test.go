package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuemby/warren/pkg/types"
)

func TestRedactValueReplacesSecretKeys(t *testing.T) {
	args := map[string]any{
		"password": "p",
		"apiKey":   "k",
		"data":     "ok",
	}
	got := RedactArgs(args)
	if got["password"] != "[REDACTED]" {
		t.Errorf("password = %v, want [REDACTED]", got["password"])
	}
	if got["apiKey"] != "[REDACTED]" {
		t.Errorf("apiKey = %v, want [REDACTED]", got["apiKey"])
	}
	if got["data"] != "ok" {
		t.Errorf("data = %v, want ok", got["data"])
	}
}

func TestRedactValueTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("a", 500)
	got := RedactArgs(map[string]any{"data": long})
	s, ok := got["data"].(string)
	if !ok {
		t.Fatalf("data is not a string: %T", got["data"])
	}
	if !strings.HasSuffix(s, "... [truncated]") {
		t.Errorf("expected truncation suffix, got suffix of: %q", s[len(s)-20:])
	}
	if len(s) != maxStringLen+len("... [truncated]") {
		t.Errorf("unexpected truncated length %d", len(s))
	}
}

func TestRedactValueBoundsRecursionDepth(t *testing.T) {
	nested := map[string]any{
		"l1": map[string]any{
			"l2": map[string]any{
				"l3": map[string]any{
					"l4": "deep",
				},
			},
		},
	}
	got := RedactArgs(nested)
	l1 := got["l1"].(map[string]any)
	l2 := l1["l2"].(map[string]any)
	l3 := l2["l3"]
	if l3 != "[MAX_DEPTH]" {
		t.Errorf("expected recursion to bottom out at depth 3, got %v", l3)
	}
}

func TestLoggerFlushesExactlyOnceAtBufferSize(t *testing.T) {
	dir := t.TempDir()
	cfg := types.DefaultAuditLogConfig()
	cfg.BufferSize = 3
	cfg.FlushMs = 60000 // keep the timer from interfering
	l, err := NewLogger("plugin-a", dir, cfg, nil)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer l.Dispose()

	for i := 0; i < 3; i++ {
		l.Append(types.AuditLogEntry{Level: types.AuditLevelInfo, Category: types.AuditCategoryTool, Operation: "invoke"})
	}

	files, err := filepath.Glob(filepath.Join(dir, "plugin-a-*.jsonl"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected exactly one audit file after buffer fill, got %d", len(files))
	}

	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var entry types.AuditLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		count++
	}
	if count != 3 {
		t.Errorf("expected 3 JSONL lines, got %d", count)
	}
}

func TestLoggerDisposeFlushesRemainder(t *testing.T) {
	dir := t.TempDir()
	cfg := types.DefaultAuditLogConfig()
	cfg.BufferSize = 50
	cfg.FlushMs = 60000
	l, err := NewLogger("plugin-b", dir, cfg, nil)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	l.Append(types.AuditLogEntry{Level: types.AuditLevelInfo, Category: types.AuditCategoryLifecycle, Operation: "init"})

	if err := l.Dispose(); err != nil {
		t.Fatalf("Dispose() error = %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "plugin-b-*.jsonl"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected exactly one audit file after dispose, got %d files, err=%v", len(files), err)
	}
}
