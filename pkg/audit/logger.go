package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/warren/pkg/events"
	"github.com/cuemby/warren/pkg/types"
)

// Logger is a buffered, rotating, redacting JSONL audit logger for one
// plugin (spec §4.9).
type Logger struct {
	mu sync.Mutex

	pluginName string
	dir        string
	config     types.AuditLogConfig
	broker     *events.Broker // may be nil; rotation/error events best-effort

	buffer      []types.AuditLogEntry
	file        *os.File
	currentSize int64
	flushTimer  *time.Timer
	disposed    bool
}

// NewLogger creates an audit logger for pluginName, writing rotated JSONL
// files under dir. The first file is opened lazily on the first flush.
func NewLogger(pluginName, dir string, config types.AuditLogConfig, broker *events.Broker) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	if config.BufferSize <= 0 {
		config.BufferSize = types.DefaultAuditLogConfig().BufferSize
	}
	if config.FlushMs <= 0 {
		config.FlushMs = types.DefaultAuditLogConfig().FlushMs
	}
	if config.MaxFileSizeMb <= 0 {
		config.MaxFileSizeMb = types.DefaultAuditLogConfig().MaxFileSizeMb
	}
	if config.MaxFiles <= 0 {
		config.MaxFiles = types.DefaultAuditLogConfig().MaxFiles
	}

	l := &Logger{
		pluginName: pluginName,
		dir:        dir,
		config:     config,
		broker:     broker,
		buffer:     make([]types.AuditLogEntry, 0, config.BufferSize),
	}
	l.armFlushTimer()
	return l, nil
}

func (l *Logger) armFlushTimer() {
	l.flushTimer = time.AfterFunc(time.Duration(l.config.FlushMs)*time.Millisecond, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.disposed {
			return
		}
		_ = l.flushLocked()
		l.armFlushTimer()
	})
}

// Append buffers one entry, redacting its Args first. A flush is triggered
// synchronously once the buffer reaches BufferSize entries (spec §8:
// "writing exactly B entries triggers exactly one flush").
func (l *Logger) Append(entry types.AuditLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.PluginName = l.pluginName
	if entry.Args != nil {
		entry.Args = RedactArgs(entry.Args)
	}
	l.buffer = append(l.buffer, entry)
	if len(l.buffer) >= l.config.BufferSize {
		_ = l.flushLocked()
	}
}

// RPCStart/RPCEnd are the paired audit hooks named in spec §4.4: every C6
// dispatch logs a start, then an end carrying elapsed time and outcome.
func (l *Logger) RPCStart(operation, method string, args map[string]any) {
	l.Append(types.AuditLogEntry{
		Level:     types.AuditLevelInfo,
		Category:  types.AuditCategoryRPC,
		Operation: operation,
		Method:    method,
		Args:      args,
	})
}

func (l *Logger) RPCEnd(operation, method string, duration time.Duration, err error) {
	ms := duration.Milliseconds()
	entry := types.AuditLogEntry{
		Level:      types.AuditLevelInfo,
		Category:   types.AuditCategoryRPC,
		Operation:  operation + ".end",
		Method:     method,
		DurationMs: &ms,
	}
	if err != nil {
		entry.Level = types.AuditLevelError
		entry.Error = err.Error()
	}
	l.Append(entry)
}

// Flush forces the current buffer to disk immediately.
func (l *Logger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *Logger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}
	if l.file == nil {
		if err := l.openNewFileLocked(); err != nil {
			l.emitError(err)
			return err
		}
	}

	w := bufio.NewWriter(l.file)
	var written int64
	for _, entry := range l.buffer {
		line, err := json.Marshal(entry)
		if err != nil {
			l.emitError(err)
			continue
		}
		line = append(line, '\n')
		n, err := w.Write(line)
		if err != nil {
			l.emitError(err)
			continue
		}
		written += int64(n)
	}
	if err := w.Flush(); err != nil {
		l.emitError(err)
		return err
	}
	l.buffer = l.buffer[:0]
	l.currentSize += written

	maxBytes := int64(l.config.MaxFileSizeMb) * 1024 * 1024
	if l.currentSize >= maxBytes {
		return l.rotateLocked()
	}
	return nil
}

func (l *Logger) openNewFileLocked() error {
	name := fmt.Sprintf("%s-%d.jsonl", l.pluginName, time.Now().UnixMilli())
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open audit log file: %w", err)
	}
	l.file = f
	l.currentSize = 0
	return nil
}

func (l *Logger) rotateLocked() error {
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			l.emitError(err)
		}
		l.file = nil
	}
	l.pruneOldFilesLocked()
	l.emit(events.EventSandboxAuditLogRotated, "audit log rotated")
	return nil
}

// pruneOldFilesLocked keeps only the newest MaxFiles rotated files matching
// "<pluginName>-*.jsonl" in dir.
func (l *Logger) pruneOldFilesLocked() {
	pattern := filepath.Join(l.dir, l.pluginName+"-*.jsonl")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) <= l.config.MaxFiles {
		return
	}
	sort.Strings(matches) // filenames embed epoch millis, so lexical == chronological
	toRemove := matches[:len(matches)-l.config.MaxFiles]
	for _, path := range toRemove {
		_ = os.Remove(path)
	}
}

func (l *Logger) emitError(err error) {
	l.emit(events.EventSandboxAuditLogError, err.Error())
}

func (l *Logger) emit(evType events.EventType, msg string) {
	if l.broker == nil {
		return
	}
	l.broker.Publish(&events.Event{
		Type:       evType,
		PluginName: l.pluginName,
		Message:    msg,
	})
}

// Dispose flushes remaining entries, stops the flush timer, and closes the
// current file. The spec requires the audit buffer to be flushed before a
// worker state transitions to terminal shutdown (§3 invariant).
func (l *Logger) Dispose() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return nil
	}
	l.disposed = true
	if l.flushTimer != nil {
		l.flushTimer.Stop()
	}
	err := l.flushLocked()
	if l.file != nil {
		if cerr := l.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		l.file = nil
	}
	return err
}
