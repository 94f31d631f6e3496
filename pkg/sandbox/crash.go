package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/warren/pkg/events"
	"github.com/cuemby/warren/pkg/hosterrors"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/types"
)

// serveAndWatchCrash runs the worker's RPC listener loop; its return (the
// transport closing, which happens when the worker process exits) is
// treated as a crash (spec §4.6 "Crash handling and restart").
func (m *Manager) serveAndWatchCrash(lw *liveWorker) {
	err := lw.handler.Serve()
	m.handleCrash(lw, err)
}

// monitorHeartbeat polls at the state's CheckInterval and compares elapsed
// time since the last heartbeat against the sandbox's cpuTimeoutMs,
// matching the teacher's containerHealthMonitor ticker loop
// (pkg/worker/health_monitor.go) generalized from per-container health
// checks to per-worker liveness.
func (m *Manager) monitorHeartbeat(lw *liveWorker) {
	lw.state.Mu.Lock()
	lw.state.LastHeartbeat = time.Now()
	checkInterval := lw.state.CheckInterval
	lw.state.Mu.Unlock()
	if checkInterval <= 0 {
		checkInterval = 45 * time.Second
	}

	timeoutMs := 60000
	if lw.req.Manifest.Sandbox != nil && lw.req.Manifest.Sandbox.CPUTimeoutMs > 0 {
		timeoutMs = lw.req.Manifest.Sandbox.CPUTimeoutMs
	}
	timeout := time.Duration(timeoutMs) * time.Millisecond

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lw.state.Mu.Lock()
			last := lw.state.LastHeartbeat
			restarting := lw.state.IsRestarting
			lw.state.Mu.Unlock()
			if restarting {
				return
			}
			if time.Since(last) > timeout {
				name := lw.req.Manifest.Name
				m.emit(events.EventSandboxWorkerStalled, name, fmt.Sprintf("no heartbeat for %s", time.Since(last)))
				log.WithPlugin(name).Warn().Msg("worker stalled, terminating")
				m.terminateStalled(lw)
				return
			}
		case <-lw.stopMon:
			return
		}
	}
}

func (m *Manager) terminateStalled(lw *liveWorker) {
	if lw.proc.Cmd != nil && lw.proc.Cmd.Process != nil {
		_ = lw.proc.Cmd.Process.Kill()
	}
	// serveAndWatchCrash observes the resulting transport close and drives
	// the restart path; nothing further to do here.
}

// handleCrash implements spec §4.6's crash-handling sequence: clear
// heartbeat/subscriptions, reject pending RPCs, remove from the live map,
// then apply the restart policy.
func (m *Manager) handleCrash(lw *liveWorker, cause error) {
	name := lw.req.Manifest.Name

	lw.state.Mu.Lock()
	deliberate := lw.state.IsRestarting
	lw.state.Mu.Unlock()
	if deliberate {
		// Shutdown already flagged this worker before invoking SHUTDOWN;
		// its transport closing is the expected result, not a crash. Leave
		// teardown to Shutdown itself.
		return
	}

	m.mu.Lock()
	current, stillLive := m.workers[name]
	if stillLive && current == lw {
		delete(m.workers, name)
	}
	m.mu.Unlock()
	if !stillLive || current != lw {
		return // already torn down deliberately (Shutdown/teardown)
	}

	close(lw.stopMon)
	if lw.auditLog != nil {
		_ = lw.auditLog.Dispose()
	}

	lw.state.Mu.Lock()
	for _, pending := range lw.state.PendingRPCs {
		pending.Timer.Stop()
		err := hosterrors.New(hosterrors.KindResource, name, "handleCrash", fmt.Errorf("worker crashed: %w", cause))
		select {
		case pending.Done <- types.RPCOutcome{Err: err}:
		default:
		}
	}
	lw.state.PendingRPCs = nil
	lw.state.Subscriptions = nil
	policy := lw.state.RestartPolicy
	crashCount := lw.state.CrashCount
	lastCrash := lw.state.LastCrash
	lw.state.Mu.Unlock()

	m.emit(events.EventSandboxWorkerCrashed, name, fmt.Sprintf("%v", cause))
	metrics.WorkerCrashesTotal.WithLabelValues(name).Inc()

	now := time.Now()
	if !lastCrash.IsZero() && now.Sub(lastCrash) > time.Duration(policy.ResetWindowMs)*time.Millisecond {
		crashCount = 0
	}
	crashCount++

	if crashCount > policy.MaxRestarts {
		m.emit(events.EventSandboxWorkerRestartDone, name, fmt.Sprintf("exhausted after %d crashes", crashCount))
		metrics.WorkerRestartsExhaustedTotal.WithLabelValues(name).Inc()
		return
	}

	backoff := time.Duration(policy.BackoffMs) * time.Millisecond
	if crashCount > 1 {
		multiplier := int64(1) << uint(crashCount-1)
		backoff = time.Duration(policy.BackoffMs*int(multiplier)) * time.Millisecond
	}
	maxBackoff := time.Duration(policy.MaxBackoffMs) * time.Millisecond
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	go m.restartAfter(lw.req, backoff, crashCount, now)
}

func (m *Manager) restartAfter(req LoadRequest, backoff time.Duration, crashCount int, crashedAt time.Time) {
	name := req.Manifest.Name
	time.Sleep(backoff)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := m.LoadInSandbox(ctx, req)
	if err != nil {
		log.WithPlugin(name).Error().Err(err).Msg("restart attempt failed")
		return
	}

	m.mu.Lock()
	lw, ok := m.workers[name]
	m.mu.Unlock()
	if ok {
		lw.state.Mu.Lock()
		lw.state.CrashCount = crashCount
		lw.state.LastCrash = crashedAt
		lw.state.IsRestarting = false
		lw.state.Mu.Unlock()
	}

	m.emit(events.EventSandboxWorkerRestarted, name, fmt.Sprintf("attempt after %s backoff", backoff))
	log.WithPlugin(name).Info().Int("tools", len(result.Tools)).Msg("worker restarted and tools re-registered")
}
