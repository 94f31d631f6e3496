package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/warren/pkg/analyzer"
	"github.com/cuemby/warren/pkg/audit"
	"github.com/cuemby/warren/pkg/events"
	"github.com/cuemby/warren/pkg/hosterrors"
	"github.com/cuemby/warren/pkg/integrity"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/protocol"
	"github.com/cuemby/warren/pkg/rpc"
	"github.com/cuemby/warren/pkg/types"
	"github.com/cuemby/warren/pkg/workerpool"
)

// LoadRequest bundles everything load-in-sandbox needs for one plugin.
type LoadRequest struct {
	Manifest         types.PluginManifest
	EntrySource      []byte // nil when only a package name is known
	IsTypeScript     bool
	WorkingDirectory string
	AuditDir         string
	PluginContext    map[string]any

	Sessions  rpc.SessionManager
	Input     rpc.InputQueue
	Tools     rpc.ToolRegistry
	Guides    rpc.GuideRegistry
	Providers rpc.ProviderRegistry
}

// ProxyTool is a host-resident stand-in for a tool living inside a worker;
// Execute turns every call into an INVOKE_TOOL round trip (spec §4.6 step 6).
type ProxyTool struct {
	Descriptor types.ToolDescriptor
	Execute    func(ctx context.Context, input map[string]any, invCtx types.ToolInvocationContext) (types.ToolCallResult, error)
}

// LoadResult is what the manager hands back once a plugin is live.
type LoadResult struct {
	Hooks types.HookSummary
	Tools []ProxyTool
}

// liveWorker is everything the manager tracks for one running plugin,
// beyond the shared SandboxedWorkerState.
type liveWorker struct {
	req       LoadRequest
	proc      *workerpool.Process
	dedicated bool
	handler   *rpc.Handler
	auditLog  *audit.Logger
	state     *types.SandboxedWorkerState
	stopMon   chan struct{}
}

// Manager orchestrates load-in-sandbox for every plugin in the host.
type Manager struct {
	mu      sync.Mutex
	workers map[string]*liveWorker

	pool           *workerpool.Pool
	spawnDedicated func(memoryLimitMb int) (*workerpool.Process, error)
	broker         *events.Broker
	onLoaded       func(manifest types.PluginManifest, result *LoadResult)
}

// NewManager wires a sandbox Manager to its worker pool, a factory for
// dedicated (non-default-memory) workers, and the host event bus.
func NewManager(pool *workerpool.Pool, spawnDedicated func(int) (*workerpool.Process, error), broker *events.Broker) *Manager {
	return &Manager{
		workers:        make(map[string]*liveWorker),
		pool:           pool,
		spawnDedicated: spawnDedicated,
		broker:         broker,
	}
}

// SetOnLoaded installs the callback invoked every time a plugin finishes
// initialization successfully — both the first load and every
// crash-triggered restart (spec §4.6/§8 scenario 6: a plugin is still
// loaded and usable between restarts, so its tools/providers/guides must be
// re-registered against the fresh worker each time, not just once).
func (m *Manager) SetOnLoaded(fn func(manifest types.PluginManifest, result *LoadResult)) {
	m.onLoaded = fn
}

func (m *Manager) emit(evType events.EventType, pluginName, msg string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{Type: evType, PluginName: pluginName, Message: msg})
}

// LoadInSandbox runs the full verify→analyze→acquire→init→monitor sequence
// for one plugin (spec §4.6).
func (m *Manager) LoadInSandbox(ctx context.Context, req LoadRequest) (*LoadResult, error) {
	name := req.Manifest.Name
	logger := log.WithPlugin(name)

	// Step 1: integrity.
	if req.Manifest.Integrity != nil {
		if req.EntrySource == nil {
			logger.Warn().Msg("integrity descriptor present but no entry source available (package-name-only); skipping verification")
		} else {
			verdict, err := integrity.Verify(req.Manifest, req.EntrySource)
			if err != nil {
				m.emit(events.EventSandboxSignatureFailed, name, err.Error())
				return nil, err
			}
			if verdict.Verified {
				m.emit(events.EventSandboxSignatureVerified, name, "format="+verdict.Format)
			}
		}
	}

	// Step 2: static analysis.
	policy := analyzer.Policy{}
	if req.Manifest.Sandbox != nil {
		policy.BlockedModules = req.Manifest.Sandbox.BlockedModules
		policy.AllowedModules = req.Manifest.Sandbox.AllowedModules
	}
	if req.EntrySource != nil {
		result, err := analyzer.Analyze(name, req.EntrySource, req.IsTypeScript, policy)
		if err != nil {
			m.emit(events.EventSandboxModuleBlocked, name, err.Error())
			return nil, err
		}
		if !result.Passed() {
			err := analyzer.AggregateError(name, result.Violations)
			m.emit(events.EventSandboxModuleBlocked, name, err.Error())
			return nil, err
		}
	}

	return m.acquireAndInit(ctx, req)
}

func (m *Manager) acquireAndInit(ctx context.Context, req LoadRequest) (*LoadResult, error) {
	name := req.Manifest.Name
	sandboxPolicy := types.DefaultSandboxPolicy()
	if req.Manifest.Sandbox != nil {
		sandboxPolicy = *req.Manifest.Sandbox
	}

	// The worker-side module interceptor is defense-in-depth behind the
	// static analyzer (spec §4.8/§4.9: "the runtime interceptor cannot see
	// code that never executes"), so it must be handed the same effective
	// blocked set the analyzer computed, not the manifest's raw list.
	analyzerPolicy := analyzer.Policy{}
	if req.Manifest.Sandbox != nil {
		analyzerPolicy.BlockedModules = req.Manifest.Sandbox.BlockedModules
		analyzerPolicy.AllowedModules = req.Manifest.Sandbox.AllowedModules
	}
	sandboxPolicy.BlockedModules = analyzer.EffectiveBlocklist(analyzerPolicy)

	// Step 3: worker acquisition.
	var proc *workerpool.Process
	dedicated := false
	if m.pool != nil && sandboxPolicy.MemoryLimitMb == m.pool.DefaultMemoryLimitMb() {
		p, err := m.pool.Acquire(ctx)
		if err != nil {
			return nil, hosterrors.New(hosterrors.KindResource, name, "acquire", err)
		}
		proc = p
	} else {
		p, err := m.spawnDedicated(sandboxPolicy.MemoryLimitMb)
		if err != nil {
			return nil, hosterrors.New(hosterrors.KindResource, name, "acquire", err)
		}
		proc = p
		dedicated = true
	}
	m.emit(events.EventSandboxWorkerSpawned, name, fmt.Sprintf("dedicated=%v", dedicated))

	// Step 4: instrumentation.
	state := types.NewSandboxedWorkerState(name, req.Manifest, sandboxPolicy.RestartPolicy)

	var auditLog *audit.Logger
	if sandboxPolicy.AuditLog.Enabled && req.AuditDir != "" {
		al, err := audit.NewLogger(name, req.AuditDir, sandboxPolicy.AuditLog, m.broker)
		if err != nil {
			return nil, hosterrors.New(hosterrors.KindInitialization, name, "acquireAndInit", err)
		}
		auditLog = al
	}

	handler := rpc.NewHandler(name, proc.Transport, m.broker, auditLog, state, req.Sessions, req.Input, req.Tools, req.Guides, req.Providers)

	lw := &liveWorker{req: req, proc: proc, dedicated: dedicated, handler: handler, auditLog: auditLog, state: state, stopMon: make(chan struct{})}
	m.mu.Lock()
	m.workers[name] = lw
	m.mu.Unlock()

	go m.serveAndWatchCrash(lw)
	go m.monitorHeartbeat(lw)

	// Step 5: initialization.
	mergedConfig := map[string]any{}
	for k, v := range req.Manifest.Config {
		mergedConfig[k] = v
	}
	mergedConfig["sandbox"] = sandboxPolicy

	payload := map[string]any{
		"pluginPath": req.Manifest.EntryPath,
		"config":     mergedConfig,
		"context":    req.PluginContext,
	}
	reply, err := handler.Invoke(protocol.TagInitPlugin, payload, 30*time.Second)
	if err != nil {
		m.teardown(name)
		return nil, hosterrors.New(hosterrors.KindInitialization, name, "INIT_PLUGIN", err)
	}

	// Step 6: hook synthesis.
	hooks, err := decodeHookSummary(reply)
	if err != nil {
		m.teardown(name)
		return nil, hosterrors.New(hosterrors.KindInitialization, name, "decode INIT_COMPLETE", err)
	}
	state.Hooks = hooks
	m.emit(events.EventPluginLoaded, name, "")
	metrics.PluginsLoaded.Inc()

	result := &LoadResult{Hooks: hooks, Tools: m.buildProxyTools(name, handler, hooks, req.WorkingDirectory)}
	if m.onLoaded != nil {
		m.onLoaded(req.Manifest, result)
	}
	return result, nil
}

func decodeHookSummary(payload map[string]any) (types.HookSummary, error) {
	var hooks types.HookSummary
	raw, err := json.Marshal(payload["hooks"])
	if err != nil {
		return hooks, fmt.Errorf("re-marshal hooks payload: %w", err)
	}
	if err := json.Unmarshal(raw, &hooks); err != nil {
		return hooks, fmt.Errorf("unmarshal hook summary: %w", err)
	}
	return hooks, nil
}

// buildProxyTools constructs the host-resident tool proxies named in spec
// §4.6 step 6: permissive parameter schema (validation happens in the
// worker), execute is always an INVOKE_TOOL round trip.
func (m *Manager) buildProxyTools(pluginName string, handler *rpc.Handler, hooks types.HookSummary, workingDir string) []ProxyTool {
	tools := make([]ProxyTool, 0, len(hooks.Tools))
	for _, descriptor := range hooks.Tools {
		descriptor := descriptor
		tools = append(tools, ProxyTool{
			Descriptor: descriptor,
			Execute: func(ctx context.Context, input map[string]any, invCtx types.ToolInvocationContext) (types.ToolCallResult, error) {
				start := time.Now()
				reply, err := handler.Invoke(protocol.TagInvokeTool, map[string]any{
					"name":      descriptor.ID,
					"arguments": input,
					"context":   invCtx,
				}, protocol.DefaultTimeout)
				outcome := "ok"
				if err != nil {
					outcome = "error"
				}
				metrics.ToolInvocationsTotal.WithLabelValues(pluginName, descriptor.ID, outcome).Inc()
				metrics.ToolInvocationDuration.WithLabelValues(pluginName, descriptor.ID).Observe(time.Since(start).Seconds())
				if err != nil {
					return types.ToolCallResult{}, err
				}
				result := types.ToolCallResult{}
				if text, ok := reply["text"].(string); ok {
					result.Text = text
				}
				if isErr, ok := reply["isError"].(bool); ok {
					result.IsError = isErr
				}
				return result, nil
			},
		})
	}
	return tools
}

// Shutdown sends SHUTDOWN to the named plugin's worker, flushes its audit
// log, and releases resources. Spec §3 invariant: the audit buffer is
// flushed before the worker state transitions to terminal shutdown.
func (m *Manager) Shutdown(name string) error {
	m.mu.Lock()
	lw, ok := m.workers[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	// Set before anything else so the crash path (watching the same
	// transport concurrently in serveAndWatchCrash) recognizes this as a
	// deliberate shutdown rather than a crash (spec §4.6: shutdown must
	// suppress the crash path).
	lw.state.Mu.Lock()
	lw.state.IsRestarting = true
	lw.state.Mu.Unlock()

	_, _ = lw.handler.Invoke(protocol.TagShutdown, nil, protocol.DefaultTimeout)
	m.emit(events.EventSandboxWorkerShutdown, name, "")
	m.teardown(name)
	return nil
}

func (m *Manager) teardown(name string) {
	m.mu.Lock()
	lw, ok := m.workers[name]
	if ok {
		delete(m.workers, name)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	close(lw.stopMon)
	if lw.auditLog != nil {
		_ = lw.auditLog.Dispose()
	}

	lw.state.Mu.Lock()
	for _, pending := range lw.state.PendingRPCs {
		pending.Timer.Stop()
		select {
		case pending.Done <- types.RPCOutcome{Err: hosterrors.New(hosterrors.KindProtocol, name, "teardown", fmt.Errorf("worker shutting down"))}:
		default:
		}
	}
	lw.state.PendingRPCs = make(map[string]*types.PendingRPC)
	lw.state.Subscriptions = make(map[string]map[string]struct{})
	lw.state.Mu.Unlock()

	if lw.dedicated {
		if lw.proc.Cmd != nil && lw.proc.Cmd.Process != nil {
			_ = lw.proc.Cmd.Process.Kill()
		}
	} else if m.pool != nil {
		m.pool.Release(lw.proc)
	}
}
