package registry

import (
	"context"
	"sync"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/sandbox"
	"github.com/cuemby/warren/pkg/types"
)

// ToolRegistry holds every proxy tool surfaced by loaded plugins, keyed by
// (pluginName, id). It satisfies rpc.ToolRegistry for worker-originated
// TOOLS_LIST_REQUEST/TOOLS_GET_REQUEST, and additionally exposes Invoke for
// the host's own tool-calling surface.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]map[string]sandbox.ProxyTool // pluginName -> id -> tool
}

// NewToolRegistry constructs an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]map[string]sandbox.ProxyTool)}
}

// RegisterAll replaces the full tool set for one plugin (called once per
// successful load, and again after a restart produces a fresh hook summary).
func (r *ToolRegistry) RegisterAll(pluginName string, tools []sandbox.ProxyTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID := make(map[string]sandbox.ProxyTool, len(tools))
	for _, t := range tools {
		byID[t.Descriptor.ID] = t
	}
	r.tools[pluginName] = byID
}

// Unregister drops every tool belonging to pluginName. No host code path
// calls it; RegisterAll replaces a plugin's tools wholesale on each load.
func (r *ToolRegistry) Unregister(pluginName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, pluginName)
}

// ListTools satisfies rpc.ToolRegistry.
func (r *ToolRegistry) ListTools(pluginName string) []types.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byID := r.tools[pluginName]
	out := make([]types.ToolDescriptor, 0, len(byID))
	for _, t := range byID {
		out = append(out, t.Descriptor)
	}
	return out
}

// GetTool satisfies rpc.ToolRegistry.
func (r *ToolRegistry) GetTool(pluginName, id string) (types.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[pluginName][id]
	return t.Descriptor, ok
}

// Invoke calls the proxy tool belonging to pluginName/id, returning a
// protocol-layer error if no such tool is currently registered (spec §7:
// invocation failure "tool not found").
func (r *ToolRegistry) Invoke(ctx context.Context, pluginName, id string, input map[string]any, invCtx types.ToolInvocationContext) (types.ToolCallResult, error) {
	r.mu.RLock()
	tool, ok := r.tools[pluginName][id]
	r.mu.RUnlock()
	if !ok {
		return types.ToolCallResult{}, errToolNotFound(pluginName, id)
	}
	return tool.Execute(ctx, input, invCtx)
}

// shadowRegistry is the generic last-writer-wins container used for
// providers, guides, commands, listeners, and UIs (spec §9 open question,
// decided: shadowing permitted, logged at warn).
type shadowRegistry[T any] struct {
	mu      sync.RWMutex
	kind    string
	entries map[string]T
}

func newShadowRegistry[T any](kind string) *shadowRegistry[T] {
	return &shadowRegistry[T]{kind: kind, entries: make(map[string]T)}
}

func (r *shadowRegistry[T]) register(id string, value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		log.WithComponent("registry").Warn().Str("kind", r.kind).Str("id", id).
			Msg("entry already registered, shadowing previous registration")
	}
	r.entries[id] = value
}

func (r *shadowRegistry[T]) unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

func (r *shadowRegistry[T]) get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[id]
	return v, ok
}

func (r *shadowRegistry[T]) list() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.entries))
	for _, v := range r.entries {
		out = append(out, v)
	}
	return out
}

// ProviderRegistry holds host-visible LLM provider descriptors.
type ProviderRegistry struct{ *shadowRegistry[types.ProviderDescriptor] }

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{newShadowRegistry[types.ProviderDescriptor]("provider")}
}
func (r *ProviderRegistry) Register(d types.ProviderDescriptor) { r.register(d.ID, d) }
func (r *ProviderRegistry) Get(id string) (types.ProviderDescriptor, bool) { return r.get(id) }

// ListProviders satisfies rpc.ProviderRegistry.
func (r *ProviderRegistry) ListProviders() []types.ProviderDescriptor { return r.list() }

// GuideRegistry holds system-prompt-contributing guides. GetSystemPrompt is
// supplied by the caller of Register since the prompt body itself stays
// host-resident, resolved lazily (spec §4.4: "may be async").
type GuideRegistry struct {
	*shadowRegistry[guideEntry]
}

type guideEntry struct {
	descriptor types.GuideDescriptor
	resolve    func(id string) (string, error)
}

func NewGuideRegistry() *GuideRegistry {
	return &GuideRegistry{newShadowRegistry[guideEntry]("guide")}
}

func (r *GuideRegistry) Register(d types.GuideDescriptor, resolve func(id string) (string, error)) {
	r.register(d.ID, guideEntry{descriptor: d, resolve: resolve})
}

// ListGuides satisfies rpc.GuideRegistry.
func (r *GuideRegistry) ListGuides() []types.GuideDescriptor {
	entries := r.list()
	out := make([]types.GuideDescriptor, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.descriptor)
	}
	return out
}

// GetSystemPrompt satisfies rpc.GuideRegistry.
func (r *GuideRegistry) GetSystemPrompt(id string) (string, error) {
	e, ok := r.get(id)
	if !ok {
		return "", errGuideNotFound(id)
	}
	return e.resolve(id)
}

// CommandRegistry holds plugin-provided slash commands.
type CommandRegistry struct{ *shadowRegistry[types.CommandDescriptor] }

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{newShadowRegistry[types.CommandDescriptor]("command")}
}
func (r *CommandRegistry) Register(d types.CommandDescriptor) { r.register(d.ID, d) }
func (r *CommandRegistry) Get(id string) (types.CommandDescriptor, bool) { return r.get(id) }
func (r *CommandRegistry) List() []types.CommandDescriptor { return r.list() }

// ListenerRegistry and UIRegistry hold opaque ids only; the spec treats both
// as metadata-only surfaces reported in HookSummary (spec §4.10).
type ListenerRegistry struct{ *shadowRegistry[string] }

func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{newShadowRegistry[string]("listener")}
}
func (r *ListenerRegistry) Register(id string) { r.register(id, id) }
func (r *ListenerRegistry) List() []string     { return r.list() }

type UIRegistry struct{ *shadowRegistry[string] }

func NewUIRegistry() *UIRegistry { return &UIRegistry{newShadowRegistry[string]("ui")} }
func (r *UIRegistry) Register(id string) { r.register(id, id) }
func (r *UIRegistry) List() []string     { return r.list() }
