package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/warren/pkg/hosterrors"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/sandbox"
	"github.com/cuemby/warren/pkg/types"
)

// LoadFunc loads one plugin in isolation, e.g. sandbox.Manager.LoadInSandbox
// partially applied with the plugin's LoadRequest.
type LoadFunc func(ctx context.Context, manifest types.PluginManifest) (*sandbox.LoadResult, error)

// BatchResult is what LoadAll returns: the order plugins were attempted in
// and the results keyed by plugin name, for whichever prefix succeeded.
type BatchResult struct {
	Order  []string
	Loaded map[string]*sandbox.LoadResult
}

// BatchError reports which plugin in the batch failed and which plugins
// before it already loaded (spec §4.10: "no rollback of already-loaded
// plugins; caller treats the batch as partially applied and must call
// disposeAll to tear down").
type BatchError struct {
	FailedPlugin string
	LoadedBefore []string
	Err          error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("load batch aborted at plugin %q (loaded before: %v): %v", e.FailedPlugin, e.LoadedBefore, e.Err)
}
func (e *BatchError) Unwrap() error { return e.Err }

// Loader computes the service-dependency topological order and drives
// sequential loading through it (C12).
type Loader struct{}

// NewLoader constructs a Loader.
func NewLoader() *Loader { return &Loader{} }

// Order computes the load order for plugins without loading anything, for
// callers that want to inspect or log it first (e.g. `verify-manifest`-style
// dry runs).
func (l *Loader) Order(plugins []types.PluginManifest) ([]string, error) {
	graph, err := buildGraph(plugins)
	if err != nil {
		return nil, err
	}
	return graph.topologicalOrder()
}

// LoadAll computes the topological order and loads each plugin strictly in
// sequence via load. The returned *BatchResult is never nil. If no order
// exists (circular dependency) nothing is loaded and the ordering error is
// returned as is. Any load failure aborts the remainder of the batch; the
// returned error is then a *BatchError naming what already succeeded.
func (l *Loader) LoadAll(ctx context.Context, plugins []types.PluginManifest, load LoadFunc) (*BatchResult, error) {
	order, err := l.Order(plugins)
	if err != nil {
		return &BatchResult{Loaded: map[string]*sandbox.LoadResult{}}, err
	}
	byName := make(map[string]types.PluginManifest, len(plugins))
	for _, p := range plugins {
		byName[p.Name] = p
	}

	result := &BatchResult{Loaded: make(map[string]*sandbox.LoadResult, len(order))}
	for _, name := range order {
		manifest := byName[name]
		loaded, err := load(ctx, manifest)
		if err != nil {
			return result, &BatchError{FailedPlugin: name, LoadedBefore: append([]string(nil), result.Order...), Err: err}
		}
		result.Order = append(result.Order, name)
		result.Loaded[name] = loaded
	}
	return result, nil
}

// dependencyGraph is the service-provider graph built from a batch of
// manifests (spec §4.10).
type dependencyGraph struct {
	names     []string
	configOrd map[string]int
	inDegree  map[string]int
	edges     map[string][]string // provider plugin -> dependent plugins
}

func buildGraph(plugins []types.PluginManifest) (*dependencyGraph, error) {
	g := &dependencyGraph{
		configOrd: make(map[string]int, len(plugins)),
		inDegree:  make(map[string]int, len(plugins)),
		edges:     make(map[string][]string, len(plugins)),
	}

	serviceProvider := make(map[string]string) // service name -> providing plugin
	for _, p := range plugins {
		g.names = append(g.names, p.Name)
		g.configOrd[p.Name] = p.ConfigOrder
		g.inDegree[p.Name] = 0
		for _, svc := range p.Services {
			svc = strings.TrimSpace(svc)
			if svc == "" {
				continue
			}
			if existing, ok := serviceProvider[svc]; ok && existing != p.Name {
				log.WithComponent("registry").Warn().Str("service", svc).
					Str("first", existing).Str("second", p.Name).
					Msg("service claimed by more than one plugin in this batch; registration order will decide the winner")
				continue
			}
			serviceProvider[svc] = p.Name
		}
	}

	for _, p := range plugins {
		for _, dep := range p.ServiceDependencies {
			dep = strings.TrimSpace(dep)
			if dep == "" {
				continue
			}
			provider, ok := serviceProvider[dep]
			if !ok {
				log.WithComponent("registry").Warn().Str("plugin", p.Name).Str("service", dep).
					Msg("unknown service dependency; may be registered dynamically")
				continue
			}
			if provider == p.Name {
				continue // self-dependency via a service it provides itself; not an edge
			}
			g.edges[provider] = append(g.edges[provider], p.Name)
			g.inDegree[p.Name]++
		}
	}
	return g, nil
}

// topologicalOrder implements Kahn's algorithm, selecting among all
// currently-ready plugins the one with the smallest ConfigOrder at each
// step so independent plugins preserve their declared order (spec §4.10,
// §5 "Ordering guarantees").
func (g *dependencyGraph) topologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.inDegree))
	for k, v := range g.inDegree {
		inDegree[k] = v
	}

	var ready []string
	for _, name := range g.names {
		if inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	var order []string
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool {
			return g.configOrd[ready[i]] < g.configOrd[ready[j]]
		})
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dependent := range g.edges[next] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) < len(g.names) {
		remaining := make([]string, 0, len(g.names)-len(order))
		seen := make(map[string]bool, len(order))
		for _, n := range order {
			seen[n] = true
		}
		for _, n := range g.names {
			if !seen[n] {
				remaining = append(remaining, n)
			}
		}
		sort.Strings(remaining)
		return nil, hosterrors.New(hosterrors.KindServiceRegistration, "", "topologicalOrder",
			fmt.Errorf("circular-dependency: %s", strings.Join(remaining, ", ")))
	}
	return order, nil
}
