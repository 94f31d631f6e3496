package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren/internal/workerjs"
	"github.com/cuemby/warren/pkg/activitystore"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/events"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/registry"
	"github.com/cuemby/warren/pkg/sandbox"
	"github.com/cuemby/warren/pkg/session"
	"github.com/cuemby/warren/pkg/types"
	"github.com/cuemby/warren/pkg/workerpool"
)

var runCmd = &cobra.Command{
	Use:   "run <manifests-dir>",
	Short: "Boot the host against a directory of plugin manifests",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().String("audit-dir", "./plugin-audit", "Directory for per-plugin audit logs")
	runCmd.Flags().String("data-dir", "./plugin-data", "Directory for activity store and worker bootstrap files")
	runCmd.Flags().String("node-bin", "", "Path to the node binary (defaults to PATH lookup)")
	runCmd.Flags().Int("pool-size", workerpool.DefaultSize, "Shared worker pool size")
	runCmd.Flags().String("metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")
}

// discardInputQueue logs and drops PUSH_INPUT events; a real deployment
// wires this to the cognition loop's own input channel (out of scope here,
// see SPEC_FULL.md — the host boundary ends at registries and the event
// bus).
type discardInputQueue struct{}

func (discardInputQueue) PushInput(inputType string, payload map[string]any) error {
	log.WithComponent("pluginhost").Info().Str("type", inputType).Msg("input pushed (discarded by the operator CLI)")
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	manifestsDir := args[0]
	auditDir, _ := cmd.Flags().GetString("audit-dir")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	nodeBin, _ := cmd.Flags().GetString("node-bin")
	poolSize, _ := cmd.Flags().GetInt("pool-size")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg := config.Default()
	if cfgPath, _ := cmd.Flags().GetString("config"); cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	manifests, err := config.LoadManifests(manifestsDir)
	if err != nil {
		return err
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	store, err := activitystore.Open(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	pool := workerpool.NewPool(poolSize, cfg.WorkerPool.MemoryLimitMb, workerjs.SpawnPoolFunc(dataDir, nodeBin, cfg.WorkerPool.MemoryLimitMb))
	if err := pool.Start(); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer pool.Close()

	spawnDedicated := func(memoryLimitMb int) (*workerpool.Process, error) {
		return workerjs.Spawn(dataDir, nodeBin, memoryLimitMb)
	}
	manager := sandbox.NewManager(pool, spawnDedicated, broker)

	tools := registry.NewToolRegistry()
	providers := registry.NewProviderRegistry()
	guides := registry.NewGuideRegistry()
	commands := registry.NewCommandRegistry()
	listeners := registry.NewListenerRegistry()
	uis := registry.NewUIRegistry()
	services := registry.NewServiceRegistry()
	sessions := session.NewManager()
	input := discardInputQueue{}

	// registerHooks (re-)populates every registry for one plugin from a
	// fresh LoadResult. It runs via Manager.SetOnLoaded, so it fires both
	// for the initial load and for every crash-triggered restart — a
	// restarted plugin's tools are bound to its new worker's handler and
	// would otherwise keep invoking the dead one (spec §4.6/§8 scenario 6:
	// the plugin stays loaded and usable between restarts).
	registerHooks := func(manifest types.PluginManifest, result *sandbox.LoadResult) {
		tools.RegisterAll(manifest.Name, result.Tools)
		for _, p := range result.Hooks.Providers {
			providers.Register(p)
		}
		for _, g := range result.Hooks.Guides {
			g := g
			guides.Register(g, func(id string) (string, error) { return g.Name, nil })
		}
		for _, c := range result.Hooks.Commands {
			commands.Register(c)
		}
		for _, l := range result.Hooks.Listeners {
			listeners.Register(l)
		}
		for _, u := range result.Hooks.UIs {
			uis.Register(u)
		}
		services.Unregister(manifest.Name)
		for _, svc := range manifest.Services {
			if err := services.Register(svc, manifest.Name); err != nil {
				log.WithPlugin(manifest.Name).Warn().Err(err).Msg("service registration failed during load")
			}
		}
		_ = store.RecordLoad(manifest.Name, result.Hooks, time.Now())
	}
	manager.SetOnLoaded(registerHooks)

	loader := registry.NewLoader()
	loadFn := func(ctx context.Context, manifest types.PluginManifest) (*sandbox.LoadResult, error) {
		var entrySource []byte
		isTypeScript := false
		if manifest.EntryPath != "" {
			data, readErr := os.ReadFile(manifest.EntryPath)
			if readErr == nil {
				entrySource = data
			}
			isTypeScript = strings.HasSuffix(manifest.EntryPath, ".ts")
		}

		req := sandbox.LoadRequest{
			Manifest:         manifest,
			EntrySource:      entrySource,
			IsTypeScript:     isTypeScript,
			WorkingDirectory: filepath.Join(dataDir, manifest.Name),
			AuditDir:         auditDir,
			PluginContext:    map[string]any{},
			Sessions:         sessions,
			Input:            input,
			Tools:            tools,
			Guides:           guides,
			Providers:        providers,
		}
		return manager.LoadInSandbox(ctx, req)
	}

	ctx := context.Background()
	batch, err := loader.LoadAll(ctx, manifests, loadFn)
	if err != nil {
		log.WithComponent("pluginhost").Error().Err(err).Msg("plugin load batch aborted")
		for _, name := range batch.Order {
			_ = manager.Shutdown(name)
		}
		return err
	}
	log.WithComponent("pluginhost").Info().Strs("loaded", batch.Order).Msg("all plugins loaded")

	var metricsServer *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithComponent("pluginhost").Error().Err(err).Msg("metrics server exited")
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.WithComponent("pluginhost").Info().Msg("shutting down")
	for _, name := range batch.Order {
		_ = manager.Shutdown(name)
	}
	if metricsServer != nil {
		_ = metricsServer.Close()
	}
	return nil
}
