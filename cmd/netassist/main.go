// netassist core server - routes conversational network-operations commands
// to probe plugins and watches recently-queried targets for change.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/netassist/core/pkg/api"
	"github.com/netassist/core/pkg/autowatch"
	"github.com/netassist/core/pkg/change"
	"github.com/netassist/core/pkg/configstore"
	"github.com/netassist/core/pkg/convstore"
	"github.com/netassist/core/pkg/database"
	"github.com/netassist/core/pkg/devicecatalog"
	"github.com/netassist/core/pkg/dispatch"
	"github.com/netassist/core/pkg/eventlog"
	"github.com/netassist/core/pkg/intent"
	"github.com/netassist/core/pkg/masking"
	"github.com/netassist/core/pkg/models"
	"github.com/netassist/core/pkg/orchestrator"
	"github.com/netassist/core/pkg/pluginregistry"
	"github.com/netassist/core/pkg/probes"
	"github.com/netassist/core/pkg/staticconfig"
	"github.com/netassist/core/pkg/version"
	"github.com/netassist/core/pkg/watch"
)

// autoWatchExclusions keeps demo and test traffic from registering watches.
var autoWatchExclusions = []string{`(?i)\bdemo\b`, `(?i)\btest\b`}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
	}

	httpAddr := getEnv("HTTP_ADDR", ":8080")
	dataDir := getEnv("DATA_DIR", "./data")

	slog.Info("starting netassist", "version", version.Full(), "http_addr", httpAddr, "config_dir", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := staticconfig.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer dbClient.Close()
	slog.Info("database ready")

	events := eventlog.New()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory %s: %v", dataDir, err)
	}
	cfgStore, err := configstore.New(filepath.Join(dataDir, "settings.yaml"), events)
	if err != nil {
		log.Fatalf("Failed to open config store: %v", err)
	}
	seedConfig(cfgStore, cfg.SeedValues())

	catalog := devicecatalog.New(dbClient)
	convStore := convstore.New(dbClient)
	defer convStore.Close()

	registry := pluginregistry.New()
	pctx := &models.PluginContext{
		RuntimePrivileged: true,
		Services: models.ServiceBundle{
			Config:      cfgStore,
			EventLog:    events,
			Persistence: devicecatalog.NewAccessor(catalog),
			Scope:       models.Scope(cfgStore.GetString("scope.active", string(models.ScopeLocal))),
		},
	}
	registerProbes(registry, pctx, cfg)
	defer registry.Shutdown()

	masker := masking.NewService(masking.BuiltinStripRules())
	detector := change.New(masker)

	prober := watch.NewPluginProber(registry, catalog, pctx)
	maxConcurrent := cfgStore.GetInt("watch.max_concurrent", cfg.Watch.MaxConcurrentWatches)
	watchMgr := watch.New(convStore, catalog, detector, events, prober, cfgStore, maxConcurrent, 30*24*time.Hour)
	watchMgr.Start(ctx)
	defer watchMgr.Stop()

	integrator, err := autowatch.New(convStore, convStore, cfgStore, events, autoWatchExclusions)
	if err != nil {
		log.Fatalf("Failed to build auto-watch integrator: %v", err)
	}
	unsubscribe := events.SubscribeAll(integrator.HandleEvent)
	defer unsubscribe()

	router := intent.New(cfgStore, nil, pluginHints(cfg))
	dispatcher := dispatch.New(registry, cfg, events, cfgStore)

	orch := orchestrator.New(router, dispatcher, convStore, catalog, integrator, watchMgr,
		events, cfgStore, nil, nil, pctx.Services, true)

	connManager := api.NewConnectionManager(events)
	defer connManager.Close()
	server := api.NewServer(orch, dbClient, registry, connManager)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(httpAddr) }()
	slog.Info("http server listening", "addr", httpAddr)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
}

// seedConfig installs every bootstrap default the runtime store does not
// already carry from a prior run.
func seedConfig(store *configstore.Store, seed map[string]any) {
	for key, value := range seed {
		if _, ok := store.Get(key); ok {
			continue
		}
		if err := store.Set(key, value); err != nil {
			slog.Warn("failed to seed config key", "key", key, "error", err)
		}
	}
}

// registerProbes installs every enabled in-repo probe with its configured
// priority.
func registerProbes(registry *pluginregistry.Registry, pctx *models.PluginContext, cfg *staticconfig.Config) {
	priority := func(id string, fallback int) int {
		if def, ok := cfg.Plugins[id]; ok {
			return def.Priority
		}
		return fallback
	}
	enabled := func(id string) bool {
		def, ok := cfg.Plugins[id]
		return !ok || def.Enabled
	}

	plugins := []models.Plugin{
		probes.NewPingProbe(priority("probe.ping", 10)),
		probes.NewPortScanProbe(priority("probe.portscan", 10)),
		probes.NewNetScanProbe(priority("probe.netscan", 10), localSubnet()),
		probes.NewCameraProbe(priority("probe.camera", 10)),
		probes.NewBrowseProbe(priority("probe.browse", 5)),
		probes.NewSSHProbe(priority("probe.ssh", 5), nil),
		probes.NewChatProbe(priority("probe.chat", 1)),
	}
	for _, p := range plugins {
		if !enabled(p.ID()) {
			slog.Info("plugin disabled by configuration", "plugin_id", p.ID())
			continue
		}
		if err := registry.Register(pctx, p); err != nil {
			slog.Error("plugin registration failed", "plugin_id", p.ID(), "error", err)
		}
	}
}

// pluginHints extracts the classifier keyword hints declared per plugin.
func pluginHints(cfg *staticconfig.Config) map[string][]string {
	hints := make(map[string][]string, len(cfg.Plugins))
	for id, def := range cfg.Plugins {
		if len(def.KeywordHints) > 0 {
			hints[id] = def.KeywordHints
		}
	}
	return hints
}

// localSubnet derives the host's own /24 for parameterless network scans.
func localSubnet() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		parts := strings.Split(ip4.String(), ".")
		return strings.Join(parts[:3], ".") + ".0/24"
	}
	return ""
}
