package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bindkit/internal/collection"
	"bindkit/internal/events"
	"bindkit/internal/executor"
	"bindkit/internal/hotkey"
	"bindkit/internal/interp"
	"bindkit/internal/loader"
	"bindkit/internal/modcache"
	"bindkit/internal/schedule"
	"bindkit/internal/script"
	"bindkit/internal/service"
	"bindkit/internal/settings"
	"bindkit/internal/shared/logging"
)

// app holds every wired subsystem. Construction order follows dependency
// order; shutdown runs the reverse with schedules first so no new work is
// dispatched while services drain.
type app struct {
	base   string
	store  *settings.Store
	bus    *events.Bus
	logger logging.Logger

	cache     *modcache.Cache
	resolver  *interp.Resolver
	services  *service.Runtime
	monitor   *service.Monitor
	exec      *executor.Executor
	catalog   *collection.Catalog
	runner    *collection.Runner
	schedules *schedule.Runtime
	hotkeys   *hotkey.Registry
	adapter   *hotkey.Adapter
	watcher   *loader.Watcher
}

// newApp wires the full runtime rooted at base. Nothing is started yet;
// daemon-only pieces (monitor, watcher, hotkey claims) start in runDaemon.
func newApp(base string) (*app, error) {
	store, err := settings.Open(base, logging.NewComponentLogger("settings"))
	if err != nil {
		return nil, err
	}

	a := &app{
		base:   base,
		store:  store,
		logger: logging.NewComponentLogger("app"),
	}
	a.bus = events.NewBus(logging.NewComponentLogger("events"))

	a.cache, err = modcache.New(modcache.DefaultMaxSize, modcache.DefaultTTL, logging.NewComponentLogger("modcache"))
	if err != nil {
		return nil, err
	}

	a.resolver = interp.NewResolver(store, logging.NewComponentLogger("interp"))
	a.services = service.NewRuntime(filepath.Join(base, "logs"), a.resolver, a.bus, logging.NewComponentLogger("service"))
	a.monitor = service.NewMonitor(a.services, store, a.bus, 0, logging.NewComponentLogger("monitor"))

	timeoutFn := func() time.Duration {
		return time.Duration(store.GetInt(settings.KeyScriptTimeoutSeconds)) * time.Second
	}
	a.exec = executor.New(a.resolver, a.cache, a.services, timeoutFn, logging.NewComponentLogger("executor"))

	analyzer := &script.Analyzer{
		ForceService: func(identifier string) bool {
			return store.IsSet(settings.ServiceKey(identifier))
		},
	}
	scriptsDir := filepath.Join(base, "scripts")
	ld := loader.New(scriptsDir, store, analyzer, logging.NewComponentLogger("loader"))
	a.catalog = collection.NewCatalog(ld, store, a.bus, logging.NewComponentLogger("collection"))
	a.runner = collection.NewRunner(a.exec, a.bus, collection.DefaultMaxConcurrent, logging.NewComponentLogger("runner"))

	a.schedules = schedule.NewRuntime(store, a.bus, logging.NewComponentLogger("schedule"))
	a.hotkeys = hotkey.NewRegistry(store, a.bus, logging.NewComponentLogger("hotkey"))

	return a, nil
}

// loadCatalog fills the catalog; shared by the daemon and one-shot commands.
func (a *app) loadCatalog(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(a.base, "scripts"), 0o755); err != nil {
		return fmt.Errorf("create scripts dir: %w", err)
	}
	return a.catalog.Reload(ctx)
}

// runScript resolves a script and executes it through the run gate.
func (a *app) runScript(ctx context.Context, name string, args map[string]string) (*executor.Result, error) {
	info, ok := a.catalog.Find(name)
	if !ok {
		return nil, fmt.Errorf("unknown script: %s", name)
	}
	if !a.catalog.IsEnabled(info.Identifier) {
		return nil, fmt.Errorf("script %s is disabled", info.Identifier)
	}
	return a.runner.Run(ctx, &info, args), nil
}

// startSchedules arms every enabled persisted schedule.
func (a *app) startSchedules() {
	for identifier := range a.store.Group(settings.GroupSchedules) {
		cfg, ok := a.store.ScheduleConfigFor(identifier)
		if !ok || !cfg.Enabled {
			continue
		}
		info, found := a.catalog.Find(identifier)
		if !found {
			a.logger.Warn("app: schedule for unknown script %s skipped", identifier)
			continue
		}

		name := info.Identifier
		cb := func() error {
			res := a.runner.Run(context.Background(), &info, nil)
			if !res.Success {
				return fmt.Errorf("%s", res.Message)
			}
			return nil
		}

		var err error
		switch cfg.Type {
		case string(schedule.TypeCron):
			err = a.schedules.StartCron(name, info.FilePath, cfg.CronExpression, cb)
		default:
			err = a.schedules.StartInterval(name, info.FilePath, time.Duration(cfg.IntervalSeconds)*time.Second, cb)
		}
		if err != nil {
			a.logger.Error("app: could not start schedule for %s: %v", name, err)
		}
	}
}

// startHotkeys claims every persisted binding with the OS.
func (a *app) startHotkeys() {
	backend := hotkey.NewSystemBackend(logging.NewComponentLogger("hotkey"))
	a.adapter = hotkey.NewAdapter(backend, a.bus, func(name string) {
		go func() {
			if _, err := a.runScript(context.Background(), name, nil); err != nil {
				a.logger.Warn("app: hotkey run of %s failed: %v", name, err)
			}
		}()
	}, logging.NewComponentLogger("hotkey"))

	a.adapter.UnregisterAll() // sweep orphans from an unclean shutdown
	failures := a.adapter.RegisterAll(a.hotkeys.Bindings())
	if len(failures) > 0 {
		a.logger.Warn("app: %d hotkey bindings could not be claimed", len(failures))
	}
}

// shutdown stops subsystems in reverse dependency order.
func (a *app) shutdown() {
	if n := a.schedules.StopAll(); n > 0 {
		a.logger.Info("app: stopped %d schedules", n)
	}
	a.monitor.Stop()
	if n := a.services.StopAll(service.StopTimeout); n > 0 {
		a.logger.Info("app: stopped %d services", n)
	}
	if a.adapter != nil {
		_ = a.adapter.Close()
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.cache.Clear()
}

// runDaemon is the resident mode behind the bare bindkit invocation.
func runDaemon() error {
	base := baseDir()

	a, err := newApp(base)
	if err != nil {
		return err
	}

	if a.store.GetBool(settings.KeySingleInstance) {
		lock, err := acquireLock(base)
		if err != nil {
			return err
		}
		defer lock.release()
	}

	ctx := context.Background()
	if err := a.loadCatalog(ctx); err != nil {
		return err
	}

	a.monitor.Start()
	a.startSchedules()
	a.startHotkeys()

	watcher, err := loader.NewWatcher(filepath.Join(base, "scripts"), a.bus, logging.NewComponentLogger("loader"))
	if err != nil {
		a.logger.Warn("app: filesystem watcher unavailable: %v", err)
	} else {
		a.watcher = watcher
	}
	a.bus.Subscribe(events.KindScriptsChanged, func(events.Event) {
		if err := a.catalog.Reload(context.Background()); err != nil {
			a.logger.Error("app: rescan failed: %v", err)
		}
	})

	if !flagMinimized {
		fmt.Println(bold("bindkit"), gray("listening, press Ctrl+C to stop"))
		fmt.Println(gray("  config: ") + a.store.Path())
		fmt.Println(gray("  scripts: ") + filepath.Join(base, "scripts"))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println(gray("shutting down"))
	a.shutdown()
	return nil
}
