package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ghostclick/internal/api"
	"ghostclick/internal/bus"
	"ghostclick/internal/config"
	"ghostclick/internal/core"
	"ghostclick/internal/input"
	"ghostclick/internal/logging"
	"ghostclick/internal/maint"
	ghostclickmcp "ghostclick/internal/mcp"
	"ghostclick/internal/notify"
	"ghostclick/internal/platform"
	"ghostclick/internal/script"
	"ghostclick/internal/stats"
	"ghostclick/internal/store"
	"ghostclick/internal/window"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	driver, err := platform.New()
	if err != nil {
		logger.Error("platform driver", "err", err)
		os.Exit(1)
	}

	baseCtx := context.Background()
	statsStore, err := stats.Open(baseCtx, cfg.StatsPath())
	if err != nil {
		logger.Error("open stats store", "err", err)
		os.Exit(1)
	}
	defer statsStore.Close()

	taskFile := store.NewTaskFile(cfg.TasksPath())
	templates := store.NewTemplateLibrary(cfg.ImagesDir())
	profiles := store.NewProfileStore(cfg.ProfilesDir())
	scripts := script.NewLibrary(cfg.ScriptsDir())

	statusBus := bus.New()
	injector := input.NewInjector(driver, cfg.Engine.ClickGap)
	scheduler := core.NewScheduler(
		window.NewResolver(driver), driver, templates, injector, statusBus, logger,
		core.Options{
			MaxConcurrent: int64(cfg.Engine.MaxConcurrent),
			Retry:         cfg.Engine.Retry,
			Recorder:      statsStore,
		},
	)
	runner := script.NewRunner(scheduler, logger)

	tasks, err := taskFile.Load()
	if err != nil {
		logger.Error("load tasks", "err", err)
		os.Exit(1)
	}
	if err := scheduler.Replace(tasks); err != nil {
		logger.Error("install tasks", "err", err)
		os.Exit(1)
	}
	logger.Info("tasks loaded", "count", len(tasks))

	var watcher *notify.Watcher
	if cfg.Bark.Enabled {
		notifier, err := notify.NewBarkNotifier(cfg.Bark.URL)
		if err != nil {
			logger.Error("bark notifier", "err", err)
			os.Exit(1)
		}
		watcher = notify.NewWatcher(notifier, logger, time.Minute)
		watcher.Start(statusBus)
		defer watcher.Stop()
	}

	maintRunner, err := maint.New(statsStore, maint.Options{
		Schedule:       cfg.Maint.Cron,
		StatsRetention: time.Duration(cfg.Maint.StatsRetentionDays) * 24 * time.Hour,
		TaskFilePath:   cfg.TasksPath(),
		BackupDir:      cfg.BackupsDir(),
	}, logger)
	if err != nil {
		logger.Error("maintenance setup", "err", err)
		os.Exit(1)
	}
	maintRunner.Start()
	defer maintRunner.Stop()

	if cfg.Engine.Autostart {
		scheduler.Start()
		logger.Info("engine started", "tasks", len(tasks))
	}
	defer scheduler.Stop()

	deps := api.Deps{
		Scheduler: scheduler,
		Tasks:     taskFile,
		Templates: templates,
		Profiles:  profiles,
		Scripts:   scripts,
		Runner:    runner,
		Stats:     statsStore,
		Bus:       statusBus,
		Logger:    logger,
	}
	mcpServer := ghostclickmcp.NewMCPServer(scheduler, taskFile, templates, scripts, runner, logger)

	switch cfg.Mode {
	case "http":
		runHTTPMode(cfg, deps, logger)
	case "mcp":
		runMCPMode(mcpServer, logger)
	case "both":
		runBothMode(cfg, deps, mcpServer, logger)
	}
}

// runHTTPMode starts only the HTTP server.
func runHTTPMode(cfg *config.Config, deps api.Deps, logger *slog.Logger) {
	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, deps)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
}

// runMCPMode starts only the MCP server on stdio.
func runMCPMode(mcpServer *ghostclickmcp.MCPServer, logger *slog.Logger) {
	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}

// runBothMode starts both HTTP and MCP servers.
func runBothMode(cfg *config.Config, deps api.Deps, mcpServer *ghostclickmcp.MCPServer, logger *slog.Logger) {
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, deps)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
}
