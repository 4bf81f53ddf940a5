package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"calnotes/internal/cache"
	"calnotes/internal/config"
	"calnotes/internal/ics"
	appLog "calnotes/internal/log"
	syncer "calnotes/internal/sync"
	"calnotes/internal/timezone"
	"calnotes/internal/vault"
	"calnotes/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dryRun     bool
	debug      bool
}

func main() {
	appLog.Info("calnotes starting", "version", "0.1.0")

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"vault_dir", conf.VaultDir,
		"notes_folder", conf.NotesFolder,
		"sync", conf.SyncCron,
		"delete_policy", conf.DeletePolicy,
		"feed_count", len(conf.Feeds),
		"once", flags.once,
		"dry_run", flags.dryRun,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	store := vault.NewStore(conf.VaultDir)
	if err := store.EnsureFolder(conf.NotesFolder); err != nil {
		appLog.Error("failed to prepare notes folder", err, "folder", conf.NotesFolder)
		os.Exit(1)
	}

	watcher, err := vault.NewWatcher(conf.VaultDir)
	if err != nil {
		appLog.Error("failed to watch vault", err, "vault_dir", conf.VaultDir)
		os.Exit(1)
	}
	defer watcher.Close()

	orch := syncer.New(
		conf,
		store,
		ics.NewFetcher(),
		cache.New(cache.DefaultTTL),
		timezone.New(),
		watcher,
		vault.NewPendingEdits(),
		nil,
	)
	orch.SetDryRun(flags.dryRun)

	if flags.once {
		// Single-shot cycle with a fast idle gate, then exit.
		orch.SetIdleParams(syncer.IdleParams{
			MinStartDelay: 0,
			IdleThreshold: 0,
			MaxWait:       time.Second,
			Poll:          50 * time.Millisecond,
		})
		if err := orch.Sync(ctx); err != nil {
			appLog.Error("sync failed", err)
			os.Exit(1)
		}
		return
	}

	sched := cron.New()
	if _, err := sched.AddFunc(conf.SyncCron, func() {
		if err := orch.Sync(ctx); err != nil {
			appLog.Error("scheduled sync failed", err)
		}
	}); err != nil {
		appLog.Error("invalid sync schedule", err, "sync", conf.SyncCron)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:    conf.Listen,
		Handler: web.NewServer(conf, orch).Handler(),
	}
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	// First cycle shortly after startup rather than waiting for the
	// schedule.
	go func() {
		if err := orch.Sync(ctx); err != nil {
			appLog.Error("initial sync failed", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	appLog.Info("calnotes exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/calnotes/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run a single sync cycle and exit")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Log intended actions without touching the vault")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
