package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mozi-run/mozi/internal/authbroker"
	"github.com/mozi-run/mozi/internal/channels"
	"github.com/mozi-run/mozi/internal/channels/discord"
	"github.com/mozi-run/mozi/internal/channels/localdesktop"
	"github.com/mozi-run/mozi/internal/channels/telegram"
	"github.com/mozi-run/mozi/internal/config"
	"github.com/mozi-run/mozi/internal/configstore"
	"github.com/mozi-run/mozi/internal/errs"
	"github.com/mozi-run/mozi/internal/handler"
	"github.com/mozi-run/mozi/internal/kernel"
	"github.com/mozi-run/mozi/internal/promptdriver"
	"github.com/mozi-run/mozi/internal/router"
	"github.com/mozi-run/mozi/internal/runtimeconfig"
	"github.com/mozi-run/mozi/internal/scheduler"
	"github.com/mozi-run/mozi/internal/sessions"
	"github.com/mozi-run/mozi/internal/transport"
)

// runServe wires every collaborator and blocks until ctx is cancelled. It is
// the composition root the teacher's cmd/gateway.go plays for goclaw: load
// config, build the channel adapters, the session/auth stores, the dispatch
// kernel, the scheduler, and the message handler, then connect everything
// and wait for shutdown.
func runServe(ctx context.Context, cfgPath string, logger *slog.Logger) error {
	dataDir := filepath.Join(filepath.Dir(cfgPath), "data")

	store, err := configstore.Open(configstore.Options{Path: cfgPath})
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}

	loadTyped := func() (*config.Config, error) { return config.Load(store) }
	cfg, err := loadTyped()
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	bridge := runtimeconfig.New(loadTyped, logger)
	defaultAgentID := cfg.DefaultAgentIDOf()

	sessStore, err := sessions.OpenStore(filepath.Join(dataDir, "sessions.db"))
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessStore.Close()
	sessMgr := sessions.NewManager(sessStore, nil)

	auth, err := authbroker.Open(filepath.Join(dataDir, "auth.db"))
	if err != nil {
		return fmt.Errorf("open auth broker: %w", err)
	}
	defer auth.Close()

	schedStore, err := scheduler.OpenStore(filepath.Join(dataDir, "scheduler.db"))
	if err != nil {
		return fmt.Errorf("open scheduler store: %w", err)
	}
	defer schedStore.Close()

	registry := channels.NewRegistry(logger)
	registerAdapters(registry, cfg, logger)

	// PromptDriver is an explicit external collaborator (spec.md §1
	// Non-goals: "the LLM client library itself"); this repo never ships a
	// concrete implementation. A production deployment links in a package
	// that implements internal/promptdriver.Driver and passes it here
	// instead of unconfiguredDriver{}.
	k := kernel.New(unconfiguredDriver{}, logger)

	resolver := router.New(defaultAgentID)

	// h is assigned below, before ConnectAll/sched.Run ever invoke dispatch,
	// so this forwarding closure breaks the scheduler/handler construction
	// cycle (the scheduler re-enters the handler on a heartbeat/reminder
	// tick; the handler delegates /reminders and /heartbeat to the
	// scheduler) without any synchronization.
	var h *handler.Handler
	dispatch := func(ctx context.Context, msg transport.InboundMessage) {
		if h != nil {
			h.Handle(ctx, msg)
		}
	}

	sched := scheduler.New(schedStore, bridge, bridge, dispatch, registry, logger)

	h = handler.New(handler.Handler{
		Registry:       registry,
		Router:         resolver,
		Config:         store,
		Sessions:       sessMgr,
		Kernel:         k,
		Auth:           auth,
		Models:         runtimeconfig.NewModelCatalog(bridge),
		Reminders:      sched,
		Heartbeat:      sched,
		DefaultAgentID: defaultAgentID,
		Logger:         logger,
		Restart:        func() error { return nil },
	})

	registry.OnAllMessages(h.Handle)
	registry.ConnectAll(ctx)
	defer registry.DisconnectAll(context.Background())

	go sched.Run(ctx)

	if err := store.Watch(ctx, logger); err != nil {
		logger.Warn("runtime: config hot-reload watch unavailable", "error", err)
	}

	logger.Info("mozi runtime started", "version", Version, "config", cfgPath, "channels", registry.Names())

	<-ctx.Done()
	logger.Info("mozi runtime shutting down")
	return nil
}

// isConfigConflict reports whether err is (or wraps) a configstore CAS
// conflict, the one failure class the CLI surfaces as exit code 2 per
// spec.md §4.1/§8.
func isConfigConflict(err error) bool {
	return errs.Is(err, errs.CodeConfigConflict)
}

func registerAdapters(registry *channels.Registry, cfg *config.Config, logger *slog.Logger) {
	if cfg.Channels.Telegram.Enabled {
		ch, err := telegram.New(telegram.Config{
			Token:          cfg.Channels.Telegram.Token,
			Proxy:          cfg.Channels.Telegram.Proxy,
			AllowFrom:      cfg.Channels.Telegram.AllowFrom,
			DMPolicy:       channels.DMPolicy(cfg.Channels.Telegram.DMPolicy),
			GroupPolicy:    channels.GroupPolicy(cfg.Channels.Telegram.GroupPolicy),
			RequireMention: cfg.Channels.Telegram.RequireMention == nil || *cfg.Channels.Telegram.RequireMention,
			MediaMaxBytes:  cfg.Channels.Telegram.MediaMaxBytes,
		})
		if err != nil {
			logger.Error("telegram adapter construction failed", "error", err)
		} else {
			registry.Register(ch)
		}
	}

	if cfg.Channels.Discord.Enabled {
		ch, err := discord.New(discord.Config{
			Token:          cfg.Channels.Discord.Token,
			AllowFrom:      cfg.Channels.Discord.AllowFrom,
			DMPolicy:       channels.DMPolicy(cfg.Channels.Discord.DMPolicy),
			GroupPolicy:    channels.GroupPolicy(cfg.Channels.Discord.GroupPolicy),
			RequireMention: cfg.Channels.Discord.RequireMention == nil || *cfg.Channels.Discord.RequireMention,
		})
		if err != nil {
			logger.Error("discord adapter construction failed", "error", err)
		} else {
			registry.Register(ch)
		}
	}

	if cfg.Channels.LocalDesktop.Enabled {
		addr := "127.0.0.1:3987"
		if cfg.Channels.LocalDesktop.Port != 0 {
			addr = fmt.Sprintf("127.0.0.1:%d", cfg.Channels.LocalDesktop.Port)
		}
		ch, err := localdesktop.New(localdesktop.Config{
			ListenAddr:     addr,
			PeerID:         cfg.Channels.LocalDesktop.PeerID,
			AuthToken:      cfg.Channels.LocalDesktop.AuthToken,
			AllowedOrigins: cfg.Channels.LocalDesktop.AllowedOrigins,
		})
		if err != nil {
			logger.Error("localdesktop adapter construction failed", "error", err)
		} else {
			registry.Register(ch)
		}
	}
}

// unconfiguredDriver satisfies promptdriver.Driver without invoking any
// language model. It exists only so the composition root type-checks;
// every real deployment supplies its own Driver.
type unconfiguredDriver struct{}

func (unconfiguredDriver) Run(ctx context.Context, req promptdriver.Request) (promptdriver.Stream, error) {
	return nil, errs.New(errs.CodeInternal, "no promptdriver.Driver configured for this mozi build")
}
