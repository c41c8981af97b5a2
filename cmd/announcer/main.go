package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/user/wa-announcer/internal/ai"
	"github.com/user/wa-announcer/internal/config"
	"github.com/user/wa-announcer/internal/dispatch"
	"github.com/user/wa-announcer/internal/httpapi"
	. "github.com/user/wa-announcer/internal/logging"
	"github.com/user/wa-announcer/internal/store"
	"github.com/user/wa-announcer/internal/whatsapp"
)

const version = "0.1.0"

func main() {
	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("announcer %s\n", version)
		return
	}

	// Optional .env next to the binary; real config comes from announcer.json
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	Init(&Config{
		Level:      ParseLevel(cfg.Log.Level),
		ShowCaller: cfg.Log.ShowCaller,
	})

	switch command {
	case "link":
		if err := whatsapp.LinkDevice(cfg.WhatsApp.SessionDBPath); err != nil {
			L_fatal("link failed: %v", err)
		}
	case "unlink":
		if err := whatsapp.UnlinkDevice(cfg.WhatsApp.SessionDBPath); err != nil {
			L_fatal("unlink failed: %v", err)
		}
	case "status":
		if err := whatsapp.DeviceStatus(cfg.WhatsApp.SessionDBPath); err != nil {
			L_fatal("status failed: %v", err)
		}
	case "run":
		if err := run(cfg); err != nil {
			L_fatal("announcer failed: %v", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		fmt.Fprintln(os.Stderr, "usage: announcer [run|link|unlink|status|version]")
		os.Exit(2)
	}
}

func run(cfg *config.Config) error {
	L_info("announcer %s starting", version)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	formatter := ai.NewService(cfg.AI)

	session, err := whatsapp.NewSession(cfg.WhatsApp.SessionDBPath)
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(session, st, dispatch.Options{
		CountryCode: cfg.WhatsApp.CountryCode,
		Delay:       time.Duration(cfg.Broadcast.DelayMs) * time.Millisecond,
	})
	resolver := dispatch.NewResolver(st, cfg.WhatsApp.CountryCode)
	syncer := dispatch.NewSyncer(session, st)

	whatsapp.NewBot(session, st, formatter, dispatcher, resolver)

	// First sync runs when the session reports ready; the cron keeps the
	// directory fresh afterwards.
	session.OnReady(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := syncer.Sync(ctx); err != nil {
			L_warn("initial directory sync failed", "error", err)
		}
	})

	if err := session.Start(); err != nil {
		return err
	}
	defer session.Stop()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.WhatsApp.SyncSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := syncer.Sync(ctx); err != nil {
			L_warn("scheduled directory sync failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", cfg.WhatsApp.SyncSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	var api *httpapi.Server
	if cfg.API.Enabled {
		api = httpapi.NewServer(cfg.API, st, formatter, dispatcher, resolver, session)
		api.Start()
	}

	L_info("announcer ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	L_info("shutting down", "signal", sig)

	if api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		api.Stop(ctx)
	}

	return nil
}
