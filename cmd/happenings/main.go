package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/happenings/internal/backup"
	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/config"
	"github.com/dukerupert/happenings/internal/database"
	"github.com/dukerupert/happenings/internal/handler"
	"github.com/dukerupert/happenings/internal/logging"
	"github.com/dukerupert/happenings/internal/push"
	"github.com/dukerupert/happenings/internal/rollover"
	"github.com/dukerupert/happenings/internal/server"
	"github.com/dukerupert/happenings/internal/store"
	ws "github.com/dukerupert/happenings/internal/websocket"
)

func main() {
	configPath := flag.String("config", os.Getenv("HAPPENINGS_CONFIG"), "path to YAML config file")
	restoreID := flag.Int64("restore-backup", 0, "restore the backup with this id and exit")
	restoreTo := flag.String("restore-to", "", "destination path for -restore-backup")
	genVAPID := flag.Bool("generate-vapid-keys", false, "print a new VAPID key pair and exit")
	flag.Parse()

	if *genVAPID {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			slog.Error("failed to generate VAPID keys", "error", err)
			os.Exit(1)
		}
		fmt.Printf("HAPPENINGS_PUSH_VAPID_PUBLIC_KEY=%s\nHAPPENINGS_PUSH_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	cal, err := civil.NewCalendar(cfg.Timezone)
	if err != nil {
		logger.Error("failed to load timezone", "error", err)
		os.Exit(1)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	backups := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.Backup.Endpoint,
			Bucket:    cfg.Backup.Bucket,
			Region:    cfg.Backup.Region,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		},
		Passphrase:    cfg.Backup.Passphrase,
		Prefix:        cfg.Backup.Prefix,
		RetentionDays: cfg.Backup.RetentionDays,
	}, db, store.NewBackupStore(db), logger.With("component", "backup"))

	if *restoreID != 0 {
		if *restoreTo == "" {
			logger.Error("-restore-to is required with -restore-backup")
			os.Exit(2)
		}
		if err := backups.Restore(context.Background(), *restoreID, *restoreTo); err != nil {
			logger.Error("restore failed", "id", *restoreID, "error", err)
			os.Exit(1)
		}
		return
	}

	var notifier *push.Notifier
	if cfg.Push.Enabled() {
		svc := push.NewService(push.Config{
			VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
			Subscriber:      cfg.Push.Subscriber,
		})
		notifier = push.NewNotifier(svc, store.NewPushStore(db), store.NewEventStore(db), store.NewOverrideStore(db),
			cal, logger.With("component", "push"))
	}

	srv := server.New(db, server.Options{
		Clock: handler.Clock{Calendar: cal},
		Limits: handler.Limits{
			UpcomingDays:  cfg.UpcomingDays,
			PastDays:      cfg.PastDays,
			MaxPerEvent:   cfg.MaxPerEvent,
			MaxTotal:      cfg.MaxTotal,
			MaxUpcoming:   cfg.MaxUpcoming,
			MaxWindowDays: cfg.MaxWindowDays,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		WriteRateLimit: cfg.WriteRateLimit,
		Backups:        backups,
		Push:           notifier,
		VAPIDPublicKey: cfg.Push.VAPIDPublicKey,
	}, logger)
	backups.OnStatus(func(st backup.Status) {
		srv.Hub().Broadcast(ws.BackupStatus(string(st.State), st.Error))
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched, err := rollover.New(cal, cfg.RolloverCron, srv.Hub(), logger.With("component", "rollover"))
	if err != nil {
		logger.Error("failed to schedule rollover", "error", err)
		os.Exit(1)
	}
	if err := sched.Every("@hourly", "rate limiter cleanup", srv.RateLimiter().Cleanup); err != nil {
		logger.Error("failed to schedule cleanup", "error", err)
		os.Exit(1)
	}
	if cfg.Backup.Enabled() {
		if err := sched.Every(cfg.Backup.Cron, "backup", backups.Scheduled); err != nil {
			logger.Error("failed to schedule backups", "error", err)
			os.Exit(1)
		}
		logger.Info("backups enabled", "cron", cfg.Backup.Cron, "bucket", cfg.Backup.Bucket)
	}
	if notifier != nil {
		if err := sched.Every(cfg.Push.ReminderCron, "push reminders", notifier.RunReminders); err != nil {
			logger.Error("failed to schedule reminders", "error", err)
			os.Exit(1)
		}
	}
	sched.Start(ctx)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("happenings running", "port", cfg.Port, "timezone", cfg.Timezone, "today", cal.Today(time.Now()).String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	sched.Stop()
	if notifier != nil {
		notifier.Wait()
	}
}
