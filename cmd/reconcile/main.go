// Command reconcile re-derives every member's presence flag from the attendance
// ledger and repairs any divergence. Run it from cron or by hand after an
// incident; the same repair is exposed over the API for superadmins.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"membership/internal/attendance"
	"membership/internal/config"
	"membership/internal/logger"
	"membership/internal/member"
	"membership/internal/presence"
	"membership/internal/store"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	memberRepo := member.NewRepository(db.Client)
	ledgerRepo := attendance.NewRepository(db.Client)
	coordinator := presence.NewCoordinator(memberRepo, ledgerRepo, db, zlog)

	res, err := coordinator.Reconcile(ctx)
	if err != nil {
		zlog.Fatal("reconciliation failed", zap.Error(err))
	}
	zlog.Info("reconciliation completed",
		zap.Int("checked", res.Checked),
		zap.Int("repaired", res.Repaired))
}
