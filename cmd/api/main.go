package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"membership/internal/admin"
	"membership/internal/api"
	"membership/internal/attendance"
	"membership/internal/config"
	"membership/internal/httpmiddleware"
	"membership/internal/logger"
	"membership/internal/member"
	"membership/internal/presence"
	"membership/internal/qrcode"
	"membership/internal/report"
	"membership/internal/store"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.App, zlog *zap.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := store.RunMigrations(db.Client, zlog); err != nil {
			return err
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	if !redisClient.Healthy(context.Background()) {
		zlog.Warn("redis not reachable, caching and shared rate limits disabled",
			zap.String("addr", cfg.RedisAddr))
	}

	memberRepo := member.NewRepository(db.Client)
	ledgerRepo := attendance.NewRepository(db.Client)
	adminRepo := admin.NewRepository(db.Client)

	qrGen, err := qrcode.NewFileGenerator(cfg.QRCodeDir, cfg.QRCodeBaseURL)
	if err != nil {
		return err
	}

	memberSvc := member.NewService(memberRepo, ledgerRepo, db, qrGen, zlog)
	coordinator := presence.NewCoordinator(memberRepo, ledgerRepo, db, zlog)
	cache := report.NewCache(redisClient.Client, cfg.ReportCacheTTL, zlog)
	engine := report.NewEngine(memberRepo, ledgerRepo, cache, zlog)

	adminSvc := admin.NewService(adminRepo, admin.TokenConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, zlog)
	if err := adminSvc.Bootstrap(context.Background(), cfg.SuperadminEmail, cfg.SuperadminPassword); err != nil {
		zlog.Warn("superadmin bootstrap failed", zap.Error(err))
	}

	router := api.NewRouter(api.Deps{
		Config:     cfg,
		Log:        zlog,
		DB:         db,
		Redis:      redisClient,
		Members:    api.NewMemberHandler(memberSvc, coordinator, zlog),
		Attendance: api.NewAttendanceHandler(ledgerRepo, memberSvc, coordinator, engine, zlog),
		Reports:    api.NewReportHandler(engine, memberSvc, ledgerRepo, coordinator, zlog),
		Auth:       api.NewAuthHandler(adminSvc, zlog),
		RateLimit:  httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, redisClient.Client),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("server listening", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("forced shutdown", zap.Error(err))
	}
	zlog.Info("server exited")
	return nil
}
