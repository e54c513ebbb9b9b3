package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"originmetrics/internal/config"
	"originmetrics/internal/db"
	"originmetrics/internal/http/handlers"
	appmw "originmetrics/internal/http/middleware"
	"originmetrics/internal/logging"
	"originmetrics/internal/session"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		zap.S().Fatalf("failed to connect database: %v", err)
	}
	if err := db.EnsureBootstrapAdmin(sqlDB, cfg); err != nil {
		zap.S().Fatalf("failed to ensure bootstrap admin: %v", err)
	}
	store := db.NewStore(sqlDB, cfg.CacheTTL)

	sched := cron.New(cron.WithLocation(time.UTC))
	if err := db.ScheduleRollup(sched, store); err != nil {
		zap.S().Fatalf("failed to schedule rollup: %v", err)
	}
	if err := db.ScheduleRetention(sched, store, cfg.RetentionDays); err != nil {
		zap.S().Fatalf("failed to schedule retention: %v", err)
	}
	sched.Start()

	codec := session.NewCodec([]byte(cfg.SessionHashKey), []byte(cfg.SessionBlockKey))
	r := handlers.NewRouter(store, codec)

	internalURL := "http://localhost" + cfg.ListenAddr + "/v1/events"
	if cfg.ListenAddr != "" && cfg.ListenAddr[0] != ':' {
		internalURL = "http://" + cfg.ListenAddr + "/v1/events"
	}

	// Global middleware chain: request logger, then internal reporting, then router
	handler := handlers.RequestLogger(appmw.InternalReporting(cfg, internalURL)(r.Handler))

	server := &fasthttp.Server{
		Handler:            handler,
		Name:               "originmetrics",
		MaxRequestBodySize: 1 << 20,
	}

	go func() {
		zap.S().Infof("originmetrics listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
			zap.S().Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("shutting down")
	<-sched.Stop().Done()
	if err := server.Shutdown(); err != nil {
		zap.L().Error("shutdown", zap.Error(err))
	}
}
