package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/console/handler"
	"github.com/xela07ax/agentops-console/internal/console/server"
	"github.com/xela07ax/agentops-console/internal/console/service"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
	"github.com/xela07ax/agentops-console/internal/metrics"
	"github.com/xela07ax/agentops-console/internal/ratelimit"
	"github.com/xela07ax/agentops-console/internal/repository/postgres"
	"github.com/xela07ax/agentops-console/internal/repository/redisstore"
	"go.uber.org/zap"
)

func main() {
	// .env удобен локально; в проде переменные приходят из окружения
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := infra.BuildLogger(cfg.Logger)
	defer logger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Инфраструктура и ресурсы
	repo, err := postgres.NewRepo(appCtx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer repo.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(appCtx).Err(); err != nil {
		logger.Fatal("redis unreachable", zap.Error(err))
	}
	defer rdb.Close()

	// Метрики на отдельном порту
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		logger.Info("metrics exporter started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics exporter stopped", zap.Error(err))
		}
	}()

	// 2. Трейл координационных событий (async batch writer)
	trail := audit.NewTrail(repo, logger, cfg.Audit.BufferSize, cfg.Audit.BatchSize, cfg.Audit.FlushInterval).
		WithBufferGauge(m.TrailBufferFill)
	trail.Start()

	// 3. Ключи операторских токенов
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("invalid public key", zap.Error(err))
	}
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("invalid private key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(publicKey)

	// 4. Инициализация слоев (Dependency Injection)
	mailbox := redisstore.NewMailbox(rdb, logger)
	window := redisstore.NewWindow(rdb)
	chatRoom := redisstore.NewChatRoom(rdb)

	taskService := service.NewTaskService(repo, trail, m, domain.TaskPriority(cfg.Queue.DefaultPriority), logger)
	agentService := service.NewAgentService(repo, mailbox, trail, m,
		cfg.Mailbox.TTL, cfg.Presence.OfflineThreshold, logger)
	authService := service.NewAuthService(repo, validator, privateKey, cfg.Auth.TokenTTL)
	auditService := service.NewAuditService(repo)
	limiter := ratelimit.NewLimiter(window, cfg.Limiter.Limit, cfg.Limiter.Window, m, logger)

	consoleSrv := server.NewConsoleServer(
		cfg, logger, m, validator,
		handler.NewAuthHandler(authService, logger),
		handler.NewTaskHandler(taskService),
		handler.NewAgentHandler(agentService, logger),
		handler.NewCommandHandler(agentService),
		handler.NewChatHandler(limiter, chatRoom, trail, logger),
		handler.NewDashboardHandler(agentService, logger),
		handler.NewAuditHandler(auditService),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 5. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("console started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("console stopping...")
	cancel()

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	// Трейл допишет накопленные события перед выходом
	trail.Stop()
	logger.Info("console exited properly")
}
