package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/xela07ax/agentops-console/internal/console/service"
	"github.com/xela07ax/agentops-console/internal/infra"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/repository/postgres"
	"go.uber.org/zap"
)

// noopRecorder глушит трейл: служебные reclaim-прогоны не события очереди.
type noopRecorder struct{}

func (noopRecorder) Record(audit.Event) {}

// reclaimd возвращает протухшие claim'ы обратно в pending по расписанию.
// Это расширение базового протокола: включается только lease.enabled,
// иначе процесс отказывается стартовать, чтобы никто не запустил его
// по ошибке и не поменял семантику очереди молча.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := infra.BuildLogger(cfg.Logger)
	defer logger.Sync()

	if !cfg.Lease.Enabled {
		logger.Fatal("lease.enabled is false: reclaimd has nothing to do")
	}

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := postgres.NewRepo(appCtx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer repo.Close()

	// Трейл и метрики тут не нужны: reclaim — служебная операция
	taskService := service.NewTaskService(repo, noopRecorder{}, nil, "", logger)

	c := cron.New()
	_, err = c.AddFunc(cfg.Lease.Schedule, func() {
		runCtx, runCancel := context.WithTimeout(appCtx, 30*time.Second)
		defer runCancel()

		if _, err := taskService.Reclaim(runCtx, cfg.Lease.Duration); err != nil {
			logger.Error("reclaim run failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Fatal("invalid lease.schedule", zap.Error(err))
	}

	c.Start()
	logger.Info("reclaimd started",
		zap.String("schedule", cfg.Lease.Schedule),
		zap.Duration("lease", cfg.Lease.Duration))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("reclaimd stopping...")
	cancel()
	<-c.Stop().Done() // Дожидаемся текущего прогона
	logger.Info("reclaimd exited properly")
}
