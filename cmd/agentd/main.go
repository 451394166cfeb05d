package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/xela07ax/agentops-console/internal/agent"
	"github.com/xela07ax/agentops-console/internal/infra"
	"go.uber.org/zap"
)

// agentd — референсный воркер: поллит консоль, захватывает задачи
// и исполняет их зарегистрированными обработчиками.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := infra.BuildLogger(cfg.Logger)
	defer logger.Sync()

	if cfg.Agent.Name == "" || cfg.Agent.Token == "" {
		logger.Fatal("agent.name and agent.token are required")
	}
	consoleURL := cfg.Agent.ConsoleURL
	if consoleURL == "" {
		consoleURL = "http://localhost:8080"
	}

	client := agent.NewClient(consoleURL, cfg.Agent.Token, logger)

	// Закрытый реестр исполнителей: неизвестный тип задачи — failed
	registry := agent.NewRegistry()
	registry.Register("echo", agent.HandlerFunc(
		func(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
			return payload, nil
		}))
	registry.Register("sleep", agent.HandlerFunc(
		func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
			var req struct {
				Seconds int `json:"seconds"`
			}
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, err
			}
			select {
			case <-time.After(time.Duration(req.Seconds) * time.Second):
				return json.RawMessage(`{"slept": true}`), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}))

	runner := agent.NewRunner(client, registry, cfg.Agent.Name, cfg.Agent.Type, cfg.Agent.PollInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("agentd stopping...")
		cancel()
	}()

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("runner exited", zap.Error(err))
	}
	logger.Info("agentd exited properly")
}
