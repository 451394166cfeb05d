package agent

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
)

// Runner — основной цикл воркера: чекин в консоль, разбор отложенных
// команд и отработка очереди задач до ее опустошения.
type Runner struct {
	client   *Client
	registry *Registry
	logger   *zap.Logger

	name         string
	agentType    string
	pollInterval time.Duration

	paused bool
}

func NewRunner(client *Client, registry *Registry, name, agentType string, pollInterval time.Duration, logger *zap.Logger) *Runner {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Runner{
		client:       client,
		registry:     registry,
		logger:       logger.Named("runner").With(zap.String("agent", name)),
		name:         name,
		agentType:    agentType,
		pollInterval: pollInterval,
	}
}

// Run регистрирует воркера и крутит цикл до отмены контекста.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.client.Register(ctx, r.agentType, r.registry.Types()); err != nil {
		return err
	}
	r.logger.Info("agent registered", zap.Strings("capabilities", r.registry.Types()))

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopped")
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	cmd, err := r.client.Poll(ctx, r.name)
	if err != nil {
		// Консоль недоступна — переживем до следующего тика
		r.logger.Warn("poll failed", zap.Error(err))
		return
	}
	if cmd != nil {
		r.applyCommand(cmd)
	}

	if r.paused {
		return
	}
	r.drainQueue(ctx)
}

// applyCommand исполняет одноразовую инструкцию оператора.
func (r *Runner) applyCommand(cmd *domain.Command) {
	r.logger.Info("command received", zap.String("action", cmd.Action))
	switch cmd.Action {
	case "pause":
		r.paused = true
	case "resume":
		r.paused = false
	default:
		// Команда протухнет сама, если никто не знает, что с ней делать
		r.logger.Warn("unknown command action", zap.String("action", cmd.Action))
	}
}

// drainQueue выгребает очередь: кандидат -> захват -> исполнение.
// Проигрыш claim'а — штатный случай, просто спрашиваем следующего.
func (r *Runner) drainQueue(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		task, err := r.client.Next(ctx, "")
		if err != nil {
			r.logger.Warn("next failed", zap.Error(err))
			return
		}
		if task == nil {
			return // Очередь пуста
		}

		won, err := r.client.Claim(ctx, task.ID)
		if err != nil {
			r.logger.Warn("claim failed", zap.String("task_id", task.ID), zap.Error(err))
			return
		}
		if !won {
			// Кто-то успел раньше — идем за следующим кандидатом
			r.logger.Debug("claim lost", zap.String("task_id", task.ID))
			continue
		}

		r.execute(ctx, task)
	}
}

func (r *Runner) execute(ctx context.Context, task *domain.Task) {
	if err := r.client.Start(ctx, task.ID); err != nil {
		r.logger.Warn("start failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}

	started := time.Now()
	result, err := r.registry.Dispatch(ctx, task.Type, task.Payload)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTaskType) {
			r.logger.Error("no handler for task type", zap.String("type", task.Type))
		}
		if failErr := r.client.Fail(ctx, task.ID, err.Error()); failErr != nil {
			r.logger.Error("fail report failed", zap.String("task_id", task.ID), zap.Error(failErr))
		}
		return
	}

	if result == nil {
		result = json.RawMessage(`{}`)
	}
	if err := r.client.Complete(ctx, task.ID, result); err != nil {
		r.logger.Error("complete report failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	r.logger.Info("task done",
		zap.String("task_id", task.ID),
		zap.String("type", task.Type),
		zap.Duration("took", time.Since(started)))
}
