package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/metrics"
	"go.uber.org/zap"
)

// TaskRepository описывает требования к хранилищу очереди задач.
// Прод-реализация — postgres.Repo, тестовая — memory.TaskStore.
type TaskRepository interface {
	Enqueue(ctx context.Context, t *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	ListTasks(ctx context.Context, f domain.TaskFilter) ([]*domain.Task, error)
	NextAvailable(ctx context.Context, preferredAgent, taskType string) (*domain.Task, error)
	Claim(ctx context.Context, taskID, agentName string) (bool, error)
	Start(ctx context.Context, taskID string) (bool, error)
	Complete(ctx context.Context, taskID string, result json.RawMessage) (bool, error)
	Fail(ctx context.Context, taskID, errMsg string) (bool, error)
	ReclaimExpired(ctx context.Context, lease time.Duration) (int64, error)
}

type TaskService struct {
	repo    TaskRepository
	trail   audit.Recorder
	metrics *metrics.Metrics
	logger  *zap.Logger

	defaultPriority domain.TaskPriority
}

func NewTaskService(repo TaskRepository, trail audit.Recorder, m *metrics.Metrics, defaultPriority domain.TaskPriority, logger *zap.Logger) *TaskService {
	if m == nil {
		m = metrics.NewMetrics(nil)
	}
	if defaultPriority == "" {
		defaultPriority = domain.PriorityNormal
	}
	return &TaskService{
		repo:            repo,
		trail:           trail,
		metrics:         m,
		logger:          logger.Named("task-service"),
		defaultPriority: defaultPriority,
	}
}

// Enqueue создает задачу в pending. Идемпотентность — забота продюсера:
// одинаковые payload'ы мы сознательно не схлопываем.
func (s *TaskService) Enqueue(ctx context.Context, taskType, description string, payload json.RawMessage, priority domain.TaskPriority, assignedTo string) (*domain.Task, error) {
	if priority == "" {
		priority = s.defaultPriority
	}
	if !priority.Valid() {
		return nil, domain.ErrUnknownPriority
	}

	t := &domain.Task{
		ID:          uuid.New().String(),
		Type:        taskType,
		Description: description,
		Payload:     payload,
		Priority:    priority,
		Status:      domain.TaskPending,
		CreatedAt:   time.Now().UTC(),
	}
	if assignedTo != "" {
		t.AssignedTo = &assignedTo
	}

	if err := s.repo.Enqueue(ctx, t); err != nil {
		s.logger.Error("failed to enqueue task", zap.String("type", taskType), zap.Error(err))
		return nil, fmt.Errorf("enqueue failed: %w", err)
	}

	s.metrics.TasksEnqueued.WithLabelValues(t.Type, string(t.Priority)).Inc()
	s.trail.Record(audit.Event{
		ID:     uuid.New().String(),
		Kind:   audit.KindEnqueued,
		TaskID: t.ID,
		Detail: map[string]interface{}{"type": t.Type, "priority": t.Priority},
	})

	s.logger.Info("task enqueued",
		zap.String("task_id", t.ID),
		zap.String("type", t.Type),
		zap.String("priority", string(t.Priority)))
	return t, nil
}

func (s *TaskService) Get(ctx context.Context, id string) (*domain.Task, error) {
	return s.repo.GetTask(ctx, id)
}

// List — read-only выборка; гарантируем фронту [] вместо null.
func (s *TaskService) List(ctx context.Context, f domain.TaskFilter) ([]*domain.Task, error) {
	tasks, err := s.repo.ListTasks(ctx, f)
	if err != nil {
		s.logger.Error("failed to list tasks", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch tasks: %w", err)
	}
	if tasks == nil {
		return []*domain.Task{}, nil
	}
	return tasks, nil
}

// NextAvailable выбирает кандидата, не захватывая его. nil — очереди
// нечего предложить, это штатный результат.
func (s *TaskService) NextAvailable(ctx context.Context, preferredAgent, taskType string) (*domain.Task, error) {
	return s.repo.NextAvailable(ctx, preferredAgent, taskType)
}

// Claim пробует захватить задачу для агента. false — проигрыш гонки
// (ClaimConflict), не ошибка: агент должен идти за следующим кандидатом.
func (s *TaskService) Claim(ctx context.Context, taskID, agentName string) (bool, error) {
	ok, err := s.repo.Claim(ctx, taskID, agentName)
	if err != nil {
		s.logger.Error("claim failed", zap.String("task_id", taskID), zap.Error(err))
		return false, err
	}

	if ok {
		s.metrics.ClaimsTotal.WithLabelValues("won").Inc()
		s.trail.Record(audit.Event{
			ID:      uuid.New().String(),
			Kind:    audit.KindClaimed,
			AgentID: agentName,
			TaskID:  taskID,
		})
		s.logger.Info("task claimed", zap.String("task_id", taskID), zap.String("agent", agentName))
	} else {
		s.metrics.ClaimsTotal.WithLabelValues("conflict").Inc()
		s.trail.Record(audit.Event{
			ID:      uuid.New().String(),
			Kind:    audit.KindClaimConflict,
			AgentID: agentName,
			TaskID:  taskID,
		})
	}
	return ok, nil
}

// Start переводит claimed -> in_progress.
func (s *TaskService) Start(ctx context.Context, taskID string) (bool, error) {
	ok, err := s.repo.Start(ctx, taskID)
	if err != nil {
		return false, err
	}
	if ok {
		s.trail.Record(audit.Event{ID: uuid.New().String(), Kind: audit.KindStarted, TaskID: taskID})
	}
	return ok, nil
}

// Complete завершает задачу; повторное завершение done — no-op c true.
func (s *TaskService) Complete(ctx context.Context, taskID string, result json.RawMessage) (bool, error) {
	ok, err := s.repo.Complete(ctx, taskID, result)
	if err != nil {
		return false, err
	}
	if ok {
		s.trail.Record(audit.Event{ID: uuid.New().String(), Kind: audit.KindDone, TaskID: taskID})
	}
	return ok, nil
}

// Fail фиксирует провал навсегда: ретрай — только новый Enqueue.
func (s *TaskService) Fail(ctx context.Context, taskID, errMsg string) (bool, error) {
	ok, err := s.repo.Fail(ctx, taskID, errMsg)
	if err != nil {
		return false, err
	}
	if ok {
		s.trail.Record(audit.Event{
			ID:     uuid.New().String(),
			Kind:   audit.KindFailed,
			TaskID: taskID,
			Detail: map[string]interface{}{"error": errMsg},
		})
		s.logger.Warn("task failed", zap.String("task_id", taskID), zap.String("error", errMsg))
	}
	return ok, nil
}

// Reclaim — lease-расширение: возвращает протухшие claim'ы в pending.
// Вызывается только из reclaimd и только при включенном lease.
func (s *TaskService) Reclaim(ctx context.Context, lease time.Duration) (int64, error) {
	n, err := s.repo.ReclaimExpired(ctx, lease)
	if err != nil {
		s.logger.Error("reclaim failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired claims returned to pending", zap.Int64("count", n))
	}
	return n, nil
}
