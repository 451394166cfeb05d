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

// AgentRepository описывает требования к хранилищу данных об агентах
type AgentRepository interface {
	UpsertAgent(ctx context.Context, a *domain.Agent) error
	UpdateAgentStatus(ctx context.Context, name string, status domain.AgentStatus) error
	GetAgent(ctx context.Context, name string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]*domain.Agent, error)
	RecordHeartbeat(ctx context.Context, sender string, at time.Time) error
	GetHeartbeats(ctx context.Context, senders []string) (map[string]time.Time, error)
	GetDashboardStats(ctx context.Context, offlineThreshold time.Duration) (*domain.DashboardStats, error)
}

// CommandStore — эфемерный почтовый ящик одноразовых команд.
type CommandStore interface {
	Put(ctx context.Context, cmd domain.Command, ttl time.Duration) error
	Take(ctx context.Context, targetID string) (*domain.Command, error)
}

type AgentService struct {
	repo    AgentRepository
	mailbox CommandStore
	trail   audit.Recorder
	metrics *metrics.Metrics
	logger  *zap.Logger

	mailboxTTL       time.Duration
	offlineThreshold time.Duration

	now func() time.Time // Подменяется в тестах
}

func NewAgentService(repo AgentRepository, mailbox CommandStore, trail audit.Recorder, m *metrics.Metrics,
	mailboxTTL, offlineThreshold time.Duration, logger *zap.Logger) *AgentService {
	if m == nil {
		m = metrics.NewMetrics(nil)
	}
	return &AgentService{
		repo:             repo,
		mailbox:          mailbox,
		trail:            trail,
		metrics:          m,
		logger:           logger.Named("agent-service"),
		mailboxTTL:       mailboxTTL,
		offlineThreshold: offlineThreshold,
		now:              time.Now,
	}
}

// Register — саморегистрация воркера; повторные вызовы безопасны.
func (s *AgentService) Register(ctx context.Context, name, agentType string, capabilities []string) (*domain.Agent, error) {
	a := &domain.Agent{
		ID:           uuid.New().String(),
		Name:         name,
		Type:         agentType,
		Capabilities: capabilities,
		Status:       domain.AgentIdle,
	}
	if err := s.repo.UpsertAgent(ctx, a); err != nil {
		s.logger.Error("agent registration failed", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("register failed: %w", err)
	}
	s.logger.Info("agent registered", zap.String("name", name), zap.String("type", agentType))
	return a, nil
}

// Heartbeat upsert'ит last_seen отправителя. Строка создается сама:
// предварительная регистрация не требуется. Дубликаты безвредны.
func (s *AgentService) Heartbeat(ctx context.Context, sender string) error {
	if err := s.repo.RecordHeartbeat(ctx, sender, s.now().UTC()); err != nil {
		return err
	}
	// Статус агента обновляем по возможности: heartbeat от еще не
	// зарегистрированного sender'а — не ошибка
	if err := s.repo.UpdateAgentStatus(ctx, sender, domain.AgentActive); err != nil {
		s.logger.Debug("heartbeat from unregistered sender", zap.String("sender", sender))
	}
	return nil
}

// Poll — комбинированный чекин агента: heartbeat плюс одноразовая
// выдача отложенной команды. Второй poll после выдачи вернет nil.
func (s *AgentService) Poll(ctx context.Context, sender string) (*domain.Command, error) {
	if err := s.Heartbeat(ctx, sender); err != nil {
		return nil, err
	}

	cmd, err := s.mailbox.Take(ctx, sender)
	if err != nil {
		return nil, err
	}
	if cmd != nil {
		s.metrics.CommandsDelivered.Inc()
		s.trail.Record(audit.Event{
			ID:      uuid.New().String(),
			Kind:    audit.KindCommandDelivered,
			AgentID: sender,
			Detail:  map[string]interface{}{"action": cmd.Action},
		})
		s.logger.Info("command delivered", zap.String("target", sender), zap.String("action", cmd.Action))
	}
	return cmd, nil
}

// EnqueueCommand кладет инструкцию в ящик target'а, перетирая прежнюю.
// Непрочитанная команда молча истекает по TTL — уведомлений нет,
// протухшие инструкции не должны срабатывать после реконнекта.
func (s *AgentService) EnqueueCommand(ctx context.Context, targetID, action string, parameters json.RawMessage) (*domain.Command, error) {
	cmd := domain.Command{
		TargetID:   targetID,
		Action:     action,
		Parameters: parameters,
		QueuedAt:   s.now().UTC(),
	}
	if err := s.mailbox.Put(ctx, cmd, s.mailboxTTL); err != nil {
		s.logger.Error("failed to queue command", zap.String("target", targetID), zap.Error(err))
		return nil, fmt.Errorf("command enqueue failed: %w", err)
	}

	s.trail.Record(audit.Event{
		ID:      uuid.New().String(),
		Kind:    audit.KindCommandQueued,
		AgentID: targetID,
		Detail:  map[string]interface{}{"action": action},
	})
	return &cmd, nil
}

// Snapshot вычисляет presence для перечисленных sender'ов:
// online = last_seen есть и моложе порога. Неизвестные — offline
// с last_seen = null. История не хранится, только последняя отметка.
func (s *AgentService) Snapshot(ctx context.Context, knownSenders []string) ([]domain.PresenceEntry, error) {
	beats, err := s.repo.GetHeartbeats(ctx, knownSenders)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entries := make([]domain.PresenceEntry, 0, len(knownSenders))
	for _, sender := range knownSenders {
		entry := domain.PresenceEntry{Sender: sender}
		if seen, ok := beats[sender]; ok {
			seenCopy := seen
			entry.LastSeen = &seenCopy
			entry.Online = now.Sub(seen) < s.offlineThreshold
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ListAgents возвращает всех воркеров с вычисленным presence.
func (s *AgentService) ListAgents(ctx context.Context) ([]*domain.Agent, []domain.PresenceEntry, error) {
	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		s.logger.Error("failed to list agents from repository", zap.Error(err))
		return nil, nil, fmt.Errorf("service: could not fetch agents: %w", err)
	}
	if agents == nil {
		agents = []*domain.Agent{}
	}

	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.Name)
	}
	presence, err := s.Snapshot(ctx, names)
	if err != nil {
		return nil, nil, err
	}
	return agents, presence, nil
}

func (s *AgentService) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	return s.repo.GetDashboardStats(ctx, s.offlineThreshold)
}
