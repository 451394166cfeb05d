package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/agentops-console/internal/domain"
)

type AgentStore struct {
	mu     sync.Mutex
	agents map[string]*domain.Agent // ключ — имя
	beats  map[string]time.Time

	now func() time.Time
}

func NewAgentStore() *AgentStore {
	return &AgentStore{
		agents: make(map[string]*domain.Agent),
		beats:  make(map[string]time.Time),
		now:    time.Now,
	}
}

func (s *AgentStore) SetClock(now func() time.Time) { s.now = now }

func (s *AgentStore) UpsertAgent(_ context.Context, a *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if existing, ok := s.agents[a.Name]; ok {
		// Повторная регистрация сохраняет исходный ID
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
	} else {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	cp := *a
	s.agents[a.Name] = &cp
	return nil
}

func (s *AgentStore) UpdateAgentStatus(_ context.Context, name string, status domain.AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[name]
	if !ok {
		return errors.New("memory: agent not found")
	}
	a.Status = status
	a.UpdatedAt = s.now().UTC()
	return nil
}

func (s *AgentStore) GetAgent(_ context.Context, name string) (*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[name]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *AgentStore) ListAgents(_ context.Context) ([]*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *AgentStore) RecordHeartbeat(_ context.Context, sender string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.beats[sender] = at
	return nil
}

func (s *AgentStore) GetHeartbeats(_ context.Context, senders []string) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(senders))
	for _, sender := range senders {
		if at, ok := s.beats[sender]; ok {
			out[sender] = at
		}
	}
	return out, nil
}

func (s *AgentStore) GetDashboardStats(_ context.Context, offlineThreshold time.Duration) (*domain.DashboardStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &domain.DashboardStats{}
	stats.Fleet.TotalAgents = len(s.agents)

	now := s.now()
	for _, at := range s.beats {
		if now.Sub(at) < offlineThreshold {
			stats.Fleet.OnlineAgents++
		}
	}
	return stats, nil
}
