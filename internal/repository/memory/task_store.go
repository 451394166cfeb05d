// Package memory — in-memory реализации хранилищ для тестов и
// локального запуска без инфраструктуры. Семантика повторяет
// postgres/redisstore, включая атомарность claim и одноразовый Take.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/agentops-console/internal/domain"
)

type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task

	now func() time.Time
}

func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*domain.Task),
		now:   time.Now,
	}
}

// SetClock подменяет источник времени (нужно тестам reclaim'а).
func (s *TaskStore) SetClock(now func() time.Time) { s.now = now }

func (s *TaskStore) Enqueue(_ context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *TaskStore) GetTask(_ context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *TaskStore) ListTasks(_ context.Context, f domain.TaskFilter) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Task, 0)
	for _, t := range s.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.AssignedTo != "" && (t.AssignedTo == nil || *t.AssignedTo != f.AssignedTo) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}

	// Свежие сверху, как в SQL-выборке
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// NextAvailable выбирает pending-кандидата: ранг приоритета,
// затем created_at, затем id — детерминированный порядок при равенстве.
func (s *TaskStore) NextAvailable(_ context.Context, preferredAgent, taskType string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *domain.Task
	for _, t := range s.tasks {
		if t.Status != domain.TaskPending {
			continue
		}
		if taskType != "" && t.Type != taskType {
			continue
		}
		// Предназначенное другому агенту не предлагаем
		if t.AssignedTo != nil && preferredAgent != "" && *t.AssignedTo != preferredAgent {
			continue
		}
		if best == nil || before(t, best) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func before(a, b *domain.Task) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra < rb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Claim атомарен под мьютексом: победитель ровно один.
func (s *TaskStore) Claim(_ context.Context, taskID, agentName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok || t.Status != domain.TaskPending {
		return false, nil
	}

	now := s.now().UTC()
	t.Status = domain.TaskClaimed
	t.AssignedTo = &agentName
	t.ClaimedAt = &now
	return true, nil
}

func (s *TaskStore) Start(_ context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok || t.Status != domain.TaskClaimed {
		return false, nil
	}

	now := s.now().UTC()
	t.Status = domain.TaskInProgress
	t.StartedAt = &now
	return true, nil
}

func (s *TaskStore) Complete(_ context.Context, taskID string, result json.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return false, nil
	}
	if t.Status != domain.TaskClaimed && t.Status != domain.TaskInProgress {
		// Повторный complete уже завершенной — no-op с true
		return t.Status == domain.TaskDone, nil
	}

	now := s.now().UTC()
	t.Status = domain.TaskDone
	t.Result = result
	t.CompletedAt = &now
	return true, nil
}

func (s *TaskStore) Fail(_ context.Context, taskID, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return false, nil
	}
	if t.Status != domain.TaskClaimed && t.Status != domain.TaskInProgress {
		return false, nil
	}

	now := s.now().UTC()
	t.Status = domain.TaskFailed
	t.Error = &errMsg
	t.CompletedAt = &now
	return true, nil
}

// ReclaimExpired возвращает в pending захваченные задачи с истекшей арендой.
func (s *TaskStore) ReclaimExpired(_ context.Context, lease time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-lease)
	var n int64
	for _, t := range s.tasks {
		if t.Status != domain.TaskClaimed && t.Status != domain.TaskInProgress {
			continue
		}
		if t.ClaimedAt == nil || !t.ClaimedAt.Before(cutoff) {
			continue
		}
		t.Status = domain.TaskPending
		t.AssignedTo = nil
		t.ClaimedAt = nil
		t.StartedAt = nil
		n++
	}
	return n, nil
}
