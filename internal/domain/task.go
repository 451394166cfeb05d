package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// Статусы State Machine задачи. Переходы только вперед:
// pending -> claimed -> in_progress -> {done, failed}.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskClaimed    TaskStatus = "claimed"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
)

// TaskPriority — приоритет задачи. Ранг считается через Rank():
// urgent=1 ... low=4, меньше — раньше в очереди.
type TaskPriority string

const (
	PriorityUrgent TaskPriority = "urgent"
	PriorityHigh   TaskPriority = "high"
	PriorityNormal TaskPriority = "normal"
	PriorityLow    TaskPriority = "low"
)

var (
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrAlreadyTerminal   = errors.New("task already in terminal status")
	ErrUnknownTaskType   = errors.New("unknown task type")
	ErrUnknownPriority   = errors.New("unknown task priority")
)

// Task — единица работы в координационной очереди.
// Payload и Result — непрозрачные блобы: ядро их не интерпретирует,
// схему согласуют продюсер и консьюмер по конкретному Type.
type Task struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"` // e.g. "post_review", "book_update"
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Priority    TaskPriority    `json:"priority"`
	Status      TaskStatus      `json:"status"`
	AssignedTo  *string         `json:"assigned_to,omitempty"` // Ставится один раз при claim
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Rank возвращает числовой ранг приоритета для ORDER BY.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 1
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 3
	case PriorityLow:
		return 4
	}
	// Некорректный приоритет уходит в хвост очереди
	return 5
}

// Valid проверяет, что продюсер прислал известный приоритет.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Terminal — терминальные статусы не покидаются никогда (audit history).
func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskFailed
}

// CanTransitionTo проверяет правила конечного автомата.
// Возврат в pending отсутствует: claim необратим, даже если процесс умер.
func (t *Task) CanTransitionTo(next TaskStatus) error {
	if t.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	switch next {
	case TaskClaimed:
		if t.Status != TaskPending {
			return ErrInvalidTransition
		}
	case TaskInProgress:
		if t.Status != TaskClaimed {
			return ErrInvalidTransition
		}
	case TaskDone:
		if t.Status != TaskClaimed && t.Status != TaskInProgress {
			return ErrInvalidTransition
		}
	case TaskFailed:
		// claimed может упасть сразу, если исполнение так и не началось
		if t.Status != TaskClaimed && t.Status != TaskInProgress {
			return ErrInvalidTransition
		}
	default:
		return ErrInvalidTransition
	}
	return nil
}

// TaskFilter — параметры выборки для list(). Только чтение, без side effects.
type TaskFilter struct {
	Status     TaskStatus
	Type       string
	AssignedTo string
	Limit      int
}
