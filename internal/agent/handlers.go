package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xela07ax/agentops-console/internal/domain"
)

// Handler исполняет задачу одного типа. Payload и результат —
// непрозрачные блобы: схему знает только конкретный исполнитель.
type Handler interface {
	Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// HandlerFunc адаптирует функцию под Handler.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

func (f HandlerFunc) Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return f(ctx, payload)
}

// Registry — закрытое отображение тип задачи -> исполнитель.
// Fallback-исполнителя нет: неизвестный тип — это ошибка конфигурации
// флота, и она должна быть видимой (задача уходит в failed).
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(taskType string, h Handler) {
	r.handlers[taskType] = h
}

// Types возвращает список типов — это capabilities воркера при регистрации.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// Dispatch находит исполнителя и запускает задачу.
func (r *Registry) Dispatch(ctx context.Context, taskType string, payload json.RawMessage) (json.RawMessage, error) {
	h, ok := r.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTaskType, taskType)
	}
	return h.Execute(ctx, payload)
}
