package domain

import (
	"encoding/json"
	"time"
)

// Command — одноразовая императивная инструкция для конкретного агента.
// В почтовом ящике живет максимум одна команда на target: новый enqueue
// перетирает старую. Читается строго один раз (read-and-clear).
type Command struct {
	TargetID   string          `json:"target_id"`
	Action     string          `json:"action"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	QueuedAt   time.Time       `json:"queued_at"`
}
