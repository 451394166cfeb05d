package domain

import "time"

type AgentStatus string

const (
	AgentActive  AgentStatus = "active"  // Недавний heartbeat, исполняет задачи
	AgentIdle    AgentStatus = "idle"    // На связи, но без работы
	AgentOffline AgentStatus = "offline" // Выведен из presence по порогу
)

// Agent — зарегистрированный воркер. Создается самим агентом
// при первом register/heartbeat, системой никогда не удаляется.
type Agent struct {
	ID           string      `json:"id"`   // UUID
	Name         string      `json:"name"` // Уникальное имя-идентити (например, "reviewer-1")
	Type         string      `json:"type"`
	Capabilities []string    `json:"capabilities"` // Теги, какие Type задач умеет
	Status       AgentStatus `json:"status"`
	LastSeen     *time.Time  `json:"last_seen,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
