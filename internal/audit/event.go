package audit

import "time"

// Типы координационных событий трейла.
const (
	KindEnqueued         = "ENQUEUED"
	KindClaimed          = "CLAIMED"
	KindClaimConflict    = "CLAIM_CONFLICT"
	KindStarted          = "STARTED"
	KindDone             = "DONE"
	KindFailed           = "FAILED"
	KindCommandQueued    = "COMMAND_QUEUED"
	KindCommandDelivered = "COMMAND_DELIVERED"
	KindRateLimited      = "RATE_LIMITED"
)

type Event struct {
	ID      string `json:"id"`       // UUID события
	TraceID string `json:"trace_id"` // Сквозной ID запроса
	AgentID string `json:"agent_id"` // Кто делал
	Kind    string `json:"kind"`     // Что произошло (см. константы)
	TaskID  string `json:"task_id"`  // Затронутая задача, если есть

	Detail     map[string]interface{} `json:"detail,omitempty"` // Доп. контекст
	DurationMs int64                  `json:"duration_ms"`      // Время обработки
	Timestamp  time.Time              `json:"timestamp"`
}
