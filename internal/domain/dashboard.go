package domain

// DashboardStats — сводка для главного экрана админки.
type DashboardStats struct {
	Queue    QueueStats    `json:"queue"`    // Состояние очереди задач
	Fleet    FleetStats    `json:"fleet"`    // Присутствие агентов
	Activity ActivityStats `json:"activity"` // События за последний час
}

type QueueStats struct {
	Pending    int `json:"pending"`
	Claimed    int `json:"claimed"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}

type FleetStats struct {
	TotalAgents  int `json:"total_agents"`
	OnlineAgents int `json:"online_agents"`
}

type ActivityStats struct {
	EventsLastHour int64   `json:"events_last_hour"`
	ClaimConflicts int64   `json:"claim_conflicts"`
	RateLimited    int64   `json:"rate_limited"`
	P95LatencyMs   float64 `json:"p95_latency_ms"`
}
