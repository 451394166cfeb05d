package domain

// RateLimitDecision — результат check_and_record для одного отправителя.
// При отказе ResetMs показывает, через сколько миллисекунд самая старая
// блокирующая запись выйдет из окна.
type RateLimitDecision struct {
	Allowed   bool  `json:"allowed"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetMs   int64 `json:"reset_ms"`
}
