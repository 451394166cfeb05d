// Package ratelimit реализует скользящее окно на эфемерном хранилище.
// Доступность защищаемого действия важнее строгости: если Redis лег,
// лимитер открывается (fail-open), а не глушит весь трафик.
package ratelimit

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/metrics"
	"go.uber.org/zap"
)

// WindowStore — требования к хранилищу окна. Прод-реализация — Redis
// (redisstore.Window), тестовая — in-memory.
type WindowStore interface {
	Snapshot(ctx context.Context, sender string, windowStart time.Time) (count int64, oldest time.Time, err error)
	Append(ctx context.Context, sender string, at time.Time, ttl time.Duration) error
}

type Limiter struct {
	store   WindowStore
	limit   int
	window  time.Duration
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *metrics.Metrics

	now func() time.Time // Подменяется в тестах
}

func NewLimiter(store WindowStore, limit int, window time.Duration, m *metrics.Metrics, logger *zap.Logger) *Limiter {
	// Предохранитель вокруг Redis: после серии ошибок перестаем
	// ходить в хранилище вовсе и сразу отвечаем fail-open
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	if m == nil {
		m = metrics.NewMetrics(nil)
	}

	return &Limiter{
		store:   store,
		limit:   limit,
		window:  window,
		cb:      cb,
		logger:  logger.Named("ratelimit"),
		metrics: m,
		now:     time.Now,
	}
}

func (l *Limiter) Limit() int { return l.limit }

// CheckAndRecord — атомарная по смыслу пара «проверить и записать».
// Отказ лимита — обычный отрицательный результат, не ошибка.
func (l *Limiter) CheckAndRecord(ctx context.Context, sender string) domain.RateLimitDecision {
	decision, err := l.cb.Execute(func() (interface{}, error) {
		return l.decide(ctx, sender)
	})
	if err != nil {
		// Хранилище недоступно (или предохранитель открыт) — пропускаем
		l.metrics.LimiterFailOpen.Inc()
		l.logger.Warn("ephemeral store unavailable, failing open",
			zap.String("sender", sender), zap.Error(err))
		return domain.RateLimitDecision{
			Allowed:   true,
			Limit:     l.limit,
			Remaining: l.limit,
		}
	}
	return decision.(domain.RateLimitDecision)
}

func (l *Limiter) decide(ctx context.Context, sender string) (domain.RateLimitDecision, error) {
	now := l.now()
	windowStart := now.Add(-l.window)

	count, oldest, err := l.store.Snapshot(ctx, sender, windowStart)
	if err != nil {
		return domain.RateLimitDecision{}, err
	}

	if count >= int64(l.limit) {
		// reset_ms — сколько ждать, пока самая старая блокирующая
		// запись выйдет из окна
		resetMs := oldest.Add(l.window).Sub(now).Milliseconds()
		if resetMs < 1 {
			resetMs = 1
		}
		l.metrics.RateLimitRejections.Inc()
		return domain.RateLimitDecision{
			Allowed:   false,
			Limit:     l.limit,
			Remaining: 0,
			ResetMs:   resetMs,
		}, nil
	}

	// TTL чуть длиннее окна: состояние молчащих отправителей истекает само
	if err := l.store.Append(ctx, sender, now, l.window+10*time.Second); err != nil {
		return domain.RateLimitDecision{}, err
	}

	return domain.RateLimitDecision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - int(count) - 1,
	}, nil
}
