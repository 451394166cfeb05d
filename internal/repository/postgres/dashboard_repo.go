package postgres

import (
	"context"
	"time"

	"github.com/xela07ax/agentops-console/internal/domain"
)

// GetDashboardStats собирает сводку для главного экрана консоли.
func (r *Repo) GetDashboardStats(ctx context.Context, offlineThreshold time.Duration) (*domain.DashboardStats, error) {
	d := &domain.DashboardStats{}

	// 1. Срез очереди по статусам
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'claimed'),
			COUNT(*) FILTER (WHERE status = 'in_progress'),
			COUNT(*) FILTER (WHERE status = 'done'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM tasks`).Scan(
		&d.Queue.Pending, &d.Queue.Claimed, &d.Queue.InProgress, &d.Queue.Done, &d.Queue.Failed)
	if err != nil {
		return nil, err
	}

	// 2. Присутствие флота: online считается от heartbeats, не от статуса
	err = r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM agents),
			(SELECT COUNT(*) FROM heartbeats WHERE last_seen > NOW() - $1::interval)`,
		offlineThreshold.String()).Scan(&d.Fleet.TotalAgents, &d.Fleet.OnlineAgents)
	if err != nil {
		return nil, err
	}

	// 3. Активность за последние 60 минут
	// PERCENTILE_CONT дает честный P95 по длительности обработки
	err = r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE kind = 'CLAIM_CONFLICT'),
			COUNT(*) FILTER (WHERE kind = 'RATE_LIMITED'),
			COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY duration_ms), 0)
		FROM coordination_events
		WHERE created_at > NOW() - INTERVAL '60 minutes'`).Scan(
		&d.Activity.EventsLastHour,
		&d.Activity.ClaimConflicts,
		&d.Activity.RateLimited,
		&d.Activity.P95LatencyMs,
	)

	return d, err
}
