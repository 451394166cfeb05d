package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// RecordHeartbeat — upsert, не append: одна строка на sender,
// перезаписывается каждым сигналом. Строка создается сама,
// предварительная регистрация не требуется.
func (r *Repo) RecordHeartbeat(ctx context.Context, sender string, at time.Time) error {
	query := `
		INSERT INTO heartbeats (sender, last_seen)
		VALUES ($1, $2)
		ON CONFLICT (sender) DO UPDATE SET last_seen = EXCLUDED.last_seen`

	_, err := r.pool.Exec(ctx, query, sender, at)
	if err != nil {
		return fmt.Errorf("postgres: failed to record heartbeat: %w", err)
	}
	return nil
}

// GetHeartbeats возвращает последние отметки для перечисленных sender'ов.
// Отсутствующие в таблице отправители в мапу не попадают — presence
// по ним вычисляется как offline с last_seen = null.
func (r *Repo) GetHeartbeats(ctx context.Context, senders []string) (map[string]time.Time, error) {
	query := `SELECT sender, last_seen FROM heartbeats WHERE sender = ANY($1)`

	rows, err := r.pool.Query(ctx, query, senders)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query heartbeats: %w", err)
	}
	defer rows.Close()

	result := make(map[string]time.Time, len(senders))
	for rows.Next() {
		var rec domain.HeartbeatRecord
		if err := rows.Scan(&rec.Sender, &rec.LastSeen); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan heartbeat: %w", err)
		}
		result[rec.Sender] = rec.LastSeen
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return result, nil
}
