package postgres

import (
	"context"
	"fmt"

	"github.com/xela07ax/agentops-console/internal/domain"
)

// UpsertAgent — саморегистрация воркера. Повторный register того же
// имени просто обновляет тип и capabilities, строка не дублируется.
func (r *Repo) UpsertAgent(ctx context.Context, a *domain.Agent) error {
	query := `
		INSERT INTO agents (id, name, type, capabilities, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
		SET type = EXCLUDED.type,
		    capabilities = EXCLUDED.capabilities,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at`

	// RETURNING отдает исходный id: перерегистрация не меняет идентичность
	err := r.pool.QueryRow(ctx, query, a.ID, a.Name, a.Type, a.Capabilities, a.Status).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert agent: %w", err)
	}
	return nil
}

// UpdateAgentStatus меняет статус (active/idle/offline) и отметку активности.
func (r *Repo) UpdateAgentStatus(ctx context.Context, name string, status domain.AgentStatus) error {
	query := `UPDATE agents SET status = $1, last_seen = NOW(), updated_at = NOW() WHERE name = $2`

	ct, err := r.pool.Exec(ctx, query, status, name)
	if err != nil {
		return fmt.Errorf("postgres: failed to update agent status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: agent %s not found", name)
	}
	return nil
}

// GetAgent возвращает агента по имени; nil — не найден.
func (r *Repo) GetAgent(ctx context.Context, name string) (*domain.Agent, error) {
	query := `
		SELECT id, name, type, capabilities, status, last_seen, created_at, updated_at
		FROM agents WHERE name = $1`

	a := &domain.Agent{}
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&a.ID, &a.Name, &a.Type, &a.Capabilities, &a.Status, &a.LastSeen, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get agent: %w", err)
	}
	return a, nil
}

// ListAgents возвращает всех зарегистрированных воркеров.
func (r *Repo) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	query := `
		SELECT id, name, type, capabilities, status, last_seen, created_at, updated_at
		FROM agents ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list agents: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.Agent, 0)
	for rows.Next() {
		a := &domain.Agent{}
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Capabilities, &a.Status,
			&a.LastSeen, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan agent: %w", err)
		}
		results = append(results, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
