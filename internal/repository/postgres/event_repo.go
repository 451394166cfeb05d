package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/agentops-console/internal/audit"
)

// WriteBatch сохраняет пачку координационных событий одним INSERT.
// Вызывается только воркером трейла (audit.Trail), не хендлерами.
func (r *Repo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице coordination_events
	numFields := 8
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8)

		detail, _ := json.Marshal(e.Detail)

		vals = append(vals,
			e.ID, e.TraceID, e.AgentID, e.Kind, e.TaskID, detail, e.DurationMs, e.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO coordination_events (id, trace_id, agent_id, kind, task_id, detail, duration_ms, created_at) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.pool.Exec(ctx, query, vals...)
	return err
}

// ListEvents — выборка трейла для админки с фильтрами по агенту и типу.
func (r *Repo) ListEvents(ctx context.Context, agentID, kind string) ([]audit.Event, error) {
	query := `
		SELECT id, trace_id, agent_id, kind, task_id, detail, duration_ms, created_at
		FROM coordination_events`

	var args []interface{}
	var where []string
	if agentID != "" {
		args = append(args, agentID)
		where = append(where, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if kind != "" {
		args = append(args, kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT 200"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query events: %w", err)
	}
	defer rows.Close()

	results := make([]audit.Event, 0)
	for rows.Next() {
		var e audit.Event
		var detail []byte
		if err := rows.Scan(&e.ID, &e.TraceID, &e.AgentID, &e.Kind, &e.TaskID,
			&detail, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan event: %w", err)
		}
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &e.Detail)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
