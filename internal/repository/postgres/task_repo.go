package postgres

/*
Файл task_repo.go реализует очередь задач и протокол claim.
Единственная по-настоящему конкурентная операция — Claim: ее гарантия
«не более одного владельца» держится целиком на атомарном условном
UPDATE ... WHERE status = 'pending' одной строки, без прикладных локов.
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
)

const taskColumns = `id, type, description, payload, priority, status, assigned_to,
	result, error, created_at, claimed_at, started_at, completed_at`

// Enqueue вставляет новую задачу в pending. Дедупликация payload'ов —
// ответственность продюсера, мы не проверяем.
func (r *Repo) Enqueue(ctx context.Context, t *domain.Task) error {
	query := `
		INSERT INTO tasks (id, type, description, payload, priority, status, assigned_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.Type, t.Description, t.Payload, t.Priority, t.Status, t.AssignedTo, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to enqueue task: %w", err)
	}
	return nil
}

// GetTask возвращает задачу по ID; nil — для 404 в хендлере.
func (r *Repo) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks — read-only выборка с фильтрами, без side effects.
func (r *Repo) ListTasks(ctx context.Context, f domain.TaskFilter) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`

	var args []interface{}
	var where []string
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.AssignedTo != "" {
		args = append(args, f.AssignedTo)
		where = append(where, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query tasks: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan task: %w", err)
		}
		results = append(results, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// NextAvailable выбирает лучшего кандидата, НЕ захватывая его.
// Порядок детерминирован: ранг приоритета, потом created_at, потом id —
// чтобы гонки и тесты были воспроизводимы.
func (r *Repo) NextAvailable(ctx context.Context, preferredAgent, taskType string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = 'pending'`

	var args []interface{}
	if taskType != "" {
		args = append(args, taskType)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if preferredAgent != "" {
		// Подходят неназначенные задачи и задачи, заранее адресованные агенту
		args = append(args, preferredAgent)
		query += fmt.Sprintf(" AND (assigned_to IS NULL OR assigned_to = $%d)", len(args))
	}

	query += `
		ORDER BY CASE priority
			WHEN 'urgent' THEN 1
			WHEN 'high'   THEN 2
			WHEN 'normal' THEN 3
			WHEN 'low'    THEN 4
			ELSE 5 END,
			created_at, id
		LIMIT 1`

	row := r.pool.QueryRow(ctx, query, args...)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Очередь пуста — это не ошибка
		}
		return nil, fmt.Errorf("postgres: failed to select next task: %w", err)
	}
	return t, nil
}

// Claim — ядро протокола. Успех только если задача все еще pending:
// условие в WHERE исключает двух владельцев, проигравший получает false
// и обязан заново спросить NextAvailable, а не ретраить тот же id.
func (r *Repo) Claim(ctx context.Context, taskID, agentName string) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'claimed', assigned_to = $2, claimed_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	ct, err := r.pool.Exec(ctx, query, taskID, agentName)
	if err != nil {
		return false, fmt.Errorf("postgres: claim failed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Start переводит claimed -> in_progress. Условие на текущий статус
// не дает стартовать дважды или стартовать незахваченную задачу.
func (r *Repo) Start(ctx context.Context, taskID string) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'in_progress', started_at = NOW()
		WHERE id = $1 AND status = 'claimed'`

	ct, err := r.pool.Exec(ctx, query, taskID)
	if err != nil {
		return false, fmt.Errorf("postgres: start failed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Complete переводит задачу в done. Повторный Complete уже
// завершенной задачи — no-op с success=true (идемпотентность).
func (r *Repo) Complete(ctx context.Context, taskID string, result json.RawMessage) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'done', result = $2, completed_at = NOW()
		WHERE id = $1 AND status IN ('claimed', 'in_progress')`

	ct, err := r.pool.Exec(ctx, query, taskID, result)
	if err != nil {
		return false, fmt.Errorf("postgres: complete failed: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}

	// Строка не обновилась: либо задача уже done (ok), либо переход нелегален
	var status domain.TaskStatus
	err = r.pool.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1`, taskID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("postgres: complete status check failed: %w", err)
	}
	return status == domain.TaskDone, nil
}

// Fail фиксирует ошибку исполнения навсегда; автоматических ретраев нет,
// повторная попытка — это новый Enqueue.
func (r *Repo) Fail(ctx context.Context, taskID, errMsg string) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'failed', error = $2, completed_at = NOW()
		WHERE id = $1 AND status IN ('claimed', 'in_progress')`

	ct, err := r.pool.Exec(ctx, query, taskID, errMsg)
	if err != nil {
		return false, fmt.Errorf("postgres: fail transition failed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ReclaimExpired — расширение lease: возвращает в pending задачи,
// чей claim старше lease. В базовом протоколе выключено (см. конфиг),
// потому что меняет наблюдаемое поведение: claim перестает быть вечным.
func (r *Repo) ReclaimExpired(ctx context.Context, lease time.Duration) (int64, error) {
	query := `
		UPDATE tasks
		SET status = 'pending', assigned_to = NULL, claimed_at = NULL, started_at = NULL
		WHERE status IN ('claimed', 'in_progress')
		  AND claimed_at < NOW() - $1::interval`

	ct, err := r.pool.Exec(ctx, query, lease.String())
	if err != nil {
		return 0, fmt.Errorf("postgres: reclaim failed: %w", err)
	}
	return ct.RowsAffected(), nil
}

// rowScanner покрывает и pgx.Row, и pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var assignedTo, errMsg sql.NullString // Используем для обработки NULL из БД

	err := row.Scan(
		&t.ID, &t.Type, &t.Description, &t.Payload, &t.Priority, &t.Status,
		&assignedTo, &t.Result, &errMsg,
		&t.CreatedAt, &t.ClaimedAt, &t.StartedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if assignedTo.Valid {
		val := assignedTo.String
		t.AssignedTo = &val
	}
	if errMsg.Valid {
		val := errMsg.String
		t.Error = &val
	}
	return &t, nil
}
