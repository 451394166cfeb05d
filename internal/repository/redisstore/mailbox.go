// Package redisstore держит всё эфемерное состояние координации:
// одноразовые команды почтового ящика и окна rate limiter'а.
// Долговременные сущности сюда не попадают — у них Postgres.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
)

type Mailbox struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewMailbox(rdb *redis.Client, logger *zap.Logger) *Mailbox {
	return &Mailbox{rdb: rdb, logger: logger.Named("mailbox")}
}

// Put кладет команду под ключ target'а, перетирая предыдущую:
// на одного адресата — максимум одна отложенная инструкция.
// TTL гарантирует, что непрочитанная команда тихо истечет сама.
func (m *Mailbox) Put(ctx context.Context, cmd domain.Command, ttl time.Duration) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("mailbox: failed to marshal command: %w", err)
	}

	key := mailboxKey(cmd.TargetID)
	if err := m.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("mailbox: failed to store command: %w", err)
	}
	return nil
}

// Take забирает и удаляет команду одним атомарным GETDEL.
// Два конкурентных poll'а одного target'а не увидят одну команду
// дважды — второй получит nil. Nil без ошибки — ящик пуст.
func (m *Mailbox) Take(ctx context.Context, targetID string) (*domain.Command, error) {
	val, err := m.rdb.GetDel(ctx, mailboxKey(targetID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("mailbox: failed to take command: %w", err)
	}

	var cmd domain.Command
	if err := json.Unmarshal([]byte(val), &cmd); err != nil {
		// Битое значение выбрасываем: команда уже удалена, ретраить нечего
		m.logger.Error("dropping malformed command", zap.String("target", targetID), zap.Error(err))
		return nil, nil
	}
	return &cmd, nil
}
