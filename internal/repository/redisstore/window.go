package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentops-console/internal/infra"
)

func mailboxKey(targetID string) string { return infra.MailboxKey(targetID) }
func windowKey(sender string) string    { return infra.WindowKey(sender) }
func chatChannel() string               { return infra.RedisChatChannel }

// Window хранит скользящее окно запросов отправителя как sorted set:
// score — миллисекундный таймстемп, член — уникален. Это логическое
// окно относительно «сейчас», а не фиксированные бакеты: резких
// сбросов на границах не бывает.
type Window struct {
	rdb *redis.Client
}

func NewWindow(rdb *redis.Client) *Window {
	return &Window{rdb: rdb}
}

// Snapshot отрезает записи старше начала окна и возвращает число
// оставшихся плюс самый старый таймстемп (нужен для reset_ms).
func (w *Window) Snapshot(ctx context.Context, sender string, windowStart time.Time) (int64, time.Time, error) {
	key := windowKey(sender)
	cutoff := strconv.FormatInt(windowStart.UnixMilli(), 10)

	pipe := w.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", cutoff)
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit window: snapshot failed: %w", err)
	}

	count := countCmd.Val()
	var oldest time.Time
	if entries := oldestCmd.Val(); len(entries) > 0 {
		oldest = time.UnixMilli(int64(entries[0].Score))
	}
	return count, oldest, nil
}

// Append фиксирует новый запрос и продлевает TTL ключа чуть дольше
// окна, чтобы состояние молчащих отправителей истекало само.
func (w *Window) Append(ctx context.Context, sender string, at time.Time, ttl time.Duration) error {
	key := windowKey(sender)

	pipe := w.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: uuid.NewString(), // Уникальный член: два запроса в одну миллисекунду — оба считаются
	})
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ratelimit window: append failed: %w", err)
	}
	return nil
}
