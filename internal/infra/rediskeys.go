package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "aoc"
)

// Ключи эфемерного состояния. Redis хранит только скоропортящееся:
// команды почтового ящика и окна rate limiter'а.
const (
	redisKeyMailboxPrefix = RedisNamespace + ":mailbox:"
	redisKeyWindowPrefix  = RedisNamespace + ":ratelimit:"

	// RedisChatChannel — Pub/Sub-канал операторской комнаты.
	RedisChatChannel = RedisNamespace + ":chat:room"
)

// MailboxKey — ключ единственной отложенной команды агента.
func MailboxKey(targetID string) string {
	return fmt.Sprintf("%s%s", redisKeyMailboxPrefix, targetID)
}

// WindowKey — ключ скользящего окна отправителя.
func WindowKey(sender string) string {
	return fmt.Sprintf("%s%s", redisKeyWindowPrefix, sender)
}
