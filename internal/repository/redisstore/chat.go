package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChatRoom транслирует пропущенные лимитером сообщения в Pub/Sub-канал
// операторской комнаты. Подписчики (веб-консоль) слушают канал сами;
// истории нет — чат эфемерный, как и остальное в этом пакете.
type ChatRoom struct {
	rdb     *redis.Client
	channel string
}

func NewChatRoom(rdb *redis.Client) *ChatRoom {
	return &ChatRoom{rdb: rdb, channel: chatChannel()}
}

type chatMessage struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

func (c *ChatRoom) Send(ctx context.Context, sender, text string) error {
	data, err := json.Marshal(chatMessage{
		Sender: sender,
		Text:   text,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("chat: failed to marshal message: %w", err)
	}

	if err := c.rdb.Publish(ctx, c.channel, data).Err(); err != nil {
		return fmt.Errorf("chat: failed to publish message: %w", err)
	}
	return nil
}
