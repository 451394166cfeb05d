package domain

import "time"

// HeartbeatRecord — одна строка на отправителя, перезаписывается
// каждым heartbeat (upsert, не append). История не хранится.
type HeartbeatRecord struct {
	Sender   string    `json:"sender"`
	LastSeen time.Time `json:"last_seen"`
}

// PresenceEntry — вычисленный статус для snapshot():
// online = last_seen != null && (now - last_seen) < offline_threshold.
type PresenceEntry struct {
	Sender   string     `json:"sender"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen"`
}
