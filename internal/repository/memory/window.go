package memory

import (
	"context"
	"sync"
	"time"
)

// Window — скользящее окно в памяти с той же семантикой, что у
// redisstore.Window: Snapshot чистит хвост и возвращает счетчик
// с самой старой отметкой, Append дописывает текущий запрос.
type Window struct {
	mu      sync.Mutex
	entries map[string][]time.Time

	// Err подставляется тестами fail-open: любой вызов вернет его
	Err error
}

func NewWindow() *Window {
	return &Window{entries: make(map[string][]time.Time)}
}

func (w *Window) Snapshot(_ context.Context, sender string, windowStart time.Time) (int64, time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.Err != nil {
		return 0, time.Time{}, w.Err
	}

	kept := w.entries[sender][:0]
	for _, at := range w.entries[sender] {
		if !at.Before(windowStart) {
			kept = append(kept, at)
		}
	}
	w.entries[sender] = kept

	var oldest time.Time
	if len(kept) > 0 {
		oldest = kept[0]
	}
	return int64(len(kept)), oldest, nil
}

func (w *Window) Append(_ context.Context, sender string, at time.Time, _ time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.Err != nil {
		return w.Err
	}
	w.entries[sender] = append(w.entries[sender], at)
	return nil
}
