package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xela07ax/agentops-console/internal/repository/memory"
	"go.uber.org/zap"
)

func newTestLimiter(limit int, window time.Duration) (*Limiter, *memory.Window) {
	store := memory.NewWindow()
	l := NewLimiter(store, limit, window, nil, zap.NewNop())
	return l, store
}

func TestLimiterAllowsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(30, time.Minute)
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	for i := 0; i < 30; i++ {
		d := l.CheckAndRecord(ctx, "chatty")
		if !d.Allowed {
			t.Fatalf("request %d unexpectedly denied", i+1)
		}
		if d.Remaining != 30-i-1 {
			t.Errorf("request %d: remaining=%d, want %d", i+1, d.Remaining, 30-i-1)
		}
	}

	// 31-й — отказ с ненулевым reset
	d := l.CheckAndRecord(ctx, "chatty")
	if d.Allowed {
		t.Fatal("request 31 must be denied")
	}
	if d.Remaining != 0 {
		t.Errorf("denied remaining=%d, want 0", d.Remaining)
	}
	if d.ResetMs <= 0 {
		t.Errorf("denied reset_ms=%d, want > 0", d.ResetMs)
	}
	if d.ResetMs > time.Minute.Milliseconds() {
		t.Errorf("reset_ms=%d exceeds the window", d.ResetMs)
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute)
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		if d := l.CheckAndRecord(ctx, "s"); !d.Allowed {
			t.Fatalf("request %d unexpectedly denied", i+1)
		}
	}
	if d := l.CheckAndRecord(ctx, "s"); d.Allowed {
		t.Fatal("over-limit request must be denied")
	}

	// Окно уехало — старые отметки больше не считаются
	l.now = func() time.Time { return base.Add(61 * time.Second) }
	d := l.CheckAndRecord(ctx, "s")
	if !d.Allowed {
		t.Fatal("request after window elapse must be allowed")
	}
	if d.Remaining != 4 {
		t.Errorf("remaining=%d, want 4", d.Remaining)
	}
}

func TestLimiterIsolatesSenders(t *testing.T) {
	l, _ := newTestLimiter(2, time.Minute)
	ctx := context.Background()

	l.CheckAndRecord(ctx, "a")
	l.CheckAndRecord(ctx, "a")
	if d := l.CheckAndRecord(ctx, "a"); d.Allowed {
		t.Fatal("sender a must be exhausted")
	}

	// Чужая квота не тратится
	if d := l.CheckAndRecord(ctx, "b"); !d.Allowed {
		t.Fatal("sender b must have its own window")
	}
}

func TestLimiterFailsOpen(t *testing.T) {
	l, store := newTestLimiter(3, time.Minute)
	ctx := context.Background()

	// Хранилище легло: лимитер пропускает, а не глушит трафик.
	// Ошибок меньше порога предохранителя, чтобы он не открылся
	// и восстановление было видно сразу же.
	store.Err = errors.New("connection refused")
	for i := 0; i < 5; i++ {
		d := l.CheckAndRecord(ctx, "s")
		if !d.Allowed {
			t.Fatalf("request %d must fail open", i+1)
		}
		if d.Remaining != 3 {
			t.Errorf("fail-open remaining=%d, want full limit", d.Remaining)
		}
	}

	// Хранилище ожило — лимит снова считается
	store.Err = nil
	for i := 0; i < 3; i++ {
		if d := l.CheckAndRecord(ctx, "s2"); !d.Allowed {
			t.Fatalf("request %d unexpectedly denied after recovery", i+1)
		}
	}
	if d := l.CheckAndRecord(ctx, "s2"); d.Allowed {
		t.Fatal("limit must be enforced again after recovery")
	}
}
