package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/repository/memory"
	"go.uber.org/zap"
)

func newAgentService() (*AgentService, *memory.AgentStore, *memory.Mailbox, *trailStub) {
	store := memory.NewAgentStore()
	mailbox := memory.NewMailbox()
	trail := &trailStub{}
	svc := NewAgentService(store, mailbox, trail, nil, 10*time.Minute, 5*time.Minute, zap.NewNop())
	return svc, store, mailbox, trail
}

func TestMailboxOneShotDelivery(t *testing.T) {
	svc, _, _, trail := newAgentService()
	ctx := context.Background()

	if _, err := svc.EnqueueCommand(ctx, "worker-1", "pause", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Первый poll забирает команду
	cmd, err := svc.Poll(ctx, "worker-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd == nil || cmd.Action != "pause" {
		t.Fatalf("expected pause command, got %+v", cmd)
	}

	// Второй — уже пустой ящик
	cmd, err = svc.Poll(ctx, "worker-1")
	if err != nil || cmd != nil {
		t.Errorf("expected empty mailbox, got cmd=%v err=%v", cmd, err)
	}

	queued, delivered := 0, 0
	for _, kind := range trail.kinds() {
		switch kind {
		case audit.KindCommandQueued:
			queued++
		case audit.KindCommandDelivered:
			delivered++
		}
	}
	if queued != 1 || delivered != 1 {
		t.Errorf("trail mismatch: queued=%d delivered=%d", queued, delivered)
	}
}

func TestMailboxOverwriteKeepsLastCommand(t *testing.T) {
	svc, _, _, _ := newAgentService()
	ctx := context.Background()

	svc.EnqueueCommand(ctx, "worker-1", "pause", nil)
	svc.EnqueueCommand(ctx, "worker-1", "resume", json.RawMessage(`{"why":"done"}`))

	// Агент видит только последнюю инструкцию
	cmd, err := svc.Poll(ctx, "worker-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd == nil || cmd.Action != "resume" {
		t.Fatalf("expected resume to overwrite pause, got %+v", cmd)
	}

	if cmd2, _ := svc.Poll(ctx, "worker-1"); cmd2 != nil {
		t.Error("overwrite must not leave a second command behind")
	}
}

func TestMailboxCommandExpires(t *testing.T) {
	svc, _, mailbox, _ := newAgentService()
	ctx := context.Background()

	base := time.Now()
	mailbox.SetClock(func() time.Time { return base })

	svc.EnqueueCommand(ctx, "worker-1", "pause", nil)

	// Спустя TTL+1 минуту команда неотличима от отсутствующей
	mailbox.SetClock(func() time.Time { return base.Add(11 * time.Minute) })
	cmd, err := svc.Poll(ctx, "worker-1")
	if err != nil || cmd != nil {
		t.Errorf("expected expired command to vanish, got cmd=%v err=%v", cmd, err)
	}
}

func TestMailboxIsolatedPerTarget(t *testing.T) {
	svc, _, _, _ := newAgentService()
	ctx := context.Background()

	svc.EnqueueCommand(ctx, "worker-1", "pause", nil)

	// Чужой ящик пуст
	if cmd, _ := svc.Poll(ctx, "worker-2"); cmd != nil {
		t.Errorf("worker-2 must not see worker-1 command, got %+v", cmd)
	}
	// Свой — нет
	if cmd, _ := svc.Poll(ctx, "worker-1"); cmd == nil {
		t.Error("worker-1 command must survive a foreign poll")
	}
}

func TestPresenceThreshold(t *testing.T) {
	svc, store, _, _ := newAgentService()
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }
	store.SetClock(func() time.Time { return base })

	if err := svc.Heartbeat(ctx, "fresh"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 4 минуты тишины — еще online, 6 — уже offline
	svc.now = func() time.Time { return base.Add(4 * time.Minute) }
	entries, err := svc.Snapshot(ctx, []string{"fresh", "ghost"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertPresence(t, entries, "fresh", true, true)
	assertPresence(t, entries, "ghost", false, false)

	svc.now = func() time.Time { return base.Add(6 * time.Minute) }
	entries, _ = svc.Snapshot(ctx, []string{"fresh"})
	assertPresence(t, entries, "fresh", false, true)
}

func assertPresence(t *testing.T, entries []domain.PresenceEntry, sender string, online, hasSeen bool) {
	t.Helper()
	for _, e := range entries {
		if e.Sender != sender {
			continue
		}
		if e.Online != online {
			t.Errorf("%s: online=%v, want %v", sender, e.Online, online)
		}
		if (e.LastSeen != nil) != hasSeen {
			t.Errorf("%s: last_seen presence=%v, want %v", sender, e.LastSeen != nil, hasSeen)
		}
		return
	}
	t.Errorf("sender %s missing from snapshot", sender)
}

func TestHeartbeatUpsertWithoutRegistration(t *testing.T) {
	svc, _, _, _ := newAgentService()
	ctx := context.Background()

	// Heartbeat от незарегистрированного sender'а — не ошибка
	if err := svc.Heartbeat(ctx, "stranger"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Дубликат безвреден
	if err := svc.Heartbeat(ctx, "stranger"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, _ := svc.Snapshot(ctx, []string{"stranger"})
	assertPresence(t, entries, "stranger", true, true)
}

func TestRegisterIsIdempotent(t *testing.T) {
	svc, _, _, _ := newAgentService()
	ctx := context.Background()

	first, err := svc.Register(ctx, "worker-1", "reviewer", []string{"post_review"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Register(ctx, "worker-1", "reviewer", []string{"post_review", "book_update"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("re-registration must keep agent id: %s vs %s", first.ID, second.ID)
	}

	agents, _, err := svc.ListAgents(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}
	if len(agents[0].Capabilities) != 2 {
		t.Errorf("expected updated capabilities, got %v", agents[0].Capabilities)
	}
}
