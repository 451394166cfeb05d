package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/repository/memory"
	"go.uber.org/zap"
)

// trailStub собирает события трейла синхронно, без воркера.
type trailStub struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *trailStub) Record(e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *trailStub) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

func newTaskService(store *memory.TaskStore) (*TaskService, *trailStub) {
	trail := &trailStub{}
	return NewTaskService(store, trail, nil, domain.PriorityNormal, zap.NewNop()), trail
}

func TestEnqueueDefaultsAndValidation(t *testing.T) {
	svc, _ := newTaskService(memory.NewTaskStore())
	ctx := context.Background()

	task, err := svc.Enqueue(ctx, "post_review", "review a post", nil, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Priority != domain.PriorityNormal {
		t.Errorf("expected default priority normal, got %q", task.Priority)
	}
	if task.Status != domain.TaskPending {
		t.Errorf("expected pending, got %q", task.Status)
	}
	if task.ID == "" {
		t.Error("expected generated id")
	}

	if _, err := svc.Enqueue(ctx, "post_review", "", nil, "critical", ""); err != domain.ErrUnknownPriority {
		t.Errorf("expected ErrUnknownPriority, got %v", err)
	}
}

func TestClaimRaceExactlyOneWinner(t *testing.T) {
	svc, trail := newTaskService(memory.NewTaskStore())
	ctx := context.Background()

	task, err := svc.Enqueue(ctx, "post_review", "", nil, domain.PriorityNormal, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Толпа агентов ломится за одной задачей
	const agents = 32
	results := make([]bool, agents)
	var wg sync.WaitGroup
	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := svc.Claim(ctx, task.ID, "agent-"+string(rune('a'+n%26)))
			if err != nil {
				t.Errorf("claim error: %v", err)
				return
			}
			results[n] = ok
		}(i)
	}
	wg.Wait()

	won := 0
	for _, ok := range results {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}

	claimed, conflicts := 0, 0
	for _, kind := range trail.kinds() {
		switch kind {
		case audit.KindClaimed:
			claimed++
		case audit.KindClaimConflict:
			conflicts++
		}
	}
	if claimed != 1 || conflicts != agents-1 {
		t.Errorf("trail mismatch: claimed=%d conflicts=%d", claimed, conflicts)
	}
}

func TestNextAvailableOrdering(t *testing.T) {
	store := memory.NewTaskStore()
	svc, _ := newTaskService(store)
	ctx := context.Background()

	// Ставим вразнобой: выбор должен идти по рангу приоритета
	low, _ := svc.Enqueue(ctx, "job", "", nil, domain.PriorityLow, "")
	urgent, _ := svc.Enqueue(ctx, "job", "", nil, domain.PriorityUrgent, "")
	normal, _ := svc.Enqueue(ctx, "job", "", nil, domain.PriorityNormal, "")
	high, _ := svc.Enqueue(ctx, "job", "", nil, domain.PriorityHigh, "")

	expect := []string{urgent.ID, high.ID, normal.ID, low.ID}
	for i, wantID := range expect {
		next, err := svc.NextAvailable(ctx, "worker", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if next == nil || next.ID != wantID {
			t.Fatalf("step %d: expected task %s, got %+v", i, wantID, next)
		}
		if ok, _ := svc.Claim(ctx, next.ID, "worker"); !ok {
			t.Fatalf("step %d: claim must succeed", i)
		}
	}

	// Очередь пуста — штатный nil
	next, err := svc.NextAvailable(ctx, "worker", "")
	if err != nil || next != nil {
		t.Errorf("expected empty queue, got task=%v err=%v", next, err)
	}
}

func TestNextAvailableFIFOTieBreak(t *testing.T) {
	store := memory.NewTaskStore()
	svc, _ := newTaskService(store)
	ctx := context.Background()

	// Одинаковый приоритет: старшая по created_at идет первой
	first, _ := svc.Enqueue(ctx, "job", "", nil, domain.PriorityNormal, "")
	time.Sleep(2 * time.Millisecond)
	svc.Enqueue(ctx, "job", "", nil, domain.PriorityNormal, "")

	next, err := svc.NextAvailable(ctx, "worker", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ID != first.ID {
		t.Errorf("expected FIFO order within same priority, got %s want %s", next.ID, first.ID)
	}
}

func TestNextAvailableSkipsPreassigned(t *testing.T) {
	svc, _ := newTaskService(memory.NewTaskStore())
	ctx := context.Background()

	reserved, _ := svc.Enqueue(ctx, "job", "", nil, domain.PriorityUrgent, "agent-b")
	open, _ := svc.Enqueue(ctx, "job", "", nil, domain.PriorityNormal, "")

	// Чужому агенту зарезервированная задача не предлагается
	next, _ := svc.NextAvailable(ctx, "agent-a", "")
	if next == nil || next.ID != open.ID {
		t.Fatalf("agent-a: expected open task, got %+v", next)
	}

	// Адресату — предлагается, причем раньше по приоритету
	next, _ = svc.NextAvailable(ctx, "agent-b", "")
	if next == nil || next.ID != reserved.ID {
		t.Fatalf("agent-b: expected reserved task, got %+v", next)
	}
}

func TestStateMachineLegality(t *testing.T) {
	svc, _ := newTaskService(memory.NewTaskStore())
	ctx := context.Background()

	task, _ := svc.Enqueue(ctx, "job", "", nil, domain.PriorityNormal, "")

	// start на pending — отказ
	if ok, err := svc.Start(ctx, task.ID); err != nil || ok {
		t.Errorf("start on pending: ok=%v err=%v, want false", ok, err)
	}

	if ok, _ := svc.Claim(ctx, task.ID, "w1"); !ok {
		t.Fatal("claim must succeed")
	}
	// Повторный claim того же id — проигрыш, не ошибка
	if ok, err := svc.Claim(ctx, task.ID, "w2"); err != nil || ok {
		t.Errorf("second claim: ok=%v err=%v, want false nil", ok, err)
	}

	if ok, _ := svc.Start(ctx, task.ID); !ok {
		t.Fatal("start on claimed must succeed")
	}
	if ok, _ := svc.Complete(ctx, task.ID, json.RawMessage(`{"n":1}`)); !ok {
		t.Fatal("complete on in_progress must succeed")
	}

	// Повторный complete уже завершенной — no-op с true
	if ok, err := svc.Complete(ctx, task.ID, nil); err != nil || !ok {
		t.Errorf("repeat complete: ok=%v err=%v, want true nil", ok, err)
	}
	// fail после done — отказ
	if ok, err := svc.Fail(ctx, task.ID, "boom"); err != nil || ok {
		t.Errorf("fail after done: ok=%v err=%v, want false nil", ok, err)
	}
	// claim терминальной — отказ
	if ok, _ := svc.Claim(ctx, task.ID, "w3"); ok {
		t.Error("claim of terminal task must fail")
	}

	got, _ := svc.Get(ctx, task.ID)
	if got.Status != domain.TaskDone {
		t.Errorf("expected done, got %q", got.Status)
	}
	if got.AssignedTo == nil || *got.AssignedTo != "w1" {
		t.Errorf("expected assigned_to w1, got %v", got.AssignedTo)
	}
}

func TestFailFromClaimed(t *testing.T) {
	svc, _ := newTaskService(memory.NewTaskStore())
	ctx := context.Background()

	task, _ := svc.Enqueue(ctx, "job", "", nil, domain.PriorityNormal, "")
	svc.Claim(ctx, task.ID, "w1")

	// claimed может упасть и без start
	if ok, _ := svc.Fail(ctx, task.ID, "handler panic"); !ok {
		t.Fatal("fail on claimed must succeed")
	}

	got, _ := svc.Get(ctx, task.ID)
	if got.Status != domain.TaskFailed {
		t.Errorf("expected failed, got %q", got.Status)
	}
	if got.Error == nil || *got.Error != "handler panic" {
		t.Errorf("expected recorded error, got %v", got.Error)
	}
}

func TestReclaimExpiredClaims(t *testing.T) {
	store := memory.NewTaskStore()
	svc, _ := newTaskService(store)
	ctx := context.Background()

	base := time.Now()
	store.SetClock(func() time.Time { return base })

	task, _ := svc.Enqueue(ctx, "job", "", nil, domain.PriorityNormal, "")
	svc.Claim(ctx, task.ID, "w1")

	// Аренда еще жива — ничего не возвращается
	store.SetClock(func() time.Time { return base.Add(10 * time.Minute) })
	if n, _ := svc.Reclaim(ctx, 15*time.Minute); n != 0 {
		t.Errorf("expected 0 reclaimed, got %d", n)
	}

	// Аренда протухла — задача возвращается в pending без владельца
	store.SetClock(func() time.Time { return base.Add(20 * time.Minute) })
	n, err := svc.Reclaim(ctx, 15*time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 reclaimed, got n=%d err=%v", n, err)
	}

	got, _ := svc.Get(ctx, task.ID)
	if got.Status != domain.TaskPending || got.AssignedTo != nil || got.ClaimedAt != nil {
		t.Errorf("expected clean pending task, got %+v", got)
	}

	// И ее можно захватить заново
	if ok, _ := svc.Claim(ctx, task.ID, "w2"); !ok {
		t.Error("reclaimed task must be claimable")
	}
}

func TestListReturnsEmptySlice(t *testing.T) {
	svc, _ := newTaskService(memory.NewTaskStore())

	tasks, err := svc.List(context.Background(), domain.TaskFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tasks == nil {
		t.Error("expected [] instead of nil")
	}
}
