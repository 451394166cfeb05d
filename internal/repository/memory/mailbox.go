package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xela07ax/agentops-console/internal/domain"
)

type mailboxSlot struct {
	cmd       domain.Command
	expiresAt time.Time
}

// Mailbox повторяет редисовую семантику SET+TTL / GETDEL:
// одна команда на target, перезапись при Put, одноразовый Take.
type Mailbox struct {
	mu    sync.Mutex
	slots map[string]mailboxSlot

	now func() time.Time
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		slots: make(map[string]mailboxSlot),
		now:   time.Now,
	}
}

func (m *Mailbox) SetClock(now func() time.Time) { m.now = now }

func (m *Mailbox) Put(_ context.Context, cmd domain.Command, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots[cmd.TargetID] = mailboxSlot{
		cmd:       cmd,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

func (m *Mailbox) Take(_ context.Context, targetID string) (*domain.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[targetID]
	if !ok {
		return nil, nil
	}
	delete(m.slots, targetID)

	// Протухшая команда неотличима от отсутствующей
	if m.now().After(slot.expiresAt) {
		return nil, nil
	}
	cp := slot.cmd
	return &cp, nil
}
