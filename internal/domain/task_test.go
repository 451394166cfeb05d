package domain

import (
	"errors"
	"testing"
)

func TestPriorityRank(t *testing.T) {
	cases := []struct {
		priority TaskPriority
		rank     int
	}{
		{PriorityUrgent, 1},
		{PriorityHigh, 2},
		{PriorityNormal, 3},
		{PriorityLow, 4},
		{TaskPriority("bogus"), 5},
	}
	for _, c := range cases {
		if got := c.priority.Rank(); got != c.rank {
			t.Errorf("Rank(%q) = %d, want %d", c.priority, got, c.rank)
		}
	}
}

func TestPriorityValid(t *testing.T) {
	for _, p := range []TaskPriority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow} {
		if !p.Valid() {
			t.Errorf("expected %q to be valid", p)
		}
	}
	if TaskPriority("critical").Valid() {
		t.Error("expected unknown priority to be invalid")
	}
	if TaskPriority("").Valid() {
		t.Error("expected empty priority to be invalid")
	}
}

func TestStatusTerminal(t *testing.T) {
	if !TaskDone.Terminal() || !TaskFailed.Terminal() {
		t.Error("done and failed must be terminal")
	}
	for _, s := range []TaskStatus{TaskPending, TaskClaimed, TaskInProgress} {
		if s.Terminal() {
			t.Errorf("%q must not be terminal", s)
		}
	}
}

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		wantErr  error
	}{
		{TaskPending, TaskClaimed, nil},
		{TaskClaimed, TaskInProgress, nil},
		{TaskClaimed, TaskDone, nil},
		{TaskClaimed, TaskFailed, nil},
		{TaskInProgress, TaskDone, nil},
		{TaskInProgress, TaskFailed, nil},

		// Переходы назад и через ступень запрещены
		{TaskPending, TaskInProgress, ErrInvalidTransition},
		{TaskPending, TaskDone, ErrInvalidTransition},
		{TaskInProgress, TaskClaimed, ErrInvalidTransition},
		{TaskClaimed, TaskClaimed, ErrInvalidTransition},

		// Терминальные статусы не покидаются
		{TaskDone, TaskClaimed, ErrAlreadyTerminal},
		{TaskDone, TaskFailed, ErrAlreadyTerminal},
		{TaskFailed, TaskInProgress, ErrAlreadyTerminal},
	}

	for _, c := range cases {
		task := &Task{Status: c.from}
		err := task.CanTransitionTo(c.to)
		if !errors.Is(err, c.wantErr) {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, err, c.wantErr)
		}
	}
}
