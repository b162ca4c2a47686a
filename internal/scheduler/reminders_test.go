package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/mozi-run/mozi/internal/transport"
)

func newTestScheduler(t *testing.T) (*Scheduler, []transport.InboundMessage) {
	t.Helper()
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var dispatched []transport.InboundMessage
	dispatch := func(_ context.Context, msg transport.InboundMessage) {
		dispatched = append(dispatched, msg)
	}
	s := New(store, nil, nil, dispatch, nil, nil)
	return s, dispatched
}

func TestCreateListCancelReminder(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "agent:mozi:main", "check in", []string{"every", "1h", "how's", "it", "going"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := s.List(ctx, "agent:mozi:main")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 reminder, got %d", len(list))
	}

	if err := s.Cancel(ctx, "agent:mozi:main", id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	list, err = s.List(ctx, "agent:mozi:main")
	if err != nil {
		t.Fatalf("List after cancel: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected 0 reminders after cancel, got %d", len(list))
	}
}

func TestCreateRejectsInvalidCron(t *testing.T) {
	s, _ := newTestScheduler(t)
	if _, err := s.Create(context.Background(), "agent:mozi:main", "bad", []string{"cron", "not-a-cron-expr", "text"}); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
}

func TestSnoozeOnlyAffectsOneShot(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "agent:mozi:main", "once", []string{"at", time.Now().Add(time.Hour).Format(time.RFC3339), "hi"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Snooze(ctx, "agent:mozi:main", id, time.Hour); err != nil {
		t.Fatalf("Snooze: %v", err)
	}

	everyID, err := s.Create(ctx, "agent:mozi:main", "periodic", []string{"every", "1h", "hi"})
	if err != nil {
		t.Fatalf("Create periodic: %v", err)
	}
	if err := s.Snooze(ctx, "agent:mozi:main", everyID, time.Hour); err == nil {
		t.Fatalf("expected snooze to reject a periodic reminder")
	}
}

func TestDueReminderSelfDisablesOneShot(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "agent:mozi:main", "once", []string{"at", time.Now().Add(-time.Minute).Format(time.RFC3339), "fire now"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	due, err := s.dueReminders(ctx, time.Now())
	if err != nil {
		t.Fatalf("dueReminders: %v", err)
	}
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("expected the one-shot reminder to be due, got %+v", due)
	}

	if err := s.markFired(ctx, due[0], time.Now()); err != nil {
		t.Fatalf("markFired: %v", err)
	}

	due, err = s.dueReminders(ctx, time.Now())
	if err != nil {
		t.Fatalf("dueReminders after fire: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected the one-shot reminder to self-disable, got %+v", due)
	}
}
