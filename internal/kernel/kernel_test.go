package kernel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mozi-run/mozi/internal/errs"
	"github.com/mozi-run/mozi/internal/promptdriver"
)

type fakeStream struct {
	events []promptdriver.Event
	idx    int
}

func (s *fakeStream) Next() (promptdriver.Event, bool) {
	if s.idx >= len(s.events) {
		return promptdriver.Event{}, false
	}
	ev := s.events[s.idx]
	s.idx++
	return ev, s.idx < len(s.events)
}

type fakeDriver struct {
	mu    sync.Mutex
	calls []string
	plan  map[string][]promptdriver.Event
	err   error
	delay time.Duration
}

func (d *fakeDriver) Run(ctx context.Context, req promptdriver.Request) (promptdriver.Stream, error) {
	d.mu.Lock()
	d.calls = append(d.calls, req.Model)
	d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return &fakeStream{events: []promptdriver.Event{{Kind: promptdriver.EventError, Err: ctx.Err()}}}, nil
		}
	}
	return &fakeStream{events: d.plan[req.Model]}, nil
}

func TestEnqueueReturnsFinalText(t *testing.T) {
	driver := &fakeDriver{plan: map[string][]promptdriver.Event{
		"primary": {
			{Kind: promptdriver.EventTextDelta, TextDelta: "hello "},
			{Kind: promptdriver.EventFinal, FinalText: "hello world"},
		},
	}}
	k := New(driver, nil)

	out := k.Enqueue(context.Background(), Turn{
		SessionKey: "agent:mozi:main",
		Models:     []string{"primary"},
	})

	if out.Status != StatusOK {
		t.Fatalf("expected StatusOK, got %v (err=%v)", out.Status, out.Err)
	}
	if out.Text != "hello world" {
		t.Errorf("expected final text to win over deltas, got %q", out.Text)
	}
}

func TestEnqueueFallsBackOnRecoverableError(t *testing.T) {
	driver := &fakeDriver{plan: map[string][]promptdriver.Event{
		"primary":  {{Kind: promptdriver.EventError, Err: errs.New(errs.CodeTransportRecoverable, "flaky")}},
		"fallback": {{Kind: promptdriver.EventFinal, FinalText: "ok via fallback"}},
	}}
	k := New(driver, nil)

	var events []FallbackEvent
	out := k.Enqueue(context.Background(), Turn{
		SessionKey: "agent:mozi:main",
		Models:     []string{"primary", "fallback"},
		OnFallback: func(ev FallbackEvent) { events = append(events, ev) },
	})

	if out.Status != StatusOK || out.Text != "ok via fallback" {
		t.Fatalf("expected fallback success, got %+v", out)
	}
	if len(events) != 1 || events[0].FromModel != "primary" || events[0].ToModel != "fallback" {
		t.Errorf("expected one fallback event primary->fallback, got %+v", events)
	}
}

func TestEnqueueNonRetryableShortCircuits(t *testing.T) {
	driver := &fakeDriver{plan: map[string][]promptdriver.Event{
		"primary": {{Kind: promptdriver.EventError, Err: errs.New(errs.CodeAuthMissing, "no key configured")}},
	}}
	k := New(driver, nil)

	out := k.Enqueue(context.Background(), Turn{
		SessionKey: "agent:mozi:main",
		Models:     []string{"primary", "fallback"},
	})

	if out.Status != StatusFailed {
		t.Fatalf("expected StatusFailed, got %v", out.Status)
	}
	if len(driver.calls) != 1 {
		t.Errorf("expected only the primary model to be attempted, got calls=%v", driver.calls)
	}
}

func TestInterruptSessionCancelsActiveTurn(t *testing.T) {
	driver := &fakeDriver{delay: 200 * time.Millisecond}
	k := New(driver, nil)

	var out Outcome
	done := make(chan struct{})
	go func() {
		out = k.Enqueue(context.Background(), Turn{
			SessionKey: "agent:mozi:main",
			Models:     []string{"primary"},
		})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	k.InterruptSession("agent:mozi:main", "user requested stop")
	<-done

	if out.Status != StatusInterrupted {
		t.Fatalf("expected StatusInterrupted, got %v", out.Status)
	}
	if out.Reason != "user requested stop" {
		t.Errorf("expected Outcome.Reason to carry InterruptSession's reason, got %q", out.Reason)
	}
}

func TestEnqueueInterruptedByContextCancelWithoutInterruptSessionKeepsDefaultReason(t *testing.T) {
	driver := &fakeDriver{delay: 200 * time.Millisecond}
	k := New(driver, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var out Outcome
	done := make(chan struct{})
	go func() {
		out = k.Enqueue(ctx, Turn{
			SessionKey: "agent:mozi:other",
			Models:     []string{"primary"},
		})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if out.Status != StatusInterrupted {
		t.Fatalf("expected StatusInterrupted, got %v", out.Status)
	}
	if out.Reason != "cancelled" {
		t.Errorf("expected default reason %q for a plain context cancellation, got %q", "cancelled", out.Reason)
	}
}

func TestEnqueueSerializesSameSessionKey(t *testing.T) {
	driver := &fakeDriver{plan: map[string][]promptdriver.Event{
		"primary": {{Kind: promptdriver.EventFinal, FinalText: "done"}},
	}}
	k := New(driver, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Enqueue(context.Background(), Turn{SessionKey: "agent:mozi:main", Models: []string{"primary"}})
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(order) != 5 {
		t.Fatalf("expected 5 completions, got %d", len(order))
	}
}
