// Package kernel implements the dispatch kernel: one single-writer lane per
// session key, so that for any given key at most one turn ever runs at a
// time and every other enqueue for that key waits its turn.
//
// Grounded on the teacher's per-session concurrency discipline in
// cmd/gateway_cron.go ("same job can't run concurrently", scheduler.LaneCron)
// and the cancellable run-request shape of agent.RunRequest/RunOutcome. The
// teacher's own internal/scheduler package is referenced at those call sites
// but its source was not present in the retrieved extract, so this package
// is grounded on the call-site shape rather than on a scheduler
// implementation file; see DESIGN.md.
package kernel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mozi-run/mozi/internal/errs"
	"github.com/mozi-run/mozi/internal/promptdriver"
)

// Status is the terminal state of one turn.
type Status string

const (
	StatusOK          Status = "ok"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
	StatusTimeout     Status = "timeout"
)

// FallbackEvent is reported to an onFallback callback before each retry
// across the fallback model chain.
type FallbackEvent struct {
	FromModel string
	ToModel   string
	Attempt   int
	Err       error
}

// Turn describes one unit of work to run on a session's lane.
type Turn struct {
	SessionKey   string
	TraceID      string
	SystemPrompt string
	Prompt       string

	// Models is the ordered (primary, fallback...) chain. Must be non-empty.
	Models []string

	// OnFallback is invoked before each retry onto the next model.
	OnFallback func(FallbackEvent)

	// OnEvent streams driver events back to the caller as they arrive, for
	// phase/typing rendering. May be nil.
	OnEvent func(promptdriver.Event)

	// InactivityTimeout overrides the kernel's default 30s per-turn
	// inactivity timeout when non-zero.
	InactivityTimeout time.Duration
}

// Outcome is the terminal result of one turn.
type Outcome struct {
	Status Status
	Text   string
	Err    error
	Reason string // populated when Status == StatusInterrupted
}

const defaultInactivityTimeout = 30 * time.Second

// Kernel owns one lane per session key and drives turns through a Driver.
type Kernel struct {
	driver promptdriver.Driver
	logger *slog.Logger

	mu    sync.Mutex
	lanes map[string]*lane
}

// New constructs a Kernel that drives turns through driver.
func New(driver promptdriver.Driver, logger *slog.Logger) *Kernel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kernel{driver: driver, logger: logger, lanes: make(map[string]*lane)}
}

// lane is the single-writer queue for one session key.
type lane struct {
	mu        sync.Mutex
	current   *activeTurn
	runningMu sync.Mutex // serializes turn execution on this lane
}

// activeTurn is the cancellable handle of a turn currently executing.
type activeTurn struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	reason string // surfaced on Outcome.Reason when the turn is interrupted
}

func (a *activeTurn) setReason(reason string) {
	a.mu.Lock()
	a.reason = reason
	a.mu.Unlock()
}

func (a *activeTurn) getReason() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reason
}

// Enqueue submits turn onto its session's lane and blocks until the lane is
// free, then runs it and returns the outcome. Concurrent Enqueue calls for
// the same session key serialize; calls for distinct keys run independently.
func (k *Kernel) Enqueue(ctx context.Context, turn Turn) Outcome {
	ln := k.laneFor(turn.SessionKey)

	ln.runningMu.Lock()
	defer ln.runningMu.Unlock()

	turnCtx, cancel := context.WithCancel(ctx)
	at := &activeTurn{cancel: cancel, reason: "cancelled"}
	ln.mu.Lock()
	ln.current = at
	ln.mu.Unlock()

	defer func() {
		ln.mu.Lock()
		ln.current = nil
		ln.mu.Unlock()
		cancel()
	}()

	return k.runWithFallback(turnCtx, turn, at)
}

// InterruptSession cancels the turn currently executing on key's lane, if
// any. reason is surfaced on the resulting Outcome.
func (k *Kernel) InterruptSession(key, reason string) {
	k.mu.Lock()
	ln, ok := k.lanes[key]
	k.mu.Unlock()
	if !ok {
		return
	}

	ln.mu.Lock()
	cur := ln.current
	ln.mu.Unlock()
	if cur == nil {
		return
	}

	k.logger.Info("kernel: interrupting session", "session_key", key, "reason", reason)
	cur.setReason(reason)
	cur.cancel()
}

func (k *Kernel) laneFor(key string) *lane {
	k.mu.Lock()
	defer k.mu.Unlock()
	ln, ok := k.lanes[key]
	if !ok {
		ln = &lane{}
		k.lanes[key] = ln
	}
	return ln
}

// runWithFallback drives turn through the model chain, retrying on
// recoverable errors and invoking turn.OnFallback before each retry.
func (k *Kernel) runWithFallback(ctx context.Context, turn Turn, at *activeTurn) Outcome {
	timeout := turn.InactivityTimeout
	if timeout <= 0 {
		timeout = defaultInactivityTimeout
	}

	var lastErr error
	for attempt, model := range turn.Models {
		if attempt > 0 && turn.OnFallback != nil {
			turn.OnFallback(FallbackEvent{
				FromModel: turn.Models[attempt-1],
				ToModel:   model,
				Attempt:   attempt,
				Err:       lastErr,
			})
		}

		outcome := k.runOnce(ctx, turn, model, timeout, at)
		if outcome.Status == StatusOK || outcome.Status == StatusInterrupted {
			return outcome
		}

		lastErr = outcome.Err
		// The driver's own error sits beneath the kernel's prompt-driver-error
		// wrapper, so every code in the chain is consulted.
		recoverable := false
		for e := outcome.Err; e != nil; e = errors.Unwrap(e) {
			if te, ok := e.(*errs.Error); ok && errs.Recoverable(te.Code) {
				recoverable = true
				break
			}
		}
		if !recoverable {
			return outcome
		}
		// last model in the chain exhausted: fall through to returning it.
		if attempt == len(turn.Models)-1 {
			return outcome
		}
	}
	return Outcome{Status: StatusFailed, Err: lastErr}
}

// runOnce drives a single model attempt to completion, interruption, or
// inactivity timeout.
func (k *Kernel) runOnce(ctx context.Context, turn Turn, model string, timeout time.Duration, at *activeTurn) Outcome {
	stream, err := k.driver.Run(ctx, promptdriver.Request{
		Model:        model,
		SystemPrompt: turn.SystemPrompt,
		Prompt:       turn.Prompt,
		SessionKey:   turn.SessionKey,
		TraceID:      turn.TraceID,
	})
	if err != nil {
		return Outcome{Status: StatusFailed, Err: errs.Wrap(errs.CodePromptDriverError, "starting turn", err)}
	}

	type next struct {
		event promptdriver.Event
		ok    bool
	}

	events := make(chan next, 1)
	go func() {
		for {
			ev, ok := stream.Next()
			events <- next{event: ev, ok: ok}
			if !ok {
				return
			}
		}
	}()

	var text string
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{Status: StatusInterrupted, Reason: at.getReason()}

		case <-timer.C:
			return Outcome{Status: StatusTimeout, Err: errs.New(errs.CodePromptDriverTimeout, "turn inactivity timeout")}

		case n := <-events:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)

			if turn.OnEvent != nil {
				turn.OnEvent(n.event)
			}

			switch n.event.Kind {
			case promptdriver.EventTextDelta:
				text += n.event.TextDelta
			case promptdriver.EventFinal:
				if n.event.FinalText != "" {
					text = n.event.FinalText
				}
				return Outcome{Status: StatusOK, Text: text}
			case promptdriver.EventError:
				return Outcome{Status: StatusFailed, Err: errs.Wrap(errs.CodePromptDriverError, "turn failed", n.event.Err)}
			}

			if !n.ok {
				return Outcome{Status: StatusOK, Text: text}
			}
		}
	}
}
