package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/mozi-run/mozi/internal/transport"
)

// ScheduleKind tags which of a Reminder's schedule fields is populated.
type ScheduleKind string

const (
	ScheduleAt    ScheduleKind = "at"
	ScheduleEvery ScheduleKind = "every"
	ScheduleCron  ScheduleKind = "cron"
)

// PayloadKind selects how a due reminder re-enters the pipeline, per
// spec.md's Reminder glossary entry.
type PayloadKind string

const (
	PayloadSystemEvent PayloadKind = "systemEvent"
	PayloadAgentTurn   PayloadKind = "agentTurn"
	PayloadSendMessage PayloadKind = "sendMessage"
)

// Reminder is a persisted clock-driven dispatch: id, route, schedule,
// payload, enabled flag and last-fired timestamp.
type Reminder struct {
	ID          string
	SessionKey  string
	Channel     string
	PeerID      string
	PeerKind    transport.PeerKind
	AccountID   string
	ThreadID    string
	Description string

	Kind     ScheduleKind
	At       time.Time
	Every    time.Duration
	CronExpr string
	CronTZ   string

	PayloadKind PayloadKind
	PayloadText string

	Enabled     bool
	LastFiredAt time.Time
}

func peerKindFromString(s string) transport.PeerKind {
	switch transport.PeerKind(s) {
	case transport.PeerGroup, transport.PeerChannel:
		return transport.PeerKind(s)
	default:
		return transport.PeerDM
	}
}

// Create parses args (a tiny DSL: "at <RFC3339>", "every <duration>", or
// "cron <expr>", followed by the reminder text) and persists a new
// Reminder routed to sessionKey. Satisfies internal/handler.ReminderService.
func (s *Scheduler) Create(ctx context.Context, sessionKey, description string, args []string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("scheduler: usage: /reminders at|every|cron <value> <text>")
	}

	r := Reminder{
		ID:          uuid.NewString(),
		SessionKey:  sessionKey,
		Description: description,
		PayloadKind: PayloadAgentTurn,
		Enabled:     true,
	}

	if route, ok := s.routeForSession(sessionKey); ok {
		r.Channel = route.Channel
		r.PeerID = route.PeerID
		r.PeerKind = route.PeerKind
		r.AccountID = route.AccountID
		r.ThreadID = route.ThreadID
	}

	switch strings.ToLower(args[0]) {
	case "at":
		at, err := time.Parse(time.RFC3339, args[1])
		if err != nil {
			return "", fmt.Errorf("scheduler: invalid /reminders at time %q: %w", args[1], err)
		}
		r.Kind = ScheduleAt
		r.At = at
		r.PayloadText = strings.Join(args[2:], " ")
	case "every":
		d, err := parseDurationString(args[1])
		if err != nil {
			return "", err
		}
		r.Kind = ScheduleEvery
		r.Every = d
		r.PayloadText = strings.Join(args[2:], " ")
	case "cron":
		gron := gronx.New()
		if !gron.IsValid(args[1]) {
			return "", fmt.Errorf("scheduler: invalid cron expression %q", args[1])
		}
		r.Kind = ScheduleCron
		r.CronExpr = args[1]
		r.PayloadText = strings.Join(args[2:], " ")
	default:
		return "", fmt.Errorf("scheduler: unknown schedule kind %q", args[0])
	}

	if err := s.store.insertReminder(ctx, r); err != nil {
		return "", err
	}
	return r.ID, nil
}

// List returns a human-readable line per reminder on sessionKey.
func (s *Scheduler) List(ctx context.Context, sessionKey string) ([]string, error) {
	reminders, err := s.store.listRemindersBySession(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(reminders))
	for _, r := range reminders {
		out = append(out, describeReminder(r))
	}
	return out, nil
}

func describeReminder(r Reminder) string {
	var sched string
	switch r.Kind {
	case ScheduleAt:
		sched = "at " + r.At.Format(time.RFC3339)
	case ScheduleEvery:
		sched = "every " + r.Every.String()
	case ScheduleCron:
		sched = "cron " + r.CronExpr
	}
	state := "enabled"
	if !r.Enabled {
		state = "disabled"
	}
	return fmt.Sprintf("%s [%s] %s (%s)", r.ID, state, sched, r.Description)
}

// Cancel disables and removes a reminder belonging to sessionKey.
func (s *Scheduler) Cancel(ctx context.Context, sessionKey, id string) error {
	r, ok, err := s.store.getReminder(ctx, id)
	if err != nil {
		return err
	}
	if !ok || r.SessionKey != sessionKey {
		return fmt.Errorf("scheduler: reminder %q not found", id)
	}
	return s.store.deleteReminder(ctx, id)
}

// Snooze pushes a one-shot reminder's fire time forward by d. Periodic and
// cron reminders are unaffected by snooze (their next occurrence is
// schedule-derived, not a fixed point to push).
func (s *Scheduler) Snooze(ctx context.Context, sessionKey, id string, d time.Duration) error {
	r, ok, err := s.store.getReminder(ctx, id)
	if err != nil {
		return err
	}
	if !ok || r.SessionKey != sessionKey {
		return fmt.Errorf("scheduler: reminder %q not found", id)
	}
	if r.Kind != ScheduleAt {
		return fmt.Errorf("scheduler: only one-shot reminders can be snoozed")
	}
	r.At = time.Now().Add(d)
	return s.store.updateReminder(ctx, r)
}

// dueReminders returns the enabled reminders whose schedule has elapsed as
// of now, per spec.md §4.8: a one-shot reminder self-disables after firing,
// a periodic or cron reminder reschedules.
func (s *Scheduler) dueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	all, err := s.store.listEnabledReminders(ctx)
	if err != nil {
		return nil, err
	}
	var due []Reminder
	for _, r := range all {
		if reminderDue(r, now) {
			due = append(due, r)
		}
	}
	return due, nil
}

func reminderDue(r Reminder, now time.Time) bool {
	switch r.Kind {
	case ScheduleAt:
		return !r.At.IsZero() && !now.Before(r.At)
	case ScheduleEvery:
		if r.Every <= 0 {
			return false
		}
		if r.LastFiredAt.IsZero() {
			return true
		}
		return now.Sub(r.LastFiredAt) >= r.Every
	case ScheduleCron:
		loc := time.UTC
		if r.CronTZ != "" {
			if l, err := time.LoadLocation(r.CronTZ); err == nil {
				loc = l
			}
		}
		ref := r.LastFiredAt
		if ref.IsZero() {
			ref = now.Add(-time.Minute)
		}
		gron := gronx.New()
		due, err := gron.IsDue(r.CronExpr, now.In(loc))
		if err != nil {
			return false
		}
		return due && now.Sub(ref) >= time.Second
	default:
		return false
	}
}

// markFired updates a fired reminder: one-shot reminders self-disable,
// periodic and cron reminders reschedule by recording LastFiredAt.
func (s *Scheduler) markFired(ctx context.Context, r Reminder, firedAt time.Time) error {
	r.LastFiredAt = firedAt
	if r.Kind == ScheduleAt {
		r.Enabled = false
	}
	return s.store.updateReminder(ctx, r)
}
