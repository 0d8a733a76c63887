package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"remindbot/internal/schedule"
)

func TestAddTaskPersistFailureSpawnsNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.store.createErr = errors.New("disk full")

	_, err := f.reg.AddTask(context.Background(), TaskDraft{Recipient: 1, Title: "x", Schedule: onceTomorrow()})
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if ids := f.reg.RunningTasks(); len(ids) != 0 {
		t.Fatalf("orphan jobs spawned for unsaved task: %v", ids)
	}
}

func TestReplayAllSpawnsLoadedTasks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	// Rows that survived a restart.
	f.store.put(Task{ID: 11, Recipient: 1, Title: "a", Schedule: onceTomorrow(), CreatedAt: testBase})
	f.store.put(Task{ID: 12, Recipient: 2, Title: "b", Schedule: onceTomorrow(), CreatedAt: testBase})

	n, err := f.reg.ReplayAll(context.Background())
	if err != nil {
		t.Fatalf("ReplayAll error: %v", err)
	}
	if n != 2 {
		t.Fatalf("ReplayAll = %d, want 2", n)
	}
	waitUntil(t, "jobs running", func() bool {
		return f.reg.Running(11) && f.reg.Running(12)
	})

	// No coordinator exists until a task actually fires.
	if f.reg.ActivePingers() != 0 {
		t.Fatalf("pingers active before any fire: %d", f.reg.ActivePingers())
	}
}

func TestCancelForClassifiesStopCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	// Nothing running: an inbound "stop" is not a stop-command.
	if f.reg.CancelFor(7) {
		t.Fatal("CancelFor reported activity with no pinger")
	}

	// Fire a task so the recipient's pinger goes active.
	if _, err := f.reg.AddTask(context.Background(), TaskDraft{Recipient: 7, Title: "wake", Schedule: onceTomorrow()}); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}
	waitUntil(t, "wait timer", func() bool { return f.clock.timerCount() >= 1 })
	f.clock.Advance(26 * time.Hour)
	waitUntil(t, "pinger active", func() bool { return f.reg.PingerStatus(7) == StatusActive })

	if !f.reg.CancelFor(7) {
		t.Fatal("CancelFor missed the active pinger")
	}
	waitUntil(t, "pinger stopped", func() bool { return f.reg.PingerStatus(7) == StatusStopped })

	// Idempotent: a second stop finds nothing running.
	if f.reg.CancelFor(7) {
		t.Fatal("CancelFor reported activity after stop")
	}
}

func TestPingerIsSharedNotDuplicated(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	p1 := f.reg.pingerFor(3)
	p2 := f.reg.pingerFor(3)
	if p1 != p2 {
		t.Fatal("pingerFor duplicated a coordinator")
	}
}

func TestApplyChangesPace(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{PingBaseInterval: time.Second})

	if got := f.reg.pingBase(); got != time.Second {
		t.Fatalf("pingBase = %v, want 1s", got)
	}
	f.reg.Apply(Config{PingBaseInterval: 5 * time.Second})
	if got := f.reg.pingBase(); got != 5*time.Second {
		t.Fatalf("pingBase after Apply = %v, want 5s", got)
	}
	// Zero values fall back to defaults rather than freezing the loops.
	f.reg.Apply(Config{})
	if got := f.reg.pingBase(); got <= 0 {
		t.Fatalf("pingBase after empty Apply = %v", got)
	}
}

func TestRecurringReplayKeepsSchedule(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	sch := schedule.Schedule{
		Minute:       9 * 60,
		Kind:         schedule.Recurring,
		Days:         schedule.DaySet(0).With(time.Wednesday),
		RepeatWeekly: true,
	}
	f.store.put(Task{ID: 21, Recipient: 4, Title: "gym", Schedule: sch, CreatedAt: testBase})

	if _, err := f.reg.ReplayAll(context.Background()); err != nil {
		t.Fatalf("ReplayAll error: %v", err)
	}
	waitUntil(t, "wait timer", func() bool { return f.clock.timerCount() >= 1 })

	// Wednesday 09:00 is 25h after the Tuesday 08:00 base.
	if got, want := f.clock.waits()[0], 25*time.Hour; got != want {
		t.Fatalf("replayed wait = %v, want %v", got, want)
	}
}
