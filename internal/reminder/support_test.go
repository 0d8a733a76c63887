package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindbot/internal/transport"
)

// waitUntil polls cond with a deadline so tests never block forever on a
// goroutine that went wrong.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ---- fake clock ----

type fakeTimer struct {
	ch      chan time.Time
	at      time.Time
	d       time.Duration
	fired   bool
	stopped bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }
func (t *fakeTimer) Stop() bool          { t.stopped = true; return !t.fired }

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{ch: make(chan time.Time, 1), at: c.now.Add(d), d: d}
	if d <= 0 {
		t.fired = true
		t.ch <- c.now
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and fires every timer that has come due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(c.now) {
			t.fired = true
			t.ch <- c.now
		}
	}
}

func (c *fakeClock) timerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// waits lists the durations requested from NewTimer, in order.
func (c *fakeClock) waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, t := range c.timers {
		out[i] = t.d
	}
	return out
}

// ---- fake delivery ----

type fakeDelivery struct {
	mu        sync.Mutex
	sent      []string // titles, in order
	pings     int
	retracts  int
	failSends int // fail this many SendNotification calls first
}

func (d *fakeDelivery) SendNotification(ctx context.Context, to transport.Recipient, title, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSends > 0 {
		d.failSends--
		return errors.New("recipient unreachable")
	}
	d.sent = append(d.sent, title)
	return nil
}

func (d *fakeDelivery) SendTransientPing(ctx context.Context, to transport.Recipient) (transport.MessageRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pings++
	return transport.MessageRef{ChatID: int64(to), MessageID: d.pings}, nil
}

func (d *fakeDelivery) Retract(ctx context.Context, ref transport.MessageRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retracts++
	return nil
}

func (d *fakeDelivery) sentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *fakeDelivery) pingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pings
}

// ---- in-memory store ----

type memStore struct {
	mu        sync.Mutex
	seq       int64
	tasks     map[int64]Task
	createErr error
	nowFn     func() time.Time
}

func newMemStore(nowFn func() time.Time) *memStore {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &memStore{tasks: map[int64]Task{}, nowFn: nowFn}
}

func (m *memStore) CreateTask(ctx context.Context, d TaskDraft) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return Task{}, m.createErr
	}
	m.seq++
	t := Task{
		ID:        m.seq,
		Recipient: d.Recipient,
		Title:     d.Title,
		Body:      d.Body,
		Schedule:  d.Schedule,
		CreatedAt: m.nowFn().UTC(),
	}
	m.tasks[t.ID] = t
	return t, nil
}

func (m *memStore) put(t Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
}

func (m *memStore) LoadAllTasks(ctx context.Context) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) TasksFor(ctx context.Context, r transport.Recipient) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, t := range m.tasks {
		if t.Recipient == r {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) DeleteTask(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *memStore) has(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[id]
	return ok
}
