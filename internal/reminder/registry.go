package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Config controls the reminder core's timing knobs.
//
// All fields have working defaults; Apply() may change them at runtime
// (config hot reload).
type Config struct {
	// PingBaseInterval is the ghost-ping pace for a single active pinger.
	// The effective pace is this multiplied by the number of active pingers.
	PingBaseInterval time.Duration
	// RetryBackoff is the fixed delay between delivery retries.
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingBaseInterval <= 0 {
		c.PingBaseInterval = 1500 * time.Millisecond
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 15 * time.Second
	}
	return c
}

// Registry is the entry point for creating, cancelling and replaying
// reminder jobs. It owns the task-id → job and recipient → pinger maps;
// everything else only holds handles.
type Registry struct {
	log      logx.Logger
	store    Store
	delivery transport.Delivery
	bus      eventbus.Bus
	clock    Clock
	sup      *supervisor.Supervisor

	mu      sync.RWMutex
	cfg     Config
	jobs    map[int64]*job
	pingers map[transport.Recipient]*Pinger
	active  *activeCounter
}

func NewRegistry(cfg Config, store Store, delivery transport.Delivery, bus eventbus.Bus, sup *supervisor.Supervisor, clock Clock, log logx.Logger) *Registry {
	if clock == nil {
		clock = SystemClock()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	return &Registry{
		log:      log,
		store:    store,
		delivery: delivery,
		bus:      bus,
		clock:    clock,
		sup:      sup,
		cfg:      cfg.withDefaults(),
		jobs:     map[int64]*job{},
		pingers:  map[transport.Recipient]*Pinger{},
		active:   &activeCounter{},
	}
}

// Apply swaps the timing knobs at runtime.
func (r *Registry) Apply(cfg Config) {
	r.mu.Lock()
	r.cfg = cfg.withDefaults()
	r.mu.Unlock()
}

func (r *Registry) pingBase() time.Duration {
	r.mu.RLock()
	d := r.cfg.PingBaseInterval
	r.mu.RUnlock()
	return d
}

func (r *Registry) retryBackoff() time.Duration {
	r.mu.RLock()
	d := r.cfg.RetryBackoff
	r.mu.RUnlock()
	return d
}

// AddTask persists the draft and spawns its job. On a persistence failure
// nothing is spawned: no orphan job may exist for an unsaved task.
func (r *Registry) AddTask(ctx context.Context, d TaskDraft) (Task, error) {
	task, err := r.store.CreateTask(ctx, d)
	if err != nil {
		return Task{}, fmt.Errorf("persisting task: %w", err)
	}
	r.spawn(task)
	return task, nil
}

// ReplayAll loads every persisted task and spawns a job for each, exactly
// as if it had just been created. Called once at startup.
func (r *Registry) ReplayAll(ctx context.Context) (int, error) {
	tasks, err := r.store.LoadAllTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading tasks: %w", err)
	}
	for _, t := range tasks {
		r.spawn(t)
	}
	return len(tasks), nil
}

// CancelFor stops the recipient's ping loop if one is active. The result
// tells the caller whether anything was running, which is how an inbound
// message is classified as a stop-command versus a new task.
func (r *Registry) CancelFor(recipient transport.Recipient) bool {
	r.mu.RLock()
	p := r.pingers[recipient]
	r.mu.RUnlock()

	if p == nil || p.Status() != StatusActive {
		return false
	}
	p.Signal(SignalStop)
	return true
}

// CancelTask cooperatively cancels one job; the job deletes its row and
// removes itself. Reports whether the task had a running job. Cancelling
// a retired task is a safe no-op.
func (r *Registry) CancelTask(id int64) bool {
	r.mu.RLock()
	j := r.jobs[id]
	r.mu.RUnlock()

	if j == nil {
		return false
	}
	j.stop()
	return true
}

// Running reports whether a job for the task is currently live.
func (r *Registry) Running(id int64) bool {
	r.mu.RLock()
	_, ok := r.jobs[id]
	r.mu.RUnlock()
	return ok
}

// RunningTasks snapshots the ids of all live jobs.
func (r *Registry) RunningTasks() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	return ids
}

// ActivePingers reports how many ping loops are currently active.
func (r *Registry) ActivePingers() int { return r.active.get() }

// PingerStatus reports the coordinator status for a recipient; Stopped
// when none was ever created.
func (r *Registry) PingerStatus(recipient transport.Recipient) PingStatus {
	r.mu.RLock()
	p := r.pingers[recipient]
	r.mu.RUnlock()
	if p == nil {
		return StatusStopped
	}
	return p.Status()
}

// pingerFor returns the recipient's coordinator, creating and starting it
// lazily on first use. Coordinators are never duplicated.
func (r *Registry) pingerFor(recipient transport.Recipient) *Pinger {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pingers[recipient]; ok {
		return p
	}
	p := newPinger(
		recipient,
		r.delivery,
		r.clock,
		r.active,
		r.pingBase,
		r.bus,
		r.log.With(logx.String("comp", "pinger"), logx.Int64("recipient", int64(recipient))),
	)
	r.pingers[recipient] = p
	r.sup.Go(fmt.Sprintf("pinger-%d", int64(recipient)), p.run)
	return p
}

func (r *Registry) removeJob(id int64) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}
