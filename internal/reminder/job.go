package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	"remindbot/internal/schedule"
	logx "remindbot/pkg/logx"
)

// job is the handle the registry keeps for one running reminder loop.
// The loop itself owns all task state; the handle only carries the
// cooperative cancellation channel.
type job struct {
	task     Task
	cancel   chan struct{}
	stopOnce sync.Once
}

// stop requests cooperative cancellation. Safe to call more than once and
// safe on a job that has already retired.
func (j *job) stop() {
	j.stopOnce.Do(func() { close(j.cancel) })
}

func (r *Registry) spawn(task Task) {
	j := &job{task: task, cancel: make(chan struct{})}

	r.mu.Lock()
	if _, ok := r.jobs[task.ID]; ok {
		// Double-spawn would double-fire; keep the existing loop.
		r.mu.Unlock()
		r.log.Warn("job already running", logx.Int64("task", task.ID))
		return
	}
	r.jobs[task.ID] = j
	r.mu.Unlock()

	log := r.log.With(
		logx.Int64("task", task.ID),
		logx.Int64("recipient", int64(task.Recipient)),
		logx.String("run", uuid.NewString()[:8]),
	)
	r.sup.Go(fmt.Sprintf("job-%d", task.ID), func(ctx context.Context) {
		r.runJob(ctx, j, log)
	})
}

// runJob drives one task through wait → fire → reschedule until the
// schedule is exhausted or a cancel arrives. Cancellation is observed at
// the top of each pass and at every suspension point, never mid-delivery.
func (r *Registry) runJob(ctx context.Context, j *job, log logx.Logger) {
	task := j.task

	for {
		// An elapsed timer and a pending cancel may race; checking the
		// cancel channel first makes the outcome deterministic: at most one
		// delivery, and the cancellation is never dropped.
		select {
		case <-j.cancel:
			r.retire(task, log, "cancelled")
			return
		case <-ctx.Done():
			r.removeJob(task.ID)
			return
		default:
		}

		now := r.clock.Now()
		next, ok := schedule.Next(task.Schedule, task.CreatedAt, now)
		if !ok {
			r.retire(task, log, "exhausted")
			return
		}
		wait := next.Sub(now)
		if wait < 0 {
			// Defect in occurrence computation, not a transient condition.
			// Terminate loudly and leave the row in place for inspection.
			log.Error("computed occurrence is in the past",
				logx.Time("next", next), logx.Time("now", now))
			r.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderFault, Data: task.ID})
			r.removeJob(task.ID)
			return
		}

		log.Debug("waiting for next occurrence",
			logx.Time("at", next), logx.Duration("wait", wait))

		timer := r.clock.NewTimer(wait)
		select {
		case <-timer.C():
		case <-j.cancel:
			timer.Stop()
			r.retire(task, log, "cancelled")
			return
		case <-ctx.Done():
			timer.Stop()
			r.removeJob(task.ID)
			return
		}

		if !r.deliver(ctx, j, task, log) {
			return
		}

		r.pingerFor(task.Recipient).Signal(SignalStart)
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderFired, Data: task.ID})
		log.Info("reminder delivered", logx.String("title", task.Title))
	}
}

// deliver sends the notification, retrying indefinitely with a fixed
// backoff. A missed reminder has no recovery value once skipped, so this
// never gives up on its own; only a cancel or shutdown interrupts it.
// Returns false when the job must exit.
func (r *Registry) deliver(ctx context.Context, j *job, task Task, log logx.Logger) bool {
	for attempt := 1; ; attempt++ {
		err := r.delivery.SendNotification(ctx, task.Recipient, task.Title, task.Body)
		if err == nil {
			if attempt > 1 {
				log.Info("delivery recovered", logx.Int("attempts", attempt))
			}
			return true
		}

		if attempt%10 == 0 {
			log.Warn("delivery still failing", logx.Int("attempts", attempt), logx.Err(err))
		} else {
			log.Debug("delivery failed, will retry", logx.Int("attempt", attempt), logx.Err(err))
		}

		timer := r.clock.NewTimer(r.retryBackoff())
		select {
		case <-timer.C():
		case <-j.cancel:
			timer.Stop()
			r.retire(task, log, "cancelled")
			return false
		case <-ctx.Done():
			timer.Stop()
			r.removeJob(task.ID)
			return false
		}
	}
}

// retire deletes the persisted row and removes the job from the registry.
// Uses a fresh context so cleanup still lands during shutdown races.
func (r *Registry) retire(task Task, log logx.Logger, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.DeleteTask(ctx, task.ID); err != nil {
		log.Error("deleting retired task failed", logx.Err(err))
	}
	r.removeJob(task.ID)
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderRetired, Data: task.ID})
	log.Info("job retired", logx.String("reason", reason))
}
