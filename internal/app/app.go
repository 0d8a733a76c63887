// Package app wires configuration, storage, transport and the reminder
// core into one runnable unit with config hot-reload.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/schedule"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

const defaultSweepSchedule = "0 4 * * *"

type App struct {
	cfgm *config.ConfigManager

	logs *logx.Service
	log  logx.Logger

	store   *storage.SQLiteStore
	adapter *telegram.Adapter

	bus eventbus.Bus
	sup *supervisor.Supervisor

	reg *reminder.Registry
	svc *reminder.Service

	cron *cron.Cron

	inbound chan transport.Message
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	return &App{
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		store:   store,
		adapter: adapter,
		bus:     eventbus.New(),
		inbound: make(chan transport.Message, 64),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	regCfg, err := reminderConfigOf(cfg)
	if err != nil {
		return err
	}
	loc, err := locationOf(cfg)
	if err != nil {
		return err
	}

	a.sup = supervisor.New(ctx, a.log.With(logx.String("comp", "supervisor")))

	a.reg = reminder.NewRegistry(regCfg, a.store, a.adapter, a.bus, a.sup, reminder.SystemClock(), a.log.With(logx.String("comp", "registry")))
	a.svc = reminder.NewService(a.reg, a.store, loc, reminder.SystemClock(), a.log.With(logx.String("comp", "service")))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return validate(c)
	})

	if err := a.adapter.Start(a.sup.Context(), a.inbound); err != nil {
		return err
	}

	n, err := a.reg.ReplayAll(a.sup.Context())
	if err != nil {
		return fmt.Errorf("replay tasks: %w", err)
	}
	a.log.Info("tasks replayed", logx.Int("count", n))

	a.sup.Go("messages.dispatch", a.dispatchLoop)

	events, unsub := a.bus.Subscribe(32)
	a.sup.Go("events.drain", func(c context.Context) {
		defer unsub()
		a.drainEvents(c, events)
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) {
		_ = a.cfgm.Watch(c)
	})

	a.startSweep(cfg)

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.cron != nil {
		stopped := a.cron.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}
	if a.adapter != nil {
		_ = a.adapter.Stop(ctx)
	}
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

// dispatchLoop routes inbound private messages. An active repeat-ping is
// silenced by any message; otherwise the text is treated as a command or
// a task to create.
func (a *App) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.inbound:
			a.handleMessage(ctx, msg)
		}
	}
}

func (a *App) handleMessage(ctx context.Context, msg transport.Message) {
	if a.svc.StopFor(msg.From) {
		a.reply(ctx, msg.From, "ok, I'll stop pinging you.")
		return
	}

	switch strings.ToLower(strings.TrimSpace(msg.Text)) {
	case "help":
		a.reply(ctx, msg.From, reminder.HelpText)
		return
	case "list":
		a.replyTaskList(ctx, msg.From)
		return
	}

	task, err := a.svc.CreateFromText(ctx, msg.From, msg.Text)
	if err != nil {
		if reminder.IsUserError(err) {
			a.reply(ctx, msg.From, fmt.Sprintf("couldn't read that: %v\nsend \"help\" for the format", err))
			return
		}
		a.log.Error("create task failed", logx.Int64("from", int64(msg.From)), logx.Err(err))
		a.reply(ctx, msg.From, "something went wrong saving that, try again later")
		return
	}
	a.reply(ctx, msg.From, fmt.Sprintf("saved %q (%s)", task.Title, task.Schedule))
}

func (a *App) replyTaskList(ctx context.Context, to transport.Recipient) {
	tasks, err := a.svc.TasksFor(ctx, to)
	if err != nil {
		a.log.Error("list tasks failed", logx.Int64("from", int64(to)), logx.Err(err))
		a.reply(ctx, to, "couldn't load your reminders, try again later")
		return
	}
	if len(tasks) == 0 {
		a.reply(ctx, to, "no reminders set")
		return
	}
	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "%d: %s (%s)\n", t.ID, t.Title, t.Schedule)
	}
	a.reply(ctx, to, strings.TrimRight(b.String(), "\n"))
}

func (a *App) reply(ctx context.Context, to transport.Recipient, text string) {
	if err := a.adapter.Reply(ctx, to, text); err != nil {
		a.log.Warn("reply failed", logx.Int64("to", int64(to)), logx.Err(err))
	}
}

// drainEvents consumes the core's event stream. Most events only feed the
// operational log; a fault means a job abandoned its row, so the sweep
// runs right away instead of waiting for the next cron slot.
func (a *App) drainEvents(ctx context.Context, events <-chan eventbus.Event) {
	log := a.log.With(logx.String("comp", "events"))
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.handleEvent(log, e)
		}
	}
}

func (a *App) handleEvent(log logx.Logger, e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeReminderFired, eventbus.TypeReminderRetired:
		log.Debug("task event", logx.String("event", e.Type), logx.Any("task", e.Data))
	case eventbus.TypeReminderFault:
		log.Warn("task fault, sweeping abandoned rows", logx.Any("task", e.Data))
		a.sweepOnce(log)
	case eventbus.TypePingStarted, eventbus.TypePingStopped:
		log.Debug("ping event", logx.String("event", e.Type), logx.Any("recipient", e.Data))
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyConfig(newCfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	regCfg, err := reminderConfigOf(cfg)
	if err != nil {
		// validator runs first, so this is unexpected
		a.log.Warn("reminder config not applied", logx.Err(err))
	} else {
		a.reg.Apply(regCfg)
	}

	// Timezone and sweep schedule stay as loaded at startup; changing them
	// live would silently reinterpret running schedules.
	a.log.Info("config reloaded",
		logx.String("log_level", cfg.Logging.Level),
		logx.String("ping_base_interval", cfg.Reminder.PingBaseInterval),
		logx.String("retry_backoff", cfg.Reminder.RetryBackoff))
}

// startSweep schedules a periodic pass that deletes rows whose schedules
// can never fire again and that no live job owns (e.g. rows left behind by
// a job that hit a fault).
func (a *App) startSweep(cfg *config.Config) {
	spec := strings.TrimSpace(cfg.Reminder.SweepSchedule)
	if spec == "" {
		spec = defaultSweepSchedule
	}
	log := a.log.With(logx.String("comp", "sweep"))
	a.cron = cron.New()
	if _, err := a.cron.AddFunc(spec, func() {
		a.sweepOnce(log)
	}); err != nil {
		// validator checks the spec, so this is unexpected
		log.Error("sweep not scheduled", logx.String("spec", spec), logx.Err(err))
		return
	}
	a.cron.Start()
	log.Debug("sweep scheduled", logx.String("spec", spec))
}

func (a *App) sweepOnce(log logx.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tasks, err := a.store.LoadAllTasks(ctx)
	if err != nil {
		log.Warn("sweep load failed", logx.Err(err))
		return
	}
	now := time.Now()
	removed := 0
	for _, t := range tasks {
		if a.reg.Running(t.ID) {
			continue
		}
		if _, ok := schedule.Next(t.Schedule, t.CreatedAt, now); ok {
			continue
		}
		if err := a.store.DeleteTask(ctx, t.ID); err != nil {
			log.Warn("sweep delete failed", logx.Int64("task_id", t.ID), logx.Err(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info("swept exhausted tasks", logx.Int("removed", removed))
	}
}

func reminderConfigOf(cfg *config.Config) (reminder.Config, error) {
	base, err := config.ParseDurationField("reminder.ping_base_interval", cfg.Reminder.PingBaseInterval)
	if err != nil {
		return reminder.Config{}, err
	}
	backoff, err := config.ParseDurationField("reminder.retry_backoff", cfg.Reminder.RetryBackoff)
	if err != nil {
		return reminder.Config{}, err
	}
	return reminder.Config{
		PingBaseInterval: base,
		RetryBackoff:     backoff,
	}, nil
}

func locationOf(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Reminder.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("reminder.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

func validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if cfg.Telegram.RatePerSec < 0 {
		return fmt.Errorf("telegram.rate_per_sec must be >= 0")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := reminderConfigOf(cfg); err != nil {
		return err
	}
	if _, err := locationOf(cfg); err != nil {
		return err
	}
	if spec := strings.TrimSpace(cfg.Reminder.SweepSchedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("reminder.sweep_schedule: invalid %q: %w", spec, err)
		}
	}
	return nil
}
