package reminder

import (
	"context"
	"errors"
	"strings"
	"time"

	"remindbot/internal/schedule"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// HelpText is sent back when a message fails to parse and mentions help.
const HelpText = `FORMAT EXAMPLE:
[TITLE]
[info...]
...
[TIME]

VALID TIME EXAMPLES:
9am UMTWRFS rep
9am all rep
9:30am UMTWRFS
9:30am umtwrfs rep
10pm mwf
10pm 1/29`

// Create-text rejections, surfaced to the user like parse errors.
var (
	ErrNoTitle    = errors.New("first line must be a title")
	ErrNoTimeSpec = errors.New("last line must be a time spec")
)

// ParseCreateText splits an inbound create-task message into its parts:
// first line is the title, last line the time spec, anything between is
// the body.
func ParseCreateText(text string) (title, body, spec string, err error) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return "", "", "", ErrNoTitle
	}
	if len(lines) < 2 {
		return "", "", "", ErrNoTimeSpec
	}
	title = strings.TrimSpace(lines[0])
	spec = strings.TrimSpace(lines[len(lines)-1])
	if spec == "" {
		return "", "", "", ErrNoTimeSpec
	}
	body = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
	return title, body, spec, nil
}

// Service is the inbound command surface of the reminder core. The
// transport layer drives it with calls; it owns no connection.
type Service struct {
	log   logx.Logger
	reg   *Registry
	store Store
	loc   *time.Location
	clock Clock
}

func NewService(reg *Registry, store Store, loc *time.Location, clock Clock, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Service{log: log, reg: reg, store: store, loc: loc, clock: clock}
}

// CreateFromText parses a user message into a task, persists it and
// spawns its job. Parse errors are user-facing rejections; only the
// persistence failure is a system fault.
func (s *Service) CreateFromText(ctx context.Context, from transport.Recipient, text string) (Task, error) {
	title, body, spec, err := ParseCreateText(text)
	if err != nil {
		return Task{}, err
	}
	sch, err := schedule.ParseIn(spec, s.clock.Now(), s.loc)
	if err != nil {
		return Task{}, err
	}
	return s.reg.AddTask(ctx, TaskDraft{
		Recipient: from,
		Title:     title,
		Body:      body,
		Schedule:  sch,
	})
}

// StopFor routes an inbound stop to the recipient's ping coordinator.
// The result reports whether anything was actually running.
func (s *Service) StopFor(recipient transport.Recipient) bool {
	return s.reg.CancelFor(recipient)
}

// TasksFor lists the recipient's stored reminders.
func (s *Service) TasksFor(ctx context.Context, recipient transport.Recipient) ([]Task, error) {
	return s.store.TasksFor(ctx, recipient)
}

// IsUserError reports whether err is an input rejection that should be
// echoed to the user rather than logged as a system fault.
func IsUserError(err error) bool {
	return errors.Is(err, ErrNoTitle) ||
		errors.Is(err, ErrNoTimeSpec) ||
		errors.Is(err, schedule.ErrMalformed) ||
		errors.Is(err, schedule.ErrNoTime) ||
		errors.Is(err, schedule.ErrBadTime) ||
		errors.Is(err, schedule.ErrNoScheduleInfo)
}
