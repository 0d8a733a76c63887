package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindbot/internal/reminder"
	"remindbot/internal/schedule"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const (
	kindRecurring = "recurring"
	kindOnce      = "once"

	dateLayout = "2006-01-02"
)

// Config configures the task store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// SQLiteStore persists tasks in a single SQLite database file.
// It implements reminder.Store.
type SQLiteStore struct {
	db  *sql.DB
	log logx.Logger
}

var _ reminder.Store = (*SQLiteStore)(nil)

func Open(cfg Config, log logx.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &SQLiteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) CreateTask(ctx context.Context, d reminder.TaskDraft) (reminder.Task, error) {
	createdAt := time.Now().UTC()

	var onceDate any
	if d.Schedule.Kind == schedule.Once {
		onceDate = d.Schedule.Date.Format(dateLayout)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(recipient, title, body, kind, minute, days, repeat_weekly, once_date, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		int64(d.Recipient), d.Title, d.Body,
		kindStr(d.Schedule.Kind), d.Schedule.Minute, int(d.Schedule.Days), boolInt(d.Schedule.RepeatWeekly),
		onceDate, createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return reminder.Task{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return reminder.Task{}, err
	}
	return reminder.Task{
		ID:        id,
		Recipient: d.Recipient,
		Title:     d.Title,
		Body:      d.Body,
		Schedule:  d.Schedule,
		CreatedAt: createdAt,
	}, nil
}

func (s *SQLiteStore) LoadAllTasks(ctx context.Context) ([]reminder.Task, error) {
	return s.queryTasks(ctx,
		`SELECT id, recipient, title, body, kind, minute, days, repeat_weekly, once_date, created_at FROM tasks`)
}

func (s *SQLiteStore) TasksFor(ctx context.Context, r transport.Recipient) ([]reminder.Task, error) {
	return s.queryTasks(ctx,
		`SELECT id, recipient, title, body, kind, minute, days, repeat_weekly, once_date, created_at FROM tasks WHERE recipient = ?`,
		int64(r))
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return err
}

// queryTasks scans rows best-effort: a row that fails to decode is logged
// and skipped so one bad record cannot block a whole replay.
func (s *SQLiteStore) queryTasks(ctx context.Context, query string, args ...any) ([]reminder.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Task
	for rows.Next() {
		var (
			t         reminder.Task
			recipient int64
			kind      string
			days      int
			repeat    int
			onceDate  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&t.ID, &recipient, &t.Title, &t.Body, &kind, &t.Schedule.Minute, &days, &repeat, &onceDate, &createdAt); err != nil {
			s.log.Warn("skipping unreadable task row", logx.Err(err))
			continue
		}
		t.Recipient = transport.Recipient(recipient)
		t.Schedule.Days = schedule.DaySet(days)
		t.Schedule.RepeatWeekly = repeat != 0

		switch kind {
		case kindOnce:
			t.Schedule.Kind = schedule.Once
			d, err := time.ParseInLocation(dateLayout, onceDate.String, time.UTC)
			if err != nil {
				s.log.Warn("skipping task with bad date", logx.Int64("task", t.ID), logx.Err(err))
				continue
			}
			t.Schedule.Date = d
		case kindRecurring:
			t.Schedule.Kind = schedule.Recurring
			if t.Schedule.Days.Empty() {
				s.log.Warn("skipping recurring task with empty day set", logx.Int64("task", t.ID))
				continue
			}
		default:
			s.log.Warn("skipping task with unknown kind", logx.Int64("task", t.ID), logx.String("kind", kind))
			continue
		}

		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			s.log.Warn("skipping task with bad created_at", logx.Int64("task", t.ID), logx.Err(err))
			continue
		}
		t.CreatedAt = ts

		out = append(out, t)
	}
	return out, rows.Err()
}

func kindStr(k schedule.Kind) string {
	if k == schedule.Once {
		return kindOnce
	}
	return kindRecurring
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
