package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Reminder controls dispatch behavior (ping pacing, delivery retry,
	// parse timezone, housekeeping sweep).
	Reminder ReminderConfig `json:"reminder,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outbound sends. 0 means the built-in default.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ReminderConfig tunes the dispatch layer.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - timezone: the process-local zone
//   - ping_base_interval: "1.5s"
//   - retry_backoff: "15s"
//   - sweep_schedule: "0 4 * * *" (daily at 04:00)
type ReminderConfig struct {
	// Timezone is the IANA zone used to interpret times in user messages.
	Timezone string `json:"timezone,omitempty"`

	PingBaseInterval string `json:"ping_base_interval,omitempty"`
	RetryBackoff     string `json:"retry_backoff,omitempty"`

	// SweepSchedule is a cron spec for the orphan-row sweep.
	SweepSchedule string `json:"sweep_schedule,omitempty"`
}
