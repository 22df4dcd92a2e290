package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Storage configures the SQLite reminder store.
	Storage StorageConfig `json:"storage"`

	// Scheduler controls the due-set scan loop.
	Scheduler SchedulerConfig `json:"scheduler"`

	// Dispatch controls outbound delivery (rate limit, timeouts).
	Dispatch DispatchConfig `json:"dispatch,omitempty"`

	// Tournament controls the built-in tournament reminder feed.
	Tournament TournamentConfig `json:"tournament,omitempty"`

	// DefaultTimezone is used for chats that never called /set_tz.
	// Defaults to "Europe/Moscow".
	DefaultTimezone string `json:"default_timezone,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "path": "./remindly.db" }
type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string passed to SQLite (default "5s").
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the due-set scan loop.
//
// All durations are Go duration strings (e.g. "500ms", "30s", "5m").
//
// Defaults (when fields are omitted/zero):
//   - tick_interval: "30s"
//   - batch_limit: 100
//   - workers: 4
//   - claim_lease: "5m"
//   - tournament_sync_interval: "5m"
type SchedulerConfig struct {
	Enabled      bool   `json:"enabled"`
	TickInterval string `json:"tick_interval,omitempty"`
	BatchLimit   int    `json:"batch_limit,omitempty"`
	Workers      int    `json:"workers,omitempty"`
	// ClaimLease bounds how long a claimed reminder stays invisible to
	// other scheduler instances before the claim expires.
	ClaimLease             string `json:"claim_lease,omitempty"`
	TournamentSyncInterval string `json:"tournament_sync_interval,omitempty"`
}

// DispatchConfig controls outbound message delivery.
//
// Defaults: rate_per_sec 25, send_timeout "10s".
type DispatchConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

// TournamentConfig controls the tournament reminder feed.
//
// The slot times are fixed; only the feed timezone is configurable.
// Defaults: enabled false, timezone "Europe/Moscow".
type TournamentConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
}
