package store

import (
	"errors"
	"fmt"
	"time"

	"remindly/internal/recurrence"
)

// ErrNotFound is returned for lookups of missing chats or reminders.
var ErrNotFound = errors.New("not found")

// ErrUnavailable wraps driver and file-level failures. Callers treat it as
// retryable: the scheduler backs off and re-scans instead of crashing.
var ErrUnavailable = errors.New("store unavailable")

// ValidationError reports a creation-time rejection (bad schedule, empty
// text). It is never retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CategoryTournament tags reminders materialized by the tournament feed.
const CategoryTournament = "tournament"

type Chat struct {
	ChatID               int64
	Title                string
	TZ                   string
	TournamentSubscribed bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Reminder is one scheduled notification. Scheduling fields (NextAt,
// ClaimedUntil, LastFiredAt) are owned by the store; front-ends only read
// them.
type Reminder struct {
	ID        string
	ChatID    int64
	CreatedBy int64
	Text      string
	Spec      recurrence.Spec
	Category  string

	NextAt       *time.Time
	Paused       bool
	ClaimedUntil *time.Time
	LastFiredAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recurring reports whether the reminder survives a delivery.
func (r Reminder) Recurring() bool { return r.Spec.Kind != recurrence.KindOnce }

type RunStatus string

const (
	RunOK    RunStatus = "ok"
	RunError RunStatus = "error"
)

// Run is one delivery attempt. The runs log is append-only.
type Run struct {
	ID         int64
	ReminderID string
	FiredAt    time.Time
	Status     RunStatus
	Detail     string
	CreatedAt  time.Time
}

// QuietWindow is a per-user do-not-disturb interval in whole hours,
// [From, To) in the chat's timezone. The window may wrap midnight
// (From=23, To=8 silences 23:00..08:00).
type QuietWindow struct {
	From int
	To   int
}

// Contains reports whether hour falls inside the window.
func (w QuietWindow) Contains(hour int) bool {
	if w.From == w.To {
		return false
	}
	if w.From < w.To {
		return hour >= w.From && hour < w.To
	}
	return hour >= w.From || hour < w.To
}

// RoleEditor lets a non-admin group member create recurring reminders.
const RoleEditor = "editor"

// ChatRole is one granted per-chat role.
type ChatRole struct {
	ChatID int64
	UserID int64
	Role   string
}

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default (5s)
	// DefaultTZ is used for chats without an explicit timezone.
	DefaultTZ string
}
