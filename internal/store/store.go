package store

import (
	"context"
	"time"
)

// Store is the persistence API for chats, reminders and delivery runs.
//
// Concurrency contract: ClaimDue hands each due reminder to exactly one
// caller per lease window, even with several scheduler instances on the
// same database. Everything else is plain CRUD.
type Store interface {
	UpsertChat(ctx context.Context, c Chat) error
	GetChat(ctx context.Context, chatID int64) (Chat, error)
	SetChatTZ(ctx context.Context, chatID int64, tz string) error
	SetTournamentSubscription(ctx context.Context, chatID int64, on bool) error
	TournamentChats(ctx context.Context) ([]Chat, error)

	// SetQuietHours stores the user's do-not-disturb window; nil clears it.
	SetQuietHours(ctx context.Context, userID int64, w *QuietWindow) error
	// GetQuietHours returns nil when the user never set a window.
	GetQuietHours(ctx context.Context, userID int64) (*QuietWindow, error)

	// GrantRole assigns a per-chat role (one per user, last grant wins).
	GrantRole(ctx context.Context, chatID int64, userID int64, role string) error
	RevokeRole(ctx context.Context, chatID int64, userID int64) error
	ListRoles(ctx context.Context, chatID int64) ([]ChatRole, error)
	HasEditorRole(ctx context.Context, chatID int64, userID int64) (bool, error)

	// CreateReminder validates the schedule, computes the initial next_at
	// and persists the reminder. A missing ID is filled with a fresh UUID.
	CreateReminder(ctx context.Context, r Reminder, now time.Time) (Reminder, error)
	GetReminder(ctx context.Context, id string) (Reminder, error)
	ListChatReminders(ctx context.Context, chatID int64) ([]Reminder, error)
	DeleteReminder(ctx context.Context, id string) error

	// SetPaused suspends or resumes a reminder. Pausing clears next_at and
	// any claim; resuming recomputes next_at from now.
	SetPaused(ctx context.Context, id string, paused bool, now time.Time) error

	// SetNextAt overrides the next occurrence (snooze buttons).
	SetNextAt(ctx context.Context, id string, at time.Time) error

	// SetText replaces the reminder text (inline edit).
	SetText(ctx context.Context, id string, text string) error

	// ClaimDue atomically claims up to limit due reminders: rows with
	// paused=0, next_at <= now and no live claim get claimed_until set to
	// now+lease and are returned. Concurrent callers never receive the
	// same reminder within a lease window.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Reminder, error)

	// ReleaseClaim clears a claim without recording a delivery, making the
	// reminder immediately claimable again (graceful shutdown).
	ReleaseClaim(ctx context.Context, id string) error

	// RecordRun appends one delivery attempt to the runs log.
	RecordRun(ctx context.Context, run Run) error

	// Reschedule advances the reminder after a delivery attempt: once-kind
	// becomes terminal (next_at NULL), recurring kinds get the next
	// occurrence strictly after now in the chat's timezone. The claim is
	// always cleared. Equal inputs produce equal rows (idempotent).
	Reschedule(ctx context.Context, id string, now time.Time) error

	// SyncTournamentReminders materializes the tournament feed: every
	// subscribed chat gets exactly one preset reminder, unsubscribed chats
	// get theirs removed. Idempotent.
	SyncTournamentReminders(ctx context.Context, now time.Time) error

	ListRuns(ctx context.Context, reminderID string, limit int) ([]Run, error)
	Close() error
}
