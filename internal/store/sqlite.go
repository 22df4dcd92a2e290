package store

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

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"remindly/internal/recurrence"
	logx "remindly/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db        *sql.DB
	log       logx.Logger
	defaultTZ string
}

// Open initializes the SQLite store and runs migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	tz := strings.TrimSpace(cfg.DefaultTZ)
	if tz == "" {
		tz = "Europe/Moscow"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("invalid default timezone %q: %w", tz, err)
	}

	st := &sqliteStore{db: db, log: log, defaultTZ: tz}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("store opened", logx.String("path", cfg.Path), logx.String("default_tz", tz))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// wrap marks driver failures retryable. Sentinel errors pass through.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
		return err
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func millisPtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// ---- chats ----

func (s *sqliteStore) UpsertChat(ctx context.Context, c Chat) error {
	if c.TZ == "" {
		c.TZ = s.defaultTZ
	}
	now := millis(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats(chat_id, title, tz, tournament_subscribed, created_at, updated_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET title=excluded.title, updated_at=excluded.updated_at`,
		c.ChatID, c.Title, c.TZ, boolInt(c.TournamentSubscribed), now, now,
	)
	return wrap(err)
}

func (s *sqliteStore) GetChat(ctx context.Context, chatID int64) (Chat, error) {
	var (
		c          Chat
		sub        int
		crMs, upMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, title, tz, tournament_subscribed, created_at, updated_at FROM chats WHERE chat_id = ?`,
		chatID,
	).Scan(&c.ChatID, &c.Title, &c.TZ, &sub, &crMs, &upMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, wrap(err)
	}
	c.TournamentSubscribed = sub != 0
	c.CreatedAt = time.UnixMilli(crMs).UTC()
	c.UpdatedAt = time.UnixMilli(upMs).UTC()
	return c, nil
}

func (s *sqliteStore) SetChatTZ(ctx context.Context, chatID int64, tz string) error {
	if _, err := time.LoadLocation(tz); err != nil {
		return &ValidationError{Field: "timezone", Reason: fmt.Sprintf("unknown zone %q", tz)}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET tz = ?, updated_at = ? WHERE chat_id = ?`,
		tz, millis(time.Now()), chatID,
	)
	if err != nil {
		return wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) SetTournamentSubscription(ctx context.Context, chatID int64, on bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET tournament_subscribed = ?, updated_at = ? WHERE chat_id = ?`,
		boolInt(on), millis(time.Now()), chatID,
	)
	if err != nil {
		return wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) TournamentChats(ctx context.Context) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, title, tz, tournament_subscribed, created_at, updated_at
		 FROM chats WHERE tournament_subscribed = 1 ORDER BY chat_id`,
	)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		var (
			c          Chat
			sub        int
			crMs, upMs int64
		)
		if err := rows.Scan(&c.ChatID, &c.Title, &c.TZ, &sub, &crMs, &upMs); err != nil {
			return nil, wrap(err)
		}
		c.TournamentSubscribed = sub != 0
		c.CreatedAt = time.UnixMilli(crMs).UTC()
		c.UpdatedAt = time.UnixMilli(upMs).UTC()
		out = append(out, c)
	}
	return out, wrap(rows.Err())
}

// ---- user prefs & roles ----

func (s *sqliteStore) SetQuietHours(ctx context.Context, userID int64, w *QuietWindow) error {
	now := millis(time.Now())
	if w == nil {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO user_prefs(user_id, quiet_from, quiet_to, updated_at) VALUES(?,NULL,NULL,?)
			 ON CONFLICT(user_id) DO UPDATE SET quiet_from=NULL, quiet_to=NULL, updated_at=excluded.updated_at`,
			userID, now,
		)
		return wrap(err)
	}
	if w.From < 0 || w.From > 23 || w.To < 0 || w.To > 23 {
		return &ValidationError{Field: "quiet_hours", Reason: "hours must be in 0..23"}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_prefs(user_id, quiet_from, quiet_to, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET quiet_from=excluded.quiet_from, quiet_to=excluded.quiet_to,
		     updated_at=excluded.updated_at`,
		userID, w.From, w.To, now,
	)
	return wrap(err)
}

func (s *sqliteStore) GetQuietHours(ctx context.Context, userID int64) (*QuietWindow, error) {
	var from, to sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT quiet_from, quiet_to FROM user_prefs WHERE user_id = ?`, userID,
	).Scan(&from, &to)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	if !from.Valid || !to.Valid {
		return nil, nil
	}
	return &QuietWindow{From: int(from.Int64), To: int(to.Int64)}, nil
}

func (s *sqliteStore) GrantRole(ctx context.Context, chatID int64, userID int64, role string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		role = RoleEditor
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_roles(chat_id, user_id, role, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(chat_id, user_id) DO UPDATE SET role=excluded.role`,
		chatID, userID, role, millis(time.Now()),
	)
	return wrap(err)
}

func (s *sqliteStore) RevokeRole(ctx context.Context, chatID int64, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_roles WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	return wrap(err)
}

func (s *sqliteStore) ListRoles(ctx context.Context, chatID int64) ([]ChatRole, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, user_id, role FROM chat_roles WHERE chat_id = ? ORDER BY user_id`, chatID)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []ChatRole
	for rows.Next() {
		var r ChatRole
		if err := rows.Scan(&r.ChatID, &r.UserID, &r.Role); err != nil {
			return nil, wrap(err)
		}
		out = append(out, r)
	}
	return out, wrap(rows.Err())
}

func (s *sqliteStore) HasEditorRole(ctx context.Context, chatID int64, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chat_roles WHERE chat_id = ? AND user_id = ? AND role = ?`,
		chatID, userID, RoleEditor,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap(err)
	}
	return true, nil
}

// chatLocation resolves a chat's timezone, falling back to the default.
func (s *sqliteStore) chatLocation(ctx context.Context, q queryer, chatID int64) *time.Location {
	var tz string
	err := q.QueryRowContext(ctx, `SELECT tz FROM chats WHERE chat_id = ?`, chatID).Scan(&tz)
	if err != nil {
		tz = s.defaultTZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc, _ = time.LoadLocation(s.defaultTZ)
	}
	return loc
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ---- reminders ----

const reminderCols = `id, chat_id, created_by, text, kind, cron_expr, preset, remind_at,
	category, next_at, paused, claimed_until, last_fired_at, created_at, updated_at`

func scanReminder(sc interface{ Scan(...any) error }) (Reminder, error) {
	var (
		r          Reminder
		kind       string
		cronExpr   sql.NullString
		preset     sql.NullString
		remindAt   sql.NullInt64
		nextAt     sql.NullInt64
		paused     int
		claimed    sql.NullInt64
		lastFired  sql.NullInt64
		crMs, upMs int64
	)
	err := sc.Scan(&r.ID, &r.ChatID, &r.CreatedBy, &r.Text, &kind, &cronExpr, &preset, &remindAt,
		&r.Category, &nextAt, &paused, &claimed, &lastFired, &crMs, &upMs)
	if err != nil {
		return Reminder{}, err
	}
	r.Spec = recurrence.Spec{Kind: recurrence.Kind(kind), Expr: cronExpr.String, Preset: preset.String}
	if at := fromMillis(remindAt); at != nil {
		r.Spec.At = *at
	}
	r.NextAt = fromMillis(nextAt)
	r.Paused = paused != 0
	r.ClaimedUntil = fromMillis(claimed)
	r.LastFiredAt = fromMillis(lastFired)
	r.CreatedAt = time.UnixMilli(crMs).UTC()
	r.UpdatedAt = time.UnixMilli(upMs).UTC()
	return r, nil
}

func (s *sqliteStore) CreateReminder(ctx context.Context, r Reminder, now time.Time) (Reminder, error) {
	if strings.TrimSpace(r.Text) == "" && r.Category != CategoryTournament {
		return Reminder{}, &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if err := r.Spec.Validate(); err != nil {
		return Reminder{}, &ValidationError{Field: "schedule", Reason: err.Error()}
	}
	if r.Spec.Kind == recurrence.KindOnce && !r.Spec.At.After(now) {
		return Reminder{}, &ValidationError{Field: "schedule", Reason: "time is in the past"}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	loc := s.chatLocation(ctx, s.db, r.ChatID)
	next, ok := recurrence.Next(r.Spec, now, loc)
	if !ok {
		return Reminder{}, &ValidationError{Field: "schedule", Reason: "produces no future occurrence"}
	}
	r.NextAt = &next
	r.Paused = false
	r.ClaimedUntil = nil
	r.LastFiredAt = nil
	r.CreatedAt = now.UTC()
	r.UpdatedAt = now.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(`+reminderCols+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.ChatID, r.CreatedBy, r.Text, string(r.Spec.Kind),
		nullStr(r.Spec.Expr), nullStr(r.Spec.Preset), millisPtr(specAt(r.Spec)),
		r.Category, millisPtr(r.NextAt), boolInt(r.Paused), nil, nil,
		millis(r.CreatedAt), millis(r.UpdatedAt),
	)
	if err != nil {
		return Reminder{}, wrap(err)
	}
	return r, nil
}

func specAt(s recurrence.Spec) *time.Time {
	if s.Kind != recurrence.KindOnce {
		return nil
	}
	at := s.At
	return &at
}

func (s *sqliteStore) GetReminder(ctx context.Context, id string) (Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reminder{}, ErrNotFound
	}
	if err != nil {
		return Reminder{}, wrap(err)
	}
	return r, nil
}

func (s *sqliteStore) ListChatReminders(ctx context.Context, chatID int64) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE chat_id = ?
		 ORDER BY next_at IS NULL, next_at, created_at`,
		chatID,
	)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, wrap(err)
		}
		out = append(out, r)
	}
	return out, wrap(rows.Err())
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) SetPaused(ctx context.Context, id string, paused bool, now time.Time) error {
	if paused {
		res, err := s.db.ExecContext(ctx,
			`UPDATE reminders SET paused = 1, next_at = NULL, claimed_until = NULL, updated_at = ?
			 WHERE id = ?`,
			millis(now), id,
		)
		if err != nil {
			return wrap(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return wrap(err)
	}

	loc := s.chatLocation(ctx, tx, r.ChatID)
	var nextArg any
	if next, ok := recurrence.Next(r.Spec, now, loc); ok {
		nextArg = millis(next)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE reminders SET paused = 0, next_at = ?, claimed_until = NULL, updated_at = ? WHERE id = ?`,
		nextArg, millis(now), id,
	); err != nil {
		return wrap(err)
	}
	return wrap(tx.Commit())
}

func (s *sqliteStore) SetNextAt(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET next_at = ?, paused = 0, claimed_until = NULL, updated_at = ? WHERE id = ?`,
		millis(at), millis(time.Now()), id,
	)
	if err != nil {
		return wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) SetText(ctx context.Context, id string, text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET text = ?, updated_at = ? WHERE id = ?`,
		text, millis(time.Now()), id,
	)
	if err != nil {
		return wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Reminder, error) {
	if limit <= 0 {
		limit = 100
	}
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	nowMs := millis(now)

	// Single conditional UPDATE: under SQLite's writer lock at most one of
	// several racing schedulers moves claimed_until forward, so each due
	// reminder is handed out once per lease window.
	rows, err := s.db.QueryContext(ctx,
		`UPDATE reminders SET claimed_until = ?, updated_at = ?
		 WHERE id IN (
		     SELECT id FROM reminders
		     WHERE paused = 0
		       AND next_at IS NOT NULL AND next_at <= ?
		       AND (claimed_until IS NULL OR claimed_until <= ?)
		     ORDER BY next_at
		     LIMIT ?
		 )
		 RETURNING `+reminderCols,
		nowMs+lease.Milliseconds(), nowMs, nowMs, nowMs, limit,
	)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, wrap(err)
		}
		out = append(out, r)
	}
	return out, wrap(rows.Err())
}

func (s *sqliteStore) ReleaseClaim(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET claimed_until = NULL, updated_at = ? WHERE id = ?`,
		millis(time.Now()), id,
	)
	return wrap(err)
}

func (s *sqliteStore) RecordRun(ctx context.Context, run Run) error {
	if run.FiredAt.IsZero() {
		run.FiredAt = time.Now()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(reminder_id, fired_at, status, detail, created_at) VALUES(?,?,?,?,?)`,
		run.ReminderID, millis(run.FiredAt), string(run.Status), nullStr(run.Detail), millis(run.CreatedAt),
	)
	return wrap(err)
}

func (s *sqliteStore) Reschedule(ctx context.Context, id string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return wrap(err)
	}

	var nextArg any
	if r.Recurring() {
		loc := s.chatLocation(ctx, tx, r.ChatID)
		if next, ok := recurrence.Next(r.Spec, now, loc); ok {
			nextArg = millis(next)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE reminders SET next_at = ?, last_fired_at = ?, claimed_until = NULL, updated_at = ?
		 WHERE id = ?`,
		nextArg, millis(now), millis(now), id,
	); err != nil {
		return wrap(err)
	}
	return wrap(tx.Commit())
}

func (s *sqliteStore) SyncTournamentReminders(ctx context.Context, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err)
	}
	defer tx.Rollback()

	// Drop feed reminders for chats that unsubscribed.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM reminders WHERE category = ? AND chat_id IN
		     (SELECT chat_id FROM chats WHERE tournament_subscribed = 0)`,
		CategoryTournament,
	); err != nil {
		return wrap(err)
	}

	// Materialize a feed reminder for every subscribed chat missing one.
	rows, err := tx.QueryContext(ctx,
		`SELECT c.chat_id, c.tz FROM chats c
		 WHERE c.tournament_subscribed = 1
		   AND NOT EXISTS (SELECT 1 FROM reminders r WHERE r.chat_id = c.chat_id AND r.category = ?)`,
		CategoryTournament,
	)
	if err != nil {
		return wrap(err)
	}
	type pending struct {
		chatID int64
		tz     string
	}
	var missing []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.chatID, &p.tz); err != nil {
			rows.Close()
			return wrap(err)
		}
		missing = append(missing, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wrap(err)
	}

	spec := recurrence.Spec{Kind: recurrence.KindPreset, Preset: recurrence.PresetTournament}
	for _, p := range missing {
		loc, lerr := time.LoadLocation(p.tz)
		if lerr != nil {
			loc, _ = time.LoadLocation(s.defaultTZ)
		}
		next, ok := recurrence.Next(spec, now, loc)
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reminders(`+reminderCols+`)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			uuid.NewString(), p.chatID, 0, "", string(spec.Kind),
			nil, spec.Preset, nil,
			CategoryTournament, millis(next), 0, nil, nil,
			millis(now), millis(now),
		); err != nil {
			return wrap(err)
		}
	}
	return wrap(tx.Commit())
}

func (s *sqliteStore) ListRuns(ctx context.Context, reminderID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reminder_id, fired_at, status, detail, created_at FROM runs
		 WHERE reminder_id = ? ORDER BY fired_at DESC, id DESC LIMIT ?`,
		reminderID, limit,
	)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run     Run
			fired   int64
			status  string
			detail  sql.NullString
			created int64
		)
		if err := rows.Scan(&run.ID, &run.ReminderID, &fired, &status, &detail, &created); err != nil {
			return nil, wrap(err)
		}
		run.FiredAt = time.UnixMilli(fired).UTC()
		run.Status = RunStatus(status)
		run.Detail = detail.String
		run.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, run)
	}
	return out, wrap(rows.Err())
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
