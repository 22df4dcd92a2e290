// Package dispatch delivers claimed reminders and records the outcome.
//
// Delivery policy: one attempt per occurrence. A successful send records an
// ok-run and advances the schedule. A transient failure records an
// error-run and still advances (miss and move on; the runs log is the audit
// trail). A permanent failure additionally pauses the reminder so a dead
// chat stops consuming scans. When the creator's quiet hours cover the
// occurrence, delivery is deferred to the end of the window instead.
package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindly/internal/eventbus"
	"remindly/internal/store"
	"remindly/internal/transport"
	logx "remindly/pkg/logx"
)

// Sender is the outbound half of the chat adapter.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Recorder is the store surface the dispatcher mutates through.
type Recorder interface {
	GetChat(ctx context.Context, chatID int64) (store.Chat, error)
	GetQuietHours(ctx context.Context, userID int64) (*store.QuietWindow, error)
	RecordRun(ctx context.Context, run store.Run) error
	Reschedule(ctx context.Context, id string, now time.Time) error
	SetNextAt(ctx context.Context, id string, at time.Time) error
	SetPaused(ctx context.Context, id string, paused bool, now time.Time) error
	ReleaseClaim(ctx context.Context, id string) error
}

type Config struct {
	RatePerSec  int           // outbound sends per second (default 25)
	SendTimeout time.Duration // per-send deadline (default 10s)
	DefaultTZ   string        // fallback for time rendering
}

type Dispatcher struct {
	cfg     Config
	sender  Sender
	store   Recorder
	bus     eventbus.Bus
	log     logx.Logger
	limiter *rate.Limiter

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time
}

func New(cfg Config, sender Sender, rec Recorder, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DefaultTZ == "" {
		cfg.DefaultTZ = "Europe/Moscow"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:     cfg,
		sender:  sender,
		store:   rec,
		bus:     bus,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// Deliver sends one claimed reminder and settles its scheduling state.
// It never panics the caller; the returned error is informational (the
// bookkeeping already happened).
func (d *Dispatcher) Deliver(ctx context.Context, r store.Reminder) error {
	if until, quiet := d.quietUntil(ctx, r); quiet {
		d.log.Debug("quiet hours; deferring delivery",
			logx.String("reminder_id", r.ID), logx.Time("until", until))
		qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer qcancel()
		if err := d.store.SetNextAt(qctx, r.ID, until); err != nil && !errors.Is(err, store.ErrNotFound) {
			d.log.Error("quiet deferral failed", logx.String("reminder_id", r.ID), logx.Err(err))
		}
		d.publish(eventbus.TypeReminderDeferred, r)
		return nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		// Shutdown while queued: release the claim so the reminder fires
		// on the next scan instead of waiting out the lease.
		d.release(r.ID)
		return err
	}

	text := d.render(ctx, r)

	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	_, sendErr := d.sender.SendText(sctx, transport.ChatTarget{ChatID: r.ChatID}, text, &transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	cancel()

	now := d.now()
	bctx, bcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bcancel()

	switch {
	case sendErr == nil:
		d.record(bctx, store.Run{ReminderID: r.ID, FiredAt: now, Status: store.RunOK})
		d.reschedule(bctx, r.ID, now)
		d.publish(eventbus.TypeReminderDelivered, r)
		return nil

	case transport.ClassOf(sendErr) == transport.ClassPermanent:
		d.log.Warn("permanent delivery failure; pausing reminder",
			logx.String("reminder_id", r.ID), logx.Int64("chat_id", r.ChatID), logx.Err(sendErr))
		d.record(bctx, store.Run{ReminderID: r.ID, FiredAt: now, Status: store.RunError, Detail: sendErr.Error()})
		if err := d.store.SetPaused(bctx, r.ID, true, now); err != nil && !errors.Is(err, store.ErrNotFound) {
			d.log.Error("auto-pause failed", logx.String("reminder_id", r.ID), logx.Err(err))
		}
		d.publish(eventbus.TypeReminderPaused, r)
		return sendErr

	default:
		d.log.Warn("transient delivery failure; skipping occurrence",
			logx.String("reminder_id", r.ID), logx.Int64("chat_id", r.ChatID), logx.Err(sendErr))
		d.record(bctx, store.Run{ReminderID: r.ID, FiredAt: now, Status: store.RunError, Detail: sendErr.Error()})
		d.reschedule(bctx, r.ID, now)
		d.publish(eventbus.TypeReminderMissed, r)
		return sendErr
	}
}

func (d *Dispatcher) record(ctx context.Context, run store.Run) {
	if err := d.store.RecordRun(ctx, run); err != nil {
		d.log.Error("run record failed", logx.String("reminder_id", run.ReminderID), logx.Err(err))
	}
}

func (d *Dispatcher) reschedule(ctx context.Context, id string, now time.Time) {
	err := d.store.Reschedule(ctx, id, now)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		d.log.Error("reschedule failed", logx.String("reminder_id", id), logx.Err(err))
	}
}

func (d *Dispatcher) release(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.ReleaseClaim(ctx, id); err != nil {
		d.log.Warn("claim release failed", logx.String("reminder_id", id), logx.Err(err))
	}
}

func (d *Dispatcher) publish(eventType string, r store.Reminder) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: eventType, Data: map[string]any{
		"reminder_id": r.ID,
		"chat_id":     r.ChatID,
		"category":    r.Category,
	}})
}

// render picks the message text. Tournament feed reminders announce the
// start time in the chat's timezone; ordinary reminders wrap the stored
// text in a random phrase.
func (d *Dispatcher) render(ctx context.Context, r store.Reminder) string {
	if r.Category == store.CategoryTournament {
		return d.renderTournament(ctx, r)
	}
	return formatPhrase(d.pick(reminderVariants), r.Text, "")
}

func (d *Dispatcher) renderTournament(ctx context.Context, r store.Reminder) string {
	loc := d.chatLocation(ctx, r.ChatID)

	// The slot fires five minutes before the start; display the start.
	at := d.now()
	if r.NextAt != nil {
		at = *r.NextAt
	}
	start := at.Add(5 * time.Minute).In(loc).Round(time.Minute)
	return formatPhrase(d.pick(tournamentVariants), TournamentTitle, start.Format("15:04"))
}

// quietUntil reports whether the creator's quiet hours cover the current
// instant, and if so when the window closes in the chat's timezone.
// Tournament feed reminders address the whole chat and never defer.
func (d *Dispatcher) quietUntil(ctx context.Context, r store.Reminder) (time.Time, bool) {
	if r.CreatedBy == 0 || r.Category == store.CategoryTournament {
		return time.Time{}, false
	}
	w, err := d.store.GetQuietHours(ctx, r.CreatedBy)
	if err != nil || w == nil {
		return time.Time{}, false
	}
	loc := d.chatLocation(ctx, r.ChatID)
	now := d.now().In(loc)
	if !w.Contains(now.Hour()) {
		return time.Time{}, false
	}
	until := time.Date(now.Year(), now.Month(), now.Day(), w.To, 0, 0, 0, loc)
	if !until.After(now) {
		until = until.Add(24 * time.Hour)
	}
	return until, true
}

func (d *Dispatcher) chatLocation(ctx context.Context, chatID int64) *time.Location {
	tz := d.cfg.DefaultTZ
	if c, err := d.store.GetChat(ctx, chatID); err == nil && c.TZ != "" {
		tz = c.TZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (d *Dispatcher) pick(variants []string) string {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return variants[d.rng.Intn(len(variants))]
}
