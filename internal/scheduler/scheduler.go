// Package scheduler runs the due-set scan loop: claim due reminders in
// batches, fan them out to delivery workers, and keep the tournament feed
// materialized.
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"remindly/internal/eventbus"
	rtsup "remindly/internal/runtime/supervisor"
	"remindly/internal/store"
	logx "remindly/pkg/logx"
)

// Claimer is the store surface the scan loop uses.
type Claimer interface {
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]store.Reminder, error)
	ReleaseClaim(ctx context.Context, id string) error
	SyncTournamentReminders(ctx context.Context, now time.Time) error
	TournamentChats(ctx context.Context) ([]store.Chat, error)
}

// Deliverer consumes claimed reminders. The dispatcher implements it.
type Deliverer interface {
	Deliver(ctx context.Context, r store.Reminder) error
}

type Config struct {
	TickInterval           time.Duration // default 30s
	BatchLimit             int           // default 100
	Workers                int           // default 4
	ClaimLease             time.Duration // default 5m
	TournamentSyncInterval time.Duration // default 5m; 0 disables
	// backoffMax caps the scan delay after repeated store failures.
	backoffMax time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 30 * time.Second
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 100
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = 5 * time.Minute
	}
	if c.backoffMax <= 0 {
		c.backoffMax = 5 * time.Minute
		if c.backoffMax < c.TickInterval {
			c.backoffMax = c.TickInterval
		}
	}
	return c
}

type Service struct {
	cfg  Config
	st   Claimer
	disp Deliverer
	bus  eventbus.Bus
	log  logx.Logger

	mu         sync.Mutex
	sup        *rtsup.Supervisor
	tickCancel context.CancelFunc
	queue      chan store.Reminder
	running    bool

	rng *rand.Rand
	now func() time.Time
}

func New(cfg Config, st Claimer, disp Deliverer, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:  cfg.withDefaults(),
		st:   st,
		disp: disp,
		bus:  bus,
		log:  log,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		now:  time.Now,
	}
}

func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "scheduler"))))
	tickCtx, tickCancel := context.WithCancel(s.sup.Context())
	s.tickCancel = tickCancel
	s.queue = make(chan store.Reminder, s.cfg.BatchLimit)
	sup, queue := s.sup, s.queue
	s.mu.Unlock()

	for i := 0; i < s.cfg.Workers; i++ {
		sup.Go0("worker", func(c context.Context) { s.workerLoop(c, queue) })
	}

	// The producer owns the queue: workers exit when it is closed and drained.
	sup.Go0("tick", func(c context.Context) {
		defer close(queue)
		s.tickLoop(tickCtx, queue)
	})

	if s.cfg.TournamentSyncInterval > 0 {
		sup.GoRestart0("tournament.sync", func(c context.Context) { s.tournamentLoop(c) },
			rtsup.WithRestartBackoff(time.Second, time.Minute))
	}

	s.log.Info("scheduler started",
		logx.Duration("tick_interval", s.cfg.TickInterval),
		logx.Int("batch_limit", s.cfg.BatchLimit),
		logx.Int("workers", s.cfg.Workers),
		logx.Duration("claim_lease", s.cfg.ClaimLease),
	)
	return nil
}

// Stop stops claiming, lets workers drain in-flight deliveries, then
// releases whatever is still queued. Claims held by a crashed instance are
// recovered by lease expiry instead.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	tickCancel := s.tickCancel
	queue := s.queue
	wasRunning := s.running
	s.running = false
	s.sup = nil
	s.tickCancel = nil
	s.mu.Unlock()

	if !wasRunning {
		return nil
	}
	if tickCancel != nil {
		tickCancel()
	}

	err := sup.Wait(ctx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		// Deadline hit: cut the workers loose and release what they left.
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
	}
	s.releaseQueued(queue)
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Service) releaseQueued(queue chan store.Reminder) {
	for {
		select {
		case r, ok := <-queue:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := s.st.ReleaseClaim(ctx, r.ID); err != nil {
				s.log.Warn("claim release failed on stop", logx.String("reminder_id", r.ID), logx.Err(err))
			}
			cancel()
		default:
			return
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, queue <-chan store.Reminder) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-queue:
			if !ok {
				return
			}
			// Per-reminder failures are settled inside Deliver; nothing to
			// do here but keep consuming.
			_ = s.disp.Deliver(ctx, r)
		}
	}
}

// tickLoop scans on a timer. Store outages back the scan off exponentially
// (capped); a clean scan resets the cadence.
func (s *Service) tickLoop(ctx context.Context, queue chan<- store.Reminder) {
	delay := s.cfg.TickInterval
	fails := 0

	timer := time.NewTimer(s.jitter(delay))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := s.scan(ctx, queue); err != nil {
			fails++
			delay = s.cfg.TickInterval << uint(fails)
			if delay > s.cfg.backoffMax || delay <= 0 {
				delay = s.cfg.backoffMax
			}
			s.log.Warn("due-set scan failed; backing off",
				logx.Err(err), logx.Int("consecutive", fails), logx.Duration("retry_in", delay))
			if s.bus != nil {
				s.bus.Publish(eventbus.Event{Type: eventbus.TypeStoreUnavailable, Data: err.Error()})
			}
		} else {
			fails = 0
			delay = s.cfg.TickInterval
		}

		timer.Reset(s.jitter(delay))
	}
}

// scan claims one batch and hands it to the workers.
func (s *Service) scan(ctx context.Context, queue chan<- store.Reminder) error {
	now := s.now()
	claimed, err := s.st.ClaimDue(ctx, now, s.cfg.BatchLimit, s.cfg.ClaimLease)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if len(claimed) > 0 {
		s.log.Debug("due reminders claimed", logx.Int("count", len(claimed)))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeSchedulerTick, Data: len(claimed)})
	}

	for _, r := range claimed {
		select {
		case queue <- r:
		case <-ctx.Done():
			// Stopping mid-batch: put the rest back.
			rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := s.st.ReleaseClaim(rctx, r.ID); err != nil {
				s.log.Warn("claim release failed on stop", logx.String("reminder_id", r.ID), logx.Err(err))
			}
			cancel()
		}
	}
	return nil
}

func (s *Service) tournamentLoop(ctx context.Context) {
	syncOnce := func() {
		sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.st.SyncTournamentReminders(sctx, s.now()); err != nil {
			s.log.Warn("tournament sync failed", logx.Err(err))
			return
		}
		chats, err := s.st.TournamentChats(sctx)
		if err != nil {
			s.log.Warn("tournament chat listing failed", logx.Err(err))
			return
		}
		s.log.Debug("tournament feed synced", logx.Int("subscribed_chats", len(chats)))
	}

	syncOnce()
	ticker := time.NewTicker(s.cfg.TournamentSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncOnce()
		}
	}
}

// jitter spreads ticks a little so several instances sharing a database
// don't scan in lockstep.
func (s *Service) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	s.mu.Lock()
	j := time.Duration(s.rng.Int63n(int64(d/10) + 1))
	s.mu.Unlock()
	return d + j
}
