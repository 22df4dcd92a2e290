package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindly/internal/bot"
	"remindly/internal/config"
	"remindly/internal/dispatch"
	"remindly/internal/eventbus"
	rtsup "remindly/internal/runtime/supervisor"
	"remindly/internal/scheduler"
	"remindly/internal/store"
	tgadapter "remindly/internal/transport/telegram/adapter"
	logx "remindly/pkg/logx"
)

// App wires the services together: config manager, logging, store,
// telegram adapter, dispatcher, scheduler and the bot front-end.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus     eventbus.Bus
	st      store.Store
	adapter *tgadapter.Adapter
	disp    *dispatch.Dispatcher
	sched   *scheduler.Service
	bot     *bot.Service

	// schedEnabled is flipped by the config-reload goroutine and read by
	// Start/Stop on the main goroutine.
	schedEnabled atomic.Bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	defaultTZ := strings.TrimSpace(cfg.DefaultTimezone)
	if defaultTZ == "" {
		defaultTZ = "Europe/Moscow"
	}
	if _, err := time.LoadLocation(defaultTZ); err != nil {
		return nil, fmt.Errorf("default_timezone: invalid %q: %w", defaultTZ, err)
	}

	// The adapter is also the log sink, so it boots on a console logger.
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := tgadapter.New(tgadapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logxConfig(cfg), ad)
	log = log.With(logx.String("comp", "app"))

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
		DefaultTZ:   defaultTZ,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	bus := eventbus.New()

	sendTimeout, err := config.ParseDurationOrDefault("dispatch.send_timeout", cfg.Dispatch.SendTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(dispatch.Config{
		RatePerSec:  cfg.Dispatch.RatePerSec,
		SendTimeout: sendTimeout,
		DefaultTZ:   defaultTZ,
	}, ad, st, bus, log.With(logx.String("comp", "dispatch")))

	schedCfg, err := schedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, st, disp, bus, log.With(logx.String("comp", "scheduler")))

	tournamentTZ := strings.TrimSpace(cfg.Tournament.Timezone)
	if tournamentTZ == "" {
		tournamentTZ = "Europe/Moscow"
	}
	botSvc := bot.New(bot.Config{
		DefaultTZ:    defaultTZ,
		TournamentTZ: tournamentTZ,
		Owners:       cfg.Telegram.OwnerUserIDs,
		SendTimeout:  sendTimeout,
	}, ad, st, bus, log.With(logx.String("comp", "bot")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     bus,
		st:      st,
		adapter: ad,
		disp:    disp,
		sched:   sched,
		bot:     botSvc,
	}
	a.schedEnabled.Store(cfg.Scheduler.Enabled)
	return a, nil
}

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func schedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	tick, err := config.ParseDurationOrDefault("scheduler.tick_interval", cfg.Scheduler.TickInterval, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	lease, err := config.ParseDurationOrDefault("scheduler.claim_lease", cfg.Scheduler.ClaimLease, 5*time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	syncIvl, err := config.ParseDurationOrDefault("scheduler.tournament_sync_interval", cfg.Scheduler.TournamentSyncInterval, 5*time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	if !cfg.Tournament.Enabled {
		syncIvl = 0
	}
	return scheduler.Config{
		TickInterval:           tick,
		BatchLimit:             cfg.Scheduler.BatchLimit,
		Workers:                cfg.Scheduler.Workers,
		ClaimLease:             lease,
		TournamentSyncInterval: syncIvl,
	}, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if cfg.Scheduler.Workers < 0 {
			return fmt.Errorf("scheduler.workers must be >= 0")
		}
		if cfg.Dispatch.RatePerSec < 0 {
			return fmt.Errorf("dispatch.rate_per_sec must be >= 0")
		}
		if _, err := config.ParseDurationOrDefault("scheduler.tick_interval", cfg.Scheduler.TickInterval, time.Second); err != nil {
			return err
		}
		if _, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, time.Second); err != nil {
			return err
		}
		if tz := strings.TrimSpace(cfg.DefaultTimezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("default_timezone: invalid %q: %w", tz, err)
			}
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.bot.Inbox()); err != nil {
		return err
	}
	if err := a.bot.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.schedEnabled.Load() {
		if err := a.sched.Start(a.sup.Context()); err != nil {
			return err
		}
	} else {
		a.log.Info("scheduler disabled by config")
	}

	a.watchConfig()
	a.logEvents()

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// watchConfig applies hot-reloaded config: logging settings swap in place,
// the scheduler can be toggled, everything else needs a restart.
func (a *App) watchConfig() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: only the newest config matters.
			DRAIN:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							cfg = newer
						}
					default:
						break DRAIN
					}
				}

				sections, fields := config.SummarizeChange(last, cfg)
				last = cfg

				a.logs.Apply(logxConfig(cfg))

				if cfg.Scheduler.Enabled != a.schedEnabled.Load() {
					if cfg.Scheduler.Enabled {
						a.log.Info("scheduler enabled via config")
						if err := a.sched.Start(c); err != nil {
							a.log.Error("scheduler start failed", logx.Err(err))
						} else {
							a.schedEnabled.Store(true)
						}
					} else {
						a.log.Info("scheduler disabled via config")
						stopCtx, cancel := context.WithTimeout(c, 5*time.Second)
						if err := a.sched.Stop(stopCtx); err != nil {
							a.log.Warn("scheduler stop failed", logx.Err(err))
						}
						cancel()
						a.schedEnabled.Store(false)
					}
				}

				if len(sections) == 0 {
					a.log.Info("config reloaded (no changes)")
					continue
				}
				a.log.Info("config reloaded",
					append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
			}
		}
	})
}

// logEvents taps the event bus for the operational audit trail.
func (a *App) logEvents() {
	events, unsubscribe := a.bus.Subscribe(64)
	a.sup.Go0("events.log", func(c context.Context) {
		defer unsubscribe()
		log := a.log.With(logx.String("comp", "events"))
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				switch e.Type {
				case eventbus.TypeStoreUnavailable, eventbus.TypeReminderMissed:
					log.Warn(e.Type, logx.Any("data", e.Data))
				case eventbus.TypeSchedulerTick:
					// too chatty for info
					log.Trace(e.Type, logx.Any("data", e.Data))
				default:
					log.Info(e.Type, logx.Any("data", e.Data))
				}
			}
		}
	})
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	a.sup.Cancel()

	// Bounded shutdown steps so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("step", name), logx.Err(err))
		}
		a.log.Debug("stop step done", logx.String("step", name), logx.Duration("took", time.Since(start)))
	}

	// Scheduler first: it releases unclaimed work back to the store.
	if a.schedEnabled.Load() {
		step("scheduler", 5*time.Second, a.sched.Stop)
	}
	step("bot", 3*time.Second, a.bot.Stop)
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("store", 2*time.Second, func(context.Context) error { return a.st.Close() })

	err := a.logs.Close()
	return err
}
