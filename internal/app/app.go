// Package app wires configuration, storage, task sources, the reminder
// engine and the Telegram transport into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/calendar"
	"remindbot/internal/completion"
	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	"remindbot/internal/heartbeat"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/tasks"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/systemd"
	"remindbot/pkg/tgui"
)

const watchDebounce = 500 * time.Millisecond

type App struct {
	cfg     *config.Config
	timings config.Timings

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store         storage.Store
	storageDriver string
	sourceNames   []string

	adapter *telegram.Adapter
	engine  *reminder.Engine
	router  *router.Router
	heart   *heartbeat.Service
	watcher *tasks.Watcher

	sup       *supervisor.Supervisor
	updates   chan kit.Update
	startedAt time.Time
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	t, err := cfg.Timings()
	if err != nil {
		return nil, err
	}

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: t.PollTimeout,
	}, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	for _, w := range cfg.Warnings() {
		log.Warn("config: " + w)
	}

	a := &App{
		cfg:     cfg,
		timings: t,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     eventbus.New(),
		adapter: ad,
		updates: make(chan kit.Update, 256),
	}

	sc := mapStorageConfig(cfg, t)
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	a.store = st
	a.storageDriver = sc.Driver
	if a.storageDriver == "" {
		a.storageDriver = "file"
	}

	var (
		sources []reminder.TaskSource
		folder  *tasks.Source
	)
	if dir := strings.TrimSpace(cfg.Tasks.Folder); dir != "" {
		folder = tasks.NewSource(tasks.Config{
			Folder:    dir,
			Recursive: config.Enabled(cfg.Tasks.Recursive),
			Parse:     tasks.ParseOptions{DefaultDuration: t.DefaultDuration},
		}, log.With(logx.String("comp", "tasks")))
		sources = append(sources, folder)
		a.sourceNames = append(a.sourceNames, tasks.SourceName)

		if config.Enabled(cfg.Tasks.Watch) {
			a.watcher = &tasks.Watcher{
				Folder:    dir,
				Recursive: config.Enabled(cfg.Tasks.Recursive),
				Debounce:  watchDebounce,
				Log:       log.With(logx.String("comp", "tasks.watch")),
			}
		}
	}
	if cfg.Calendar.Enabled {
		cal, err := calendar.New(context.Background(), calendar.Config{
			CalendarID:      cfg.Calendar.CalendarID,
			CredentialsFile: cfg.Calendar.CredentialsFile,
			TokenFile:       cfg.Calendar.TokenFile,
			Lookahead:       t.Lookahead,
		}, log.With(logx.String("comp", "calendar")))
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("calendar: %w", err)
		}
		sources = append(sources, cal)
		a.sourceNames = append(a.sourceNames, calendar.SourceName)
	}

	target := kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.TopicID}
	deliverer := delivery.New(delivery.Config{
		Target:     target,
		RatePerSec: cfg.Reminders.SendRatePerSec,
	}, ad, log.With(logx.String("comp", "delivery")))

	a.engine = reminder.NewEngine(reminder.Config{
		Offsets:         cfg.Offsets(),
		ToleranceBefore: t.ToleranceBefore,
		ToleranceDuring: t.ToleranceDuring,
		Interval:        t.Interval,
	}, reminder.MultiSource{Sources: sources, Log: log.With(logx.String("comp", "sources"))},
		deliverer, st, log.With(logx.String("comp", "reminder")),
		reminder.WithRegistry(reminder.NewRegistry()),
		reminder.WithBus(a.bus),
	)
	if a.watcher != nil {
		a.watcher.OnChange = a.engine.Kick
	}

	a.router = router.New(log.With(logx.String("comp", "router")), router.Options{
		AllowedChatID: cfg.Telegram.ChatID,
	})
	if folder != nil {
		done := &completion.Handler{
			Registry:  a.engine.Registry(),
			Handles:   st,
			Completer: folder,
			UI:        ad,
			Bus:       a.bus,
			Log:       log.With(logx.String("comp", "completion")),
		}
		a.router.Callback(delivery.DoneAction+tgui.CallbackSep, done.Handle)
	}
	a.registerCommands(a.router)

	if config.Enabled(cfg.Heartbeat.Enabled) {
		hb, err := heartbeat.New(heartbeat.Config{
			Schedule: cfg.Heartbeat.Schedule,
			Target:   target,
		}, ad, log.With(logx.String("comp", "heartbeat")))
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		a.heart = hb
	}
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
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
	a.startedAt = time.Now()
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if err := writePIDFile(a.cfg.PIDFile); err != nil {
		return err
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go0("router", func(c context.Context) { a.router.Run(c, a.updates) })
	a.sup.Go("reminder.engine", a.engine.Run)
	if a.watcher != nil {
		a.sup.GoRestart("tasks.watch", a.watcher.Run,
			supervisor.WithRestartBackoff(time.Second, time.Minute))
	}
	if a.heart != nil {
		if err := a.heart.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// the file changed; rescan without waiting for the watcher
				if e.Type == completion.EventCompleted {
					a.engine.Kick()
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if _, err := systemd.Ready(fmt.Sprintf("watching %s", strings.Join(a.sourceNames, ", "))); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := systemd.Watchdog(c, a.healthy, a.log.With(logx.String("comp", "systemd"))); err != nil {
			a.log.Warn("systemd watchdog disabled", logx.Err(err))
		}
	})

	a.log.Info("app started",
		logx.Strings("sources", a.sourceNames),
		logx.String("storage", a.storageDriver),
		logx.Int64("chat_id", a.cfg.Telegram.ChatID),
	)
	return nil
}

// healthy reports whether the engine finished a scan recently.
func (a *App) healthy() bool {
	_, last := a.engine.Registry().Snapshot()
	if last.IsZero() {
		return time.Since(a.startedAt) < 3*a.timings.Interval
	}
	return time.Since(last) < 3*a.timings.Interval
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("heartbeat", time.Second, func(c context.Context) error {
		if a.heart != nil {
			a.heart.Stop(c)
		}
		return nil
	})
	step("adapter", 2*time.Second, a.adapter.Stop)
	// the engine persists its state when its pass unwinds
	step("supervisor", 5*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("pidfile", time.Second, func(context.Context) error { return removePIDFile(a.cfg.PIDFile) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
