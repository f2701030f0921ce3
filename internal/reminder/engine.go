package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

// Event types published on the bus.
const (
	EventSent      = "reminder.sent"
	EventRetracted = "reminder.retracted"
	EventFailed    = "reminder.failed"
	EventPass      = "reminder.pass"
)

// Config controls the engine.
//
// Tolerances are used as given: zero admits a before/during trigger only at
// its exact fire time. A negative tolerance selects the default.
type Config struct {
	Offsets         Offsets
	ToleranceBefore time.Duration
	ToleranceDuring time.Duration
	Interval        time.Duration
}

const (
	DefaultToleranceBefore = 5 * time.Minute
	DefaultToleranceDuring = 20 * time.Minute
	DefaultInterval        = 60 * time.Second
)

// DefaultConfig returns a Config with default tolerances and interval.
func DefaultConfig(offsets Offsets) Config {
	return Config{
		Offsets:         offsets,
		ToleranceBefore: DefaultToleranceBefore,
		ToleranceDuring: DefaultToleranceDuring,
		Interval:        DefaultInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.ToleranceBefore < 0 {
		c.ToleranceBefore = DefaultToleranceBefore
	}
	if c.ToleranceDuring < 0 {
		c.ToleranceDuring = DefaultToleranceDuring
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return c
}

// PassReport summarizes one scan pass.
type PassReport struct {
	Tasks     int           `json:"tasks"`
	Due       int           `json:"due"`
	Sent      int           `json:"sent"`
	Failed    int           `json:"failed"`
	Retracted int           `json:"retracted"`
	Took      time.Duration `json:"took"`
}

// DeliveryEvent is the payload of sent/retracted/failed events.
type DeliveryEvent struct {
	TaskID string `json:"task_id"`
	Key    string `json:"key"`
	Error  string `json:"error,omitempty"`
}

// Engine runs the scan → dispatch → persist loop.
//
// Only one pass runs at a time; the engine is the single writer of the sent
// state.
type Engine struct {
	cfg      Config
	source   TaskSource
	deliver  Deliverer
	store    Store
	registry *Registry
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time

	passMu sync.Mutex
	loaded bool

	// sentMu guards writes to sent and reads from other goroutines; the
	// pass goroutine reads without it.
	sentMu sync.RWMutex
	sent   SentState

	kick chan struct{}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithRegistry shares a live task registry with other components.
func WithRegistry(r *Registry) Option { return func(e *Engine) { e.registry = r } }

// WithBus publishes lifecycle events.
func WithBus(b eventbus.Bus) Option { return func(e *Engine) { e.bus = b } }

func NewEngine(cfg Config, source TaskSource, deliver Deliverer, store Store, log logx.Logger, opts ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		cfg:     cfg.withDefaults(),
		source:  source,
		deliver: deliver,
		store:   store,
		log:     log,
		now:     time.Now,
		kick:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	return e
}

// Registry returns the live task registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Kick requests an early pass. Multiple kicks before the next pass coalesce.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run executes a pass immediately and then every Interval until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("reminder loop started", logx.Duration("interval", e.cfg.Interval))
	e.runPass(ctx)

	t := time.NewTicker(e.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("reminder loop stopped")
			return nil
		case <-t.C:
			e.runPass(ctx)
		case <-e.kick:
			e.log.Debug("early pass requested")
			e.runPass(ctx)
		}
	}
}

func (e *Engine) runPass(ctx context.Context) {
	rep, err := e.RunOnce(ctx)
	if err != nil {
		e.log.Error("pass failed", logx.Err(err))
		return
	}
	lvl := e.log.Debug
	if rep.Sent > 0 || rep.Failed > 0 {
		lvl = e.log.Info
	}
	lvl("pass done",
		logx.Int("tasks", rep.Tasks),
		logx.Int("due", rep.Due),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Int("retracted", rep.Retracted),
		logx.Duration("took", rep.Took),
	)
}

// RunOnce performs a single scan pass at the engine clock's current time.
func (e *Engine) RunOnce(ctx context.Context) (PassReport, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	start := time.Now()
	now := e.now()
	var rep PassReport

	if !e.loaded {
		st, err := e.store.LoadSent(ctx)
		if err != nil {
			e.log.Warn("sent state unreadable; starting empty", logx.Err(err))
			st = nil
		}
		if st == nil {
			st = SentState{}
		}
		e.sentMu.Lock()
		e.sent = st
		e.sentMu.Unlock()
		e.loaded = true
	}

	// Scanning
	tasks, err := e.source.ListTasks(ctx)
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			e.log.Warn("task source not found", logx.Err(err))
		} else {
			e.log.Error("task scan failed", logx.Err(err))
		}
		tasks = nil
	}
	e.registry.Replace(tasks, now)
	rep.Tasks = len(tasks)

	// Dispatching
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		e.dispatchTask(ctx, now, task, &rep)
	}

	// Persisting. Use a context that survives shutdown so a cancelled pass
	// still records what it already sent.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.store.SaveSent(pctx, e.sent); err != nil {
		return rep, err
	}

	rep.Took = time.Since(start)
	e.publish(EventPass, rep)
	return rep, nil
}

func (e *Engine) dispatchTask(ctx context.Context, now time.Time, task Task, rep *PassReport) {
	id := task.ID()
	for _, tr := range Generate(task, e.cfg.Offsets) {
		if e.sent.Has(id, tr.Key) {
			continue
		}
		if !IsDue(now, tr.FireAt, tr.Key, e.cfg.ToleranceBefore, e.cfg.ToleranceDuring) {
			continue
		}
		rep.Due++
		if ctx.Err() != nil {
			return
		}

		log := e.log.With(logx.String("task_id", id), logx.String("key", tr.Key))
		rep.Retracted += e.retractObsolete(ctx, id, tr.Key, log)

		h, err := e.deliver.Send(ctx, task, tr)
		if err != nil {
			rep.Failed++
			log.Warn("send failed; will retry next pass", logx.Err(err))
			e.publish(EventFailed, DeliveryEvent{TaskID: id, Key: tr.Key, Error: err.Error()})
			continue
		}
		e.sentMu.Lock()
		e.sent.MarkSent(id, tr.Key)
		e.sentMu.Unlock()
		rep.Sent++

		loc := task.Loc
		var locp *Location
		if !loc.IsZero() {
			locp = &loc
		}
		if err := e.store.SaveHandle(ctx, id, tr.Key, h, locp); err != nil {
			log.Warn("save message handle failed", logx.Err(err))
		}
		log.Info("reminder sent", logx.String("text", task.Text), logx.Int("message_id", h.MessageID))
		e.publish(EventSent, DeliveryEvent{TaskID: id, Key: tr.Key})
	}
}

// retractObsolete deletes messages made stale by key. Failures are logged
// and never block the new message.
func (e *Engine) retractObsolete(ctx context.Context, id, key string, log logx.Logger) int {
	handles, err := e.store.Handles(ctx, id)
	if err != nil {
		log.Warn("load message handles failed", logx.Err(err))
		return 0
	}
	if len(handles) == 0 {
		return 0
	}
	existing := make([]string, 0, len(handles))
	for k := range handles {
		existing = append(existing, k)
	}

	n := 0
	for _, old := range ObsoleteKeys(key, existing) {
		h, ok := handles[old]
		if !ok {
			continue
		}
		if err := e.deliver.Retract(ctx, h); err != nil {
			log.Warn("retract failed", logx.String("old_key", old), logx.Err(err))
			continue
		}
		if err := e.store.DeleteHandle(ctx, id, old); err != nil {
			log.Warn("delete message handle failed", logx.String("old_key", old), logx.Err(err))
		}
		n++
		log.Debug("retracted outdated reminder", logx.String("old_key", old))
		e.publish(EventRetracted, DeliveryEvent{TaskID: id, Key: old})
	}
	return n
}

// Sent returns a copy of the in-memory sent state. It does not wait for a
// running pass.
func (e *Engine) Sent() SentState {
	e.sentMu.RLock()
	defer e.sentMu.RUnlock()
	return e.sent.Clone()
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
