package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

type memStore struct {
	mu       sync.Mutex
	sent     SentState
	handles  map[string]map[string]Handle
	locs     map[string]Location
	loadErr  error
	saves    int
	savedLoc map[string]bool
}

func newMemStore() *memStore {
	return &memStore{handles: map[string]map[string]Handle{}, locs: map[string]Location{}, savedLoc: map[string]bool{}}
}

func (m *memStore) LoadSent(context.Context) (SentState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.sent == nil {
		return SentState{}, nil
	}
	return m.sent.Clone(), nil
}

func (m *memStore) SaveSent(_ context.Context, s SentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = s.Clone()
	m.saves++
	return nil
}

func (m *memStore) SaveHandle(_ context.Context, id, key string, h Handle, loc *Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handles[id] == nil {
		m.handles[id] = map[string]Handle{}
	}
	m.handles[id][key] = h
	if loc != nil {
		m.locs[id] = *loc
		m.savedLoc[id] = true
	}
	return nil
}

func (m *memStore) Handle(_ context.Context, id, key string) (Handle, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id][key]
	return h, ok, nil
}

func (m *memStore) DeleteHandle(_ context.Context, id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handles[id], key)
	return nil
}

func (m *memStore) Handles(_ context.Context, id string) (map[string]Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]Handle{}
	for k, h := range m.handles[id] {
		out[k] = h
	}
	return out, nil
}

func (m *memStore) Location(_ context.Context, id string) (Location, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locs[id]
	return l, ok, nil
}

// fakeDeliverer records calls in order: "send:<key>" and "retract:<msgid>".
type fakeDeliverer struct {
	mu      sync.Mutex
	calls   []string
	nextID  int
	failKey string
}

func (f *fakeDeliverer) Send(_ context.Context, _ Task, tr Trigger) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tr.Key == f.failKey {
		f.calls = append(f.calls, "fail:"+tr.Key)
		return Handle{}, errors.New("network down")
	}
	f.nextID++
	f.calls = append(f.calls, "send:"+tr.Key)
	return Handle{ChatID: 42, MessageID: f.nextID}, nil
}

func (f *fakeDeliverer) Retract(_ context.Context, h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "retract:"+string(rune('0'+h.MessageID)))
	return nil
}

func (f *fakeDeliverer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func staticSource(tasks ...Task) TaskSource {
	return TaskSourceFunc(func(context.Context) ([]Task, error) { return tasks, nil })
}

var lifecycleOffsets = Offsets{
	Before:  []string{"15m"},
	During:  []string{"0m"},
	Overdue: []string{"15m"},
}

func TestEngineLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	task := Task{Text: "Standup", Start: at(9, 0), End: at(9, 15), Loc: Location{Path: "day.md", Line: 2}}
	id := task.ID()

	clk := &clock{now: at(8, 45)}
	store := newMemStore()
	del := &fakeDeliverer{}
	e := NewEngine(DefaultConfig(lifecycleOffsets), staticSource(task), del, store, logx.Nop(), WithClock(clk.Now))

	rep, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, []string{"send:before1"}, del.Calls())
	assert.True(t, store.savedLoc[id])

	clk.Set(at(9, 0))
	rep, err = e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Retracted)
	assert.Equal(t, []string{"send:before1", "retract:1", "send:during1"}, del.Calls())

	clk.Set(at(9, 30))
	_, err = e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"send:before1", "retract:1", "send:during1", "retract:2", "send:overdue1"}, del.Calls())

	h, err := store.Handles(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"overdue1"}, keysOf(h))
	assert.Equal(t, []string{"before1", "during1", "overdue1"}, store.sent.Keys(id))
}

func TestEngineDedupAcrossPasses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	task := Task{Text: "x", Start: at(9, 0), End: at(9, 15)}
	clk := &clock{now: at(8, 46)}
	store := newMemStore()
	del := &fakeDeliverer{}
	e := NewEngine(DefaultConfig(lifecycleOffsets), staticSource(task), del, store, logx.Nop(), WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		_, err := e.RunOnce(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"send:before1"}, del.Calls())

	// a restarted engine reads the persisted state
	e2 := NewEngine(DefaultConfig(lifecycleOffsets), staticSource(task), del, store, logx.Nop(), WithClock(clk.Now))
	_, err := e2.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"send:before1"}, del.Calls())
	assert.False(t, store.savedLoc[task.ID()], "tasks without a file location record none")
}

func TestEngineMissedBeforeWindowIsSkipped(t *testing.T) {
	t.Parallel()
	task := Task{Text: "x", Start: at(9, 0), End: at(9, 15)}
	clk := &clock{now: at(8, 55)}
	del := &fakeDeliverer{}
	e := NewEngine(DefaultConfig(lifecycleOffsets), staticSource(task), del, newMemStore(), logx.Nop(), WithClock(clk.Now))

	rep, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Due)
	assert.Empty(t, del.Calls())
}

func TestEngineInvalidOffsetFiresAtStart(t *testing.T) {
	t.Parallel()
	task := Task{Text: "x", Start: at(9, 0), End: at(9, 15)}
	clk := &clock{now: at(8, 59)}
	del := &fakeDeliverer{}
	e := NewEngine(DefaultConfig(Offsets{Before: []string{"abc"}}), staticSource(task), del, newMemStore(), logx.Nop(), WithClock(clk.Now))

	_, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, del.Calls())

	clk.Set(at(9, 0))
	_, err = e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"send:before1"}, del.Calls())
}

func TestEngineFailedSendIsRetried(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := Task{Text: "a", Start: at(9, 0), End: at(9, 15)}
	b := Task{Text: "b", Start: at(9, 0), End: at(9, 30)}
	clk := &clock{now: at(9, 31)}
	store := newMemStore()
	del := &fakeDeliverer{failKey: "overdue1"}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16, EventFailed)
	defer unsub()

	e := NewEngine(DefaultConfig(Offsets{Before: []string{"15m"}, Overdue: []string{"0m", "15m"}}),
		staticSource(a, b), del, store, logx.Nop(), WithClock(clk.Now), WithBus(bus))

	rep, err := e.RunOnce(ctx)
	require.NoError(t, err)
	// a: overdue1 fails, overdue2 (09:30) still sent; b: overdue1 fails
	assert.Equal(t, 2, rep.Failed)
	assert.Equal(t, 1, rep.Sent)
	assert.False(t, store.sent.Has(a.ID(), "overdue1"))
	assert.True(t, store.sent.Has(a.ID(), "overdue2"))

	select {
	case ev := <-events:
		assert.Equal(t, EventFailed, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no failure event")
	}

	del.mu.Lock()
	del.failKey = ""
	del.mu.Unlock()
	rep, err = e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Sent)
	assert.True(t, store.sent.Has(a.ID(), "overdue1"))
}

func TestEngineSourceErrorStillPersists(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	src := TaskSourceFunc(func(context.Context) ([]Task, error) {
		return nil, ErrSourceNotFound
	})
	e := NewEngine(Config{}, src, &fakeDeliverer{}, store, logx.Nop())
	rep, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Tasks)
	assert.Equal(t, 1, store.saves)
	assert.Zero(t, e.Registry().Len())
}

func TestEngineUnreadableStateStartsEmpty(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.loadErr = errors.New("corrupt")
	task := Task{Text: "x", Start: at(9, 0), End: at(9, 15)}
	clk := &clock{now: at(8, 45)}
	del := &fakeDeliverer{}
	e := NewEngine(DefaultConfig(lifecycleOffsets), staticSource(task), del, store, logx.Nop(), WithClock(clk.Now))

	rep, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.True(t, e.Sent().Has(task.ID(), "before1"))
}

func TestEngineKickAndRun(t *testing.T) {
	t.Parallel()
	var (
		mu    sync.Mutex
		scans int
	)
	src := TaskSourceFunc(func(context.Context) ([]Task, error) {
		mu.Lock()
		scans++
		mu.Unlock()
		return nil, nil
	})
	e := NewEngine(Config{Interval: time.Hour}, src, &fakeDeliverer{}, newMemStore(), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return scans
	}
	require.Eventually(t, func() bool { return count() == 1 }, time.Second, 5*time.Millisecond)
	e.Kick()
	require.Eventually(t, func() bool { return count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestEngineZeroToleranceIsExact(t *testing.T) {
	t.Parallel()
	task := Task{Text: "x", Start: at(9, 0), End: at(9, 15)}
	cfg := DefaultConfig(Offsets{Before: []string{"15m"}, During: []string{"0m"}})
	cfg.ToleranceBefore = 0
	cfg.ToleranceDuring = 0

	clk := &clock{now: at(8, 45).Add(time.Second)}
	del := &fakeDeliverer{}
	e := NewEngine(cfg, staticSource(task), del, newMemStore(), logx.Nop(), WithClock(clk.Now))

	_, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, del.Calls(), "a second late is outside a zero tolerance")

	clk.Set(at(9, 0))
	_, err = e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"send:during1"}, del.Calls())
}

func TestEngineNegativeToleranceSelectsDefault(t *testing.T) {
	t.Parallel()
	got := Config{ToleranceBefore: -1, ToleranceDuring: -1}.withDefaults()
	assert.Equal(t, DefaultToleranceBefore, got.ToleranceBefore)
	assert.Equal(t, DefaultToleranceDuring, got.ToleranceDuring)

	got = Config{}.withDefaults()
	assert.Zero(t, got.ToleranceBefore)
	assert.Equal(t, DefaultInterval, got.Interval)
}

// blockingDeliverer parks Send until release is closed.
type blockingDeliverer struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingDeliverer) Send(ctx context.Context, _ Task, _ Trigger) (Handle, error) {
	close(b.entered)
	<-b.release
	return Handle{ChatID: 1, MessageID: 1}, nil
}

func (b *blockingDeliverer) Retract(context.Context, Handle) error { return nil }

func TestEngineSentDoesNotWaitForPass(t *testing.T) {
	t.Parallel()
	task := Task{Text: "x", Start: at(9, 0), End: at(9, 15)}
	clk := &clock{now: at(8, 45)}
	del := &blockingDeliverer{entered: make(chan struct{}), release: make(chan struct{})}
	e := NewEngine(DefaultConfig(lifecycleOffsets), staticSource(task), del, newMemStore(), logx.Nop(), WithClock(clk.Now))

	done := make(chan error, 1)
	go func() {
		_, err := e.RunOnce(context.Background())
		done <- err
	}()
	<-del.entered

	got := make(chan SentState, 1)
	go func() { got <- e.Sent() }()
	select {
	case s := <-got:
		assert.Empty(t, s)
	case <-time.After(time.Second):
		t.Fatal("Sent blocked on a running pass")
	}

	close(del.release)
	require.NoError(t, <-done)
	assert.True(t, e.Sent().Has(task.ID(), "before1"))
}

func keysOf(m map[string]Handle) []string {
	s := SentState{"x": {}}
	for k := range m {
		s.MarkSent("x", k)
	}
	return s.Keys("x")
}
