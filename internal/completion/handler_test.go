package completion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/tasks"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type fakeUI struct {
	answered []string
	edits    map[int]string
}

func (f *fakeUI) AnswerCallback(ctx context.Context, id, text string) error {
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeUI) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if f.edits == nil {
		f.edits = map[int]string{}
	}
	f.edits[ref.MessageID] = text
	return nil
}

type fixture struct {
	path    string
	src     *tasks.Source
	reg     *reminder.Registry
	store   storage.Store
	ui      *fakeUI
	bus     eventbus.Bus
	handler *Handler
}

func newFixture(t *testing.T, body string) *fixture {
	t.Helper()
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes")
	require.NoError(t, os.MkdirAll(notes, 0o755))
	path := filepath.Join(notes, "2024-05-01.md")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "state")}, logx.Nop())
	require.NoError(t, err)

	f := &fixture{
		path:  path,
		src:   tasks.NewSource(tasks.Config{Folder: notes, Parse: tasks.ParseOptions{Location: time.UTC}}, logx.Nop()),
		reg:   reminder.NewRegistry(),
		store: st,
		ui:    &fakeUI{},
		bus:   eventbus.New(),
	}
	f.handler = &Handler{Registry: f.reg, Handles: st, Completer: f.src, UI: f.ui, Bus: f.bus, Log: logx.Nop()}
	return f
}

func (f *fixture) scan(t *testing.T) []reminder.Task {
	t.Helper()
	ts, err := f.src.ListTasks(context.Background())
	require.NoError(t, err)
	f.reg.Replace(ts, time.Now())
	return ts
}

func (f *fixture) read(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(f.path)
	require.NoError(t, err)
	return string(b)
}

func callback(id string, msgID int) *router.Request {
	return &router.Request{
		Update: kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
			ID: "cb1", ChatID: -100, MessageID: msgID, Data: "done::" + id,
		}},
		Payload: id,
	}
}

func TestHandleLiveTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "- [ ] A [startTime:: 09:00]\n- [ ] B [startTime:: 10:00]\n")
	ts := f.scan(t)
	events, unsub := f.bus.Subscribe(4, EventCompleted)
	defer unsub()

	require.NoError(t, f.handler.Handle(context.Background(), callback(ts[1].ID(), 77)))

	assert.Equal(t, "- [ ] A [startTime:: 09:00]\n- [x] B [startTime:: 10:00]\n", f.read(t))
	assert.Equal(t, []string{"cb1"}, f.ui.answered)
	assert.Equal(t, TextCompleted, f.ui.edits[77])

	select {
	case ev := <-events:
		ce := ev.Data.(CompletedEvent)
		assert.Equal(t, ts[1].ID(), ce.TaskID)
		assert.False(t, ce.Fallback)
	default:
		t.Fatal("no completion event")
	}
}

func TestHandleFallsBackToRecordedLocation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "- [ ] A [startTime:: 09:00]\n")
	ts := f.scan(t)
	id := ts[0].ID()
	loc := ts[0].Loc
	require.NoError(t, f.store.SaveHandle(context.Background(), id, "before1", reminder.Handle{ChatID: -100, MessageID: 5}, &loc))

	// the task vanished from the live registry (e.g. restart before the first scan)
	f.reg.Replace(nil, time.Now())

	assert.Equal(t, OutcomeCompleted, f.handler.Complete(context.Background(), id))
	assert.Equal(t, "- [x] A [startTime:: 09:00]\n", f.read(t))
}

func TestHandleFallbackRelocatesByIdentity(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "- [ ] A [startTime:: 09:00]\n")
	ts := f.scan(t)
	id := ts[0].ID()
	loc := ts[0].Loc
	require.NoError(t, f.store.SaveHandle(context.Background(), id, "before1", reminder.Handle{ChatID: -100, MessageID: 5}, &loc))
	f.reg.Replace(nil, time.Now())

	require.NoError(t, os.WriteFile(f.path, []byte("- [ ] other [startTime:: 08:00]\n- [ ] A [startTime:: 09:00]\n"), 0o644))

	assert.Equal(t, OutcomeCompleted, f.handler.Complete(context.Background(), id))
	assert.Equal(t, "- [ ] other [startTime:: 08:00]\n- [x] A [startTime:: 09:00]\n", f.read(t))
}

func TestHandleNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "- [x] A [startTime:: 09:00]\n")
	f.scan(t)

	require.NoError(t, f.handler.Handle(context.Background(), callback("deadbeef", 9)))
	assert.Equal(t, TextNotFound, f.ui.edits[9])
	assert.Equal(t, "- [x] A [startTime:: 09:00]\n", f.read(t))
}

func TestHandleAlreadyCheckedAtRecordedLine(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "- [ ] A [startTime:: 09:00]\n")
	ts := f.scan(t)
	id := ts[0].ID()
	loc := ts[0].Loc
	require.NoError(t, f.store.SaveHandle(context.Background(), id, "during1", reminder.Handle{ChatID: -100, MessageID: 5}, &loc))
	f.reg.Replace(nil, time.Now())

	require.NoError(t, os.WriteFile(f.path, []byte("- [x] A [startTime:: 09:00]\n"), 0o644))
	assert.Equal(t, OutcomeNotFound, f.handler.Complete(context.Background(), id))
}
