package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeSender struct {
	sent    []string
	opts    []*kit.SendOptions
	deleted []kit.MessageRef
	delErr  error
	nextID  int
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.nextID++
	f.sent = append(f.sent, text)
	f.opts = append(f.opts, opt)
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}, nil
}

func (f *fakeSender) DeleteText(ctx context.Context, ref kit.MessageRef) error {
	f.deleted = append(f.deleted, ref)
	return f.delErr
}

func sampleTask() reminder.Task {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return reminder.Task{
		Loc:   reminder.Location{Path: "/notes/2024-05-01.md", Line: 3},
		Text:  "- [ ] ⏫ Write report (v2) [startTime:: 09:00] [endTime:: 10:00]",
		Start: start,
		End:   start.Add(time.Hour),
	}
}

func TestFormatReminder(t *testing.T) {
	t.Parallel()
	task := sampleTask()
	tests := []struct {
		tr   reminder.Trigger
		head string
	}{
		{tr: reminder.Trigger{Kind: reminder.KindBefore, Key: "before1", Minutes: 15}, head: "`in ⬇️15m`"},
		{tr: reminder.Trigger{Kind: reminder.KindDuring, Key: "during1"}, head: "`⏳ Now`"},
		{tr: reminder.Trigger{Kind: reminder.KindOverdue, Key: "overdue2", Minutes: 30}, head: "`over⚠️30m`"},
	}
	for _, tt := range tests {
		want := tt.head + "\n\n🕒 09:00–10:00\n\n🔔 ⏫ Write report \\(v2\\)\n\n`2024-05-01`"
		assert.Equal(t, want, FormatReminder(task, tt.tr))
	}
}

func TestLabelWithoutFile(t *testing.T) {
	t.Parallel()
	task := sampleTask()
	task.Loc = reminder.Location{}
	assert.Equal(t, "2024-05-01", Label(task))
	task.Text = "Standup"
	assert.Equal(t, "Standup", Title(task))
}

func TestSendAttachesDoneButton(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	d := New(Config{Target: kit.ChatTarget{ChatID: -100, ThreadID: 5}, RatePerSec: 1000}, fs, logx.Nop())
	task := sampleTask()

	h, err := d.Send(context.Background(), task, reminder.Trigger{Kind: reminder.KindBefore, Key: "before1", Minutes: 15})
	require.NoError(t, err)
	assert.Equal(t, kit.MessageRef{ChatID: -100, ThreadID: 5, MessageID: 1}, h)

	require.Len(t, fs.opts, 1)
	opt := fs.opts[0]
	assert.Equal(t, ParseModeMarkdownV2, opt.ParseMode)
	rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	require.True(t, ok)
	require.Len(t, rm.InlineKeyboard, 1)
	assert.Equal(t, "done::"+task.ID(), rm.InlineKeyboard[0][0].Data)

	task.Loc = reminder.Location{}
	_, err = d.Send(context.Background(), task, reminder.Trigger{Kind: reminder.KindDuring, Key: "during1"})
	require.NoError(t, err)
	assert.Nil(t, fs.opts[1].ReplyMarkupAdapter, "tasks without a file line get no done button")
}

func TestRetract(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{delErr: kit.ErrMessageGone}
	d := New(Config{Target: kit.ChatTarget{ChatID: -100}, RatePerSec: 1000}, fs, logx.Nop())

	require.NoError(t, d.Retract(context.Background(), reminder.Handle{MessageID: 9}))
	require.Len(t, fs.deleted, 1)
	assert.Equal(t, int64(-100), fs.deleted[0].ChatID, "legacy handle gets the configured chat")

	fs.delErr = errors.New("network down")
	assert.Error(t, d.Retract(context.Background(), reminder.Handle{ChatID: -100, MessageID: 10}))

	require.NoError(t, d.Retract(context.Background(), reminder.Handle{}))
	assert.Len(t, fs.deleted, 2)
}
