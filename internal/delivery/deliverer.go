// Package delivery sends reminders to Telegram and retracts them.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/pkg/tgui"
	logx "remindbot/pkg/logx"
)

const (
	// DoneAction prefixes the callback data of the done button.
	DoneAction     = "done"
	DoneButtonText = "✔ Done"

	ParseModeMarkdownV2 = "MarkdownV2"
)

// Sender is the part of the transport the deliverer uses.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	DeleteText(ctx context.Context, ref kit.MessageRef) error
}

type Config struct {
	Target kit.ChatTarget
	// RatePerSec caps outbound sends. Zero means one per second.
	RatePerSec float64
}

// Deliverer implements reminder.Deliverer on a chat transport.
type Deliverer struct {
	cfg    Config
	sender Sender
	lim    *rate.Limiter
	log    logx.Logger
}

func New(cfg Config, sender Sender, log logx.Logger) *Deliverer {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := cfg.RatePerSec
	if r <= 0 {
		r = 1
	}
	return &Deliverer{
		cfg:    cfg,
		sender: sender,
		lim:    rate.NewLimiter(rate.Limit(r), 1),
		log:    log,
	}
}

// Send posts the reminder. Tasks backed by a file line get a done button;
// others (calendar events) cannot be checked off and get none.
func (d *Deliverer) Send(ctx context.Context, t reminder.Task, tr reminder.Trigger) (reminder.Handle, error) {
	opt := &kit.SendOptions{
		ParseMode:      ParseModeMarkdownV2,
		DisablePreview: true,
	}
	if !t.Loc.IsZero() {
		data, err := tgui.Data(DoneAction, t.ID())
		if err != nil {
			return reminder.Handle{}, err
		}
		opt.ReplyMarkupAdapter = tgui.NewInline().Row(tgui.Btn(DoneButtonText, data)).Markup()
	}
	if err := d.lim.Wait(ctx); err != nil {
		return reminder.Handle{}, err
	}
	ref, err := d.sender.SendText(ctx, d.cfg.Target, FormatReminder(t, tr), opt)
	if err != nil {
		return reminder.Handle{}, fmt.Errorf("send %s: %w", tr.Key, err)
	}
	return ref, nil
}

// Retract deletes a delivered reminder. A message that is already gone
// counts as retracted.
func (d *Deliverer) Retract(ctx context.Context, h reminder.Handle) error {
	if h.IsZero() {
		return nil
	}
	if h.ChatID == 0 {
		h.ChatID = d.cfg.Target.ChatID
	}
	if err := d.lim.Wait(ctx); err != nil {
		return err
	}
	err := d.sender.DeleteText(ctx, h)
	if errors.Is(err, kit.ErrMessageGone) {
		d.log.Debug("message already gone", logx.Int("message_id", h.MessageID))
		return nil
	}
	return err
}
