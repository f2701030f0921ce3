// Package completion handles the "done" button attached to reminders.
package completion

import (
	"context"
	"errors"
	"strings"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/tasks"
	"remindbot/internal/transport/telegram/router"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	EventCompleted = "task.completed"

	TextCompleted = "✅ Task completed."
	TextNotFound  = "⚠️ Task not found or already changed."
	TextFailed    = "⚠️ Failed to process task."
)

// Completer marks a task done at a location. See tasks.Source.Complete.
type Completer interface {
	Complete(ctx context.Context, id string, loc reminder.Location, lineFallback bool) (reminder.Location, error)
}

// UI is the part of the transport the handler talks back through.
type UI interface {
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
}

// CompletedEvent is published on the bus after a task line was checked.
type CompletedEvent struct {
	TaskID   string            `json:"task_id"`
	Location reminder.Location `json:"location"`
	Fallback bool              `json:"fallback"`
}

type Handler struct {
	Registry  *reminder.Registry
	Handles   reminder.HandleRegistry
	Completer Completer
	UI        UI
	Bus       eventbus.Bus
	Log       logx.Logger
}

// Outcome is what happened to one done request.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeNotFound
	OutcomeFailed
)

func (o Outcome) Text() string {
	switch o {
	case OutcomeCompleted:
		return TextCompleted
	case OutcomeNotFound:
		return TextNotFound
	default:
		return TextFailed
	}
}

// Handle is the router callback for "done::<id>".
func (h *Handler) Handle(ctx context.Context, req *router.Request) error {
	cb := req.Update.Callback
	if cb == nil {
		return nil
	}
	log := h.log().With(logx.String("task_id", req.Payload))

	// answer first so the client stops its spinner even if the rest is slow
	if err := h.UI.AnswerCallback(ctx, cb.ID, ""); err != nil {
		log.Debug("answer callback failed", logx.Err(err))
	}

	out := h.Complete(ctx, strings.TrimSpace(req.Payload))
	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	if err := h.UI.EditText(ctx, ref, out.Text(), nil); err != nil {
		log.Warn("edit reminder message failed", logx.Err(err))
		return err
	}
	return nil
}

// Complete locates the task by id and checks its box.
//
// The live registry is tried first. When the task is not in the last scan
// (or its line moved beyond recognition), the location recorded with its
// message handles is used as a fallback.
func (h *Handler) Complete(ctx context.Context, id string) Outcome {
	log := h.log().With(logx.String("task_id", id))
	if id == "" {
		return OutcomeNotFound
	}

	if t, ok := h.Registry.Lookup(id); ok && !t.Loc.IsZero() {
		loc, err := h.Completer.Complete(ctx, id, t.Loc, false)
		switch {
		case err == nil:
			log.Info("task completed", logx.String("path", loc.Path), logx.Int("line", loc.Line))
			h.publish(CompletedEvent{TaskID: id, Location: loc})
			return OutcomeCompleted
		case !errors.Is(err, tasks.ErrTaskNotFound):
			log.Error("complete task failed", logx.Err(err))
			return OutcomeFailed
		}
	}

	if h.Handles == nil {
		return OutcomeNotFound
	}
	rec, ok, err := h.Handles.Location(ctx, id)
	if err != nil {
		log.Error("load recorded location failed", logx.Err(err))
		return OutcomeFailed
	}
	if !ok {
		log.Info("task not found")
		return OutcomeNotFound
	}
	loc, err := h.Completer.Complete(ctx, id, rec, true)
	if errors.Is(err, tasks.ErrTaskNotFound) {
		log.Info("task not found at recorded location", logx.String("path", rec.Path), logx.Int("line", rec.Line))
		return OutcomeNotFound
	}
	if err != nil {
		log.Error("complete task failed", logx.Err(err))
		return OutcomeFailed
	}
	log.Info("task completed via recorded location", logx.String("path", loc.Path), logx.Int("line", loc.Line))
	h.publish(CompletedEvent{TaskID: id, Location: loc, Fallback: true})
	return OutcomeCompleted
}

func (h *Handler) log() logx.Logger {
	if h.Log.IsZero() {
		return logx.Nop()
	}
	return h.Log
}

func (h *Handler) publish(ev CompletedEvent) {
	if h.Bus != nil {
		h.Bus.Publish(eventbus.Event{Type: EventCompleted, Data: ev})
	}
}
