package reminder

import (
	"context"
	"errors"

	logx "remindbot/pkg/logx"
)

// ErrSourceNotFound is returned by a TaskSource whose location does not
// exist (e.g. a missing folder).
var ErrSourceNotFound = errors.New("task source not found")

// TaskSource produces the current task set.
type TaskSource interface {
	ListTasks(ctx context.Context) ([]Task, error)
}

// TaskSourceFunc adapts a function to TaskSource.
type TaskSourceFunc func(ctx context.Context) ([]Task, error)

func (f TaskSourceFunc) ListTasks(ctx context.Context) ([]Task, error) { return f(ctx) }

// MultiSource concatenates several sources. A failing source is logged and
// skipped so one broken backend does not hide the others.
type MultiSource struct {
	Sources []TaskSource
	Log     logx.Logger
}

func (m MultiSource) ListTasks(ctx context.Context) ([]Task, error) {
	var (
		out  []Task
		errs []error
	)
	for _, src := range m.Sources {
		if src == nil {
			continue
		}
		ts, err := src.ListTasks(ctx)
		if err != nil {
			m.Log.Warn("task source failed", logx.Err(err))
			errs = append(errs, err)
			continue
		}
		out = append(out, ts...)
	}
	if len(out) == 0 && len(errs) > 0 && len(errs) == countNonNil(m.Sources) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func countNonNil(srcs []TaskSource) int {
	n := 0
	for _, s := range srcs {
		if s != nil {
			n++
		}
	}
	return n
}

// Deliverer sends reminders and retracts them.
//
// Retract must treat an already deleted message as success.
type Deliverer interface {
	Send(ctx context.Context, task Task, tr Trigger) (Handle, error)
	Retract(ctx context.Context, h Handle) error
}
