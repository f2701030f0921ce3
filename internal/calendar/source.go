// Package calendar turns Google Calendar events into reminder tasks.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

const SourceName = "gcal"

type Config struct {
	CalendarID      string
	CredentialsFile string
	TokenFile       string
	// Lookahead bounds how far ahead events are fetched.
	Lookahead time.Duration
}

// Source lists timed events from today up to now+Lookahead. All-day and
// cancelled events are ignored.
type Source struct {
	srv        *gcal.Service
	calendarID string
	lookahead  time.Duration
	log        logx.Logger
	now        func() time.Time
}

// New authorizes with the configured files and builds the source.
func New(ctx context.Context, cfg Config, log logx.Logger) (*Source, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	client, err := httpClient(ctx, cfg.CredentialsFile, cfg.TokenFile, log)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg, log, option.WithHTTPClient(client))
}

// NewWithOptions builds the source with explicit client options (custom
// endpoint or client).
func NewWithOptions(ctx context.Context, cfg Config, log logx.Logger, opts ...option.ClientOption) (*Source, error) {
	srv, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	id := strings.TrimSpace(cfg.CalendarID)
	if id == "" {
		id = "primary"
	}
	la := cfg.Lookahead
	if la <= 0 {
		la = 24 * time.Hour
	}
	return &Source{srv: srv, calendarID: id, lookahead: la, log: log, now: time.Now}, nil
}

func (s *Source) ListTasks(ctx context.Context) ([]reminder.Task, error) {
	now := s.now()
	y, m, d := now.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	to := now.Add(s.lookahead)

	var out []reminder.Task
	call := s.srv.Events.List(s.calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		ShowDeleted(false).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		MaxResults(250)
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, ev := range page.Items {
			if t, ok := s.toTask(ev); ok {
				out = append(out, t)
			}
		}
		return nil
	})
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: calendar %s", reminder.ErrSourceNotFound, s.calendarID)
		}
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	s.log.Debug("calendar events loaded", logx.Int("tasks", len(out)))
	return out, nil
}

func (s *Source) toTask(ev *gcal.Event) (reminder.Task, bool) {
	if ev == nil || ev.Status == "cancelled" || ev.Start == nil || ev.End == nil {
		return reminder.Task{}, false
	}
	// all-day events only carry Date
	if ev.Start.DateTime == "" || ev.End.DateTime == "" {
		return reminder.Task{}, false
	}
	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		s.log.Warn("bad event start", logx.String("event_id", ev.Id), logx.Err(err))
		return reminder.Task{}, false
	}
	end, err := time.Parse(time.RFC3339, ev.End.DateTime)
	if err != nil {
		s.log.Warn("bad event end", logx.String("event_id", ev.Id), logx.Err(err))
		return reminder.Task{}, false
	}
	text := strings.TrimSpace(ev.Summary)
	if text == "" {
		text = "(no title)"
	}
	return reminder.Task{
		Source: SourceName,
		Text:   text,
		Start:  start.In(time.Local),
		End:    end.In(time.Local),
	}, true
}
