// Package heartbeat posts a periodic "still alive" message naming the
// current half-hour slot of the day.
package heartbeat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const DefaultSchedule = "0,30 * * * *"

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a cron expression ("0,30 * * * *", "@every 30m").
func ParseSchedule(spec string) (cron.Schedule, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		s = DefaultSchedule
	}
	return parser.Parse(s)
}

// Slot returns the 1-based half-hour slot of t (1..48) and its bounds.
func Slot(t time.Time) (n int, start, end time.Time) {
	half := 0
	if t.Minute() >= 30 {
		half = 1
	}
	n = t.Hour()*2 + half + 1
	start = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), half*30, 0, 0, t.Location())
	return n, start, start.Add(30 * time.Minute)
}

// Text renders "🕯 slot N (HH:MM–HH:MM)".
func Text(t time.Time) string {
	n, start, end := Slot(t)
	return fmt.Sprintf("🕯 slot %d (%s–%s)", n, start.Format("15:04"), end.Format("15:04"))
}

type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Config struct {
	Schedule string
	Target   kit.ChatTarget
	Timeout  time.Duration
}

type Service struct {
	cfg    Config
	sender Sender
	log    logx.Logger
	now    func() time.Time

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, sender Sender, log logx.Logger) (*Service, error) {
	if _, err := ParseSchedule(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("heartbeat schedule: %w", err)
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, sender: sender, log: log, now: time.Now}, nil
}

// Beat sends one heartbeat for the current time.
func (s *Service) Beat(ctx context.Context) error {
	text := Text(s.now())
	if _, err := s.sender.SendText(ctx, s.cfg.Target, text, nil); err != nil {
		return err
	}
	s.log.Info("heartbeat sent", logx.String("slot", text))
	return nil
}

// Start registers the cron job. Beats run with a timeout derived from ctx.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(time.Local))
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		if ctx.Err() != nil {
			return
		}
		bctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		if err := s.Beat(bctx); err != nil {
			s.log.Warn("heartbeat failed", logx.Err(err))
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("heartbeat started", logx.String("schedule", s.cfg.Schedule))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("heartbeat stopped")
}
