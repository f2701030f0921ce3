package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/transport/telegram/router"
	kit "remindbot/internal/transport"
	"remindbot/pkg/tgui"
)

const maxListedTasks = 30

var htmlOpts = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

// status is what /status reports.
type status struct {
	Uptime     time.Duration
	Tasks      int
	LastScan   time.Time
	SentTasks  int
	SentKeys   int
	Goroutines supervisor.Counters
	Dropped    uint64
	Storage    string
	Sources    []string
}

func (a *App) registerCommands(r *router.Router) {
	r.Command("tasks", a.cmdTasks)
	r.Command("status", a.cmdStatus)
	r.Command("help", a.cmdHelp)
	r.Command("start", a.cmdHelp)
}

func (a *App) reply(ctx context.Context, req *router.Request, text tgui.H) error {
	_, err := a.adapter.SendText(ctx, req.Chat, text.String(), htmlOpts)
	return err
}

func (a *App) cmdTasks(ctx context.Context, req *router.Request) error {
	tasks, _ := a.engine.Registry().Snapshot()
	return a.reply(ctx, req, formatTasks(tasks, time.Now()))
}

func (a *App) cmdStatus(ctx context.Context, req *router.Request) error {
	tasks, scanned := a.engine.Registry().Snapshot()
	sent := a.engine.Sent()
	st := status{
		Uptime:    time.Since(a.startedAt),
		Tasks:     len(tasks),
		LastScan:  scanned,
		SentTasks: len(sent),
		Dropped:   a.bus.Dropped(),
		Storage:   a.storageDriver,
		Sources:   a.sourceNames,
	}
	for id := range sent {
		st.SentKeys += len(sent[id])
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Counters()
	}
	return a.reply(ctx, req, formatStatus(st))
}

func (a *App) cmdHelp(ctx context.Context, req *router.Request) error {
	lines := []tgui.H{tgui.B("Reminder bot")}
	for _, c := range a.router.Commands() {
		lines = append(lines, tgui.Esc("/"+c))
	}
	return a.reply(ctx, req, tgui.JoinH("\n", lines...))
}

// formatTasks lists tasks that have not ended before now, earliest first.
func formatTasks(tasks []reminder.Task, now time.Time) tgui.H {
	open := make([]reminder.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.End.Before(now) {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return tgui.I("No upcoming tasks.")
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].Start.Before(open[j].Start) })

	lines := []tgui.H{tgui.B(fmt.Sprintf("Upcoming tasks (%d)", len(open)))}
	for i, t := range open {
		if i == maxListedTasks {
			lines = append(lines, tgui.I(fmt.Sprintf("… and %d more", len(open)-maxListedTasks)))
			break
		}
		info := t.Analyze()
		day := ""
		if !sameDay(t.Start, now) {
			day = t.Start.Format("01-02 ")
		}
		text := strings.TrimSpace(strings.TrimPrefix(info.Cleaned, "- [ ]"))
		lines = append(lines, tgui.JoinH(" ",
			tgui.Code(day+info.TimeRange),
			tgui.Esc(tgui.TruncRunes(text, 80)),
		))
	}
	return tgui.JoinH("\n", lines...)
}

func formatStatus(st status) tgui.H {
	last := "never"
	if !st.LastScan.IsZero() {
		last = st.LastScan.Format("15:04:05")
	}
	return tgui.JoinH("\n",
		tgui.B("Status"),
		tgui.Esc("uptime: ")+tgui.Code(st.Uptime.Truncate(time.Second).String()),
		tgui.Esc("sources: ")+tgui.Code(strings.Join(st.Sources, ", ")),
		tgui.Esc("tasks in last scan: ")+tgui.Code(fmt.Sprint(st.Tasks)),
		tgui.Esc("last scan: ")+tgui.Code(last),
		tgui.Esc("reminders sent: ")+tgui.Code(fmt.Sprintf("%d (%d tasks)", st.SentKeys, st.SentTasks)),
		tgui.Esc("storage: ")+tgui.Code(st.Storage),
		tgui.Esc("goroutines: ")+tgui.Code(fmt.Sprintf("%d active, %d started", st.Goroutines.Active, st.Goroutines.Started)),
		tgui.Esc("events dropped: ")+tgui.Code(fmt.Sprint(st.Dropped)),
	)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
