package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name       string
		driver     string
		path       string
		wantDriver string
		wantPath   string
	}{
		{"default file", "", "", "", config.DefaultStoragePath},
		{"file dir", "file", "/var/lib/rb", "file", "/var/lib/rb"},
		{"sqlite dir", "sqlite", "/var/lib/rb", "sqlite", filepath.Join("/var/lib/rb", sqliteFileName)},
		{"sqlite file", "SQLite3", "/var/lib/rb/state.db", "sqlite3", "/var/lib/rb/state.db"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Telegram.ChatID = 42
			cfg.Storage.Driver = tc.driver
			cfg.Storage.Path = tc.path
			got := mapStorageConfig(cfg, config.Timings{BusyTimeout: time.Second})
			if got.Driver != tc.wantDriver || got.Path != tc.wantPath {
				t.Fatalf("got %q %q, want %q %q", got.Driver, got.Path, tc.wantDriver, tc.wantPath)
			}
			if got.LegacyChatID != 42 || got.BusyTimeout != time.Second {
				t.Fatalf("unexpected %+v", got)
			}
		})
	}
}

func TestMapLogConfigUsesGroupLog(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Telegram.GroupLog = -100
	cfg.Logging.Telegram.Enabled = true
	cfg.Logging.Telegram.ThreadID = 7
	got := mapLogConfig(cfg)
	if got.Telegram.ChatID != -100 || got.Telegram.ThreadID != 7 || !got.Telegram.Enabled {
		t.Fatalf("unexpected %+v", got.Telegram)
	}
}

func TestPIDFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "run", "bot.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(b)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", b)
	}
	if err := removePIDFile(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("pid file still present: %v", err)
	}
	if err := removePIDFile(path); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestRemovePIDFileKeepsForeignPID(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bot.pid")
	if err := os.WriteFile(path, []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := removePIDFile(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("foreign pid file removed: %v", err)
	}
}

func TestPIDFileDisabled(t *testing.T) {
	t.Parallel()
	if err := writePIDFile(""); err != nil {
		t.Fatal(err)
	}
	if err := removePIDFile(" "); err != nil {
		t.Fatal(err)
	}
}

func TestReasonForSignal(t *testing.T) {
	t.Parallel()
	if got := ReasonForSignal(os.Interrupt); got != StopSIGINT {
		t.Fatalf("got %q", got)
	}
	if got := ReasonForSignal(syscall.SIGTERM); got != StopSIGTERM {
		t.Fatalf("got %q", got)
	}
	if got := ReasonForSignal(syscall.SIGHUP); got != StopUnknown {
		t.Fatalf("got %q", got)
	}
}

func TestFormatTasks(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 9, 20, 0, 0, time.Local)
	mk := func(text string, sh, sm, eh, em int) reminder.Task {
		return reminder.Task{
			Text:  text,
			Start: time.Date(2024, 5, 1, sh, sm, 0, 0, time.Local),
			End:   time.Date(2024, 5, 1, eh, em, 0, 0, time.Local),
		}
	}
	got := formatTasks([]reminder.Task{
		mk("- [ ] ⏫ Later <b>", 11, 0, 11, 30),
		mk("- [ ] Finished", 8, 0, 8, 15),
		mk("- [ ] Running", 9, 0, 9, 30),
	}, now).String()

	if !strings.HasPrefix(got, "<b>Upcoming tasks (2)</b>") {
		t.Fatalf("header: %q", got)
	}
	if strings.Contains(got, "Finished") {
		t.Fatalf("ended task listed: %q", got)
	}
	if strings.Index(got, "Running") > strings.Index(got, "Later") {
		t.Fatalf("not sorted by start: %q", got)
	}
	if !strings.Contains(got, "<code>11:00–11:30</code> Later &lt;b&gt;") {
		t.Fatalf("line format: %q", got)
	}

	if got := formatTasks(nil, now).String(); got != "<i>No upcoming tasks.</i>" {
		t.Fatalf("empty: %q", got)
	}
}

func TestFormatTasksTruncatesList(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)
	var ts []reminder.Task
	for i := 0; i < maxListedTasks+5; i++ {
		start := now.Add(time.Duration(i+1) * time.Minute)
		ts = append(ts, reminder.Task{Text: "t" + strconv.Itoa(i), Start: start, End: start.Add(time.Minute)})
	}
	got := formatTasks(ts, now).String()
	if !strings.Contains(got, "and 5 more") {
		t.Fatalf("missing overflow line: %q", got)
	}
}

func TestFormatStatus(t *testing.T) {
	t.Parallel()
	got := formatStatus(status{
		Uptime:     90*time.Minute + 1500*time.Millisecond,
		Tasks:      3,
		SentKeys:   5,
		SentTasks:  2,
		Storage:    "sqlite",
		Sources:    []string{"markdown", "gcal"},
		Goroutines: supervisor.Counters{Active: 4, Started: 6},
	}).String()
	for _, want := range []string{
		"<code>1h30m1s</code>",
		"<code>markdown, gcal</code>",
		"<code>5 (2 tasks)</code>",
		"last scan: <code>never</code>",
		"<code>4 active, 6 started</code>",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}
