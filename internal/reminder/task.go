package reminder

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// Location points at the source line a task was read from.
// Line is 0-based. A zero Location means the task cannot be mutated.
type Location struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

func (l Location) IsZero() bool { return l.Path == "" }

// Task is one concrete occurrence of a checklist item. Tasks are rebuilt on
// every scan; only ID() outlives a pass.
type Task struct {
	Loc    Location
	Source string
	Text   string
	Start  time.Time
	End    time.Time
}

// PriorityMarkers are the priority glyphs recognized in task text.
var PriorityMarkers = []string{"⏫", "⏬", "🔺", "🔼", "🔽"}

// DefaultPriorityMarker is reported by Analyze when the text has none.
const DefaultPriorityMarker = "⏫"

const idTimeLayout = "2006-01-02T15:04:05"

var (
	reStartTag = regexp.MustCompile(`\[startTime::.*?\]`)
	reEndTag   = regexp.MustCompile(`\[endTime::.*?\]`)
	rePriority = regexp.MustCompile(strings.Join(PriorityMarkers, "|"))
)

// CleanText strips priority markers and time tags from raw task text.
func CleanText(raw string) string {
	s := rePriority.ReplaceAllString(raw, "")
	s = reStartTag.ReplaceAllString(s, "")
	s = reEndTag.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ID is the stable identity of the task: md5 over start, end and cleaned
// text. The source location is deliberately not part of it, so a task keeps
// its id when lines above it are inserted or removed.
func (t Task) ID() string {
	return TaskID(t.Start, t.End, t.Text)
}

// TaskID computes the identity for the given start, end and raw text.
func TaskID(start, end time.Time, raw string) string {
	var b strings.Builder
	b.WriteString(start.Format(idTimeLayout))
	b.WriteByte('|')
	b.WriteString(end.Format(idTimeLayout))
	b.WriteByte('|')
	b.WriteString(CleanText(raw))
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// TimeRange formats the task window as "HH:MM–HH:MM".
func (t Task) TimeRange() string {
	return t.Start.Format("15:04") + "–" + t.End.Format("15:04")
}

// TextInfo is the presentation view of a task's text.
type TextInfo struct {
	Cleaned     string
	HasPriority bool
	Priority    string
	TimeRange   string
}

func (t Task) Analyze() TextInfo {
	info := TextInfo{
		Cleaned:   CleanText(t.Text),
		Priority:  DefaultPriorityMarker,
		TimeRange: t.TimeRange(),
	}
	if m := rePriority.FindString(t.Text); m != "" {
		info.HasPriority = true
		info.Priority = m
	}
	return info
}
