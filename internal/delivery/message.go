package delivery

import (
	"path/filepath"
	"strconv"
	"strings"

	"remindbot/internal/reminder"
	"remindbot/pkg/tgui"
)

// Header returns the first line of a reminder: "in ⬇️15m", "⏳ Now" or
// "over⚠️15m".
func Header(tr reminder.Trigger) string {
	switch tr.Kind {
	case reminder.KindBefore:
		return "in ⬇️" + strconv.Itoa(tr.Minutes) + "m"
	case reminder.KindDuring:
		return "⏳ Now"
	case reminder.KindOverdue:
		return "over⚠️" + strconv.Itoa(tr.Minutes) + "m"
	default:
		return ""
	}
}

// Label names where the task came from: the note's file name, or the
// task date for sources without a file.
func Label(t reminder.Task) string {
	if !t.Loc.IsZero() {
		return strings.TrimSuffix(filepath.Base(t.Loc.Path), filepath.Ext(t.Loc.Path))
	}
	return t.Start.Format("2006-01-02")
}

// Title is the cleaned task text without its checkbox, prefixed with the
// priority marker when the task has one.
func Title(t reminder.Task) string {
	info := t.Analyze()
	text := strings.TrimSpace(strings.TrimPrefix(info.Cleaned, "- [ ]"))
	if info.HasPriority {
		return info.Priority + " " + text
	}
	return text
}

// FormatReminder renders the MarkdownV2 reminder body:
//
//	`in ⬇️15m`
//
//	🕒 09:00–10:00
//
//	🔔 ⏫ Write report
//
//	`2024-05-01`
func FormatReminder(t reminder.Task, tr reminder.Trigger) string {
	var b strings.Builder
	b.WriteString(tgui.CodeMD(Header(tr)))
	b.WriteString("\n\n🕒 ")
	b.WriteString(tgui.EscMD(t.TimeRange()))
	b.WriteString("\n\n🔔 ")
	b.WriteString(tgui.EscMD(Title(t)))
	b.WriteString("\n\n")
	b.WriteString(tgui.CodeMD(Label(t)))
	return b.String()
}
