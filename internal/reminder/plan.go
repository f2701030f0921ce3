package reminder

import (
	"strconv"
	"strings"
	"time"
)

// Kind is the lifecycle stage a trigger belongs to.
type Kind string

const (
	KindBefore  Kind = "before"
	KindDuring  Kind = "during"
	KindOverdue Kind = "overdue"
)

// Trigger is one planned reminder for a task.
type Trigger struct {
	FireAt  time.Time
	Key     string // kind + 1-based ordinal, e.g. "before2"
	Kind    Kind
	Minutes int // |offset| in whole minutes
}

// Generate builds the full trigger plan for task. It is a pure function of
// its inputs: the same task and offsets always produce the same keys and
// fire times.
func Generate(task Task, offsets Offsets) []Trigger {
	out := make([]Trigger, 0, len(offsets.Before)+len(offsets.During)+len(offsets.Overdue))
	add := func(kind Kind, list []string, anchor time.Time, sign time.Duration) {
		for i, raw := range list {
			d := ParseOffset(raw)
			out = append(out, Trigger{
				FireAt:  anchor.Add(sign * d),
				Key:     Key(kind, i+1),
				Kind:    kind,
				Minutes: wholeMinutes(d),
			})
		}
	}
	add(KindBefore, offsets.Before, task.Start, -1)
	add(KindDuring, offsets.During, task.Start, 1)
	add(KindOverdue, offsets.Overdue, task.End, 1)
	return out
}

// Key formats a trigger key.
func Key(kind Kind, ordinal int) string {
	return string(kind) + strconv.Itoa(ordinal)
}

// ParseKey splits a trigger key into kind and ordinal.
// ok is false for keys that do not follow the kind+ordinal shape.
func ParseKey(key string) (kind Kind, ordinal int, ok bool) {
	for _, k := range []Kind{KindBefore, KindDuring, KindOverdue} {
		rest, found := strings.CutPrefix(key, string(k))
		if !found {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return k, 0, false
		}
		return k, n, true
	}
	return "", 0, false
}

// wholeMinutes floors d to whole minutes (toward negative infinity) and returns the
// absolute value.
func wholeMinutes(d time.Duration) int {
	m := d / time.Minute
	if d%time.Minute != 0 && d < 0 {
		m--
	}
	if m < 0 {
		m = -m
	}
	return int(m)
}
