package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reOffset = regexp.MustCompile(`^([+-]?)(\d+)\s*([mh])$`)

// ParseOffset converts "15m", "-2h" or "+10m" into a signed duration.
//
// Anything that does not match the grammar yields 0. Callers that want to
// reject bad input should use ParseOffsetStrict.
func ParseOffset(s string) time.Duration {
	d, err := ParseOffsetStrict(s)
	if err != nil {
		return 0
	}
	return d
}

// ParseOffsetStrict is ParseOffset with an error for unparseable input.
func ParseOffsetStrict(s string) (time.Duration, error) {
	m := reOffset.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid offset %q (want [+-]N followed by m or h)", s)
	}
	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q: %w", s, err)
	}
	unit := time.Minute
	if m[3] == "h" {
		unit = time.Hour
	}
	d := time.Duration(n) * unit
	if m[1] == "-" {
		d = -d
	}
	return d, nil
}

// Offsets holds the configured offset strings per trigger kind.
type Offsets struct {
	Before  []string
	During  []string
	Overdue []string
}

// Invalid returns every offset string that ParseOffset would silently map
// to zero, prefixed with its kind ("before: abc").
func (o Offsets) Invalid() []string {
	var out []string
	check := func(kind Kind, list []string) {
		for _, s := range list {
			if _, err := ParseOffsetStrict(s); err != nil {
				out = append(out, string(kind)+": "+s)
			}
		}
	}
	check(KindBefore, o.Before)
	check(KindDuring, o.During)
	check(KindOverdue, o.Overdue)
	return out
}
