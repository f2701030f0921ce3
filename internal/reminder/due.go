package reminder

import (
	"strings"
	"time"
)

// IsDue reports whether a trigger with the given key and fire time should be
// sent at now.
//
// before* and during* triggers have a bounded window (tolBefore, tolDuring)
// so a reminder missed while the process was down is not delivered late.
// overdue* triggers stay due until sent.
func IsDue(now, fireAt time.Time, key string, tolBefore, tolDuring time.Duration) bool {
	delta := now.Sub(fireAt)
	switch {
	case strings.HasPrefix(key, string(KindOverdue)):
		return delta >= 0
	case strings.HasPrefix(key, string(KindDuring)):
		return delta >= 0 && delta <= tolDuring
	case strings.HasPrefix(key, string(KindBefore)):
		return delta >= 0 && delta <= tolBefore
	default:
		return false
	}
}
