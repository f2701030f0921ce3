package reminder

import (
	"sort"
	"strings"
)

// ObsoleteKeys returns the keys of previously delivered reminders that must
// be retracted before the reminder for key is sent.
//
//	before n  -> before1..before(n-1)
//	during *  -> every before* in existing
//	overdue n -> every before* and during* in existing, overdue1..overdue(n-1)
//
// The result is sorted and free of duplicates. Keys of an unknown shape
// retract nothing.
func ObsoleteKeys(key string, existing []string) []string {
	kind, n, ok := ParseKey(key)
	if !ok {
		return nil
	}
	set := map[string]struct{}{}
	withPrefix := func(prefix Kind) {
		for _, k := range existing {
			if strings.HasPrefix(k, string(prefix)) {
				set[k] = struct{}{}
			}
		}
	}
	upTo := func(k Kind) {
		for i := 1; i < n; i++ {
			set[Key(k, i)] = struct{}{}
		}
	}

	switch kind {
	case KindBefore:
		upTo(KindBefore)
	case KindDuring:
		withPrefix(KindBefore)
	case KindOverdue:
		withPrefix(KindBefore)
		withPrefix(KindDuring)
		upTo(KindOverdue)
	}
	delete(set, key)

	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
