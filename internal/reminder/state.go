package reminder

import (
	"context"
	"sort"

	kit "remindbot/internal/transport"
)

// Handle references a delivered message so it can be retracted later.
type Handle = kit.MessageRef

// SentState maps task id to the set of trigger keys already fired.
// It only grows for a task that is still present.
type SentState map[string]map[string]struct{}

func (s SentState) Has(id, key string) bool {
	_, ok := s[id][key]
	return ok
}

func (s SentState) MarkSent(id, key string) {
	keys := s[id]
	if keys == nil {
		keys = map[string]struct{}{}
		s[id] = keys
	}
	keys[key] = struct{}{}
}

// Keys returns the fired keys for id in sorted order.
func (s SentState) Keys(id string) []string {
	keys := s[id]
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (s SentState) Clone() SentState {
	out := make(SentState, len(s))
	for id, keys := range s {
		cp := make(map[string]struct{}, len(keys))
		for k := range keys {
			cp[k] = struct{}{}
		}
		out[id] = cp
	}
	return out
}

// StateStore persists SentState.
//
// LoadSent never fails on a missing or corrupt backing store: it returns an
// empty state (and logs). SaveSent replaces the whole document atomically.
type StateStore interface {
	LoadSent(ctx context.Context) (SentState, error)
	SaveSent(ctx context.Context, s SentState) error
}

// HandleRegistry persists delivered message handles and the last known
// source location per task. Every mutation is durable when it returns, and
// implementations must be safe for concurrent use.
type HandleRegistry interface {
	SaveHandle(ctx context.Context, id, key string, h Handle, loc *Location) error
	Handle(ctx context.Context, id, key string) (Handle, bool, error)
	DeleteHandle(ctx context.Context, id, key string) error
	Handles(ctx context.Context, id string) (map[string]Handle, error)
	Location(ctx context.Context, id string) (Location, bool, error)
}

// Store is the full persistence surface used by the engine.
type Store interface {
	StateStore
	HandleRegistry
}
