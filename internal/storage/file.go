package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

const (
	sentFileName    = "sent_notifications.json"
	handlesFileName = "message_ids.json"
)

// fileStore keeps two documents under one directory:
//
//	sent_notifications.json  {"<task id>": ["before1", "during1"]}
//	message_ids.json         {"ids": {"<task id>": {"before1": {...}}},
//	                          "meta": {"<task id>": ["<path>", <line>]}}
//
// Every write replaces the whole document.
type fileStore struct {
	log          logx.Logger
	sentPath     string
	handlesPath  string
	legacyChatID int64

	mu      sync.Mutex
	handles handleDoc
}

type handleDoc struct {
	IDs  map[string]map[string]storedHandle `json:"ids"`
	Meta map[string]storedLocation          `json:"meta"`
}

func newHandleDoc() handleDoc {
	return handleDoc{
		IDs:  map[string]map[string]storedHandle{},
		Meta: map[string]storedLocation{},
	}
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &fileStore{
		log:          log,
		sentPath:     filepath.Join(dir, sentFileName),
		handlesPath:  filepath.Join(dir, handlesFileName),
		legacyChatID: cfg.LegacyChatID,
	}
	doc, err := s.readHandles()
	if err != nil {
		return nil, err
	}
	s.handles = doc
	return s, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) LoadSent(ctx context.Context) (reminder.SentState, error) {
	_ = ctx
	b, err := os.ReadFile(s.sentPath)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Info("sent state missing; creating empty document", logx.String("path", s.sentPath))
		if err := writeJSONAtomic(s.sentPath, map[string][]string{}); err != nil {
			return nil, fmt.Errorf("create %s: %w", s.sentPath, err)
		}
		return reminder.SentState{}, nil
	}
	if err != nil {
		return nil, err
	}

	var raw map[string][]string
	if err := json.Unmarshal(b, &raw); err != nil {
		s.log.Warn("sent state corrupt; starting empty", logx.String("path", s.sentPath), logx.Err(err))
		return reminder.SentState{}, nil
	}
	st := make(reminder.SentState, len(raw))
	for id, keys := range raw {
		for _, k := range keys {
			st.MarkSent(id, k)
		}
	}
	return st, nil
}

func (s *fileStore) SaveSent(ctx context.Context, st reminder.SentState) error {
	_ = ctx
	out := make(map[string][]string, len(st))
	for id := range st {
		out[id] = st.Keys(id)
	}
	return writeJSONAtomic(s.sentPath, out)
}

func (s *fileStore) SaveHandle(ctx context.Context, id, key string, h reminder.Handle, loc *reminder.Location) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.handles.IDs[id]
	if keys == nil {
		keys = map[string]storedHandle{}
		s.handles.IDs[id] = keys
	}
	keys[key] = storedHandle(h)
	if loc != nil && !loc.IsZero() {
		s.handles.Meta[id] = storedLocation(*loc)
	}
	return writeJSONAtomic(s.handlesPath, s.handles)
}

func (s *fileStore) Handle(ctx context.Context, id, key string) (reminder.Handle, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles.IDs[id][key]
	return reminder.Handle(h), ok, nil
}

func (s *fileStore) DeleteHandle(ctx context.Context, id, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.handles.IDs[id]
	if !ok {
		return nil
	}
	if _, ok := keys[key]; !ok {
		return nil
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(s.handles.IDs, id)
	}
	return writeJSONAtomic(s.handlesPath, s.handles)
}

func (s *fileStore) Handles(ctx context.Context, id string) (map[string]reminder.Handle, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.handles.IDs[id]
	out := make(map[string]reminder.Handle, len(keys))
	for k, h := range keys {
		out[k] = reminder.Handle(h)
	}
	return out, nil
}

func (s *fileStore) Location(ctx context.Context, id string) (reminder.Location, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.handles.Meta[id]
	return reminder.Location(loc), ok, nil
}

func (s *fileStore) readHandles() (handleDoc, error) {
	b, err := os.ReadFile(s.handlesPath)
	if errors.Is(err, os.ErrNotExist) {
		doc := newHandleDoc()
		if err := writeJSONAtomic(s.handlesPath, doc); err != nil {
			return doc, fmt.Errorf("create %s: %w", s.handlesPath, err)
		}
		return doc, nil
	}
	if err != nil {
		return handleDoc{}, err
	}

	var raw struct {
		IDs  map[string]map[string]json.RawMessage `json:"ids"`
		Meta map[string]storedLocation             `json:"meta"`
	}
	doc := newHandleDoc()
	if err := json.Unmarshal(b, &raw); err != nil {
		s.log.Warn("message handles corrupt; starting empty", logx.String("path", s.handlesPath), logx.Err(err))
		return doc, nil
	}
	for id, keys := range raw.IDs {
		m := make(map[string]storedHandle, len(keys))
		for k, v := range keys {
			h, err := decodeHandle(v, s.legacyChatID)
			if err != nil {
				s.log.Warn("skipping unreadable message handle", logx.String("task_id", id), logx.String("key", k), logx.Err(err))
				continue
			}
			m[k] = h
		}
		if len(m) > 0 {
			doc.IDs[id] = m
		}
	}
	for id, loc := range raw.Meta {
		doc.Meta[id] = loc
	}
	return doc, nil
}

type storedHandle reminder.Handle

// decodeHandle accepts {"chat_id":..,"message_id":..} and the legacy bare
// message id.
func decodeHandle(b json.RawMessage, legacyChatID int64) (storedHandle, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '{' {
		var id int
		if err := json.Unmarshal(b, &id); err != nil {
			return storedHandle{}, err
		}
		return storedHandle{ChatID: legacyChatID, MessageID: id}, nil
	}
	var h reminder.Handle
	if err := json.Unmarshal(b, &h); err != nil {
		return storedHandle{}, err
	}
	return storedHandle(h), nil
}

func (h storedHandle) MarshalJSON() ([]byte, error) {
	return json.Marshal(reminder.Handle(h))
}

// storedLocation is encoded as ["<path>", <line>].
type storedLocation reminder.Location

func (l storedLocation) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{l.Path, l.Line})
}

func (l *storedLocation) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("location: want [path, line], got %d items", len(pair))
		}
		if err := json.Unmarshal(pair[0], &l.Path); err != nil {
			return err
		}
		return json.Unmarshal(pair[1], &l.Line)
	}
	var loc reminder.Location
	if err := json.Unmarshal(b, &loc); err != nil {
		return err
	}
	*l = storedLocation(loc)
	return nil
}
