// Package router dispatches incoming Telegram updates to command and
// inline-button handlers.
package router

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// ErrNoRoute is returned by Dispatch when nothing handles the update.
var ErrNoRoute = errors.New("no route")

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Route   string // command name or callback prefix
	Args    []string
	Payload string // callback data after the prefix

	Logger logx.Logger
}

type Options struct {
	// AllowedChatID restricts handling to a single chat. Zero allows any chat.
	AllowedChatID int64
	Timeout       time.Duration
}

type callbackRoute struct {
	prefix string
	h      HandlerFunc
}

type Router struct {
	log  logx.Logger
	opts Options

	mu        sync.RWMutex
	commands  map[string]HandlerFunc
	callbacks []callbackRoute
	mw        []Middleware
}

func New(log logx.Logger, opts Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	r := &Router{
		log:      log,
		opts:     opts,
		commands: map[string]HandlerFunc{},
	}
	r.mw = []Middleware{
		MWPanicRecover(log),
		MWRequestLog(log),
		MWTimeout(opts.Timeout),
	}
	return r
}

func (r *Router) Command(name string, h HandlerFunc) {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" || h == nil {
		return
	}
	r.mu.Lock()
	r.commands[name] = h
	r.mu.Unlock()
}

// Callback registers h for callback data starting with prefix. Longer
// prefixes win.
func (r *Router) Callback(prefix string, h HandlerFunc) {
	if prefix == "" || h == nil {
		return
	}
	r.mu.Lock()
	r.callbacks = append(r.callbacks, callbackRoute{prefix: prefix, h: h})
	sort.SliceStable(r.callbacks, func(i, j int) bool {
		return len(r.callbacks[i].prefix) > len(r.callbacks[j].prefix)
	})
	r.mu.Unlock()
}

func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	r.mw = append(r.mw, mw...)
	r.mu.Unlock()
}

// Commands lists registered command names, sorted.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.commands))
	for k := range r.commands {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Run dispatches updates from in until ctx is done or in is closed.
func (r *Router) Run(ctx context.Context, in <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-in:
			if !ok {
				return
			}
			if err := r.Dispatch(ctx, up); err != nil && !errors.Is(err, ErrNoRoute) {
				r.log.Debug("dispatch failed", logx.Err(err))
			}
		}
	}
}

func (r *Router) Dispatch(ctx context.Context, up kit.Update) error {
	req, h := r.match(up)
	if h == nil {
		return ErrNoRoute
	}
	if r.opts.AllowedChatID != 0 && req.Chat.ChatID != r.opts.AllowedChatID {
		r.log.Debug("update from foreign chat ignored", logx.Int64("chat_id", req.Chat.ChatID))
		return nil
	}
	req.Logger = r.log.With(logx.String("route", req.Route))

	r.mu.RLock()
	mw := append([]Middleware(nil), r.mw...)
	r.mu.RUnlock()
	return Chain(h, mw...)(ctx, req)
}

func (r *Router) match(up kit.Update) (*Request, HandlerFunc) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch up.Kind {
	case kit.UpdateCallback:
		cb := up.Callback
		if cb == nil {
			return nil, nil
		}
		for _, rt := range r.callbacks {
			if strings.HasPrefix(cb.Data, rt.prefix) {
				return &Request{
					Update:  up,
					Chat:    kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
					FromID:  cb.FromID,
					Route:   rt.prefix,
					Payload: strings.TrimPrefix(cb.Data, rt.prefix),
				}, rt.h
			}
		}
	case kit.UpdateMessage:
		m := up.Message
		if m == nil {
			return nil, nil
		}
		name, args, ok := ParseCommand(m.Text)
		if !ok {
			return nil, nil
		}
		h := r.commands[name]
		if h == nil {
			return nil, nil
		}
		return &Request{
			Update: up,
			Chat:   kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID},
			FromID: m.FromID,
			Route:  name,
			Args:   args,
		}, h
	}
	return nil, nil
}

// ParseCommand splits "/name@bot a b" into ("name", ["a","b"]).
func ParseCommand(text string) (string, []string, bool) {
	f := strings.Fields(text)
	if len(f) == 0 || !strings.HasPrefix(f[0], "/") {
		return "", nil, false
	}
	name := strings.TrimPrefix(f[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), f[1:], true
}
