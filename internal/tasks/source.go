package tasks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// SourceName tags tasks produced by this package.
const SourceName = "markdown"

// ErrTaskNotFound is returned when a task can no longer be located in its
// file.
var ErrTaskNotFound = errors.New("task not found")

type Config struct {
	Folder    string
	Recursive bool
	Parse     ParseOptions
}

// Source lists tasks from a folder and mutates their lines on completion.
type Source struct {
	cfg Config
	log logx.Logger

	// serializes file rewrites
	mu sync.Mutex
}

func NewSource(cfg Config, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{cfg: cfg, log: log}
}

func (s *Source) Folder() string { return s.cfg.Folder }

func (s *Source) ListTasks(ctx context.Context) ([]reminder.Task, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	var out []reminder.Task
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		ts, skipped, err := ParseFile(path, s.cfg.Parse)
		if err != nil {
			// keep what was read before the failure
			s.log.Warn("read task file failed", logx.String("path", path), logx.Int("tasks_kept", len(ts)), logx.Err(err))
		}
		for _, sk := range skipped {
			s.log.Warn("task line skipped", logx.String("path", path), logx.Int("line", sk.Line), logx.String("reason", sk.Reason))
		}
		out = append(out, ts...)
	}
	s.log.Debug("tasks loaded", logx.Int("files", len(files)), logx.Int("tasks", len(out)))
	return out, nil
}

// files returns the *.md files under the folder, sorted.
func (s *Source) files() ([]string, error) {
	root := s.cfg.Folder
	st, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", reminder.ErrSourceNotFound, root)
	}
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", reminder.ErrSourceNotFound, root)
	}

	var out []string
	if !s.cfg.Recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && isTaskFile(e.Name()) {
				out = append(out, filepath.Join(root, e.Name()))
			}
		}
		return out, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Debug("walk error", logx.String("path", path), logx.Err(err))
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isTaskFile(d.Name()) {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func isTaskFile(name string) bool {
	return strings.HasSuffix(name, ".md") && !strings.HasPrefix(name, ".")
}
