package tasks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Complete marks the task with the given id as done in loc.Path.
//
// The line is found by identity first, so edits above the task are
// tolerated. With lineFallback set and no identity match, the recorded line
// is used if it still holds an open checkbox. The returned Location is the
// line that was changed.
func (s *Source) Complete(ctx context.Context, id string, loc reminder.Location, lineFallback bool) (reminder.Location, error) {
	if err := ctx.Err(); err != nil {
		return reminder.Location{}, err
	}
	if loc.IsZero() {
		return reminder.Location{}, ErrTaskNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, _, err := ParseFile(loc.Path, s.cfg.Parse)
	if err != nil {
		if os.IsNotExist(err) {
			return reminder.Location{}, fmt.Errorf("%w: %s", ErrTaskNotFound, loc.Path)
		}
		return reminder.Location{}, err
	}

	target := -1
	for _, t := range ts {
		if t.ID() != id {
			continue
		}
		// prefer the recorded line among duplicates
		if target < 0 || t.Loc.Line == loc.Line {
			target = t.Loc.Line
		}
	}
	if target < 0 && lineFallback {
		target = loc.Line
	}
	if target < 0 {
		return reminder.Location{}, ErrTaskNotFound
	}

	if err := MarkDone(loc.Path, target); err != nil {
		return reminder.Location{}, err
	}
	if target != loc.Line {
		s.log.Info("task relocated", logx.String("path", loc.Path), logx.Int("from", loc.Line), logx.Int("to", target))
	}
	return reminder.Location{Path: loc.Path, Line: target}, nil
}

// MarkDone replaces the first "- [ ]" on the given 0-based line with
// "- [x]". It fails with ErrTaskNotFound if the line is out of range or not
// open. Line endings and the rest of the file are preserved.
func MarkDone(path string, line int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := bytes.SplitAfter(data, []byte("\n"))
	if line < 0 || line >= len(lines) || !IsOpen(string(lines[line])) {
		return fmt.Errorf("%w: %s:%d", ErrTaskNotFound, path, line)
	}
	lines[line] = bytes.Replace(lines[line], []byte(OpenBox), []byte(DoneBox), 1)

	mode := os.FileMode(0o644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
	}
	return writeFileAtomic(path, bytes.Join(lines, nil), mode)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
