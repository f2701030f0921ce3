package tasks

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "remindbot/pkg/logx"
)

// Watcher calls OnChange (debounced) whenever a task file under the folder
// is written, created, renamed or removed.
type Watcher struct {
	Folder    string
	Recursive bool
	Debounce  time.Duration
	OnChange  func()
	Log       logx.Logger
}

// Run watches until ctx is done. It returns an error when the underlying
// watcher breaks so a supervisor can restart it.
func (w *Watcher) Run(ctx context.Context) error {
	log := w.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, w.Folder); err != nil {
		return err
	}
	log.Debug("task watcher started", logx.String("dir", w.Folder), logx.Bool("recursive", w.Recursive))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	fire := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			if ctx.Err() == nil && w.OnChange != nil {
				w.OnChange()
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("task watcher events closed")
			}
			if ev.Has(fsnotify.Create) && w.Recursive {
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						log.Warn("watch new folder failed", logx.String("dir", ev.Name), logx.Err(err))
					}
					fire()
					continue
				}
			}
			if isTaskFile(filepath.Base(ev.Name)) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				log.Debug("task file changed", logx.String("path", ev.Name), logx.String("op", ev.Op.String()))
				fire()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("task watcher errors closed")
			}
			if err == nil {
				continue
			}
			// missed events; rescan once and keep going
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Warn("task watch overflow; forcing rescan", logx.Err(err))
				fire()
				continue
			}
			return err
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	if !w.Recursive {
		return fw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
