package tasks

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"remindbot/internal/reminder"
)

const (
	OpenBox = "- [ ]"
	DoneBox = "- [x]"
)

var (
	reDate  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	reStart = regexp.MustCompile(`\[startTime::\s*(\d{2}:\d{2})\]`)
	reEnd   = regexp.MustCompile(`\[endTime::\s*(\d{2}:\d{2})\]`)
)

// ParseOptions control how lines become tasks.
type ParseOptions struct {
	// DefaultDuration is used when a line has no endTime tag.
	DefaultDuration time.Duration
	// Location for wall-clock times. Nil means time.Local.
	Location *time.Location
}

func (o ParseOptions) withDefaults() ParseOptions {
	if o.DefaultDuration <= 0 {
		o.DefaultDuration = 15 * time.Minute
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Skipped describes a candidate line that could not become a task.
type Skipped struct {
	Line   int
	Reason string
}

// IsOpen reports whether line holds an unchecked box and no checked one.
func IsOpen(line string) bool {
	return strings.Contains(line, OpenBox) && !strings.Contains(line, DoneBox)
}

// FileDate extracts the date from the first YYYY-MM-DD in the file stem.
func FileDate(path string) (string, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	d := reDate.FindString(stem)
	return d, d != ""
}

// Parse reads task lines from r. path is recorded in each task's Location
// and supplies the date. Open lines without a startTime tag are ignored;
// lines with a tag that cannot be turned into a time are reported in
// skipped.
func Parse(r io.Reader, path string, opts ParseOptions) ([]reminder.Task, []Skipped, error) {
	opts = opts.withDefaults()
	date, hasDate := FileDate(path)

	br := bufio.NewReader(r)

	var (
		out     []reminder.Task
		skipped []Skipped
	)
	for n := 0; ; n++ {
		line, rerr := br.ReadString('\n')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return out, skipped, rerr
		}
		if rerr != nil && line == "" {
			break
		}
		line = strings.TrimRight(line, "\r\n")
		if !IsOpen(line) {
			continue
		}
		sm := reStart.FindStringSubmatch(line)
		if sm == nil {
			continue
		}
		if !hasDate {
			skipped = append(skipped, Skipped{Line: n, Reason: "no YYYY-MM-DD date in file name"})
			continue
		}
		start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+sm[1], opts.Location)
		if err != nil {
			skipped = append(skipped, Skipped{Line: n, Reason: fmt.Sprintf("bad startTime: %v", err)})
			continue
		}
		end := start.Add(opts.DefaultDuration)
		if em := reEnd.FindStringSubmatch(line); em != nil {
			end, err = time.ParseInLocation("2006-01-02 15:04", date+" "+em[1], opts.Location)
			if err != nil {
				skipped = append(skipped, Skipped{Line: n, Reason: fmt.Sprintf("bad endTime: %v", err)})
				continue
			}
		}
		out = append(out, reminder.Task{
			Loc:    reminder.Location{Path: path, Line: n},
			Source: SourceName,
			Text:   strings.TrimSpace(line),
			Start:  start,
			End:    end,
		})
	}
	return out, skipped, nil
}

// ParseFile is Parse over a file on disk.
func ParseFile(path string, opts ParseOptions) ([]reminder.Task, []Skipped, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return Parse(f, path, opts)
}
