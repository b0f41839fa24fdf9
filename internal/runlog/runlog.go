// Package runlog owns the per-run log artifacts: one file per run attempt,
// named simulator_<timestamp>_run<slot>.log, holding the subprocess's
// combined output plus a final exit-status line.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// TimestampLayout is the layout used in run log file names
const TimestampLayout = "20060102_150405"

var fileNamePattern = regexp.MustCompile(`^simulator_(\d{8}_\d{6})_run(\d+)\.log$`)

// Dir manages a directory of run log files
type Dir struct {
	path string
}

// Open ensures the log directory exists and returns a Dir for it
func Open(path string) (*Dir, error) {
	if path == "" {
		return nil, fmt.Errorf("log directory is required")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

// Path returns the managed directory path
func (d *Dir) Path() string {
	return d.path
}

// FileName returns the log file name for an attempt starting at ts on a slot
func FileName(ts time.Time, slot int) string {
	return fmt.Sprintf("simulator_%s_run%d.log", ts.Format(TimestampLayout), slot)
}

// Create opens a new run log file for an attempt. One file per attempt.
func (d *Dir) Create(ts time.Time, slot int) (*os.File, error) {
	path := filepath.Join(d.path, FileName(ts, slot))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log %s: %w", path, err)
	}
	return f, nil
}

// AppendStatus writes the final exit-status line to a run log
func AppendStatus(f *os.File, status string, duration time.Duration) error {
	_, err := fmt.Fprintf(f, "\n=== exit status: %s (duration: %s) ===\n", status, duration.Round(time.Millisecond))
	return err
}

// IsRunLog reports whether name matches the run log naming convention
func IsRunLog(name string) bool {
	return fileNamePattern.MatchString(name)
}

// List returns the run log file names in the directory, unsorted
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !IsRunLog(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}
