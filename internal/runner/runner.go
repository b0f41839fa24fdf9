// Package runner executes one simulator attempt: spawn the binary under a
// wall-clock timeout, stream its combined output to a run log, and classify
// the exit.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/simswarm/simswarm/internal/runlog"
)

// Outcome classifies how an attempt ended
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeFailed     Outcome = "failed"
	OutcomeStartError Outcome = "start_error"
)

// Result captures the outcome of a single run attempt
type Result struct {
	RunID      string        `json:"run_id"`
	Slot       int           `json:"slot"`
	BinaryPath string        `json:"binary_path"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
	Outcome    Outcome       `json:"outcome"`
	ExitCode   int           `json:"exit_code"`
	LogPath    string        `json:"log_path"`
}

// StatusLine renders the result as the status appended to the run log
func (r *Result) StatusLine() string {
	switch r.Outcome {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeFailed:
		return fmt.Sprintf("exit code %d", r.ExitCode)
	default:
		return "start failed"
	}
}

// Runner runs simulator attempts for the configured binary
type Runner struct {
	binaryPath string
	args       []string
	timeout    time.Duration
	logs       *runlog.Dir
}

// New creates a runner
func New(binaryPath string, args []string, timeout time.Duration, logs *runlog.Dir) *Runner {
	return &Runner{
		binaryPath: binaryPath,
		args:       args,
		timeout:    timeout,
		logs:       logs,
	}
}

// RunOnce executes a single attempt for a slot. The attempt always produces
// a run log with a final status line, including when the binary fails to
// start. The returned error is reserved for log bookkeeping failures; a
// failed or timed-out simulator is a normal Result, not an error.
func (r *Runner) RunOnce(ctx context.Context, slot int) (*Result, error) {
	start := time.Now()

	logFile, err := r.createLog(start, slot)
	if err != nil {
		return nil, err
	}
	defer logFile.Close()

	result := &Result{
		RunID:      uuid.New().String(),
		Slot:       slot,
		BinaryPath: r.binaryPath,
		StartTime:  start,
		LogPath:    logFile.Name(),
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.binaryPath, r.args...)

	// Own process group so a timeout kills the simulator's children too
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		result.Outcome = OutcomeStartError
		result.ExitCode = -1
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(start)
		statusErr := runlog.AppendStatus(logFile, fmt.Sprintf("start failed: %v", err), result.Duration)
		return result, statusErr
	}

	waitErr := cmd.Wait()
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(start)

	switch {
	case waitErr == nil:
		result.Outcome = OutcomeSuccess
	case runCtx.Err() == context.DeadlineExceeded:
		result.Outcome = OutcomeTimeout
		result.ExitCode = -1
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.Outcome = OutcomeFailed
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.Outcome = OutcomeFailed
			result.ExitCode = -1
		}
	}

	if err := runlog.AppendStatus(logFile, result.StatusLine(), result.Duration); err != nil {
		return result, fmt.Errorf("failed to append status line: %w", err)
	}

	return result, nil
}

// createLog opens the run log for an attempt. Attempts on the same slot
// within the same second would collide on the timestamped name, so bump the
// timestamp until a free name is found.
func (r *Runner) createLog(start time.Time, slot int) (*os.File, error) {
	ts := start
	for i := 0; i < 5; i++ {
		file, err := r.logs.Create(ts, slot)
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
		ts = ts.Add(time.Second)
	}
	return nil, fmt.Errorf("could not allocate run log for slot %d", slot)
}
