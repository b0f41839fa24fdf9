package runner

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simswarm/simswarm/internal/runlog"
)

func newTestRunner(t *testing.T, args []string, timeout time.Duration) *Runner {
	t.Helper()
	dir, err := runlog.Open(t.TempDir())
	require.NoError(t, err)
	return New("/bin/sh", args, timeout, dir)
}

func TestRunOnceSuccess(t *testing.T) {
	r := newTestRunner(t, []string{"-c", "echo simulator ran"}, time.Minute)

	result, err := r.RunOnce(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 0, result.ExitCode)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 0, result.Slot)

	data, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "simulator ran")
	assert.Contains(t, string(data), "=== exit status: success")
}

func TestRunOnceFailure(t *testing.T) {
	r := newTestRunner(t, []string{"-c", "echo about to fail; exit 3"}, time.Minute)

	result, err := r.RunOnce(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, 3, result.ExitCode)

	data, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "about to fail")
	assert.Contains(t, string(data), "=== exit status: exit code 3")
}

func TestRunOnceTimeout(t *testing.T) {
	r := newTestRunner(t, []string{"-c", "sleep 30"}, 200*time.Millisecond)

	start := time.Now()
	result, err := r.RunOnce(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, OutcomeTimeout, result.Outcome)
	assert.Less(t, time.Since(start), 10*time.Second, "timeout must not wait for the full sleep")

	data, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "=== exit status: timeout")
}

func TestRunOnceStartError(t *testing.T) {
	dir, err := runlog.Open(t.TempDir())
	require.NoError(t, err)
	r := New("/nonexistent/simulator-binary", nil, time.Minute, dir)

	result, err := r.RunOnce(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, OutcomeStartError, result.Outcome)

	// A start failure still leaves a log file with a status line
	data, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "=== exit status: start failed")
}

func TestRunOnceCancelledContext(t *testing.T) {
	r := newTestRunner(t, []string{"-c", "sleep 30"}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, err := r.RunOnce(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		result   Result
		expected string
	}{
		{Result{Outcome: OutcomeSuccess}, "success"},
		{Result{Outcome: OutcomeTimeout}, "timeout"},
		{Result{Outcome: OutcomeFailed, ExitCode: 7}, "exit code 7"},
		{Result{Outcome: OutcomeStartError}, "start failed"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.result.StatusLine())
	}
}
