package runlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simswarm/simswarm/pkg/logging"
)

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 30, 45, 0, time.Local)

	assert.Equal(t, "simulator_20240315_103045_run0.log", FileName(ts, 0))
	assert.Equal(t, "simulator_20240315_103045_run12.log", FileName(ts, 12))
}

func TestIsRunLog(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"simulator_20240315_103045_run0.log", true},
		{"simulator_20240315_103045_run31.log", true},
		{"simulator_20240315_run0.log", false},
		{"simulator.log", false},
		{"supervisor.log", false},
		{"simulator_20240315_103045_run0.log.bak", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsRunLog(tt.name), tt.name)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}

func TestCreateAndAppendStatus(t *testing.T) {
	dir, err := Open(t.TempDir())
	require.NoError(t, err)

	ts := time.Now()
	f, err := dir.Create(ts, 3)
	require.NoError(t, err)

	_, err = f.WriteString("simulator output\n")
	require.NoError(t, err)
	require.NoError(t, AppendStatus(f, "exit code 2", 1500*time.Millisecond))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(filepath.Join(dir.Path(), FileName(ts, 3)))
	require.NoError(t, err)
	assert.Contains(t, string(data), "simulator output")
	assert.Contains(t, string(data), "=== exit status: exit code 2 (duration: 1.5s) ===")
}

func TestCreateRefusesDuplicate(t *testing.T) {
	dir, err := Open(t.TempDir())
	require.NoError(t, err)

	ts := time.Now()
	f, err := dir.Create(ts, 1)
	require.NoError(t, err)
	f.Close()

	// One log file per run attempt
	_, err = dir.Create(ts, 1)
	require.Error(t, err)
}

func TestCleanupOnce(t *testing.T) {
	tmp := t.TempDir()
	dir, err := Open(tmp)
	require.NoError(t, err)

	old := filepath.Join(tmp, "simulator_20200101_000000_run0.log")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0644))
	oldTime := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, oldTime, oldTime))

	fresh := filepath.Join(tmp, FileName(time.Now(), 1))
	require.NoError(t, os.WriteFile(fresh, []byte("fresh"), 0644))

	// Non run-log files are never touched
	other := filepath.Join(tmp, "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("keep"), 0644))
	require.NoError(t, os.Chtimes(other, oldTime, oldTime))

	logger := logging.NewLogger(logging.ERROR, false)
	mgr := NewCleanupManager(CleanupConfig{Enabled: true, RetentionDays: 7}, dir, logger)

	deleted, err := mgr.CleanupOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}
