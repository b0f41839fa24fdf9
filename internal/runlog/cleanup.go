package runlog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/simswarm/simswarm/pkg/logging"
)

// CleanupConfig defines retention policy for run logs
type CleanupConfig struct {
	Enabled         bool
	RetentionDays   int
	CleanupInterval time.Duration
}

// DefaultCleanupConfig returns sensible defaults for log retention
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Enabled:         true,
		RetentionDays:   7,
		CleanupInterval: 24 * time.Hour,
	}
}

// CleanupStats tracks cleanup operations
type CleanupStats struct {
	LastCleanupTime     time.Time
	TotalLogsDeleted    int64
	LastCleanupDuration time.Duration
}

// CleanupManager deletes run logs older than the retention period
type CleanupManager struct {
	config CleanupConfig
	dir    *Dir
	logger *logging.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats CleanupStats
}

// NewCleanupManager creates a cleanup manager for a log directory
func NewCleanupManager(config CleanupConfig, dir *Dir, logger *logging.Logger) *CleanupManager {
	return &CleanupManager{
		config: config,
		dir:    dir,
		logger: logger,
	}
}

// Start begins periodic cleanup in the background
func (m *CleanupManager) Start(ctx context.Context) {
	if !m.config.Enabled || m.config.RetentionDays <= 0 {
		m.logger.Info("Run log cleanup disabled")
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.CleanupInterval)
		defer ticker.Stop()

		// Run once at startup so stale logs from previous runs are reclaimed
		m.runCleanup()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.runCleanup()
			}
		}
	}()

	m.logger.Info("Run log cleanup started", map[string]interface{}{
		"retention_days": m.config.RetentionDays,
		"interval":       m.config.CleanupInterval.String(),
	})
}

// Stop halts background cleanup and waits for an in-flight pass
func (m *CleanupManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Stats returns a copy of the current cleanup statistics
func (m *CleanupManager) Stats() CleanupStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *CleanupManager) runCleanup() {
	start := time.Now()
	deleted, err := m.CleanupOnce()
	if err != nil {
		m.logger.Error("Run log cleanup failed", map[string]interface{}{"error": err.Error()})
		return
	}

	m.mu.Lock()
	m.stats.LastCleanupTime = start
	m.stats.LastCleanupDuration = time.Since(start)
	m.stats.TotalLogsDeleted += int64(deleted)
	m.mu.Unlock()

	if deleted > 0 {
		m.logger.Info("Run log cleanup pass complete", map[string]interface{}{
			"deleted":  deleted,
			"duration": time.Since(start).String(),
		})
	}
}

// CleanupOnce deletes run logs older than the retention period and returns
// how many were removed
func (m *CleanupManager) CleanupOnce() (int, error) {
	cutoff := time.Now().AddDate(0, 0, -m.config.RetentionDays)

	names, err := m.dir.List()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, name := range names {
		path := filepath.Join(m.dir.Path(), name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				m.logger.Warn("Failed to delete old run log", map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				})
				continue
			}
			deleted++
		}
	}

	return deleted, nil
}
