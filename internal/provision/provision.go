// Package provision fetches the simulator binary from a remote HTTP source
// and installs it atomically at the configured path.
package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/simswarm/simswarm/pkg/logging"
	"github.com/simswarm/simswarm/pkg/retry"
)

// DefaultRetryInterval is the fixed wait between failed download attempts
const DefaultRetryInterval = 30 * time.Second

// Config describes where to fetch the binary from and where to install it
type Config struct {
	URL           string
	DestPath      string
	SHA256        string // optional expected payload digest, hex
	RetryInterval time.Duration
	Force         bool // re-download even when the binary already exists
}

// Provisioner downloads and installs the simulator binary
type Provisioner struct {
	config Config
	client *http.Client
	logger *logging.Logger
}

// New creates a provisioner
func New(config Config, logger *logging.Logger) *Provisioner {
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultRetryInterval
	}
	return &Provisioner{
		config: config,
		client: &http.Client{Timeout: 10 * time.Minute},
		logger: logger,
	}
}

// Ensure makes the binary present at DestPath. When no URL is configured the
// binary must already exist. Download failures are retried on a fixed
// interval until success or context cancellation.
func (p *Provisioner) Ensure(ctx context.Context) error {
	if _, err := os.Stat(p.config.DestPath); err == nil && !p.config.Force {
		p.logger.Debug("Simulator binary already present", map[string]interface{}{
			"path": p.config.DestPath,
		})
		return nil
	}

	if p.config.URL == "" {
		return fmt.Errorf("simulator binary not found at %s and no download URL configured", p.config.DestPath)
	}

	return p.Fetch(ctx)
}

// Fetch downloads the binary, retrying failed attempts on the fixed interval
func (p *Provisioner) Fetch(ctx context.Context) error {
	p.logger.Info("Provisioning simulator binary", map[string]interface{}{
		"url":  p.config.URL,
		"dest": p.config.DestPath,
	})

	attempt := 0
	err := retry.Do(ctx, retry.FixedInterval(p.config.RetryInterval), func() error {
		attempt++
		if err := p.download(ctx); err != nil {
			p.logger.Warn("Simulator download failed, will retry", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
				"wait":    p.config.RetryInterval.String(),
			})
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to provision simulator binary: %w", err)
	}

	p.logger.Info("Simulator binary provisioned", map[string]interface{}{
		"path":     p.config.DestPath,
		"attempts": attempt,
	})
	return nil
}

// download performs one download attempt: stream to a temp file next to the
// destination, verify the digest, chmod 0755 and rename into place.
func (p *Provisioner) download(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("download binary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download returned %d", resp.StatusCode)
	}

	destDir := filepath.Dir(p.config.DestPath)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	// Temp file in the destination directory so the final rename is atomic
	tmpFile, err := os.CreateTemp(destDir, ".simswarm-fetch-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmpFile, hasher), resp.Body); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if p.config.SHA256 != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		want := strings.ToLower(p.config.SHA256)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}

	if err := os.Chmod(tmpPath, 0755); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, p.config.DestPath); err != nil {
		return fmt.Errorf("install binary: %w", err)
	}

	return nil
}
