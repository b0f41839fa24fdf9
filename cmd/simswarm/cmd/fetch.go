package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/simswarm/simswarm/internal/provision"
	"github.com/simswarm/simswarm/pkg/logging"
)

var (
	fetchBinaryPath   string
	fetchBinaryURL    string
	fetchBinarySHA256 string
	fetchInterval     time.Duration
	fetchForce        bool
	fetchLogLevel     string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and install the simulator binary",
	Long: `Fetch downloads the simulator binary from the configured HTTP source and
installs it atomically at the target path. Download failures are retried on
a fixed interval until success or interrupt.

Example:
  simswarm fetch --binary-url https://builds.example.com/sim-linux-amd64 --binary-path /opt/sim/simulator`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchBinaryPath, "binary-path", "", "Installation path for the binary (required)")
	fetchCmd.Flags().StringVar(&fetchBinaryURL, "binary-url", "", "HTTP source to download from (required)")
	fetchCmd.Flags().StringVar(&fetchBinarySHA256, "binary-sha256", "", "Expected SHA-256 of the payload (hex)")
	fetchCmd.Flags().DurationVar(&fetchInterval, "fetch-retry-interval", provision.DefaultRetryInterval, "Fixed interval between failed attempts")
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "Re-download even when the binary already exists")
	fetchCmd.Flags().StringVar(&fetchLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fetchCmd.MarkFlagRequired("binary-path")
	fetchCmd.MarkFlagRequired("binary-url")
}

func runFetch(cmd *cobra.Command, args []string) error {
	logger := logging.NewLogger(logging.ParseLevel(fetchLogLevel), false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, giving up on download")
		cancel()
	}()

	prov := provision.New(provision.Config{
		URL:           fetchBinaryURL,
		DestPath:      fetchBinaryPath,
		SHA256:        fetchBinarySHA256,
		RetryInterval: fetchInterval,
		Force:         fetchForce,
	}, logger)

	return prov.Ensure(ctx)
}
