package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/simswarm/simswarm/internal/capacity"
	"github.com/simswarm/simswarm/internal/history"
	"github.com/simswarm/simswarm/internal/metrics"
	"github.com/simswarm/simswarm/internal/provision"
	"github.com/simswarm/simswarm/internal/runlog"
	"github.com/simswarm/simswarm/internal/runner"
	"github.com/simswarm/simswarm/internal/supervisor"
	"github.com/simswarm/simswarm/pkg/logging"
	"github.com/simswarm/simswarm/pkg/shutdown"
)

var (
	logDir             string
	binaryPath         string
	binaryArgs         []string
	timeoutHours       int
	coresPerInstance   int
	maxInstances       int
	binaryURL          string
	binarySHA256       string
	fetchRetryInterval time.Duration
	restartInterval    time.Duration
	historyDB          string
	metricsPort        int
	retentionDays      int
	logLevel           string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch and supervise simulator instances",
	Long: `Run computes the slot count from host CPU capacity, then starts one
supervision loop per slot. Each loop runs the simulator binary under a
timeout, writes its combined output to a per-run log file, appends an
exit-status line and restarts. The loops run until SIGINT or SIGTERM.

Example:
  simswarm run --binary-path /opt/sim/simulator --log-dir /var/log/simswarm/runs --timeout-hours 12
  simswarm run --binary-path ./sim --binary-url https://builds.example.com/sim-linux-amd64`,
	RunE: runSupervise,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&logDir, "log-dir", "logs", "Directory for per-run simulator logs")
	runCmd.Flags().StringVar(&binaryPath, "binary-path", "", "Path to the simulator binary (required)")
	runCmd.Flags().StringArrayVar(&binaryArgs, "binary-arg", nil, "Argument passed to the simulator (repeatable)")
	runCmd.Flags().IntVar(&timeoutHours, "timeout-hours", 24, "Wall-clock timeout per run in hours")
	runCmd.Flags().IntVar(&coresPerInstance, "cores-per-instance", capacity.DefaultCoresPerInstance, "CPU core footprint of one instance")
	runCmd.Flags().IntVar(&maxInstances, "max-instances", 0, "Cap on the computed slot count (0=uncapped)")
	runCmd.Flags().StringVar(&binaryURL, "binary-url", "", "HTTP source to auto-provision the binary from")
	runCmd.Flags().StringVar(&binarySHA256, "binary-sha256", "", "Expected SHA-256 of the downloaded binary (hex)")
	runCmd.Flags().DurationVar(&fetchRetryInterval, "fetch-retry-interval", provision.DefaultRetryInterval, "Fixed interval between failed download attempts")
	runCmd.Flags().DurationVar(&restartInterval, "restart-interval", supervisor.DefaultRestartInterval, "Minimum time between restarts per slot")
	runCmd.Flags().StringVar(&historyDB, "history-db", "simswarm-history.db", "Run history database path (empty disables history)")
	runCmd.Flags().IntVar(&metricsPort, "metrics-port", 9093, "Prometheus metrics port (0 disables metrics)")
	runCmd.Flags().IntVar(&retentionDays, "retention-days", 7, "Days to keep run logs (0 disables cleanup)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Supervisor log level (debug, info, warn, error)")

	viper.BindPFlag("log_dir", runCmd.Flags().Lookup("log-dir"))
	viper.BindPFlag("binary_path", runCmd.Flags().Lookup("binary-path"))
	viper.BindPFlag("timeout_hours", runCmd.Flags().Lookup("timeout-hours"))
	viper.BindPFlag("cores_per_instance", runCmd.Flags().Lookup("cores-per-instance"))
	viper.BindPFlag("max_instances", runCmd.Flags().Lookup("max-instances"))
	viper.BindPFlag("binary_url", runCmd.Flags().Lookup("binary-url"))
	viper.BindPFlag("history_db", runCmd.Flags().Lookup("history-db"))
	viper.BindPFlag("metrics_port", runCmd.Flags().Lookup("metrics-port"))
}

func validateRunArgs(binaryPath string, timeoutHours int) error {
	if binaryPath == "" {
		return fmt.Errorf("--binary-path is required")
	}
	if timeoutHours < 1 {
		return fmt.Errorf("--timeout-hours must be at least 1, got %d", timeoutHours)
	}
	return nil
}

func runSupervise(cmd *cobra.Command, args []string) error {
	// Config file values apply where the flag was not given
	logDir = viper.GetString("log_dir")
	binaryPath = viper.GetString("binary_path")
	timeoutHours = viper.GetInt("timeout_hours")
	coresPerInstance = viper.GetInt("cores_per_instance")
	maxInstances = viper.GetInt("max_instances")
	if binaryURL == "" {
		binaryURL = viper.GetString("binary_url")
	}
	historyDB = viper.GetString("history_db")
	metricsPort = viper.GetInt("metrics_port")

	if err := validateRunArgs(binaryPath, timeoutHours); err != nil {
		return err
	}

	plan, err := capacity.BuildPlan(coresPerInstance, maxInstances)
	if err != nil {
		return err
	}

	logger, err := logging.NewFileLogger("supervisor", logging.ParseLevel(logLevel), false)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	logger.Info("Starting simswarm")
	logger.Info(fmt.Sprintf("Plan: %s", plan.Rationale))

	logs, err := runlog.Open(logDir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := shutdown.New(30 * time.Second)
	go func() {
		mgr.Wait()
		cancel()
	}()

	// Binary must be present before the slots start
	prov := provision.New(provision.Config{
		URL:           binaryURL,
		DestPath:      binaryPath,
		SHA256:        binarySHA256,
		RetryInterval: fetchRetryInterval,
	}, logger)
	if err := prov.Ensure(ctx); err != nil {
		return err
	}

	var store *history.Store
	if historyDB != "" {
		store, err = history.Open(historyDB)
		if err != nil {
			return err
		}
		mgr.Register(shutdown.CloseResource(store, "history store"))
	}

	var exporter *metrics.Exporter
	if metricsPort > 0 {
		hostname, _ := os.Hostname()
		exporter = metrics.NewExporter(fmt.Sprintf("%s:%d", hostname, metricsPort), plan.Slots)
		server := metrics.NewServer(metricsPort, exporter)
		go func() {
			logger.Info(fmt.Sprintf("Metrics listening on :%d", metricsPort))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", map[string]interface{}{"error": err.Error()})
			}
		}()
		mgr.Register(shutdown.StopHTTPServer(server, "metrics"))
	}

	cleanup := runlog.NewCleanupManager(runlog.CleanupConfig{
		Enabled:         retentionDays > 0,
		RetentionDays:   retentionDays,
		CleanupInterval: 24 * time.Hour,
	}, logs, logger)
	cleanup.Start(ctx)

	r := runner.New(binaryPath, binaryArgs, time.Duration(timeoutHours)*time.Hour, logs)
	sup := supervisor.New(supervisor.Config{
		Slots:           plan.Slots,
		RestartInterval: restartInterval,
	}, r, store, exporter, logger)

	sup.Run(ctx)

	cleanup.Stop()
	mgr.Shutdown()
	return nil
}
