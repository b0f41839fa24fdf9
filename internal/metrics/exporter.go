package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/simswarm/simswarm/internal/runner"
)

// Exporter exports Prometheus metrics for the supervisor
type Exporter struct {
	nodeID    string
	startTime time.Time

	mu              sync.RWMutex
	slots           int
	activeRuns      int
	runsTotal       map[runner.Outcome]int64
	restartsTotal   int64
	lastRunDuration map[int]float64 // slot -> seconds

	// Host metrics, refreshed on scrape
	cpuUsage    float64
	memoryUsed  uint64
	memoryTotal uint64

	registry    *promclient.Registry
	runDuration *promclient.HistogramVec
}

// NewExporter creates a new Prometheus exporter for the supervisor
func NewExporter(nodeID string, slots int) *Exporter {
	registry := promclient.NewRegistry()

	runDuration := promclient.NewHistogramVec(
		promclient.HistogramOpts{
			Name:    "simswarm_run_duration_seconds",
			Help:    "Duration of simulator run attempts",
			Buckets: promclient.ExponentialBuckets(1, 4, 10),
		},
		[]string{"outcome"},
	)
	registry.MustRegister(runDuration)

	return &Exporter{
		nodeID:          nodeID,
		startTime:       time.Now(),
		slots:           slots,
		runsTotal:       make(map[runner.Outcome]int64),
		lastRunDuration: make(map[int]float64),
		registry:        registry,
		runDuration:     runDuration,
	}
}

// RecordResult records a finished run attempt
func (e *Exporter) RecordResult(result *runner.Result) {
	e.mu.Lock()
	e.runsTotal[result.Outcome]++
	e.lastRunDuration[result.Slot] = result.Duration.Seconds()
	e.mu.Unlock()

	e.runDuration.WithLabelValues(string(result.Outcome)).Observe(result.Duration.Seconds())
}

// RecordRestart records one slot loop restart
func (e *Exporter) RecordRestart() {
	e.mu.Lock()
	e.restartsTotal++
	e.mu.Unlock()
}

// RunStarted marks one attempt as in flight
func (e *Exporter) RunStarted() {
	e.mu.Lock()
	e.activeRuns++
	e.mu.Unlock()
}

// RunFinished marks one attempt as done
func (e *Exporter) RunFinished() {
	e.mu.Lock()
	e.activeRuns--
	e.mu.Unlock()
}

func (e *Exporter) updateHostMetrics() {
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		e.mu.Lock()
		e.cpuUsage = percents[0]
		e.mu.Unlock()
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		e.mu.Lock()
		e.memoryUsed = vm.Used
		e.memoryTotal = vm.Total
		e.mu.Unlock()
	}
}

// ServeHTTP serves Prometheus-compatible metrics at /metrics
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	e.updateHostMetrics()

	e.mu.RLock()

	fmt.Fprintf(w, "# HELP simswarm_uptime_seconds Time since the supervisor started\n")
	fmt.Fprintf(w, "# TYPE simswarm_uptime_seconds gauge\n")
	fmt.Fprintf(w, "simswarm_uptime_seconds{node_id=\"%s\"} %d\n", e.nodeID, int64(time.Since(e.startTime).Seconds()))

	fmt.Fprintf(w, "\n# HELP simswarm_slots Number of supervision slots\n")
	fmt.Fprintf(w, "# TYPE simswarm_slots gauge\n")
	fmt.Fprintf(w, "simswarm_slots{node_id=\"%s\"} %d\n", e.nodeID, e.slots)

	fmt.Fprintf(w, "\n# HELP simswarm_active_runs Simulator attempts currently in flight\n")
	fmt.Fprintf(w, "# TYPE simswarm_active_runs gauge\n")
	fmt.Fprintf(w, "simswarm_active_runs{node_id=\"%s\"} %d\n", e.nodeID, e.activeRuns)

	fmt.Fprintf(w, "\n# HELP simswarm_runs_total Total simulator run attempts by outcome\n")
	fmt.Fprintf(w, "# TYPE simswarm_runs_total counter\n")
	for _, outcome := range []runner.Outcome{runner.OutcomeSuccess, runner.OutcomeTimeout, runner.OutcomeFailed, runner.OutcomeStartError} {
		fmt.Fprintf(w, "simswarm_runs_total{node_id=\"%s\",outcome=\"%s\"} %d\n", e.nodeID, outcome, e.runsTotal[outcome])
	}

	fmt.Fprintf(w, "\n# HELP simswarm_restarts_total Total slot loop restarts\n")
	fmt.Fprintf(w, "# TYPE simswarm_restarts_total counter\n")
	fmt.Fprintf(w, "simswarm_restarts_total{node_id=\"%s\"} %d\n", e.nodeID, e.restartsTotal)

	fmt.Fprintf(w, "\n# HELP simswarm_last_run_duration_seconds Duration of the most recent attempt per slot\n")
	fmt.Fprintf(w, "# TYPE simswarm_last_run_duration_seconds gauge\n")
	for slot, seconds := range e.lastRunDuration {
		fmt.Fprintf(w, "simswarm_last_run_duration_seconds{node_id=\"%s\",slot=\"%d\"} %.3f\n", e.nodeID, slot, seconds)
	}

	fmt.Fprintf(w, "\n# HELP simswarm_host_cpu_usage Host CPU usage percentage (0-100)\n")
	fmt.Fprintf(w, "# TYPE simswarm_host_cpu_usage gauge\n")
	fmt.Fprintf(w, "simswarm_host_cpu_usage{node_id=\"%s\"} %.2f\n", e.nodeID, e.cpuUsage)

	fmt.Fprintf(w, "\n# HELP simswarm_host_memory_used_bytes Host memory in use\n")
	fmt.Fprintf(w, "# TYPE simswarm_host_memory_used_bytes gauge\n")
	fmt.Fprintf(w, "simswarm_host_memory_used_bytes{node_id=\"%s\"} %d\n", e.nodeID, e.memoryUsed)

	fmt.Fprintf(w, "\n# HELP simswarm_host_memory_total_bytes Host memory total\n")
	fmt.Fprintf(w, "# TYPE simswarm_host_memory_total_bytes gauge\n")
	fmt.Fprintf(w, "simswarm_host_memory_total_bytes{node_id=\"%s\"} %d\n", e.nodeID, e.memoryTotal)

	e.mu.RUnlock()

	// Append the registry-backed metrics (histograms with labels)
	fmt.Fprintf(w, "\n")

	metricFamilies, err := e.registry.Gather()
	if err != nil {
		fmt.Fprintf(w, "# Error gathering Prometheus metrics: %v\n", err)
		return
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding metric %s: %v\n", mf.GetName(), err)
		}
	}

	w.Write(buf.Bytes())
}
