package capacity

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// ServerDetectionMinThreads is the minimum CPU threads for server classification
	ServerDetectionMinThreads = 16
	// ServerDetectionMinRAMGB is the minimum RAM in GB for server classification
	ServerDetectionMinRAMGB = 32
	// HPCDetectionMinThreads is the minimum CPU threads for HPC classification
	HPCDetectionMinThreads = 64

	// DefaultCoresPerInstance is the assumed core footprint of one simulator instance
	DefaultCoresPerInstance = 2
)

// NodeType represents the class of host the supervisor runs on
type NodeType string

const (
	NodeTypeLaptop  NodeType = "laptop"
	NodeTypeDesktop NodeType = "desktop"
	NodeTypeServer  NodeType = "server"
	NodeTypeHPC     NodeType = "hpc"
)

// Hardware describes the detected host hardware
type Hardware struct {
	CPUModel   string `json:"cpu_model" yaml:"cpu_model"`
	CPUThreads int    `json:"cpu_threads" yaml:"cpu_threads"`
	RAMBytes   uint64 `json:"ram_bytes" yaml:"ram_bytes"`
	OS         string `json:"os" yaml:"os"`
	Arch       string `json:"arch" yaml:"arch"`
}

// Plan is the computed supervision plan for this host
type Plan struct {
	Hardware         Hardware `json:"hardware" yaml:"hardware"`
	NodeType         NodeType `json:"node_type" yaml:"node_type"`
	CoresPerInstance int      `json:"cores_per_instance" yaml:"cores_per_instance"`
	Slots            int      `json:"slots" yaml:"slots"`
	Rationale        string   `json:"rationale" yaml:"rationale"`
}

// DetectHardware detects CPU and RAM of the current host via gopsutil,
// falling back to runtime values when the platform probes fail
func DetectHardware() Hardware {
	hw := Hardware{
		CPUModel:   "Unknown",
		CPUThreads: runtime.NumCPU(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}

	if threads, err := cpu.Counts(true); err == nil && threads > 0 {
		hw.CPUThreads = threads
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		if model := strings.TrimSpace(infos[0].ModelName); model != "" {
			hw.CPUModel = model
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		hw.RAMBytes = vm.Total
	}

	return hw
}

// DetectNodeType determines the node type based on hardware characteristics
func DetectNodeType(cpuThreads int, ramBytes uint64) NodeType {
	if hasLaptopBattery() {
		return NodeTypeLaptop
	}

	ramGB := float64(ramBytes) / (1024 * 1024 * 1024)

	if cpuThreads >= HPCDetectionMinThreads {
		return NodeTypeHPC
	}
	if cpuThreads > ServerDetectionMinThreads && ramGB > ServerDetectionMinRAMGB {
		return NodeTypeServer
	}

	return NodeTypeDesktop
}

func hasLaptopBattery() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	entries, err := os.ReadDir("/sys/class/power_supply")
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if strings.Contains(strings.ToUpper(entry.Name()), "BAT") {
			return true
		}
	}
	return false
}

// ComputeSlots returns the number of supervision slots for the given thread
// count. Capacity is integer division; maxInstances caps the result when > 0.
// Returns an error when the host cannot fit a single instance.
func ComputeSlots(cpuThreads, coresPerInstance, maxInstances int) (int, error) {
	if coresPerInstance <= 0 {
		return 0, fmt.Errorf("cores-per-instance must be positive, got %d", coresPerInstance)
	}

	slots := cpuThreads / coresPerInstance
	if slots < 1 {
		return 0, fmt.Errorf("insufficient cores: %d threads cannot fit one instance of %d cores",
			cpuThreads, coresPerInstance)
	}

	if maxInstances > 0 && slots > maxInstances {
		slots = maxInstances
	}

	return slots, nil
}

// BuildPlan detects hardware and computes the full supervision plan
func BuildPlan(coresPerInstance, maxInstances int) (*Plan, error) {
	hw := DetectHardware()

	slots, err := ComputeSlots(hw.CPUThreads, coresPerInstance, maxInstances)
	if err != nil {
		return nil, err
	}

	nodeType := DetectNodeType(hw.CPUThreads, hw.RAMBytes)

	capText := "uncapped"
	if maxInstances > 0 {
		capText = fmt.Sprintf("capped at %d", maxInstances)
	}
	rationale := fmt.Sprintf(
		"%d CPU threads / %d cores per instance = %d slots (%s, node type: %s, RAM: %s)",
		hw.CPUThreads, coresPerInstance, slots, capText, nodeType, FormatRAM(hw.RAMBytes))

	return &Plan{
		Hardware:         hw,
		NodeType:         nodeType,
		CoresPerInstance: coresPerInstance,
		Slots:            slots,
		Rationale:        rationale,
	}, nil
}

// FormatRAM formats RAM bytes to human-readable string
func FormatRAM(bytes uint64) string {
	gb := float64(bytes) / (1024 * 1024 * 1024)
	return fmt.Sprintf("%.1f GB", gb)
}
