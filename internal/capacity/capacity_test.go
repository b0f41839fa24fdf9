package capacity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSlots(t *testing.T) {
	tests := []struct {
		desc             string
		cpuThreads       int
		coresPerInstance int
		maxInstances     int
		expected         int
		expectErr        bool
	}{
		{"even division", 8, 2, 0, 4, false},
		{"integer division truncates", 7, 2, 0, 3, false},
		{"single slot", 2, 2, 0, 1, false},
		{"threads below footprint", 1, 2, 0, 0, true},
		{"zero threads", 0, 2, 0, 0, true},
		{"cap applies", 32, 2, 4, 4, false},
		{"cap above capacity is ignored", 8, 2, 100, 4, false},
		{"cap of zero means uncapped", 16, 2, 0, 8, false},
		{"one core per instance", 8, 1, 0, 8, false},
		{"invalid cores per instance", 8, 0, 0, 0, true},
		{"negative cores per instance", 8, -1, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			slots, err := ComputeSlots(tt.cpuThreads, tt.coresPerInstance, tt.maxInstances)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, slots)
		})
	}
}

func TestDetectNodeType(t *testing.T) {
	gb := uint64(1024 * 1024 * 1024)

	tests := []struct {
		desc       string
		cpuThreads int
		ramBytes   uint64
		expected   NodeType
	}{
		{"small desktop", 8, 16 * gb, NodeTypeDesktop},
		{"many threads but little RAM", 24, 16 * gb, NodeTypeDesktop},
		{"server", 24, 64 * gb, NodeTypeServer},
		{"hpc by thread count", 128, 512 * gb, NodeTypeHPC},
		{"boundary threads not server", 16, 64 * gb, NodeTypeDesktop},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if hasLaptopBattery() {
				t.Skip("host has a battery, classification is forced to laptop")
			}
			assert.Equal(t, tt.expected, DetectNodeType(tt.cpuThreads, tt.ramBytes))
		})
	}
}

func TestDetectHardware(t *testing.T) {
	hw := DetectHardware()

	assert.Greater(t, hw.CPUThreads, 0)
	assert.NotEmpty(t, hw.OS)
	assert.NotEmpty(t, hw.Arch)
}

func TestBuildPlan(t *testing.T) {
	plan, err := BuildPlan(1, 2)
	require.NoError(t, err)

	assert.LessOrEqual(t, plan.Slots, 2)
	assert.GreaterOrEqual(t, plan.Slots, 1)
	assert.NotEmpty(t, plan.Rationale)
	assert.Equal(t, 1, plan.CoresPerInstance)
}

func TestFormatRAM(t *testing.T) {
	assert.Equal(t, "8.0 GB", FormatRAM(8*1024*1024*1024))
	assert.Equal(t, "0.5 GB", FormatRAM(512*1024*1024))
}
