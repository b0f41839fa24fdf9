package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/simswarm/simswarm/internal/capacity"
)

var (
	planCoresPerInstance int
	planMaxInstances     int
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the supervision plan for this host",
	Long: `Plan detects host hardware (CPU threads, RAM) and prints the slot count
the run command would use, together with the rationale. Capacity is integer
division: slots = CPU threads / cores per instance.`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().IntVar(&planCoresPerInstance, "cores-per-instance", capacity.DefaultCoresPerInstance, "CPU core footprint of one instance")
	planCmd.Flags().IntVar(&planMaxInstances, "max-instances", 0, "Cap on the computed slot count (0=uncapped)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	plan, err := capacity.BuildPlan(planCoresPerInstance, planMaxInstances)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if IsYAMLOutput() {
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(plan)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("CPU", "Threads", "RAM", "Node Type", "Cores/Instance", "Slots")
	table.Append(
		plan.Hardware.CPUModel,
		fmt.Sprintf("%d", plan.Hardware.CPUThreads),
		capacity.FormatRAM(plan.Hardware.RAMBytes),
		string(plan.NodeType),
		fmt.Sprintf("%d", plan.CoresPerInstance),
		fmt.Sprintf("%d", plan.Slots),
	)
	table.Render()

	fmt.Println()
	fmt.Printf("Rationale: %s\n", plan.Rationale)
	return nil
}
