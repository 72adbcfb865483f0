// Stagecraft orchestrates multi-stage development workflows: each stage
// scores competing execution flavors against live context and rules,
// runs the chosen ones, merges their outputs and learns from the
// outcome.
//
// Usage:
//
//	# Run a stage defined in a YAML file
//	stagecraft run --stage stage.yaml --bet-title "Add rate limiting"
//
//	# Show version information
//	stagecraft version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stagecraft",
	Short: "Stage orchestration engine for multi-flavor workflows",
	Long: `Stagecraft runs one workflow stage at a time: it scores candidate
flavors against the current context and rule set, selects and executes
the winners, synthesizes their outputs into a single stage artifact,
and records every decision it made along the way.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
