package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/terralens/audit-cli/internal/audit"
)

var (
	sweepState    string
	sweepRadiusKm float64
	sweepStepM    float64
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Audit a grid of points around a hotspot",
	Long:  "Runs concurrent audits over a grid centered on the preset hotspot for the given state, then bulk-persists the verified detections.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req := audit.SweepRequest{
			StateCode: sweepState,
			RadiusKm:  sweepRadiusKm,
			StepM:     sweepStepM,
		}
		summary, err := env.Orchestrator.Sweep(ctx, req, func(line string) {
			fmt.Fprintln(os.Stderr, line)
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepState, "state", "", "jurisdiction code with a preset hotspot (e.g. DELHI, UP)")
	sweepCmd.Flags().Float64Var(&sweepRadiusKm, "radius-km", 1, "sweep radius around the hotspot")
	sweepCmd.Flags().Float64Var(&sweepStepM, "step-m", 250, "grid spacing in meters")
	_ = sweepCmd.MarkFlagRequired("state")
	rootCmd.AddCommand(sweepCmd)
}
