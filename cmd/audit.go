package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/terralens/audit-cli/internal/audit"
)

var (
	auditLat   float64
	auditLng   float64
	auditState string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run a single audit for a coordinate",
	Long:  "Fuses telemetry for the coordinate, scores change against the lookback baseline, evaluates legal status and anchors evidence. Progress streams to stdout; the final result is printed as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req := audit.Request{Lat: auditLat, Lng: auditLng, StateCode: auditState}
		if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lng") {
			h, ok := audit.HotspotFor(auditState)
			if !ok {
				return eris.New("either --lat/--lng or a --state with a preset hotspot is required")
			}
			req.Lat, req.Lng = h.Lat, h.Lng
			fmt.Fprintf(os.Stderr, "Using hotspot %q (%.4f, %.4f)\n", h.Name, h.Lat, h.Lng)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Orchestrator.Run(ctx, req, func(line string) {
			fmt.Fprintln(os.Stderr, line)
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	auditCmd.Flags().Float64Var(&auditLat, "lat", 0, "latitude of the audit point")
	auditCmd.Flags().Float64Var(&auditLng, "lng", 0, "longitude of the audit point")
	auditCmd.Flags().StringVar(&auditState, "state", "", "jurisdiction code (e.g. DELHI, UP)")
	rootCmd.AddCommand(auditCmd)
}
