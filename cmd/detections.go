package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/anchor"
	"github.com/terralens/audit-cli/internal/model"
	"github.com/terralens/audit-cli/internal/report"
	"github.com/terralens/audit-cli/internal/store"
)

var (
	detectionsStatus string
	detectionsSince  string
	detectionsLimit  int
	detectionsOut    string
)

var detectionsCmd = &cobra.Command{
	Use:   "detections",
	Short: "Inspect persisted detections",
}

var detectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List detections as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		filter, err := detectionFilter()
		if err != nil {
			return err
		}
		dets, err := st.ListDetections(ctx, filter)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(dets)
	},
}

var detectionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export detections as an XLSX evidence manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		filter, err := detectionFilter()
		if err != nil {
			return err
		}
		dets, err := st.ListDetections(ctx, filter)
		if err != nil {
			return err
		}

		if err := report.WriteManifest(dets, detectionsOut); err != nil {
			return err
		}
		zap.L().Info("manifest written",
			zap.String("path", detectionsOut),
			zap.Int("detections", len(dets)),
		)
		return nil
	},
}

var detectionsAnchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Re-anchor pending detections whose ledger submission never landed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		dets, err := st.ListDetections(ctx, store.DetectionFilter{
			Status: model.StatusPending,
			Limit:  detectionsLimit,
		})
		if err != nil {
			return err
		}

		anchorer := anchor.New(initLedger())
		var anchored, failed int
		for _, d := range dets {
			if d.TxHash != "" {
				continue
			}
			receipt, err := anchorer.Resubmit(ctx, d.Evidence.Hash)
			if err != nil {
				zap.L().Error("re-anchor failed", zap.String("detection_id", d.ID), zap.Error(err))
				failed++
				continue
			}
			if err := st.MarkAnchored(ctx, d.ID, receipt.TxHash); err != nil {
				zap.L().Error("mark anchored failed", zap.String("detection_id", d.ID), zap.Error(err))
				failed++
				continue
			}
			fmt.Printf("%s -> %s\n", d.ID, receipt.TxHash)
			anchored++
		}

		zap.L().Info("re-anchor complete", zap.Int("anchored", anchored), zap.Int("failed", failed))
		if failed > 0 {
			return eris.Errorf("%d detection(s) could not be re-anchored", failed)
		}
		return nil
	},
}

func detectionFilter() (store.DetectionFilter, error) {
	filter := store.DetectionFilter{
		Status: model.DetectionStatus(detectionsStatus),
		Limit:  detectionsLimit,
	}
	if detectionsSince != "" {
		since, err := time.Parse("2006-01-02", detectionsSince)
		if err != nil {
			return filter, eris.Wrapf(err, "parse --since %q", detectionsSince)
		}
		filter.Since = since
	}
	return filter, nil
}

func init() {
	for _, c := range []*cobra.Command{detectionsListCmd, detectionsExportCmd} {
		c.Flags().StringVar(&detectionsStatus, "status", "", "filter by status (VERIFIED, IGNORED, PENDING)")
		c.Flags().StringVar(&detectionsSince, "since", "", "only detections on or after this date (YYYY-MM-DD)")
		c.Flags().IntVar(&detectionsLimit, "limit", 100, "maximum rows")
	}
	detectionsExportCmd.Flags().StringVar(&detectionsOut, "out", "detections.xlsx", "output file path")
	detectionsAnchorCmd.Flags().IntVar(&detectionsLimit, "limit", 100, "maximum rows to scan")

	detectionsCmd.AddCommand(detectionsListCmd, detectionsExportCmd, detectionsAnchorCmd)
	rootCmd.AddCommand(detectionsCmd)
}
