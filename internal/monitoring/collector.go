package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/terralens/audit-cli/internal/model"
	"github.com/terralens/audit-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of detection activity.
type MetricsSnapshot struct {
	// Detection metrics (within lookback window).
	DetectionTotal    int     `json:"detection_total"`
	DetectionVerified int     `json:"detection_verified"`
	DetectionIgnored  int     `json:"detection_ignored"`
	ViolationRate     float64 `json:"violation_rate"`
	CriticalCount     int     `json:"critical_count"`
	AvgConfidence     float64 `json:"avg_confidence"`

	// Confirmed violations whose ledger submission has not landed yet.
	AnchorBacklog int `json:"anchor_backlog"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the detection store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of detection metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	dets, err := c.store.ListDetections(ctx, store.DetectionFilter{
		Since: cutoff,
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list detections")
	}

	snap.DetectionTotal = len(dets)
	var totalConfidence float64

	for _, d := range dets {
		totalConfidence += d.Confidence
		switch d.Status {
		case model.StatusVerified, model.StatusPending:
			snap.DetectionVerified++
			if d.TxHash == "" {
				snap.AnchorBacklog++
			}
		case model.StatusIgnored:
			snap.DetectionIgnored++
		}
		if d.Verdict.Severity == model.SeverityCritical {
			snap.CriticalCount++
		}
	}

	if snap.DetectionTotal > 0 {
		snap.ViolationRate = float64(snap.DetectionVerified) / float64(snap.DetectionTotal)
		snap.AvgConfidence = totalConfidence / float64(snap.DetectionTotal)
	}

	return snap, nil
}
