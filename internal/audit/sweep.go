package audit

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/terralens/audit-cli/internal/model"
)

// SweepRequest audits a grid of points around a hotspot.
type SweepRequest struct {
	StateCode string  `json:"state_code"`
	RadiusKm  float64 `json:"radius_km"`
	StepM     float64 `json:"step_m"`
}

// SweepSummary aggregates the outcomes of one sweep.
type SweepSummary struct {
	Hotspot   string            `json:"hotspot"`
	Points    int               `json:"points"`
	Verified  int               `json:"verified"`
	Ignored   int               `json:"ignored"`
	Failed    int               `json:"failed"`
	Persisted int64             `json:"persisted"`
	Results   []model.Detection `json:"detections,omitempty"`
}

// Sweep audits every grid point around the hotspot for req.StateCode, at most
// maxConcurrency audits in flight. Individual point failures are counted, not
// fatal. Verified detections are bulk-inserted at the end instead of one row
// per audit.
func (o *Orchestrator) Sweep(ctx context.Context, req SweepRequest, sink Sink) (*SweepSummary, error) {
	if sink == nil {
		sink = NopSink
	}

	hotspot, ok := HotspotFor(req.StateCode)
	if !ok {
		return nil, eris.Errorf("audit: no hotspot for state code %q", req.StateCode)
	}
	if req.RadiusKm <= 0 {
		req.RadiusKm = 1
	}
	if req.StepM <= 0 {
		req.StepM = 250
	}

	points := gridPoints(hotspot.Lat, hotspot.Lng, req.RadiusKm, req.StepM)
	sink(fmt.Sprintf("Sweeping %s: %d grid points within %.1f km", hotspot.Name, len(points), req.RadiusKm))

	summary := &SweepSummary{Hotspot: hotspot.Name, Points: len(points)}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrency)

	for _, p := range points {
		p := p
		g.Go(func() error {
			res, det, err := o.run(gCtx, Request{Lat: p[0], Lng: p[1], StateCode: req.StateCode}, NopSink, false)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Failed++
				sink(fmt.Sprintf("Point (%.4f, %.4f) failed: %v", p[0], p[1], err))
			case res.State == StateVerified:
				summary.Verified++
				summary.Results = append(summary.Results, *det)
			default:
				summary.Ignored++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "audit: sweep aborted")
	}

	if o.store != nil && len(summary.Results) > 0 {
		n, err := o.store.InsertDetections(ctx, summary.Results)
		if err != nil {
			zap.L().Error("sweep persistence failed", zap.Error(err))
			sink("Warning: sweep detections could not be persisted")
		} else {
			summary.Persisted = n
			sink(fmt.Sprintf("Persisted %d detections", n))
		}
	}

	zap.L().Info("sweep complete",
		zap.String("hotspot", hotspot.Name),
		zap.Int("points", summary.Points),
		zap.Int("verified", summary.Verified),
		zap.Int("ignored", summary.Ignored),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// gridPoints returns (lat, lng) pairs on a square grid clipped to the radius.
func gridPoints(centerLat, centerLng, radiusKm, stepM float64) [][2]float64 {
	radiusM := radiusKm * 1000
	latStep := stepM / 111_320
	lngStep := stepM / (111_320 * math.Cos(centerLat*math.Pi/180))

	var out [][2]float64
	steps := int(radiusM / stepM)
	for i := -steps; i <= steps; i++ {
		for j := -steps; j <= steps; j++ {
			dx := float64(j) * stepM
			dy := float64(i) * stepM
			if math.Hypot(dx, dy) > radiusM {
				continue
			}
			out = append(out, [2]float64{centerLat + float64(i)*latStep, centerLng + float64(j)*lngStep})
		}
	}
	return out
}
