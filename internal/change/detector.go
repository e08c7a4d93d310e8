// Package change scores the optical deviation between a current and a
// historical reading of the same point.
package change

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/model"
	"github.com/terralens/audit-cli/pkg/sentinel"
)

const (
	// DeviationThreshold is the relative-change bar for a violation
	// candidate. Strictly greater-than: 0.15 exactly is not a candidate.
	DeviationThreshold = 0.15

	// baselineFloor keeps the ratio stable when the historical value sits
	// near zero.
	baselineFloor = 0.1

	// DefaultLookbackDays separates the current and reference acquisitions.
	DefaultLookbackDays = 30
)

// Detector compares present and past optical readings.
type Detector struct {
	client sentinel.Client
	now    func() time.Time
}

// NewDetector creates a change detector over a telemetry client.
func NewDetector(client sentinel.Client) *Detector {
	return &Detector{client: client, now: time.Now}
}

// Detect fetches the current and lookback readings and scores the deviation.
// Fail-safe: any fetch failure yields a zero-deviation non-candidate rather
// than an error, since a broken feed must never read as a violation.
func (d *Detector) Detect(ctx context.Context, lat, lng float64, lookbackDays int) model.ChangeAssessment {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}

	now := d.now()

	current, err := d.client.Reading(ctx, lat, lng, model.SensorOptical, now)
	if err != nil {
		zap.L().Warn("change: current reading failed, assuming no change", zap.Error(err))
		return model.ChangeAssessment{}
	}

	past, err := d.client.Reading(ctx, lat, lng, model.SensorOptical, now.AddDate(0, 0, -lookbackDays))
	if err != nil {
		zap.L().Warn("change: reference reading failed, assuming no change", zap.Error(err))
		return model.ChangeAssessment{}
	}

	return Assess(current.Value, past.Value)
}

// Assess computes the relative deviation between two scalars and classifies
// it against DeviationThreshold.
func Assess(current, past float64) model.ChangeAssessment {
	deviation := math.Abs(current-past) / math.Max(math.Abs(past), baselineFloor)
	return model.ChangeAssessment{
		Deviation:   deviation,
		IsCandidate: deviation > DeviationThreshold,
		Current:     current,
		Past:        past,
	}
}
