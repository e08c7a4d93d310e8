package change

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name          string
		current, past float64
		wantDeviation float64
		wantCandidate bool
	}{
		{"forty percent drop", 0.18, 0.30, 0.4, true},
		{"five percent drop", 0.285, 0.30, 0.05, false},
		{"exactly at threshold", 0.345, 0.30, 0.15, false},
		{"just over threshold", 0.3450001, 0.30, 0.15000003, true},
		{"zero baseline uses floor", 0.05, 0, 0.5, true},
		{"negative baseline", -12, -15, 0.2, true},
		{"no change", 0.30, 0.30, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(tt.current, tt.past)
			assert.InDelta(t, tt.wantDeviation, a.Deviation, 1e-6)
			assert.Equal(t, tt.wantCandidate, a.IsCandidate)
			assert.Equal(t, tt.current, a.Current)
			assert.Equal(t, tt.past, a.Past)
		})
	}
}

type scriptedClient struct {
	values []float64
	errAt  int // 1-based call index that fails; 0 = never
	calls  int
	asOfs  []time.Time
}

func (s *scriptedClient) Reading(ctx context.Context, lat, lng float64, kind model.SensorKind, asOf time.Time) (model.SensorReading, error) {
	s.calls++
	s.asOfs = append(s.asOfs, asOf)
	if s.errAt == s.calls {
		return model.SensorReading{}, eris.New("telemetry down")
	}
	return model.SensorReading{Kind: kind, Value: s.values[s.calls-1], Confidence: 1}, nil
}

func TestDetect(t *testing.T) {
	client := &scriptedClient{values: []float64{0.18, 0.30}}
	d := NewDetector(client)

	a := d.Detect(context.Background(), 28.65, 77.18, 30)
	assert.True(t, a.IsCandidate)
	assert.InDelta(t, 0.4, a.Deviation, 1e-9)

	// Second call looks back 30 days from the first.
	require.Len(t, client.asOfs, 2)
	assert.InDelta(t, 30*24.0, client.asOfs[0].Sub(client.asOfs[1]).Hours(), 1)
}

func TestDetect_FailSafe(t *testing.T) {
	for _, errAt := range []int{1, 2} {
		client := &scriptedClient{values: []float64{0.18, 0.30}, errAt: errAt}
		a := NewDetector(client).Detect(context.Background(), 28.65, 77.18, 0)
		assert.False(t, a.IsCandidate, "fetch failure must never fail open")
		assert.Zero(t, a.Deviation)
	}
}
