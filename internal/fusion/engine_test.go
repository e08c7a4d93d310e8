package fusion

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

type fakeClient struct {
	values map[model.SensorKind]float64
	errs   map[model.SensorKind]error
}

func (f *fakeClient) Reading(ctx context.Context, lat, lng float64, kind model.SensorKind, asOf time.Time) (model.SensorReading, error) {
	if err := f.errs[kind]; err != nil {
		return model.SensorReading{}, err
	}
	return model.SensorReading{
		ID:         "r-" + string(kind),
		Kind:       kind,
		Value:      f.values[kind],
		Unit:       kind.Unit(),
		Timestamp:  asOf,
		Confidence: 1.0,
	}, nil
}

func TestFuse(t *testing.T) {
	client := &fakeClient{values: map[model.SensorKind]float64{
		model.SensorSAR:     -7.2,
		model.SensorOptical: 0.41,
	}}
	e := NewEngine(client)

	scene, err := e.Fuse(context.Background(), 28.545, 77.300, "DELHI")
	require.NoError(t, err)

	assert.Equal(t, 28.545, scene.Lat)
	assert.Equal(t, 77.300, scene.Lng)
	assert.Equal(t, "DELHI", scene.StateCode)
	assert.Equal(t, model.SensorSAR, scene.Radar.Kind)
	assert.Equal(t, model.SensorOptical, scene.Optical.Kind)
	assert.Equal(t, -7.2, scene.Radar.Value)
	assert.Equal(t, 0.41, scene.Optical.Value)
	assert.GreaterOrEqual(t, scene.CoRegistration, 0.98)
	assert.LessOrEqual(t, scene.CoRegistration, 1.0)
	assert.NotEmpty(t, scene.ID)
}

func TestFuse_EitherFailureAborts(t *testing.T) {
	for _, kind := range []model.SensorKind{model.SensorSAR, model.SensorOptical} {
		t.Run(string(kind), func(t *testing.T) {
			client := &fakeClient{
				values: map[model.SensorKind]float64{model.SensorSAR: -7, model.SensorOptical: 0.4},
				errs:   map[model.SensorKind]error{kind: eris.New("no usable credential")},
			}
			_, err := NewEngine(client).Fuse(context.Background(), 28.5, 77.3, "")
			require.Error(t, err)
		})
	}
}
