package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/anchor"
	"github.com/terralens/audit-cli/internal/catalog"
	"github.com/terralens/audit-cli/internal/change"
	"github.com/terralens/audit-cli/internal/fusion"
	"github.com/terralens/audit-cli/internal/law"
	"github.com/terralens/audit-cli/internal/model"
	"github.com/terralens/audit-cli/internal/store"
	"github.com/terralens/audit-cli/pkg/ledger"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// scriptedSensors serves current readings for fusion and a distinct optical
// baseline for any lookback request older than a day.
type scriptedSensors struct {
	sar         float64
	optical     float64
	opticalPast float64
}

func (s *scriptedSensors) Reading(ctx context.Context, lat, lng float64, kind model.SensorKind, asOf time.Time) (model.SensorReading, error) {
	value := s.sar
	if kind == model.SensorOptical {
		value = s.optical
		if time.Since(asOf) > 24*time.Hour {
			value = s.opticalPast
		}
	}
	return model.SensorReading{
		Kind:       kind,
		Value:      value,
		Unit:       kind.Unit(),
		Timestamp:  asOf,
		Source:     "test",
		Confidence: 0.9,
	}, nil
}

func newTestOrchestrator(t *testing.T, sensors *scriptedSensors, opts ...Option) *Orchestrator {
	t.Helper()
	cat, err := catalog.LoadDefault()
	require.NoError(t, err)
	rules, err := law.DefaultRules()
	require.NoError(t, err)

	anchorer := anchor.New(ledger.NewSimulator(time.Millisecond))
	return NewOrchestrator(
		fusion.NewEngine(sensors),
		change.NewDetector(sensors),
		law.NewEngine(cat, rules),
		anchorer,
		opts...,
	)
}

func TestRun_NoChangeDetected(t *testing.T) {
	// 5% optical deviation, point far from any protected zone.
	sensors := &scriptedSensors{sar: -15, optical: 0.285, opticalPast: 0.30}
	o := newTestOrchestrator(t, sensors)

	var lines []string
	res, err := o.Run(context.Background(), Request{Lat: 28.40, Lng: 76.90}, func(l string) { lines = append(lines, l) })
	require.NoError(t, err)

	assert.Equal(t, StateIgnored, res.State)
	assert.Equal(t, model.StatusIgnored, res.Status)
	assert.Equal(t, MsgNoChange, res.Message)
	assert.Nil(t, res.Verdict)
	assert.Contains(t, strings.Join(lines, "\n"), MsgNoChange)
}

func TestRun_UnregulatedZone(t *testing.T) {
	// 40% deviation but the point is outside every zone and buffer.
	sensors := &scriptedSensors{sar: -15, optical: 0.18, opticalPast: 0.30}
	o := newTestOrchestrator(t, sensors)

	res, err := o.Run(context.Background(), Request{Lat: 28.40, Lng: 76.90}, nil)
	require.NoError(t, err)

	assert.Equal(t, StateIgnored, res.State)
	assert.Equal(t, MsgUnregulated, res.Message)
	require.NotNil(t, res.Verdict)
	assert.False(t, res.Verdict.IsViolation)
	assert.Equal(t, "Unregulated Zone", res.Verdict.Zone)
}

func TestRun_VerifiedInsideForestZone(t *testing.T) {
	sensors := &scriptedSensors{sar: -15, optical: 0.18, opticalPast: 0.30}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	defer st.Close()

	o := newTestOrchestrator(t, sensors, WithStore(st))

	var lines []string
	res, err := o.Run(context.Background(), Request{Lat: 28.65, Lng: 77.18}, func(l string) { lines = append(lines, l) })
	require.NoError(t, err)

	assert.Equal(t, StateVerified, res.State)
	assert.Equal(t, model.StatusVerified, res.Status)
	require.NotNil(t, res.Verdict)
	assert.Equal(t, "Indian Forest Act, 1927", res.Verdict.Law)
	assert.Equal(t, "Delhi Ridge Reserved Forest", res.Verdict.Zone)
	require.NotNil(t, res.Evidence)
	assert.True(t, strings.HasPrefix(res.Evidence.Hash, "0x"))
	require.NotNil(t, res.Receipt)
	assert.NotEmpty(t, res.Receipt.TxHash)
	assert.NotEmpty(t, res.DetectionID)

	// The hash is computed over the scene capture time, so it recomputes
	// from the detection record alone.
	assert.Equal(t, res.Scene.Timestamp.UnixMilli(), res.Evidence.TimestampMs)
	confidence := (res.Scene.Radar.Confidence + res.Scene.Optical.Confidence) / 2
	recomputed := anchor.Fingerprint(res.Scene.Lat, res.Scene.Lng, res.Scene.Timestamp.UnixMilli(), *res.Verdict, confidence)
	assert.Equal(t, res.Evidence.Hash, recomputed.Hash)

	persisted, err := st.GetDetection(context.Background(), res.DetectionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, persisted.Status)
	assert.Equal(t, res.Receipt.TxHash, persisted.TxHash)

	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "Scene fused")
	assert.Contains(t, joined, "Evidence anchored")
	assert.Contains(t, joined, "Detection persisted")
}

func TestRun_JurisdictionSeverity(t *testing.T) {
	sensors := &scriptedSensors{sar: -15, optical: 0.18, opticalPast: 0.30}
	o := newTestOrchestrator(t, sensors)

	inside, err := o.Run(context.Background(), Request{Lat: 28.545, Lng: 77.30, StateCode: "DELHI"}, nil)
	require.NoError(t, err)
	require.NotNil(t, inside.Verdict)
	assert.Equal(t, model.SeverityCritical, inside.Verdict.Severity)
	assert.Contains(t, inside.Verdict.Zone, "Floodplain")

	outside, err := o.Run(context.Background(), Request{Lat: 28.70, Lng: 77.10, StateCode: "DELHI"}, nil)
	require.NoError(t, err)
	require.NotNil(t, outside.Verdict)
	assert.Equal(t, model.SeverityHigh, outside.Verdict.Severity)
}

type downLedger struct{}

func (downLedger) Submit(ctx context.Context, hash string) (*model.AnchorReceipt, error) {
	return nil, eris.New("gateway unavailable")
}

func TestRun_AnchorFailurePersistsPending(t *testing.T) {
	sensors := &scriptedSensors{sar: -15, optical: 0.18, opticalPast: 0.30}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	defer st.Close()

	cat, err := catalog.LoadDefault()
	require.NoError(t, err)
	rules, err := law.DefaultRules()
	require.NoError(t, err)

	o := NewOrchestrator(
		fusion.NewEngine(sensors),
		change.NewDetector(sensors),
		law.NewEngine(cat, rules),
		anchor.New(downLedger{}),
		WithStore(st),
		WithBudget(100*time.Millisecond),
	)

	var lines []string
	_, err = o.Run(context.Background(), Request{Lat: 28.65, Lng: 77.18}, func(l string) { lines = append(lines, l) })
	require.Error(t, err)
	assert.Contains(t, strings.Join(lines, "\n"), "saved for re-anchoring")

	dets, err := st.ListDetections(context.Background(), store.DetectionFilter{Status: model.StatusPending})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	pending := dets[0]
	assert.Empty(t, pending.TxHash)
	assert.NotEmpty(t, pending.Evidence.Hash)

	// The stored hash resubmits as-is and the row becomes VERIFIED.
	receipt, err := anchor.New(ledger.NewSimulator(time.Millisecond)).Resubmit(context.Background(), pending.Evidence.Hash)
	require.NoError(t, err)
	require.NoError(t, st.MarkAnchored(context.Background(), pending.ID, receipt.TxHash))

	got, err := st.GetDetection(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, got.Status)
	assert.Equal(t, receipt.TxHash, got.TxHash)
}

type failingStore struct {
	store.Store
}

func (failingStore) InsertDetection(ctx context.Context, det *model.Detection) error {
	return eris.New("disk full")
}

func TestRun_PersistenceFailureStillVerified(t *testing.T) {
	sensors := &scriptedSensors{sar: -15, optical: 0.18, opticalPast: 0.30}
	o := newTestOrchestrator(t, sensors, WithStore(failingStore{}))

	var lines []string
	res, err := o.Run(context.Background(), Request{Lat: 28.65, Lng: 77.18}, func(l string) { lines = append(lines, l) })
	require.NoError(t, err)

	assert.Equal(t, StateVerified, res.State)
	assert.Empty(t, res.DetectionID)
	require.NotNil(t, res.Evidence)
	assert.NotEmpty(t, res.Evidence.Hash)
	assert.Contains(t, strings.Join(lines, "\n"), "could not be persisted")
}

func TestHotspotFor(t *testing.T) {
	h, ok := HotspotFor("DELHI")
	require.True(t, ok)
	assert.InDelta(t, 28.545, h.Lat, 1e-9)
	assert.Contains(t, h.Name, "Yamuna")

	_, ok = HotspotFor("MH")
	assert.False(t, ok)

	all := Hotspots()
	require.Len(t, all, 2)
	assert.Equal(t, "DELHI", all[0].StateCode)
}
