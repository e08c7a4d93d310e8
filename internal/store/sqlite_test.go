package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terralens/audit-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func testDetection(status model.DetectionStatus) model.Detection {
	return model.Detection{
		ID:         uuid.New().String(),
		Lat:        28.545,
		Lng:        77.3,
		DetectedAt: time.Now().UTC().Truncate(time.Second),
		Status:     status,
		Confidence: 0.92,
		Verdict: model.LegalVerdict{
			IsViolation: true,
			Law:         "National Green Tribunal Act, 2010",
			Section:     "Section 14",
			Severity:    model.SeverityCritical,
			Zone:        "Yamuna Floodplain O-Zone",
		},
		Scene: model.FusedScene{
			ID:  "SCENE-" + uuid.New().String(),
			Lat: 28.545,
			Lng: 77.3,
		},
		Evidence: model.EvidenceRecord{
			Hash:        "0x" + uuid.New().String(),
			TimestampMs: time.Now().UnixMilli(),
			Metadata:    "28.545,77.3|1|Section 14|0.92",
		},
		TxHash: "0xabc123",
	}
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	det := testDetection(model.StatusVerified)
	require.NoError(t, s.InsertDetection(ctx, &det))
	assert.False(t, det.CreatedAt.IsZero())

	got, err := s.GetDetection(ctx, det.ID)
	require.NoError(t, err)
	assert.Equal(t, det.ID, got.ID)
	assert.Equal(t, model.StatusVerified, got.Status)
	assert.Equal(t, det.Verdict, got.Verdict)
	assert.Equal(t, det.Evidence, got.Evidence)
	assert.Equal(t, "0xabc123", got.TxHash)
	assert.InDelta(t, 28.545, got.Lat, 1e-9)
}

func TestSQLiteStore_GetDetection_NotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetDetection(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get detection")
}

func TestSQLiteStore_GetDetectionByHash(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	det := testDetection(model.StatusVerified)
	require.NoError(t, s.InsertDetection(ctx, &det))

	got, err := s.GetDetectionByHash(ctx, det.Evidence.Hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, det.ID, got.ID)

	none, err := s.GetDetectionByHash(ctx, "0xunknown")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteStore_DuplicateHashRejected(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	a := testDetection(model.StatusVerified)
	require.NoError(t, s.InsertDetection(ctx, &a))

	b := testDetection(model.StatusVerified)
	b.Evidence.Hash = a.Evidence.Hash
	assert.Error(t, s.InsertDetection(ctx, &b))
}

func TestSQLiteStore_ListDetections(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	old := testDetection(model.StatusVerified)
	old.DetectedAt = time.Now().UTC().Add(-48 * time.Hour)
	recent := testDetection(model.StatusVerified)
	ignored := testDetection(model.StatusIgnored)
	ignored.DetectedAt = time.Now().UTC().Add(-30 * time.Minute)
	for _, det := range []*model.Detection{&old, &recent, &ignored} {
		require.NoError(t, s.InsertDetection(ctx, det))
	}

	all, err := s.ListDetections(ctx, DetectionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, recent.ID, all[0].ID, "newest first")

	verified, err := s.ListDetections(ctx, DetectionFilter{Status: model.StatusVerified})
	require.NoError(t, err)
	assert.Len(t, verified, 2)

	since, err := s.ListDetections(ctx, DetectionFilter{Since: time.Now().UTC().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	limited, err := s.ListDetections(ctx, DetectionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_InsertDetections(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	batch := []model.Detection{
		testDetection(model.StatusVerified),
		testDetection(model.StatusIgnored),
	}
	n, err := s.InsertDetections(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := s.ListDetections(ctx, DetectionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStore_InsertDetections_RollsBackOnDuplicate(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	a := testDetection(model.StatusVerified)
	b := testDetection(model.StatusVerified)
	b.Evidence.Hash = a.Evidence.Hash

	_, err := s.InsertDetections(ctx, []model.Detection{a, b})
	require.Error(t, err)

	all, err := s.ListDetections(ctx, DetectionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all, "failed batch must not leave partial rows")
}

func TestSQLiteStore_MarkAnchored(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	det := testDetection(model.StatusPending)
	det.TxHash = ""
	require.NoError(t, s.InsertDetection(ctx, &det))

	require.NoError(t, s.MarkAnchored(ctx, det.ID, "0xretry"))
	got, err := s.GetDetection(ctx, det.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xretry", got.TxHash)
	assert.Equal(t, model.StatusVerified, got.Status)

	err = s.MarkAnchored(ctx, "missing", "0xretry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
