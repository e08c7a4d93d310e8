package law

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/catalog"
	"github.com/terralens/audit-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	cat, err := catalog.LoadDefault()
	require.NoError(t, err)
	rules, err := DefaultRules()
	require.NoError(t, err)
	return NewEngine(cat, rules)
}

func TestEvaluate_GeometryDirectHit(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name     string
		lat, lng float64
		wantZone string
		wantSev  model.Severity
	}{
		{"inside ridge forest", 28.65, 77.18, "Delhi Ridge Reserved Forest", model.SeverityCritical},
		{"inside sanjay van", 28.53, 77.18, "Sanjay Van City Forest", model.SeverityHigh},
		{"inside mining zone", 24.15, 82.90, "Sonbhadra Mining Exclusion Zone", model.SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := e.Evaluate(tt.lat, tt.lng, "")
			assert.True(t, v.IsViolation)
			assert.Equal(t, tt.wantZone, v.Zone)
			assert.Equal(t, tt.wantSev, v.Severity)
			assert.Equal(t, "Immediate Sealing", v.PenaltyType)
			assert.Equal(t, "Supreme Court of India", v.Jurisdiction)
		})
	}
}

func TestEvaluate_SmallestZoneWins(t *testing.T) {
	e := newEngine(t)

	// Okhla sits inside the larger Yamuna floodplain polygon; the smaller,
	// more specific zone must win.
	v := e.Evaluate(28.56, 77.31, "")
	require.True(t, v.IsViolation)
	assert.Equal(t, "Okhla Bird Sanctuary", v.Zone)
	assert.Equal(t, "Wild Life (Protection) Act, 1972", v.Law)
}

func TestEvaluate_BufferRing(t *testing.T) {
	e := newEngine(t)

	// ~49m east of the ridge forest's eastern edge: outside the polygon,
	// inside the 100m buffer. Severity downgrades to HIGH regardless of the
	// zone's own CRITICAL rating.
	v := e.Evaluate(28.65, 77.2105, "")
	require.True(t, v.IsViolation)
	assert.Equal(t, model.SeverityHigh, v.Severity)
	assert.Equal(t, "Delhi Ridge Reserved Forest (Buffer)", v.Zone)
	assert.Contains(t, v.Section, "100m Buffer")
	assert.Contains(t, v.Article, "Buffer Zone")
	assert.Equal(t, "Notice & Fine", v.PenaltyType)
	assert.Equal(t, "Local Magistrate", v.Jurisdiction)
}

func TestEvaluate_Unregulated(t *testing.T) {
	e := newEngine(t)

	v := e.Evaluate(28.40, 76.90, "")
	assert.False(t, v.IsViolation)
	assert.Equal(t, "Unregulated Zone", v.Zone)
	assert.Equal(t, model.SeverityInfo, v.Severity)

	// Neutral placeholders, never empty strings.
	assert.Equal(t, "N/A", v.Law)
	assert.Equal(t, "N/A", v.Article)
	assert.Equal(t, "N/A", v.Section)
	assert.Equal(t, "None", v.PenaltyType)
}

func TestEvaluate_JurisdictionDelhi(t *testing.T) {
	e := newEngine(t)

	// Inside the flood-plain sub-box: CRITICAL, zone mentions Floodplain.
	v := e.Evaluate(28.545, 77.300, "DELHI")
	require.True(t, v.IsViolation)
	assert.Equal(t, model.SeverityCritical, v.Severity)
	assert.Contains(t, v.Zone, "Floodplain")

	// In Delhi but outside the sub-box: base HIGH rule.
	v = e.Evaluate(28.70, 77.10, "DELHI")
	require.True(t, v.IsViolation)
	assert.Equal(t, model.SeverityHigh, v.Severity)
	assert.Equal(t, "Delhi Development Act, 1957", v.Law)
}

func TestEvaluate_JurisdictionAlwaysViolation(t *testing.T) {
	e := newEngine(t)

	// The jurisdiction path has no negative branch, even for coordinates
	// that would be unregulated on the geometry path.
	v := e.Evaluate(28.40, 76.90, "UP")
	assert.True(t, v.IsViolation)
}

func TestEvaluate_UnrecognizedCode(t *testing.T) {
	e := newEngine(t)

	v := e.Evaluate(19.07, 72.87, "MH")
	require.True(t, v.IsViolation)
	assert.Equal(t, model.SeverityWarning, v.Severity)
	assert.Contains(t, v.Section, "Unauthorized Development")
}

func TestLoadRules(t *testing.T) {
	t.Run("file override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
states:
  GOA:
    zone: "CRZ-1"
    law: "Coastal Regulation Zone Notification, 2019"
    article: "N/A"
    section: "CRZ-I(A)"
    severity: CRITICAL
    penalty_type: "Demolition"
    jurisdiction: "Goa Coastal Zone Management Authority"
`), 0o644))

		rules, err := LoadRules(path)
		require.NoError(t, err)

		v := rules["GOA"].verdict(15.5, 73.8)
		assert.True(t, v.IsViolation)
		assert.Equal(t, model.SeverityCritical, v.Severity)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte("states: {}\n"), 0o644))
		_, err := LoadRules(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
