// Package law evaluates coordinates against protected-zone geometry and
// per-jurisdiction rule tables, producing structured legal verdicts.
package law

import (
	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/catalog"
	"github.com/terralens/audit-cli/internal/model"
)

// bufferMeters is the protective margin around every catalog polygon. A hit
// inside the ring but outside the polygon is a downgraded HIGH violation.
const bufferMeters = 100

// genericRule covers state codes with no entry in the rule table.
var genericRule = StateRule{
	Zone:         "State Development Zone",
	Law:          "Town and Country Planning Act",
	Article:      "N/A",
	Section:      "Unauthorized Development",
	Severity:     model.SeverityWarning,
	PenaltyType:  "Show-Cause Notice",
	Jurisdiction: "District Collector",
}

// Engine dispatches compliance checks. Per call exactly one path runs: the
// jurisdiction rule table when the state code is recognized, otherwise the
// geometry path over the zone catalog.
type Engine struct {
	catalog *catalog.Catalog
	rules   RuleSet
}

// NewEngine creates an Engine over the given catalog and rule set.
func NewEngine(cat *catalog.Catalog, rules RuleSet) *Engine {
	return &Engine{catalog: cat, rules: rules}
}

// Evaluate returns the legal verdict for a coordinate. stateCode may be
// empty. The jurisdiction path is only meaningful after a change candidate
// has been confirmed: it has no negative branch and always returns a
// violation.
func (e *Engine) Evaluate(lat, lng float64, stateCode string) model.LegalVerdict {
	if stateCode != "" {
		rule, ok := e.rules[stateCode]
		if !ok {
			zap.L().Debug("law: unrecognized state code, applying generic rule", zap.String("state", stateCode))
			rule, ok = e.rules[GenericRuleKey]
			if !ok {
				rule = genericRule
			}
		}
		return rule.verdict(lat, lng)
	}
	return e.evaluateGeometry(lat, lng)
}

// evaluateGeometry walks the catalog in priority order (area ascending,
// smallest zone first) and returns on the first hit: direct containment
// before buffer ring, per zone.
func (e *Engine) evaluateGeometry(lat, lng float64) model.LegalVerdict {
	for i := range e.catalog.Zones() {
		zone := &e.catalog.Zones()[i]

		if zone.Contains(lat, lng) {
			zap.L().Info("law: direct zone hit",
				zap.String("zone", zone.Name),
				zap.String("severity", string(zone.Severity)),
			)
			return model.LegalVerdict{
				IsViolation:  true,
				Law:          zone.Law,
				Article:      zone.Article,
				Section:      zone.Section,
				Severity:     zone.Severity,
				Zone:         zone.Name,
				PenaltyType:  "Immediate Sealing",
				Jurisdiction: "Supreme Court of India",
			}
		}

		if zone.DistanceMeters(lat, lng) <= bufferMeters {
			zap.L().Info("law: buffer ring hit", zap.String("zone", zone.Name))
			return model.LegalVerdict{
				IsViolation:  true,
				Law:          zone.Law,
				Article:      zone.Article + " (Buffer Zone)",
				Section:      zone.Section + " - 100m Buffer",
				Severity:     model.SeverityHigh,
				Zone:         zone.Name + " (Buffer)",
				PenaltyType:  "Notice & Fine",
				Jurisdiction: "Local Magistrate",
			}
		}
	}

	return model.NoViolation()
}
