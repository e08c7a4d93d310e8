package law

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/terralens/audit-cli/internal/model"
)

//go:embed default_rules.yaml
var defaultRules []byte

// RuleSet maps a jurisdiction code (state) to its rule.
type RuleSet map[string]StateRule

// StateRule is one jurisdiction's rule: a base verdict, optionally refined by
// sub-zone bounding boxes checked in order.
type StateRule struct {
	Zone         string        `yaml:"zone"`
	Law          string        `yaml:"law"`
	Article      string        `yaml:"article"`
	Section      string        `yaml:"section"`
	Severity     model.Severity `yaml:"severity"`
	PenaltyType  string        `yaml:"penalty_type"`
	Jurisdiction string        `yaml:"jurisdiction"`
	SubZones     []SubZone     `yaml:"sub_zones"`
}

// SubZone refines a state rule inside a bounding box (e.g. the flood-plain
// strip inside Delhi).
type SubZone struct {
	Zone         string         `yaml:"zone"`
	MinLat       float64        `yaml:"min_lat"`
	MaxLat       float64        `yaml:"max_lat"`
	MinLng       float64        `yaml:"min_lng"`
	MaxLng       float64        `yaml:"max_lng"`
	Law          string         `yaml:"law"`
	Article      string         `yaml:"article"`
	Section      string         `yaml:"section"`
	Severity     model.Severity `yaml:"severity"`
	PenaltyType  string         `yaml:"penalty_type"`
	Jurisdiction string         `yaml:"jurisdiction"`
}

func (s SubZone) contains(lat, lng float64) bool {
	return lat >= s.MinLat && lat <= s.MaxLat && lng >= s.MinLng && lng <= s.MaxLng
}

// verdict resolves the rule for a coordinate. The jurisdiction path has no
// negative branch: it is invoked only after change confirmation.
func (r StateRule) verdict(lat, lng float64) model.LegalVerdict {
	for _, sz := range r.SubZones {
		if sz.contains(lat, lng) {
			return model.LegalVerdict{
				IsViolation:  true,
				Law:          sz.Law,
				Article:      sz.Article,
				Section:      sz.Section,
				Severity:     sz.Severity,
				Zone:         sz.Zone,
				PenaltyType:  sz.PenaltyType,
				Jurisdiction: sz.Jurisdiction,
			}
		}
	}
	return model.LegalVerdict{
		IsViolation:  true,
		Law:          r.Law,
		Article:      r.Article,
		Section:      r.Section,
		Severity:     r.Severity,
		Zone:         r.Zone,
		PenaltyType:  r.PenaltyType,
		Jurisdiction: r.Jurisdiction,
	}
}

// GenericRule is the fallback applied to recognized-but-unlisted codes when a
// rule file declares it under the "DEFAULT" key; callers that find no rule at
// all fall through to the geometry path instead.
const GenericRuleKey = "DEFAULT"

// DefaultRules parses the embedded jurisdiction rule table.
func DefaultRules() (RuleSet, error) {
	return parseRules(defaultRules)
}

// LoadRules reads a YAML rule file from disk.
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "law: read rules %s", path)
	}
	return parseRules(data)
}

func parseRules(data []byte) (RuleSet, error) {
	var doc struct {
		States map[string]StateRule `yaml:"states"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "law: parse rules yaml")
	}
	if len(doc.States) == 0 {
		return nil, eris.New("law: rule file defines no states")
	}
	return RuleSet(doc.States), nil
}
