package model

// Severity ranks a legal verdict.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// LegalVerdict is the structured outcome of a compliance evaluation. A
// non-violation verdict carries neutral placeholder fields ("N/A",
// "Unregulated Zone") instead of empty strings so renderers never branch on
// absence.
type LegalVerdict struct {
	IsViolation  bool     `json:"is_violation"`
	Law          string   `json:"law"`
	Article      string   `json:"article"`
	Section      string   `json:"section"`
	Severity     Severity `json:"severity"`
	Zone         string   `json:"zone"`
	PenaltyType  string   `json:"penalty_type"`
	Jurisdiction string   `json:"jurisdiction"`
}

// NoViolation returns the neutral verdict used when no protected zone or
// jurisdiction rule applies.
func NoViolation() LegalVerdict {
	return LegalVerdict{
		IsViolation:  false,
		Law:          "N/A",
		Article:      "N/A",
		Section:      "N/A",
		Severity:     SeverityInfo,
		Zone:         "Unregulated Zone",
		PenaltyType:  "None",
		Jurisdiction: "N/A",
	}
}
