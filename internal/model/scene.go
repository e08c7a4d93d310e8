package model

import "time"

// FusedScene is one synchronized radar+optical pair for a single point,
// assembled by the fusion engine and passed read-only through the audit.
// Invariant: exactly one radar and one optical reading.
type FusedScene struct {
	ID             string        `json:"id"`
	Lat            float64       `json:"lat"`
	Lng            float64       `json:"lng"`
	Timestamp      time.Time     `json:"timestamp"`
	Radar          SensorReading `json:"radar"`
	Optical        SensorReading `json:"optical"`
	StateCode      string        `json:"state_code,omitempty"`
	CoRegistration float64       `json:"co_registration"` // alignment score in [0,1]
}

// ChangeAssessment is the relative-deviation comparison between a current and
// a historical optical reading at the same point.
type ChangeAssessment struct {
	Deviation   float64 `json:"deviation"`
	IsCandidate bool    `json:"is_candidate"`
	Current     float64 `json:"current"`
	Past        float64 `json:"past"`
}
