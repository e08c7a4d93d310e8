package model

import "time"

// SensorKind identifies the sensor modality behind a reading.
type SensorKind string

const (
	SensorOptical SensorKind = "OPTICAL" // Sentinel-2 L2A, vegetation index
	SensorSAR     SensorKind = "SAR"     // Sentinel-1 GRD, VV backscatter
)

// Unit returns the measurement unit for this sensor kind.
func (k SensorKind) Unit() string {
	if k == SensorSAR {
		return "dB"
	}
	return "NDVI"
}

// SensorReading is one pre-aggregated scalar observation: the mean band value
// over a small area around the target point. Confidence 0 marks a degraded
// reading produced from the fallback estimator rather than live data.
type SensorReading struct {
	ID         string     `json:"id"`
	Kind       SensorKind `json:"kind"`
	Value      float64    `json:"value"`
	Unit       string     `json:"unit"`
	Timestamp  time.Time  `json:"timestamp"`
	Source     string     `json:"source"`
	Confidence float64    `json:"confidence"`
}

// Degraded reports whether this reading came from the fallback path.
func (r SensorReading) Degraded() bool {
	return r.Confidence == 0
}
