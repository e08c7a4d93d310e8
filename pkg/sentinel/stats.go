package sentinel

import (
	"time"

	"github.com/terralens/audit-cli/internal/model"
)

// Evalscripts run server-side and reduce raw bands to one scalar band "B0".
// OPTICAL computes NDVI; SAR returns VV backscatter in dB. Keep these in sync
// with the single-output parsing in statsResponse.mean.
const (
	evalscriptNDVI = `//VERSION=3
function setup() {
  return {
    input: ["B04", "B08", "dataMask"],
    output: [
      { id: "default", bands: 1, sampleType: "FLOAT32" },
      { id: "dataMask", bands: 1 }
    ]
  };
}
function evaluatePixel(sample) {
  let ndvi = (sample.B08 - sample.B04) / (sample.B08 + sample.B04);
  return { default: [ndvi], dataMask: [sample.dataMask] };
}`

	evalscriptSAR = `//VERSION=3
function setup() {
  return {
    input: ["VV", "dataMask"],
    output: [
      { id: "default", bands: 1, sampleType: "FLOAT32" },
      { id: "dataMask", bands: 1 }
    ]
  };
}
function evaluatePixel(sample) {
  return { default: [10 * Math.log10(Math.max(sample.VV, 0.0001))], dataMask: [sample.dataMask] };
}`
)

// statsRequest is the body for POST /api/v1/statistics.
type statsRequest struct {
	Input       statsInput       `json:"input"`
	Aggregation statsAggregation `json:"aggregation"`
}

type statsInput struct {
	Bounds statsBounds `json:"bounds"`
	Data   []statsData `json:"data"`
}

type statsBounds struct {
	BBox       [4]float64        `json:"bbox"`
	Properties map[string]string `json:"properties"`
}

type statsData struct {
	Type       string          `json:"type"`
	DataFilter statsDataFilter `json:"dataFilter"`
}

type statsDataFilter struct {
	TimeRange       statsTimeRange `json:"timeRange"`
	MosaickingOrder string         `json:"mosaickingOrder"`
}

type statsTimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type statsAggregation struct {
	TimeRangeType       string         `json:"timeRangeType"`
	TimeRange           statsTimeRange `json:"timeRange"`
	AggregationInterval statsInterval  `json:"aggregationInterval"`
	Evalscript          string         `json:"evalscript"`
	Width               int            `json:"width"`
	Height              int            `json:"height"`
}

type statsInterval struct {
	Of                   string `json:"of"`
	LastIntervalBehavior string `json:"lastIntervalBehavior"`
}

// buildStatsRequest assembles a daily-aggregated statistics query over a
// ~10m box around the point and the [from, to] search window.
func buildStatsRequest(lat, lng float64, kind model.SensorKind, from, to time.Time) statsRequest {
	collection := "sentinel-2-l2a"
	evalscript := evalscriptNDVI
	if kind == model.SensorSAR {
		collection = "sentinel-1-grd"
		evalscript = evalscriptSAR
	}

	window := statsTimeRange{
		From: from.UTC().Format(time.RFC3339),
		To:   to.UTC().Format(time.RFC3339),
	}

	return statsRequest{
		Input: statsInput{
			Bounds: statsBounds{
				BBox: [4]float64{lng - bboxDelta, lat - bboxDelta, lng + bboxDelta, lat + bboxDelta},
				Properties: map[string]string{
					"crs": "http://www.opengis.net/def/crs/EPSG/0/4326",
				},
			},
			Data: []statsData{{
				Type: collection,
				DataFilter: statsDataFilter{
					TimeRange:       window,
					MosaickingOrder: "mostRecent",
				},
			}},
		},
		Aggregation: statsAggregation{
			TimeRangeType: "searchInterval",
			TimeRange:     window,
			AggregationInterval: statsInterval{
				Of:                   "P1D",
				LastIntervalBehavior: "SHORTEN",
			},
			Evalscript: evalscript,
			Width:      1,
			Height:     1,
		},
	}
}

// statsResponse mirrors the per-interval band statistics shape:
// data[].outputs.default.bands.B0.stats.mean.
type statsResponse struct {
	Data []struct {
		Interval statsTimeRange `json:"interval"`
		Outputs  map[string]struct {
			Bands map[string]struct {
				Stats struct {
					Min  *float64 `json:"min"`
					Max  *float64 `json:"max"`
					Mean *float64 `json:"mean"`
				} `json:"stats"`
			} `json:"bands"`
		} `json:"outputs"`
	} `json:"data"`
}

// mean extracts the mean of band B0 from the first interval, or nil when the
// aggregation produced no usable interval.
func (r statsResponse) mean() *float64 {
	if len(r.Data) == 0 {
		return nil
	}
	out, ok := r.Data[0].Outputs["default"]
	if !ok {
		return nil
	}
	band, ok := out.Bands["B0"]
	if !ok {
		return nil
	}
	return band.Stats.Mean
}
