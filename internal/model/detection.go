package model

import "time"

// DetectionStatus is the terminal classification of an audit.
type DetectionStatus string

const (
	StatusVerified DetectionStatus = "VERIFIED"
	StatusIgnored  DetectionStatus = "IGNORED"
	StatusPending  DetectionStatus = "PENDING"
)

// EvidenceRecord is the deterministic fingerprint of a confirmed violation.
// Hash is a pure function of the canonical payload; identical inputs
// (including timestamp) reproduce the identical hash.
type EvidenceRecord struct {
	Hash        string `json:"hash"`         // 0x-prefixed lowercase sha256 hex
	TimestampMs int64  `json:"timestamp_ms"`
	Metadata    string `json:"metadata"` // serialized canonical payload
}

// AnchorReceipt is the ledger service's acknowledgement of a submitted hash.
type AnchorReceipt struct {
	TxHash       string    `json:"tx_hash"`
	Network      string    `json:"network"`
	BlockHeight  int64     `json:"block_height"`
	ExplorerLink string    `json:"explorer_link"`
	AnchoredAt   time.Time `json:"anchored_at"`
}

// Detection is the persisted outcome of a VERIFIED audit. Never mutated after
// insertion; read by downstream notification and report consumers.
type Detection struct {
	ID         string          `json:"id"`
	Lat        float64         `json:"lat"`
	Lng        float64         `json:"lng"`
	DetectedAt time.Time       `json:"detected_at"`
	Status     DetectionStatus `json:"status"`
	Confidence float64         `json:"confidence"`
	Verdict    LegalVerdict    `json:"verdict"`
	Scene      FusedScene      `json:"scene"`
	Evidence   EvidenceRecord  `json:"evidence"`
	TxHash     string          `json:"tx_hash"`
	CreatedAt  time.Time       `json:"created_at"`
}
