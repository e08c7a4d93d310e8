package store

import (
	"context"
	"time"

	"github.com/terralens/audit-cli/internal/model"
)

// DetectionFilter specifies criteria for listing detections.
type DetectionFilter struct {
	Status model.DetectionStatus `json:"status,omitempty"`
	Since  time.Time             `json:"since,omitempty"`
	Limit  int                   `json:"limit,omitempty"`
	Offset int                   `json:"offset,omitempty"`
}

// Store defines the persistence interface for audit detections.
type Store interface {
	// Detections
	InsertDetection(ctx context.Context, det *model.Detection) error
	InsertDetections(ctx context.Context, dets []model.Detection) (int64, error)
	GetDetection(ctx context.Context, id string) (*model.Detection, error)
	// GetDetectionByHash returns (nil, nil) when no detection carries the hash.
	GetDetectionByHash(ctx context.Context, hash string) (*model.Detection, error)
	ListDetections(ctx context.Context, filter DetectionFilter) ([]model.Detection, error)
	// MarkAnchored records the ledger transaction for a detection whose
	// original submission failed and promotes it to VERIFIED.
	MarkAnchored(ctx context.Context, id, txHash string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
