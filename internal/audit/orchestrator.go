// Package audit runs a full detection-to-evidence audit: satellite fusion,
// change scoring, legal evaluation, evidence anchoring and persistence.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/anchor"
	"github.com/terralens/audit-cli/internal/change"
	"github.com/terralens/audit-cli/internal/fusion"
	"github.com/terralens/audit-cli/internal/law"
	"github.com/terralens/audit-cli/internal/model"
	"github.com/terralens/audit-cli/internal/notice"
	"github.com/terralens/audit-cli/internal/store"
)

// State names the position of an audit in its lifecycle.
type State string

const (
	StateStart         State = "START"
	StateFused         State = "FUSED"
	StateChangeChecked State = "CHANGE_CHECKED"
	StateLegalChecked  State = "LEGAL_CHECKED"
	StateIgnored       State = "IGNORED"
	StateVerified      State = "VERIFIED"
	StateError         State = "ERROR"
)

// Terminal status messages.
const (
	MsgNoChange    = "No Change Detected"
	MsgUnregulated = "Change in Unregulated Zone"
)

// Request identifies the point to audit.
type Request struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	StateCode string  `json:"state_code,omitempty"`
}

// Result is the terminal payload of a completed audit.
type Result struct {
	State       State                  `json:"state"`
	Status      model.DetectionStatus  `json:"status"`
	Message     string                 `json:"message"`
	DetectionID string                 `json:"detection_id,omitempty"`
	Scene       *model.FusedScene      `json:"scene,omitempty"`
	Assessment  model.ChangeAssessment `json:"assessment"`
	Verdict     *model.LegalVerdict    `json:"verdict,omitempty"`
	Evidence    *model.EvidenceRecord  `json:"evidence,omitempty"`
	Receipt     *model.AnchorReceipt   `json:"receipt,omitempty"`
	Notice      string                 `json:"notice,omitempty"`
}

// Orchestrator wires the audit components into the state machine.
type Orchestrator struct {
	fusion   *fusion.Engine
	change   *change.Detector
	law      *law.Engine
	anchorer *anchor.Anchorer
	drafter  *notice.Drafter
	store    store.Store // nil disables persistence

	lookbackDays   int
	budget         time.Duration
	maxConcurrency int
}

// Option tunes the orchestrator.
type Option func(*Orchestrator)

// WithStore enables best-effort persistence of verified detections.
func WithStore(st store.Store) Option {
	return func(o *Orchestrator) { o.store = st }
}

// WithDrafter enables legal-notice generation for critical verdicts.
func WithDrafter(d *notice.Drafter) Option {
	return func(o *Orchestrator) { o.drafter = d }
}

// WithLookbackDays sets the change-detection baseline window.
func WithLookbackDays(days int) Option {
	return func(o *Orchestrator) { o.lookbackDays = days }
}

// WithBudget bounds the wall-clock time of one audit.
func WithBudget(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.budget = d
		}
	}
}

// WithMaxConcurrency caps the audits in flight during a sweep.
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrency = n
		}
	}
}

// NewOrchestrator assembles an orchestrator from its components.
func NewOrchestrator(f *fusion.Engine, cd *change.Detector, le *law.Engine, an *anchor.Anchorer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fusion:         f,
		change:         cd,
		law:            le,
		anchorer:       an,
		lookbackDays:   change.DefaultLookbackDays,
		budget:         2 * time.Minute,
		maxConcurrency: 4,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one audit. Progress lines go to sink as each component
// finishes. A non-nil error means the audit terminated in ERROR; otherwise
// the result's state is IGNORED or VERIFIED.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink Sink) (*Result, error) {
	res, _, err := o.run(ctx, req, sink, true)
	return res, err
}

// run is the state machine behind Run and Sweep. With persist false the
// verified detection is returned for the caller to batch instead of being
// inserted here.
func (o *Orchestrator) run(ctx context.Context, req Request, sink Sink, persist bool) (*Result, *model.Detection, error) {
	if sink == nil {
		sink = NopSink
	}
	ctx, cancel := context.WithTimeout(ctx, o.budget)
	defer cancel()

	log := zap.L().With(
		zap.Float64("lat", req.Lat),
		zap.Float64("lng", req.Lng),
		zap.String("state_code", req.StateCode),
	)
	sink(fmt.Sprintf("Audit started at (%.4f, %.4f)", req.Lat, req.Lng))

	// START → FUSED
	scene, err := o.fusion.Fuse(ctx, req.Lat, req.Lng, req.StateCode)
	if err != nil {
		log.Error("fusion failed", zap.Error(err))
		return nil, nil, eris.Wrap(err, "audit: scene fusion failed")
	}
	sink(fmt.Sprintf("Scene fused: %s (co-registration %.3f)", scene.ID, scene.CoRegistration))

	// FUSED → CHANGE_CHECKED
	assessment := o.change.Detect(ctx, scene.Lat, scene.Lng, o.lookbackDays)
	sink(fmt.Sprintf("Change deviation %.1f%% (current %.3f, baseline %.3f)",
		assessment.Deviation*100, assessment.Current, assessment.Past))

	if !assessment.IsCandidate {
		sink(MsgNoChange)
		log.Info("audit ignored", zap.String("reason", MsgNoChange))
		return &Result{
			State:      StateIgnored,
			Status:     model.StatusIgnored,
			Message:    MsgNoChange,
			Scene:      scene,
			Assessment: assessment,
		}, nil, nil
	}

	// CHANGE_CHECKED → LEGAL_CHECKED
	verdict := o.law.Evaluate(scene.Lat, scene.Lng, scene.StateCode)
	if !verdict.IsViolation {
		sink(MsgUnregulated)
		log.Info("audit ignored", zap.String("reason", MsgUnregulated))
		return &Result{
			State:      StateIgnored,
			Status:     model.StatusIgnored,
			Message:    MsgUnregulated,
			Scene:      scene,
			Assessment: assessment,
			Verdict:    &verdict,
		}, nil, nil
	}
	sink(fmt.Sprintf("Verdict: %s violation of %s in %s", verdict.Severity, verdict.Law, verdict.Zone))

	// LEGAL_CHECKED → VERIFIED
	confidence := (scene.Radar.Confidence + scene.Optical.Confidence) / 2
	record, receipt, err := o.anchorer.Anchor(ctx, scene.Lat, scene.Lng, scene.Timestamp.UnixMilli(), verdict, confidence)
	if err != nil {
		log.Error("anchoring failed", zap.Error(err))
		// The evidence record is already valid; save the detection as
		// PENDING so the hash can be resubmitted without recomputation.
		if persist && o.store != nil {
			pending := model.Detection{
				ID:         uuid.New().String(),
				Lat:        scene.Lat,
				Lng:        scene.Lng,
				DetectedAt: scene.Timestamp,
				Status:     model.StatusPending,
				Confidence: confidence,
				Verdict:    verdict,
				Scene:      *scene,
				Evidence:   record,
			}
			// Insert on a detached context; the budget is often already
			// spent when the ledger times out.
			if insErr := o.store.InsertDetection(context.WithoutCancel(ctx), &pending); insErr != nil {
				log.Error("pending persistence failed", zap.Error(insErr))
				sink("Warning: detection could not be persisted")
			} else {
				sink(fmt.Sprintf("Detection saved for re-anchoring: %s", pending.ID))
			}
		}
		return nil, nil, eris.Wrap(err, "audit: evidence anchoring failed")
	}
	sink(fmt.Sprintf("Evidence anchored: %s on %s", receipt.TxHash, receipt.Network))

	det := model.Detection{
		ID:         uuid.New().String(),
		Lat:        scene.Lat,
		Lng:        scene.Lng,
		DetectedAt: scene.Timestamp,
		Status:     model.StatusVerified,
		Confidence: confidence,
		Verdict:    verdict,
		Scene:      *scene,
		Evidence:   record,
		TxHash:     receipt.TxHash,
	}

	result := &Result{
		State:      StateVerified,
		Status:     model.StatusVerified,
		Message:    fmt.Sprintf("Violation verified: %s", verdict.Zone),
		Scene:      scene,
		Assessment: assessment,
		Verdict:    &verdict,
		Evidence:   &record,
		Receipt:    receipt,
	}

	if o.drafter != nil && verdict.Severity == model.SeverityCritical {
		text, err := o.drafter.Draft(ctx, det)
		if err != nil {
			log.Warn("notice drafting failed", zap.Error(err))
		} else {
			result.Notice = text
			sink("Legal notice drafted")
		}
	}

	// Persistence is best effort: the classification stands even if the
	// insert is lost.
	if persist && o.store != nil {
		if err := o.store.InsertDetection(ctx, &det); err != nil {
			log.Error("persistence failed", zap.Error(err))
			sink("Warning: detection could not be persisted")
		} else {
			result.DetectionID = det.ID
			sink(fmt.Sprintf("Detection persisted: %s", det.ID))
		}
	}

	log.Info("audit verified",
		zap.String("detection_id", result.DetectionID),
		zap.String("tx_hash", receipt.TxHash),
		zap.String("severity", string(verdict.Severity)),
	)
	return result, &det, nil
}
