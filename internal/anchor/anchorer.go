package anchor

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/model"
	"github.com/terralens/audit-cli/internal/resilience"
	"github.com/terralens/audit-cli/pkg/ledger"
)

// Anchorer hashes evidence and submits it to the ledger with bounded retry.
type Anchorer struct {
	client ledger.Client
	retry  resilience.RetryConfig
}

// New creates an Anchorer over the given ledger client.
func New(client ledger.Client) *Anchorer {
	cfg := resilience.AnchorRetryConfig()
	// Ledger submission is idempotent for a given hash, so any failure gets
	// the one retry, not just classified-transient ones.
	cfg.ShouldRetry = func(error) bool { return true }
	return &Anchorer{
		client: client,
		retry:  cfg,
	}
}

// Anchor fingerprints the verdict at the given observation time and submits
// the hash. timestampMs is the scene capture time, so the hash stays
// reproducible from the detection record alone. The evidence record is
// returned even when submission fails, so the caller can persist it and
// re-anchor later.
func (a *Anchorer) Anchor(ctx context.Context, lat, lng float64, timestampMs int64, verdict model.LegalVerdict, confidence float64) (model.EvidenceRecord, *model.AnchorReceipt, error) {
	record := Fingerprint(lat, lng, timestampMs, verdict, confidence)

	receipt, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*model.AnchorReceipt, error) {
		return a.client.Submit(ctx, record.Hash)
	})
	if err != nil {
		return record, nil, eris.Wrap(err, "anchor: ledger submission failed")
	}

	zap.L().Info("evidence anchored",
		zap.String("hash", record.Hash),
		zap.String("tx_hash", receipt.TxHash),
		zap.String("network", receipt.Network),
	)
	return record, receipt, nil
}

// Resubmit anchors an existing evidence hash, for detections whose original
// submission never landed. The hash is not recomputed.
func (a *Anchorer) Resubmit(ctx context.Context, hash string) (*model.AnchorReceipt, error) {
	receipt, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*model.AnchorReceipt, error) {
		return a.client.Submit(ctx, hash)
	})
	if err != nil {
		return nil, eris.Wrap(err, "anchor: ledger resubmission failed")
	}
	return receipt, nil
}
