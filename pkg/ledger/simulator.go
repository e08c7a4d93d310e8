package ledger

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"

	"github.com/terralens/audit-cli/internal/model"
)

const simNetwork = "Polygon Amoy Testnet"

// Simulator is an in-process stand-in for the anchoring gateway, used when no
// ledger endpoint is configured. It waits a configurable latency and returns
// a synthetic transaction reference.
type Simulator struct {
	Latency time.Duration
}

// NewSimulator creates a Simulator with the given confirmation latency.
func NewSimulator(latency time.Duration) *Simulator {
	return &Simulator{Latency: latency}
}

func (s *Simulator) Submit(ctx context.Context, hash string) (*model.AnchorReceipt, error) {
	if hash == "" {
		return nil, eris.New("ledger: empty hash")
	}

	timer := time.NewTimer(s.Latency)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, eris.Wrap(ctx.Err(), "ledger: anchoring interrupted")
	case <-timer.C:
	}

	tx := "0x" + randomHex(64)
	return &model.AnchorReceipt{
		TxHash:       tx,
		Network:      simNetwork,
		BlockHeight:  12_000_000 + rand.Int64N(1_000_000),
		ExplorerLink: fmt.Sprintf("https://amoy.polygonscan.com/tx/%s", tx),
		AnchoredAt:   time.Now().UTC(),
	}, nil
}

func randomHex(n int) string {
	const digits = "0123456789abcdef"
	b := make([]byte, n)
	for i := range b {
		b[i] = digits[rand.IntN(len(digits))]
	}
	return string(b)
}
