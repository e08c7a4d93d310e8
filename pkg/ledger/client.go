// Package ledger submits evidence hashes to an external anchoring service and
// returns the resulting transaction reference.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/terralens/audit-cli/internal/model"
)

// Client anchors a content hash on a ledger.
type Client interface {
	// Submit sends the hash and waits for the transaction reference. Ledger
	// confirmation latency is nontrivial; callers must pass a bounded ctx.
	Submit(ctx context.Context, hash string) (*model.AnchorReceipt, error)
}

// Option configures the HTTP client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for an HTTP anchoring gateway.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type anchorRequest struct {
	Hash string `json:"hash"`
}

type anchorResponse struct {
	TxHash       string `json:"tx_hash"`
	Network      string `json:"network"`
	BlockHeight  int64  `json:"block_height"`
	ExplorerLink string `json:"explorer_link"`
}

func (c *httpClient) Submit(ctx context.Context, hash string) (*model.AnchorReceipt, error) {
	body, err := json.Marshal(anchorRequest{Hash: hash})
	if err != nil {
		return nil, eris.Wrap(err, "ledger: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/anchors", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "ledger: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: read response")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, eris.Errorf("ledger: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var ar anchorResponse
	if err := json.Unmarshal(respBody, &ar); err != nil {
		return nil, eris.Wrap(err, "ledger: unmarshal response")
	}
	if ar.TxHash == "" {
		return nil, eris.New("ledger: response missing tx_hash")
	}

	return &model.AnchorReceipt{
		TxHash:       ar.TxHash,
		Network:      ar.Network,
		BlockHeight:  ar.BlockHeight,
		ExplorerLink: ar.ExplorerLink,
		AnchoredAt:   time.Now().UTC(),
	}, nil
}
