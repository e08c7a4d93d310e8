// Package sentinel is a client for the Copernicus statistical API. It trades
// pixels for scalars: every call returns the mean band value over a ~10m box
// around the target point, computed server-side by an evalscript.
package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/terralens/audit-cli/internal/model"
)

const (
	defaultTokenURL = "https://services.sentinel-hub.com/oauth/token"
	defaultStatsURL = "https://services.sentinel-hub.com/api/v1/statistics"

	// tokenSafetyMargin is subtracted from the advertised expiry so a token
	// is never used in the last moments of its lifetime.
	tokenSafetyMargin = 5 * time.Second

	// lookbackWindow is how far back the statistics query searches for a
	// usable acquisition, tolerating cloud cover and revisit gaps.
	lookbackWindow = 15 * 24 * time.Hour

	// bboxDelta is the half-width of the sampling box in degrees (~10m).
	bboxDelta = 0.0001
)

// ErrNoCredential indicates the client has no usable API credential. This is
// fatal to the caller: it separates "cannot operate" from the soft degraded
// readings returned on signal loss.
var ErrNoCredential = eris.New("sentinel: no usable credential")

// Client fetches statistical sensor readings.
type Client interface {
	// Reading returns the mean band scalar for the given point, sensor kind
	// and acquisition instant. It fails hard only when no credential is
	// available; any other failure degrades to a confidence-0 fallback.
	Reading(ctx context.Context, lat, lng float64, kind model.SensorKind, asOf time.Time) (model.SensorReading, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(u string) Option {
	return func(c *httpClient) { c.tokenURL = u }
}

// WithStatsURL overrides the statistics endpoint.
func WithStatsURL(u string) Option {
	return func(c *httpClient) { c.statsURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps statistics requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *httpClient) { c.now = now }
}

type credential struct {
	token  string
	expiry time.Time
}

type httpClient struct {
	clientID     string
	clientSecret string
	tokenURL     string
	statsURL     string
	http         *http.Client
	limiter      *rate.Limiter
	now          func() time.Time

	mu     sync.Mutex
	cred   credential
	flight singleflight.Group
}

// NewClient creates a statistics API client. Credentials may be empty or
// placeholder values; in that case every Reading call fails with
// ErrNoCredential.
func NewClient(clientID, clientSecret string, opts ...Option) Client {
	c := &httpClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     defaultTokenURL,
		statsURL:     defaultStatsURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// token returns a cached credential, refreshing it through a single-flight
// exchange when expired. Concurrent audits share one refresh.
func (c *httpClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	cred := c.cred
	c.mu.Unlock()

	if cred.token != "" && c.now().Before(cred.expiry.Add(-tokenSafetyMargin)) {
		return cred.token, nil
	}

	if c.clientID == "" || strings.Contains(c.clientID, "YOUR_") {
		return "", ErrNoCredential
	}

	v, err, _ := c.flight.Do("token", func() (any, error) {
		return c.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// exchange performs the OAuth2 client-credentials grant.
func (c *httpClient) exchange(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "sentinel: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(ErrNoCredential, "token exchange failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(ErrNoCredential, "read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Wrapf(ErrNoCredential, "token endpoint status %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", eris.Wrap(ErrNoCredential, "token response missing access_token")
	}

	c.mu.Lock()
	c.cred = credential{
		token:  tok.AccessToken,
		expiry: c.now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	c.mu.Unlock()

	zap.L().Debug("sentinel: credential refreshed", zap.Int64("expires_in", tok.ExpiresIn))
	return tok.AccessToken, nil
}

func (c *httpClient) Reading(ctx context.Context, lat, lng float64, kind model.SensorKind, asOf time.Time) (model.SensorReading, error) {
	token, err := c.token(ctx)
	if err != nil {
		return model.SensorReading{}, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return model.SensorReading{}, eris.Wrap(err, "sentinel: rate limit wait")
	}

	if asOf.IsZero() {
		asOf = c.now()
	}

	mean, err := c.fetchMean(ctx, token, lat, lng, kind, asOf)
	if err != nil {
		// Soft failure: the credential was fine, the signal is not. Degrade
		// to the sensor-specific fallback so the pipeline keeps moving.
		zap.L().Warn("sentinel: statistics fetch failed, degrading",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return degradedReading(kind, asOf, fallbackOnError(kind)), nil
	}

	if mean == nil {
		// Empty aggregation, usually cloud cover across the whole window.
		return degradedReading(kind, asOf, fallbackOnEmpty(kind)), nil
	}

	return model.SensorReading{
		ID:         fmt.Sprintf("LIVE-%s-%s", kind, uuid.New().String()[:8]),
		Kind:       kind,
		Value:      *mean,
		Unit:       kind.Unit(),
		Timestamp:  asOf,
		Source:     sourceLabel(kind),
		Confidence: 1.0,
	}, nil
}

// fetchMean submits the statistics request and extracts the mean of the
// single evalscript output band. A nil mean with nil error means the
// aggregation came back empty.
func (c *httpClient) fetchMean(ctx context.Context, token string, lat, lng float64, kind model.SensorKind, asOf time.Time) (*float64, error) {
	reqBody := buildStatsRequest(lat, lng, kind, asOf.Add(-lookbackWindow), asOf)

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "sentinel: marshal stats request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.statsURL, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "sentinel: create stats request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sentinel: send stats request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "sentinel: read stats response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("sentinel: stats endpoint status %d: %s", resp.StatusCode, string(body))
	}

	var sr statsResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, eris.Wrap(err, "sentinel: unmarshal stats response")
	}

	return sr.mean(), nil
}

func degradedReading(kind model.SensorKind, asOf time.Time, value float64) model.SensorReading {
	return model.SensorReading{
		ID:         fmt.Sprintf("SIM-%s-%s", kind, uuid.New().String()[:8]),
		Kind:       kind,
		Value:      value,
		Unit:       kind.Unit(),
		Timestamp:  asOf,
		Source:     "Degraded (fallback estimator)",
		Confidence: 0,
	}
}

func sourceLabel(kind model.SensorKind) string {
	if kind == model.SensorSAR {
		return "SENTINEL-1 GRD (Live Stats)"
	}
	return "SENTINEL-2 L2A (Live Stats)"
}

// fallbackOnEmpty is the "no usable acquisition" scalar: a typical quiet
// baseline per sensor so an empty window never reads as change.
func fallbackOnEmpty(kind model.SensorKind) float64 {
	if kind == model.SensorSAR {
		return -15
	}
	return 0.3
}

// fallbackOnError is the "request failed" scalar, deliberately distinct from
// the empty-window baseline.
func fallbackOnError(kind model.SensorKind) float64 {
	if kind == model.SensorSAR {
		return -20
	}
	return 0.1
}
