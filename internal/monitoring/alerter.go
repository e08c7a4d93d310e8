package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCriticalDetections AlertType = "critical_detections"
	AlertAnchorBacklog      AlertType = "anchor_backlog"
	AlertViolationRate      AlertType = "violation_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if a.cfg.CriticalCountThreshold > 0 && snap.CriticalCount >= a.cfg.CriticalCountThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertCriticalDetections,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d CRITICAL detection(s) in last %dh (threshold %d)",
				snap.CriticalCount, snap.LookbackHours, a.cfg.CriticalCountThreshold,
			),
			Details: map[string]any{
				"critical_count": snap.CriticalCount,
				"threshold":      a.cfg.CriticalCountThreshold,
			},
			Timestamp: now,
		})
	}

	if snap.AnchorBacklog > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertAnchorBacklog,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d verified detection(s) without a ledger transaction in last %dh",
				snap.AnchorBacklog, snap.LookbackHours,
			),
			Details: map[string]any{
				"backlog":  snap.AnchorBacklog,
				"verified": snap.DetectionVerified,
			},
			Timestamp: now,
		})
	}

	// A rate spike usually means a zone polygon or rule change went bad,
	// not a wave of real encroachment. Require a minimum sample first.
	if snap.DetectionTotal >= 5 && a.cfg.ViolationRateThreshold > 0 && snap.ViolationRate > a.cfg.ViolationRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertViolationRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Violation rate %.1f%% exceeds threshold %.1f%% (%d verified / %d audits in last %dh)",
				snap.ViolationRate*100, a.cfg.ViolationRateThreshold*100,
				snap.DetectionVerified, snap.DetectionTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"violation_rate": snap.ViolationRate,
				"threshold":      a.cfg.ViolationRateThreshold,
				"total":          snap.DetectionTotal,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
