package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/config"
)

// Checker periodically snapshots detection activity and pushes any triggered
// alerts to the webhook.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{collector: collector, alerter: alerter, cfg: cfg}
}

// Run blocks until ctx is cancelled. The first check fires at startup, so a
// re-anchor backlog left over from a previous run surfaces right away.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().Named("monitoring")
	log.Info("detection monitor started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.check(ctx, log)
		select {
		case <-ctx.Done():
			log.Info("detection monitor stopped")
			return
		case <-ticker.C:
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("metrics collection failed", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("detection alerts raised",
		zap.Int("triggered", len(alerts)),
		zap.Int("delivered", sent),
		zap.Int("anchor_backlog", snap.AnchorBacklog),
	)
}
